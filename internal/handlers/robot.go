package handlers

import (
	"errors"
	"net/http"

	"robot_control/internal/command"
	"robot_control/internal/models"
	"robot_control/internal/service"

	"github.com/gin-gonic/gin"
)

type commandRequest struct {
	Token string `json:"token" binding:"required"`
}

// logAndJSONError logs err and writes a JSON error body with status.
func (h *Handler) logAndJSONError(c *gin.Context, status int, msg string, err error) {
	if h.log != nil {
		h.log.Errorw(msg, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// commandStatus maps a submit error to an HTTP status.
func commandStatus(err error) int {
	var pe *command.ParseError
	switch {
	case errors.As(err, &pe), errors.Is(err, service.ErrNoCommand):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnrouted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// @Summary      Health
// @Tags         robot
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary      Drive the robot
// @Description  Exactly one of heading, turn or level is used, checked in that order. With range set a level request becomes a ranged navigation.
// @Tags         robot
// @Accept       json
// @Produce      json
// @Param        body  body      service.PowerRequest  true  "Drive request"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/power [post]
// @Security     BearerAuth
func (h *Handler) power(c *gin.Context) {
	var req service.PowerRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}

	snap, err := h.services.Power(req)
	if err != nil {
		h.logAndJSONError(c, commandStatus(err), "power_failed", err)
		return
	}
	h.recordCommand(c, req)
	c.JSON(http.StatusOK, snap)
}

// @Summary      Submit a textual command
// @Description  Tokens use the console syntax, e.g. /r/0.5/0, /t/90, /s/hello or S.
// @Tags         robot
// @Accept       json
// @Produce      json
// @Param        body  body      commandRequest  true  "Command"
// @Success      202   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/command [post]
// @Security     BearerAuth
func (h *Handler) command(c *gin.Context) {
	var req commandRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}

	msg, err := h.services.Submit(req.Token)
	if err != nil {
		h.logAndJSONError(c, commandStatus(err), "command_failed", err)
		return
	}
	h.recordCommand(c, req.Token)
	c.JSON(http.StatusAccepted, gin.H{"kind": string(msg.Kind())})
}

// @Summary      Report a docking beacon reading
// @Tags         robot
// @Accept       json
// @Param        body  body  map[string]interface{}  true  "Beacon signal"
// @Success      204
// @Failure      400   {object}  map[string]string
// @Router       /api/v1/docksignal [post]
// @Security     BearerAuth
func (h *Handler) dockSignal(c *gin.Context) {
	var signal map[string]any
	if ok := h.bindJSONOrBadRequest(c, &signal); !ok {
		return
	}
	h.services.DockSignal(signal)
	c.Status(http.StatusNoContent)
}

// @Summary      Current telemetry
// @Description  Polling while this gateway has the motors powered keeps the safety watchdog fed.
// @Tags         robot
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/telemetry [get]
// @Security     BearerAuth
func (h *Handler) telemetry(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.PollTelemetry())
}

// recordCommand appends a COMMAND event. A failure is only logged.
func (h *Handler) recordCommand(c *gin.Context, cmd any) {
	meta := map[string]any{"operator_id": operatorID(c), "command": cmd}
	err := h.services.Record(c.Request.Context(), models.EventCommand, "operator command", meta)
	if err != nil && h.log != nil {
		h.log.Warnw("command_event_failed", "err", err)
	}
}
