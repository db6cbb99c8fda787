package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"robot_control/internal/models"
	"robot_control/internal/repository"

	"github.com/google/uuid"
)

// LogFilter selects robot events by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "" or one of the models.Event* types
}

// EventLogService reads and appends the robot event log.
type EventLogService struct {
	eventRepo repository.EventRepo
	now       func() time.Time
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo, now: time.Now}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	ErrUnknownEventType = errors.New("unknown event type")
)

var knownEventTypes = map[string]bool{
	models.EventStart:       true,
	models.EventShutdown:    true,
	models.EventSafety:      true,
	models.EventAlarm:       true,
	models.EventObservation: true,
	models.EventCommand:     true,
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates them.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}

	eventType := normalizeEventType(f.Type)
	if eventType != "" && !knownEventTypes[eventType] {
		return time.Time{}, time.Time{}, "", fmt.Errorf("%w: %q", ErrUnknownEventType, f.Type)
	}
	return from, to, eventType, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.RobotEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}

// Record appends an event stamped with a new id and the current time.
func (s *EventLogService) Record(ctx context.Context, typ, description string, metadata any) error {
	typ = normalizeEventType(typ)
	if !knownEventTypes[typ] {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, typ)
	}
	return s.eventRepo.Append(ctx, models.RobotEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  s.now().UTC(),
		Type:        typ,
		Description: description,
		Metadata:    metadata,
	})
}
