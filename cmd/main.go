package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "robot_control/docs"
	"robot_control/internal/app"
	"robot_control/internal/config"
	"robot_control/internal/handlers"
	"robot_control/internal/logger"
	"robot_control/internal/server"
)

const httpShutdownTimeout = 10 * time.Second

// @title                       Robot Control API
// @version                     1.0
// @description                 Operator gateway of the robot control core.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load("configs", ".")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Init(cfg.Log.Level, cfg.Log.File)
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	robot, err := app.New(ctx, cfg, app.NewHardware(cfg.Drivers, log), log)
	if err != nil {
		log.Fatalw("failed to build robot", "err", err)
	}
	defer func() {
		if cerr := robot.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	if err := robot.Start(context.Background()); err != nil {
		log.Errorw("failed to start robot", "err", err)
		return
	}

	srv := &server.Server{}
	if cfg.HTTP.Enabled {
		if cfg.Auth.SigningKey == "" {
			log.Warnw("auth.signing_key not set; sign-in is disabled")
		}
		runHTTPServer(srv, cfg.HTTP, handlers.NewHandler(robot.Services(), log), log)
	}

	waitForShutdown(ctx, cancel, cfg, robot, log)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer stopCancel()
	if err := srv.Shutdown(stopCtx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	robot.Stop(stopCtx)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, cfg config.HTTPConfig, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "port", cfg.Port, "tls", cfg.TLS())
		err := srv.Run(cfg.Port, handler.InitRoutes(), cfg.TLSCert, cfg.TLSKey)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown returns on SIGINT/SIGTERM or, with the console enabled,
// when the operator types Shutdown or closes stdin.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, robot *app.App, log *logger.Logger) {
	if cfg.Robot.Console {
		go func() {
			defer cancel()
			if err := robot.Robot().Console(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("console_failed", "err", err)
			}
		}()
	}
	<-ctx.Done()
	log.Infow("shutting down robot...")
}
