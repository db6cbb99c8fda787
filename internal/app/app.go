// Package app assembles a robot from its configuration: storage, topology,
// hardware, the process registry and the operator gateway.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"robot_control/internal/command"
	"robot_control/internal/config"
	"robot_control/internal/fabric"
	"robot_control/internal/iot"
	"robot_control/internal/logger"
	"robot_control/internal/models"
	"robot_control/internal/recorder"
	"robot_control/internal/repository"
	"robot_control/internal/repository/db"
	"robot_control/internal/service"
	"robot_control/internal/telemetry"
)

// Process roles understood by the registry.
const (
	RoleOperations = "operations"
	RoleMotion     = "motion"
	RoleRange      = "range"
	RoleGateway    = "gateway"
	RoleIoT        = "iot"
	RoleRecorder   = "recorder"
)

// noProcess names no process, so its endpoint routes nothing.
const noProcess = -1

type App struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *sql.DB
	repos  *repository.Repository
	hw     Hardware
	parser *command.Interpreter

	topology models.Topology
	fabric   *fabric.Fabric
	robot    *fabric.Robot
	gateway  *service.GatewayService
	services *service.Service
	run      models.Run
}

// New opens the database, loads (or seeds) the topology and builds the
// fabric. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, hw Hardware, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	conn, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:    cfg,
		log:    log,
		db:     conn,
		repos:  repository.NewRepository(conn),
		hw:     hw,
		parser: command.NewInterpreter(log.Named("interpreter")),
	}

	top, seeded, err := repository.EnsureTopology(ctx, a.repos.Topology, cfg.Robot.Name, cfg.Topology.Seed)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("load topology: %w", err)
	}
	if seeded {
		log.Infow("topology_seeded", "robot", cfg.Robot.Name, "seed", cfg.Topology.Seed)
	}
	a.topology = applyRoleSwitches(top, cfg)

	a.fabric, err = fabric.Build(a.topology, fabric.DefaultTypeMap())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	a.gateway = service.NewGatewayService(a.fabric.Endpoint(a.gatewayProcess()), a.parser, telemetry.New(), log.Named(RoleGateway))
	a.services = service.NewService(a.repos, a.gateway, cfg.Auth.SigningKey, cfg.Auth.TokenTTL)
	a.robot = fabric.NewRobot(a.fabric, a.Registry(), a.parser, log.Named("robot"), cfg.ShutdownGrace)
	return a, nil
}

// applyRoleSwitches lets iot.enabled and recorder.enabled override the
// stored topology for processes of those roles.
func applyRoleSwitches(top models.Topology, cfg *config.Config) models.Topology {
	procs := make([]models.Process, len(top.Processes))
	copy(procs, top.Processes)
	for i, p := range procs {
		switch p.Role {
		case RoleIoT:
			procs[i].Enabled = cfg.IoT.Enabled
		case RoleRecorder:
			procs[i].Enabled = cfg.Recorder.Enabled
		}
	}
	top.Processes = procs
	return top
}

// gatewayProcess returns the first enabled gateway process. Without one
// every gateway command is unrouted.
func (a *App) gatewayProcess() int {
	for _, p := range a.fabric.Processes() {
		if p.Role == RoleGateway {
			return p.ID
		}
	}
	return noProcess
}

// Registry maps every role to its process entry point.
func (a *App) Registry() fabric.Registry {
	return fabric.Registry{
		RoleOperations: a.runOperations,
		RoleMotion:     a.runMotion,
		RoleRange:      a.runRange,
		RoleGateway:    a.runGateway,
		RoleIoT:        a.runIoT,
		RoleRecorder:   a.runRecorder,
	}
}

func (a *App) runOperations(ctx context.Context, ep *fabric.Endpoint) error {
	act, err := a.hw.Actuator()
	if err != nil {
		return fmt.Errorf("open actuator: %w", err)
	}
	cfg := service.OpsConfig(a.cfg.Ops)
	return service.NewOperationsManager(cfg, act, a.repos.EventRepo, a.log.Named(RoleOperations)).Run(ctx, ep)
}

func (a *App) runMotion(ctx context.Context, ep *fabric.Endpoint) error {
	imu, err := a.hw.Motion()
	if err != nil {
		return fmt.Errorf("open motion sensor: %w", err)
	}
	cfg := service.WorkerConfig(a.cfg.Motion)
	return service.NewMotionService(cfg, imu, a.repos.Calibration, a.cfg.Robot.Name, a.log.Named(RoleMotion)).Run(ctx, ep)
}

func (a *App) runRange(ctx context.Context, ep *fabric.Endpoint) error {
	sensor, err := a.hw.Range()
	if err != nil {
		return fmt.Errorf("open range sensor: %w", err)
	}
	cfg := service.WorkerConfig(a.cfg.Range)
	return service.NewRangeService(cfg, sensor, a.log.Named(RoleRange)).Run(ctx, ep)
}

func (a *App) runGateway(ctx context.Context, ep *fabric.Endpoint) error {
	return a.gateway.Run(ctx, ep)
}

func (a *App) runIoT(ctx context.Context, ep *fabric.Endpoint) error {
	c := a.cfg.IoT
	clientID := c.ClientID
	if clientID == "" {
		clientID = a.cfg.Robot.Name
	}
	log := a.log.Named(RoleIoT)
	transport := iot.NewMQTT(iot.Options{
		Broker:   c.Broker,
		ClientID: clientID,
		Username: c.Username,
		Password: c.Password,
		QoS:      c.QoS,
	}, log)
	return iot.NewBridge(transport, a.parser, c.TopicPrefix, a.cfg.Robot.Name, log).Run(ctx, ep)
}

func (a *App) runRecorder(ctx context.Context, ep *fabric.Endpoint) error {
	c := a.cfg.Recorder
	rec, closeClient := recorder.NewInflux(recorder.Options{
		URL:    c.URL,
		Token:  c.Token,
		Org:    c.Org,
		Bucket: c.Bucket,
	}, a.cfg.Robot.Name, a.log.Named(RoleRecorder))
	defer closeClient()
	return rec.Run(ctx, ep)
}

// Services returns what the HTTP handlers need.
func (a *App) Services() *service.Service { return a.services }

// Robot returns the orchestrator, e.g. for the operator console.
func (a *App) Robot() *fabric.Robot { return a.robot }

// Topology returns the topology the robot was built from.
func (a *App) Topology() models.Topology { return a.topology }

// Start notes a new run, records START and launches every enabled process.
func (a *App) Start(ctx context.Context) error {
	run, err := a.repos.Runs.NoteStarted(ctx, a.cfg.Robot.Name)
	if err != nil {
		return fmt.Errorf("note run start: %w", err)
	}
	a.run = run
	a.record(ctx, models.EventStart, "robot started")

	if err := a.robot.Start(ctx); err != nil {
		a.record(ctx, models.EventShutdown, "start failed")
		_ = a.repos.Runs.NoteShutdown(ctx, run.ID)
		return err
	}
	a.log.Infow("robot_started", "robot", a.cfg.Robot.Name, "run", run.ID, "processes", len(a.fabric.Processes()))
	return nil
}

// Stop shuts every process down and closes the current run.
func (a *App) Stop(ctx context.Context) {
	a.robot.Stop()
	a.record(ctx, models.EventShutdown, "robot stopped")
	if a.run.ID == "" {
		return
	}
	if err := a.repos.Runs.NoteShutdown(ctx, a.run.ID); err != nil {
		a.log.Errorw("run_shutdown_not_noted", "run", a.run.ID, "err", err)
	}
}

// Close releases the database.
func (a *App) Close() error {
	return a.db.Close()
}

func (a *App) record(ctx context.Context, typ, description string) {
	meta := map[string]any{"robot": a.cfg.Robot.Name, "run": a.run.ID}
	if err := a.services.Record(ctx, typ, description, meta); err != nil {
		a.log.Errorw("event_not_recorded", "type", typ, "err", err)
	}
}
