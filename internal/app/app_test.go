package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"robot_control/internal/config"
	"robot_control/internal/fabric"
	"robot_control/internal/models"
	"robot_control/internal/service"
)

const seedPath = "../../configs/topology.yml"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Robot.Name = "rover"
	cfg.DB.Path = ":memory:"
	cfg.Topology.Seed = seedPath
	cfg.Ops.AmpsInterval = 20 * time.Millisecond
	cfg.ShutdownGrace = time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, NewHardware(cfg.Drivers, nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_SeedsTopologyAndRegistersEveryRole(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	top := a.Topology()
	if top.Robot != "rover" || len(top.Processes) != 6 || len(top.Channels) != 11 {
		t.Fatalf("unexpected topology: robot=%q processes=%d channels=%d", top.Robot, len(top.Processes), len(top.Channels))
	}
	reg := a.Registry()
	for _, p := range top.Processes {
		if _, ok := reg[p.Role]; !ok {
			t.Fatalf("role %q of process %s not registered", p.Role, p.Name)
		}
	}
}

func TestApp_RunDriveAndStop(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	ctx := context.Background()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	gw := a.Services()
	if _, err := gw.Submit("/r/0.4/0"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Control channels do not carry Shutdown.
	if _, err := gw.Submit("Shutdown"); !errors.Is(err, service.ErrUnrouted) {
		t.Fatalf("remote shutdown should be unrouted, got %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, _ := gw.Telemetry()
		if _, ok := snap[service.KeyAmperages]; ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no amperages reached the gateway: %v", snap)
		}
		time.Sleep(10 * time.Millisecond)
	}

	a.Stop(ctx)

	events, err := a.repos.EventRepo.List(ctx, time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var started, stopped bool
	for _, e := range events {
		started = started || e.Type == models.EventStart
		stopped = stopped || e.Type == models.EventShutdown
	}
	if !started || !stopped {
		t.Fatalf("START/SHUTDOWN not recorded: %+v", events)
	}
	run, err := a.repos.Runs.Last(ctx, "rover")
	if err != nil || run.ShutdownAt == nil {
		t.Fatalf("run not closed: %+v (%v)", run, err)
	}
}

func TestApp_UnknownRoleFailsStart(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "topology.yml")
	body := "robot: x\nprocesses:\n  - {id: 1, name: arm, role: manipulator, enabled: true}\nchannels: []\n"
	if err := os.WriteFile(seed, []byte(body), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	cfg := testConfig(t)
	cfg.Topology.Seed = seed

	a := newTestApp(t, cfg)
	err := a.Start(context.Background())
	var ce *fabric.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestApp_NoGatewayProcessIsUnrouted(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "topology.yml")
	body := "robot: x\nprocesses:\n  - {id: 1, name: operations, role: operations, enabled: true}\nchannels: []\n"
	if err := os.WriteFile(seed, []byte(body), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	cfg := testConfig(t)
	cfg.Topology.Seed = seed

	a := newTestApp(t, cfg)
	if _, err := a.Services().Submit("/r/0.2/0"); !errors.Is(err, service.ErrUnrouted) {
		t.Fatalf("expected ErrUnrouted, got %v", err)
	}
}

func TestApplyRoleSwitches(t *testing.T) {
	top := models.Topology{Processes: []models.Process{
		{ID: 1, Role: RoleOperations, Enabled: true},
		{ID: 5, Role: RoleIoT, Enabled: false},
		{ID: 6, Role: RoleRecorder, Enabled: true},
	}}
	cfg := &config.Config{}
	cfg.IoT.Enabled = true

	got := applyRoleSwitches(top, cfg)
	if !got.Processes[0].Enabled || !got.Processes[1].Enabled || got.Processes[2].Enabled {
		t.Fatalf("switches not applied: %+v", got.Processes)
	}
	if top.Processes[1].Enabled {
		t.Fatalf("input topology modified")
	}
}
