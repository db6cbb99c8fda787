package db

import (
	"context"
	"testing"
	"time"

	"robot_control/internal/models"
	"robot_control/internal/repository"
)

// The repositories are unit tested against sqlmock; this checks the SQL
// they issue against the real schema.
func TestInitDB_SchemaServesRepositories(t *testing.T) {
	conn, err := InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	repos := repository.NewRepository(conn)

	top := models.Topology{
		Robot: "lbr",
		Processes: []models.Process{
			{ID: 1, Name: "operations", Role: "operations", Enabled: true},
			{ID: 2, Name: "iot", Role: "iot", Enabled: false},
		},
		Channels: []models.Channel{
			{ID: 1, Description: "robot to ops", Direction: models.DirectionSend, Source: 0, Target: 1, Type: "Operations"},
			{ID: 2, Description: "ops to robot", Direction: models.DirectionReceive, Source: 1, Target: 0, ShareQueue: 0, Type: "Application", Protocol: "queue"},
		},
	}
	if err := repos.Topology.Save(ctx, top); err != nil {
		t.Fatalf("Save topology: %v", err)
	}
	got, err := repos.Topology.Load(ctx, "lbr")
	if err != nil {
		t.Fatalf("Load topology: %v", err)
	}
	if len(got.Processes) != 2 || got.Processes[1].Enabled || len(got.Channels) != 2 || got.Channels[1].Protocol != "queue" {
		t.Fatalf("topology = %+v", got)
	}

	run, err := repos.Runs.NoteStarted(ctx, "lbr")
	if err != nil {
		t.Fatalf("NoteStarted: %v", err)
	}
	if err := repos.Runs.NoteShutdown(ctx, run.ID); err != nil {
		t.Fatalf("NoteShutdown: %v", err)
	}
	last, err := repos.Runs.Last(ctx, "lbr")
	if err != nil || last.ID != run.ID || last.ShutdownAt == nil {
		t.Fatalf("Last = %+v, %v", last, err)
	}

	if err := repos.EventRepo.Append(ctx, models.RobotEvent{Type: models.EventSafety, Description: "watchdog", Metadata: map[string]any{"pulse": 2}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	events, err := repos.EventRepo.List(ctx, time.Now().Add(-time.Minute), time.Now().Add(time.Minute), "safety")
	if err != nil || len(events) != 1 {
		t.Fatalf("List = %v, %v", events, err)
	}

	if err := repos.Calibration.Save(ctx, models.CalibrationSetting{Robot: "lbr", Name: models.SettingMagAlpha, Value: -17.025}); err != nil {
		t.Fatalf("Save calibration: %v", err)
	}
	if s, err := repos.Calibration.Load(ctx, "lbr", models.SettingMagAlpha); err != nil || s.Value != -17.025 {
		t.Fatalf("Load calibration = %+v, %v", s, err)
	}

	if _, err := repos.Auth.Create(ctx, "operator", "hash"); err != nil {
		t.Fatalf("Create operator: %v", err)
	}
}
