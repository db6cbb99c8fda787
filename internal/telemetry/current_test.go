package telemetry

import (
	"sync"
	"testing"

	rc "robot_control"
)

func TestCurrent_ReplaceIsDefault(t *testing.T) {
	c := New()
	c.Merge(rc.Telemetry{"Ranges": map[string]any{"Forward": 100.0, "Left": 50.0}})
	c.Merge(rc.Telemetry{"Ranges": map[string]any{"Forward": 80.0}})

	snap, _ := c.Snapshot()
	ranges := snap["Ranges"].(map[string]any)
	if _, has := ranges["Left"]; has || ranges["Forward"] != 80.0 {
		t.Fatalf("ranges = %v", ranges)
	}
}

func TestCurrent_DockSignalMergesFields(t *testing.T) {
	c := New()
	c.Merge(rc.Telemetry{DockSignal: map[string]any{"left": 1.0, "time": "t1"}})
	c.Merge(rc.Telemetry{DockSignal: map[string]any{"right": 1.0, "time": "t2"}})

	v, ok := c.Get(DockSignal)
	if !ok {
		t.Fatalf("dock signal missing")
	}
	ds := v.(map[string]any)
	if ds["left"] != 1.0 || ds["right"] != 1.0 || ds["time"] != "t2" {
		t.Fatalf("dockSignal = %v", ds)
	}
}

func TestCurrent_StructsAreNormalised(t *testing.T) {
	c := New()
	c.Merge(rc.Telemetry{"MPU": rc.MpuSample{Heading: 42}})
	snap, _ := c.Snapshot()
	mpu, ok := snap["MPU"].(map[string]any)
	if !ok || mpu["heading"] != 42.0 {
		t.Fatalf("MPU = %#v", snap["MPU"])
	}
}

func TestCurrent_SnapshotIsDeepCopy(t *testing.T) {
	c := New()
	c.Merge(rc.Telemetry{"Bat": map[string]any{"voltage": 12.1}})
	snap, v1 := c.Snapshot()
	snap["Bat"].(map[string]any)["voltage"] = 0.0

	again, v2 := c.Snapshot()
	if again["Bat"].(map[string]any)["voltage"] != 12.1 {
		t.Fatalf("snapshot aliases internal state")
	}
	if v1 != v2 {
		t.Fatalf("version changed without a merge")
	}
	c.Merge(rc.Telemetry{"x": 1.0})
	if _, v3 := c.Snapshot(); v3 == v2 {
		t.Fatalf("version did not change on merge")
	}
}

func TestCurrent_ConcurrentMergeAndSnapshot(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Merge(rc.Telemetry{DockSignal: map[string]any{"n": float64(i*100 + j)}})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Snapshot()
			}
		}()
	}
	wg.Wait()
	if _, ok := c.Get(DockSignal); !ok {
		t.Fatalf("dock signal missing")
	}
}
