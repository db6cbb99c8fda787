package navigation

import (
	"math"
	"testing"

	rc "robot_control"
)

func TestCalcDirection(t *testing.T) {
	cases := []struct {
		name            string
		current, target float64
		wantDir         float64
		wantCW, wantCCW float64
	}{
		{"quarter_clockwise", 0, 90, Clockwise, 90, 270},
		{"quarter_counter", 90, 0, CounterClockwise, 270, 90},
		{"wrap_clockwise", 350, 10, Clockwise, 20, 340},
		{"wrap_counter", 10, 350, CounterClockwise, 340, 20},
		{"equal_is_zero_delta", 45, 45, Clockwise, 0, 360},
		{"tie_prefers_clockwise", 0, 180, Clockwise, 180, 180},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir, dcw, dccw := CalcDirection(tc.current, tc.target)
			if dir != tc.wantDir || dcw != tc.wantCW || dccw != tc.wantCCW {
				t.Fatalf("CalcDirection(%v,%v) = (%v,%v,%v), want (%v,%v,%v)",
					tc.current, tc.target, dir, dcw, dccw, tc.wantDir, tc.wantCW, tc.wantCCW)
			}
		})
	}
}

func TestCalcDirection_Total(t *testing.T) {
	for cur := 0.0; cur <= 360; cur += 7.5 {
		for tgt := 0.0; tgt <= 360; tgt += 7.5 {
			dir, dcw, dccw := CalcDirection(cur, tgt)
			if dir != Clockwise && dir != CounterClockwise {
				t.Fatalf("direction %v for (%v,%v)", dir, cur, tgt)
			}
			if dcw < 0 || dccw < 0 {
				t.Fatalf("negative distance for (%v,%v): %v %v", cur, tgt, dcw, dccw)
			}
			if math.Abs(dcw+dccw-360) > 1e-9 {
				t.Fatalf("distances for (%v,%v) do not cover the circle: %v + %v", cur, tgt, dcw, dccw)
			}
			if (dir == Clockwise) != (dcw <= dccw) {
				t.Fatalf("direction %v does not follow shorter path for (%v,%v)", dir, cur, tgt)
			}
		}
	}
}

func TestAdjustPower(t *testing.T) {
	rules := NewRangeRules()
	cases := []struct {
		name      string
		requested rc.Power
		previous  rc.Power
		rng       float64
		want      float64
	}{
		{"stopped_stays_stopped", rc.Power{Level: 0.5}, rc.Power{Level: 0}, 200, 0},
		{"hard_stop_at_min", rc.Power{Level: 0.5}, rc.Power{Level: 0.5}, 25, 0},
		{"hard_stop_unknown_range", rc.Power{Level: 0.5}, rc.Power{Level: 0.5}, -1, 0},
		{"free_range_passes_request", rc.Power{Level: 0.9}, rc.Power{Level: 0.3}, 100, 0.9},
		{"ceiling_applies", rc.Power{Level: 0.8}, rc.Power{Level: 0.8}, 50, 0.5},
		{"below_ceiling_kept", rc.Power{Level: 0.3}, rc.Power{Level: 0.3}, 50, 0.3},
		{"floor_applies", rc.Power{Level: 0.8}, rc.Power{Level: 0.8}, 26, MinPowerLevel},
		{"spin_not_limited", rc.Power{Level: 0.6, Angle: 90}, rc.Power{Level: 0.6, Angle: 90}, 10, 0.6},
		{"edge_of_cone_limited", rc.Power{Level: 0.8, Angle: 45}, rc.Power{Level: 0.8, Angle: 45}, 20, 0},
		{"reverse_not_limited", rc.Power{Level: 0.4, Angle: 180}, rc.Power{Level: 0.4, Angle: 180}, 5, 0.4},
		{"left_cone_limited", rc.Power{Level: 0.8, Angle: 330}, rc.Power{Level: 0.8, Angle: 330}, 50, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := rules.AdjustPower(tc.requested, tc.previous, tc.rng)
			if math.Abs(got.Level-tc.want) > 1e-9 {
				t.Fatalf("level = %v, want %v", got.Level, tc.want)
			}
			if got.Angle != tc.previous.Angle {
				t.Fatalf("angle = %v, want %v", got.Angle, tc.previous.Angle)
			}
		})
	}
}

func TestAdjustPower_MonotonicAsRangeShrinks(t *testing.T) {
	rules := NewRangeRules()
	for _, level := range []float64{0.2, 0.5, 0.8, 1.0} {
		p := rc.Power{Level: level, Angle: 0}
		last := math.Inf(1)
		for r := FreeForwardRange; r >= MinForwardRange; r -= 0.5 {
			got := rules.AdjustPower(p, p, r).Level
			if got > last {
				t.Fatalf("level %v: output rose from %v to %v at range %v", level, last, got, r)
			}
			last = got
		}
		if got := rules.AdjustPower(p, p, MinForwardRange).Level; got != 0 {
			t.Fatalf("level %v: expected 0 at min range, got %v", level, got)
		}
	}
}

func TestThrottleSteering(t *testing.T) {
	cases := []struct {
		name     string
		p        rc.Power
		throttle int
		steering int
	}{
		{"full_forward", rc.Power{Level: 1, Angle: 0}, 1000, 0},
		{"spin_clockwise", rc.Power{Level: 0.5, Angle: 90}, 0, 500},
		{"spin_counter", rc.Power{Level: 0.5, Angle: 270}, 0, -500},
		{"reverse", rc.Power{Level: 0.5, Angle: 180}, -500, 0},
		{"clamped_level", rc.Power{Level: 2, Angle: 0}, 1000, 0},
		{"stop", rc.Power{}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			th, st := ThrottleSteering(tc.p)
			if th != tc.throttle || st != tc.steering {
				t.Fatalf("got (%d,%d), want (%d,%d)", th, st, tc.throttle, tc.steering)
			}
		})
	}
}

func TestMix(t *testing.T) {
	cases := []struct {
		throttle, steering int
		ch1, ch2           int
	}{
		{1000, 0, 1000, 1000},
		{0, 500, 500, -500},
		{800, 400, 1000, 400},
		{-800, -400, -1000, -400},
	}
	for _, tc := range cases {
		ch1, ch2 := Mix(tc.throttle, tc.steering)
		if ch1 != tc.ch1 || ch2 != tc.ch2 {
			t.Fatalf("Mix(%d,%d) = (%d,%d), want (%d,%d)", tc.throttle, tc.steering, ch1, ch2, tc.ch1, tc.ch2)
		}
	}
}

type mixerStub struct {
	throttle, steering int
	calls              int
}

func (m *mixerStub) MixMotorCommand(throttle, steering int) rc.MotorCommandResult {
	m.calls++
	m.throttle, m.steering = throttle, steering
	return rc.MotorCommandResult{Status: rc.MotorSuccess}
}

func TestMover_Move(t *testing.T) {
	stub := &mixerStub{}
	res := NewMover(stub).Move(rc.Power{Level: 0.5, Angle: 90})
	if res.Status != rc.MotorSuccess {
		t.Fatalf("status = %s", res.Status)
	}
	if stub.calls != 1 || stub.throttle != 0 || stub.steering != 500 {
		t.Fatalf("unexpected mixer call: %+v", stub)
	}
}

func TestBatteryLevelFor(t *testing.T) {
	cases := []struct {
		volts  float64
		level  float64
		source string
	}{
		{10.0, 0, SourceBattery},
		{11.3, 0.1, SourceBattery},
		{12.0, 0.5, SourceBattery},
		{12.1, 0.5, SourceBattery},
		{12.7, 1.0, SourceBattery},
		{13.4, 1.0, SourceAC},
	}
	for _, tc := range cases {
		got := BatteryLevelFor(tc.volts)
		if got.Level != tc.level || got.Source != tc.source || got.Voltage != tc.volts {
			t.Fatalf("BatteryLevelFor(%v) = %+v, want level %v source %s", tc.volts, got, tc.level, tc.source)
		}
	}
}
