package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	rc "robot_control"
	"robot_control/internal/models"
	"robot_control/internal/repository"
)

// fakeIMU replays samples and remembers calibration requests.
type fakeIMU struct {
	samples     []rc.MpuSample
	reads       int
	calibErr    error
	calibrated  []rc.CalibrateMagnetometer
	alpha, beta float64
	closed      bool
}

func (f *fakeIMU) Read() rc.MpuSample {
	s := f.samples[f.reads%len(f.samples)]
	f.reads++
	return s
}

func (f *fakeIMU) CalibrateMag(samples int, source string) error {
	f.calibrated = append(f.calibrated, rc.CalibrateMagnetometer{Samples: samples, Source: source})
	if f.calibErr != nil {
		return f.calibErr
	}
	f.alpha, f.beta = -12.5, 3.25
	return nil
}

func (f *fakeIMU) HardIron() (float64, float64) { return f.alpha, f.beta }

func (f *fakeIMU) SetHardIron(alpha, beta float64) { f.alpha, f.beta = alpha, beta }

func (f *fakeIMU) Close() error {
	f.closed = true
	return nil
}

type fakeSonar struct {
	reads  []rc.RangeSample
	fail   map[int]bool
	n      int
	closed bool
}

func (f *fakeSonar) Read() (bool, rc.RangeSample) {
	i := f.n
	f.n++
	if f.fail[i] || i >= len(f.reads) {
		return false, rc.RangeSample{}
	}
	return true, f.reads[i]
}

func (f *fakeSonar) Close() error {
	f.closed = true
	return nil
}

// memCalibration is an in-memory repository.CalibrationRepo.
type memCalibration struct {
	mu   sync.Mutex
	rows map[string]models.CalibrationSetting
	err  error
}

func (m *memCalibration) Save(ctx context.Context, s models.CalibrationSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.rows == nil {
		m.rows = map[string]models.CalibrationSetting{}
	}
	m.rows[s.Robot+"/"+s.Name] = s
	return nil
}

func (m *memCalibration) Load(ctx context.Context, robot, name string) (models.CalibrationSetting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.CalibrationSetting{}, m.err
	}
	s, ok := m.rows[robot+"/"+name]
	if !ok {
		return models.CalibrationSetting{}, repository.ErrNotFound
	}
	return s, nil
}

func gyroSample(at time.Time, z float64) rc.MpuSample {
	return rc.MpuSample{Gyro: rc.Vector3{Z: z}, Time: at}
}

func TestMotionService_TurnObserverReportsOnce(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	imu := &fakeIMU{samples: []rc.MpuSample{
		gyroSample(t0.Add(500*time.Millisecond), -90),
		gyroSample(t0.Add(1000*time.Millisecond), -90),
		gyroSample(t0.Add(1500*time.Millisecond), -90),
	}}
	svc := NewMotionService(WorkerConfig{}, imu, nil, "r1", nil)
	svc.now = func() time.Time { return t0 }
	ep := &fakeEndpoint{}

	svc.handle(context.Background(), ep, rc.ObserveTurn{Angle: 90})
	for i := 0; i < 3; i++ {
		svc.tick(ep)
	}

	var results []rc.ObservationResult
	samples := 0
	for _, msg := range ep.sentMessages() {
		switch v := msg.(type) {
		case rc.ObservationResult:
			results = append(results, v)
		case rc.MpuSample:
			samples++
		}
	}
	// 22.5 + 45 + 45 degrees integrated
	if len(results) != 1 || results[0].Outcome != rc.Observed || results[0].Value != 112.5 {
		t.Fatalf("results = %+v", results)
	}
	if samples != 1 {
		t.Fatalf("reported %d samples with a frozen clock, want 1", samples)
	}
	if svc.active.Len() != 0 {
		t.Fatalf("terminated observer kept")
	}
}

func TestMotionService_CalibrationIsPersisted(t *testing.T) {
	imu := &fakeIMU{samples: []rc.MpuSample{{}}}
	calib := &memCalibration{}
	svc := NewMotionService(WorkerConfig{}, imu, calib, "r1", nil)
	ep := &fakeEndpoint{}

	svc.handle(context.Background(), ep, rc.CalibrateMagnetometer{Samples: 200, Source: "-"})

	if len(imu.calibrated) != 1 || imu.calibrated[0].Samples != 200 {
		t.Fatalf("calibration request = %+v", imu.calibrated)
	}
	if got := ep.commands(); len(got) != 1 || got[0] != (rc.Power{}) {
		t.Fatalf("sent %v, want a stop", got)
	}
	alpha, err := calib.Load(context.Background(), "r1", models.SettingMagAlpha)
	if err != nil || alpha.Value != -12.5 {
		t.Fatalf("alpha = %+v, %v", alpha, err)
	}
	beta, err := calib.Load(context.Background(), "r1", models.SettingMagBeta)
	if err != nil || beta.Value != 3.25 {
		t.Fatalf("beta = %+v, %v", beta, err)
	}
}

func TestMotionService_FailedCalibrationStillStops(t *testing.T) {
	imu := &fakeIMU{samples: []rc.MpuSample{{}}, calibErr: errors.New("no samples")}
	calib := &memCalibration{}
	svc := NewMotionService(WorkerConfig{}, imu, calib, "r1", nil)
	ep := &fakeEndpoint{}

	svc.handle(context.Background(), ep, rc.CalibrateMagnetometer{})
	if got := ep.commands(); len(got) != 1 || got[0] != (rc.Power{}) {
		t.Fatalf("sent %v, want a stop", got)
	}
	if len(calib.rows) != 0 {
		t.Fatalf("failed calibration persisted: %v", calib.rows)
	}
}

func TestMotionService_RunRestoresCalibrationAndCloses(t *testing.T) {
	imu := &fakeIMU{samples: []rc.MpuSample{{}}}
	calib := &memCalibration{}
	ctx := context.Background()
	_ = calib.Save(ctx, models.CalibrationSetting{Robot: "r1", Name: models.SettingMagAlpha, Value: 4})
	_ = calib.Save(ctx, models.CalibrationSetting{Robot: "r1", Name: models.SettingMagBeta, Value: -2})

	svc := NewMotionService(WorkerConfig{LoopTime: time.Millisecond}, imu, calib, "r1", nil)
	ep := &fakeEndpoint{}
	ep.push(rc.Shutdown{})
	if err := svc.Run(ctx, ep); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if imu.alpha != 4 || imu.beta != -2 {
		t.Fatalf("hard iron = %v, %v", imu.alpha, imu.beta)
	}
	if !imu.closed {
		t.Fatalf("imu not closed")
	}
}

func TestMotionService_MissingCalibrationKeepsDefaults(t *testing.T) {
	imu := &fakeIMU{samples: []rc.MpuSample{{}}, alpha: 1, beta: 1}
	calib := &memCalibration{}
	_ = calib.Save(context.Background(), models.CalibrationSetting{Robot: "r1", Name: models.SettingMagAlpha, Value: 4})
	svc := NewMotionService(WorkerConfig{}, imu, calib, "r1", nil)

	svc.restoreCalibration(context.Background())
	if imu.alpha != 1 || imu.beta != 1 {
		t.Fatalf("partial calibration applied: %v, %v", imu.alpha, imu.beta)
	}
}

func TestRangeService_ObserverAndFailedReads(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	at := func(i int, cm float64) rc.RangeSample {
		return rc.RangeSample{
			Ranges:    map[string]float64{rc.SensorForward: cm},
			Timestamp: t0.Add(time.Duration(i) * 100 * time.Millisecond),
		}
	}
	sonar := &fakeSonar{
		reads: []rc.RangeSample{at(1, 80), {}, at(3, 40.5)},
		fail:  map[int]bool{1: true},
	}
	svc := NewRangeService(WorkerConfig{ReportInterval: time.Nanosecond}, sonar, nil)
	clock := newFakeClock()
	svc.now = clock.now
	ep := &fakeEndpoint{}

	svc.handle(context.Background(), ep, rc.ObserveRange{Nav: rc.Nav{Range: 40, Sensor: rc.SensorForward}})
	for i := 0; i < 3; i++ {
		svc.tick(ep)
		clock.add(100 * time.Millisecond)
	}

	var results []rc.ObservationResult
	var samples []rc.RangeSample
	for _, msg := range ep.sentMessages() {
		switch v := msg.(type) {
		case rc.ObservationResult:
			results = append(results, v)
		case rc.RangeSample:
			samples = append(samples, v)
		}
	}
	if len(results) != 1 || results[0].Outcome != rc.Observed || results[0].Value != 40.5 {
		t.Fatalf("results = %+v", results)
	}
	if len(samples) != 2 || svc.misses != 1 {
		t.Fatalf("samples=%d misses=%d", len(samples), svc.misses)
	}
}

func TestRangeService_RunStopsOnShutdown(t *testing.T) {
	sonar := &fakeSonar{}
	svc := NewRangeService(WorkerConfig{LoopTime: time.Millisecond}, sonar, nil)
	ep := &fakeEndpoint{}
	ep.push(rc.Speech{Msg: "ignored"}, rc.Shutdown{})
	if err := svc.Run(context.Background(), ep); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sonar.closed {
		t.Fatalf("sonar not closed")
	}
}

func TestRangeService_RunHonoursContext(t *testing.T) {
	svc := NewRangeService(WorkerConfig{LoopTime: time.Millisecond}, &fakeSonar{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx, &fakeEndpoint{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v", err)
	}
}
