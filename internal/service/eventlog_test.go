package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"robot_control/internal/models"
)

// fakeEventRepo records every call. It is safe for use from a running loop.
type fakeEventRepo struct {
	mu sync.Mutex

	gotFrom time.Time
	gotTo   time.Time
	gotType string

	appended []models.RobotEvent
	events   []models.RobotEvent
	err      error

	calls int
}

func (f *fakeEventRepo) List(ctx context.Context, from, to time.Time, typ string) ([]models.RobotEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotFrom = from
	f.gotTo = to
	f.gotType = typ
	return f.events, f.err
}

func (f *fakeEventRepo) Append(ctx context.Context, e models.RobotEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, e)
	return f.err
}

func (f *fakeEventRepo) ofType(typ string) []models.RobotEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RobotEvent
	for _, e := range f.appended {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func Test_normalizeAndValidateFilter(t *testing.T) {
	t.Parallel()

	fromLocal := time.Date(2025, time.September, 10, 10, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	toUTC := time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		in       LogFilter
		wantFrom time.Time
		wantTo   time.Time
		wantType string
		wantErr  error
	}{
		{
			name: "all zero is open ended",
			in:   LogFilter{},
		},
		{
			name: "from after to",
			in: LogFilter{
				From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
			},
			wantErr: errInvalidTimeRange,
		},
		{
			name:     "normalize zone and type",
			in:       LogFilter{From: fromLocal, To: toUTC, Type: " safety "},
			wantFrom: time.Date(2025, time.September, 10, 8, 0, 0, 0, time.UTC),
			wantTo:   toUTC,
			wantType: models.EventSafety,
		},
		{
			name:    "unknown type",
			in:      LogFilter{Type: "MODE_CHANGE"},
			wantErr: ErrUnknownEventType,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotFrom, gotTo, gotType, err := normalizeAndValidateFilter(tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v; got %v", tc.wantErr, err)
			}
			if !gotFrom.Equal(tc.wantFrom) || !gotTo.Equal(tc.wantTo) {
				t.Fatalf("bounds: got %v..%v; want %v..%v", gotFrom, gotTo, tc.wantFrom, tc.wantTo)
			}
			if gotType != tc.wantType {
				t.Fatalf("type: got %q; want %q", gotType, tc.wantType)
			}
		})
	}
}

func TestEventLogService_List_DelegatesNormalizedParams(t *testing.T) {
	frepo := &fakeEventRepo{events: []models.RobotEvent{{EventID: "1", Type: models.EventAlarm}}}
	svc := NewEventLogService(frepo)

	from := time.Date(2025, time.October, 1, 10, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	out, err := svc.List(context.Background(), LogFilter{From: from, Type: "alarm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].EventID != "1" {
		t.Fatalf("unexpected events: %+v", out)
	}
	if want := time.Date(2025, time.October, 1, 5, 0, 0, 0, time.UTC); !frepo.gotFrom.Equal(want) {
		t.Fatalf("repo gotFrom=%v; want %v", frepo.gotFrom, want)
	}
	if !frepo.gotTo.IsZero() || frepo.gotType != models.EventAlarm {
		t.Fatalf("repo got to=%v type=%q", frepo.gotTo, frepo.gotType)
	}
}

func TestEventLogService_List_Errors(t *testing.T) {
	frepo := &fakeEventRepo{}
	svc := NewEventLogService(frepo)
	_, err := svc.List(context.Background(), LogFilter{Type: "nope"})
	if !errors.Is(err, ErrUnknownEventType) || frepo.calls != 0 {
		t.Fatalf("err=%v calls=%d", err, frepo.calls)
	}

	frepo.err = errors.New("db down")
	if _, err := svc.List(context.Background(), LogFilter{}); !errors.Is(err, frepo.err) {
		t.Fatalf("expected repo error to propagate; got %v", err)
	}
}

func TestEventLogService_Record(t *testing.T) {
	frepo := &fakeEventRepo{}
	svc := NewEventLogService(frepo)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("UTC+1", 3600))
	svc.now = func() time.Time { return at }

	if err := svc.Record(context.Background(), "start", "robot started", map[string]any{"run": "r1"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got := frepo.ofType(models.EventStart)
	if len(got) != 1 {
		t.Fatalf("appended %+v", frepo.appended)
	}
	if got[0].EventID == "" || !got[0].OccurredAt.Equal(at) || got[0].OccurredAt.Location() != time.UTC {
		t.Fatalf("event not stamped: %+v", got[0])
	}

	if err := svc.Record(context.Background(), "party", "", nil); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}
