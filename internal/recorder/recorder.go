// Package recorder writes robot telemetry to InfluxDB, one point per
// top-level telemetry key.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	rc "robot_control"
	"robot_control/internal/logger"
)

const (
	tagRobot       = "robot"
	infoMeasure    = "feedback"
	writeTimeout   = 2 * time.Second
	defaultMeasure = "telemetry"
)

// Endpoint is the recorder process's view of the channel fabric.
type Endpoint interface {
	Receive(ctx context.Context) (rc.Message, error)
}

// PointWriter is satisfied by api.WriteAPIBlocking.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Options selects the InfluxDB bucket.
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type Recorder struct {
	w     PointWriter
	robot string
	log   *logger.Logger
	now   func() time.Time

	written int
	failed  int
}

func New(w PointWriter, robot string, log *logger.Logger) *Recorder {
	if log == nil {
		log = logger.Nop()
	}
	return &Recorder{w: w, robot: robot, log: log, now: time.Now}
}

// NewInflux connects a blocking write API. The returned func closes the client.
func NewInflux(o Options, robot string, log *logger.Logger) (*Recorder, func()) {
	client := influxdb2.NewClient(o.URL, o.Token)
	return New(client.WriteAPIBlocking(o.Org, o.Bucket), robot, log), client.Close
}

// Run writes what the robot sends until Shutdown or ctx is cancelled. A
// failed write is logged and dropped.
func (r *Recorder) Run(ctx context.Context, ep Endpoint) error {
	r.log.Infow("recorder_started", "robot", r.robot)
	for {
		msg, err := ep.Receive(ctx)
		if err != nil {
			return err
		}
		var update rc.Telemetry
		switch v := msg.(type) {
		case rc.Shutdown:
			r.log.Infow("recorder_stopped", "written", r.written, "failed", r.failed)
			return nil
		case rc.Telemetry:
			update = v
		case rc.Feedback:
			update = asTelemetry(v.Info)
		default:
			continue
		}
		r.write(ctx, update)
	}
}

func (r *Recorder) write(ctx context.Context, update rc.Telemetry) {
	points := r.Points(update, r.now())
	if len(points) == 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.w.WritePoint(wctx, points...); err != nil {
		r.failed += len(points)
		r.log.Warnw("recorder_write_failed", "points", len(points), "err", err)
		return
	}
	r.written += len(points)
}

// Points converts a telemetry update into points. Keys are visited in sorted
// order; keys without any scalar field are skipped.
func (r *Recorder) Points(update rc.Telemetry, at time.Time) []*write.Point {
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := map[string]string{tagRobot: r.robot}
	var points []*write.Point
	for _, k := range keys {
		flat := make(map[string]any)
		flatten("", update[k], flat)

		fields := make(map[string]any, len(flat))
		for fk, fv := range flat {
			if v, ok := fieldValue(fv); ok {
				name := sanitize(fk)
				if name == "" {
					name = "value"
				}
				fields[name] = v
			}
		}
		if len(fields) == 0 {
			continue
		}
		measure := sanitize(k)
		if measure == "" {
			measure = defaultMeasure
		}
		points = append(points, write.NewPoint(measure, tags, fields, at))
	}
	return points
}

func asTelemetry(info any) rc.Telemetry {
	switch v := info.(type) {
	case rc.Telemetry:
		return v
	case map[string]any:
		return rc.Telemetry(v)
	default:
		return rc.Telemetry{infoMeasure: map[string]any{"info": fmt.Sprint(v)}}
	}
}

// flatten joins nested map keys with "_". Lists become comma separated strings.
func flatten(prefix string, v any, out map[string]any) {
	key := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "_" + k
	}
	switch t := v.(type) {
	case rc.Telemetry:
		flatten(prefix, map[string]any(t), out)
	case map[string]any:
		for k, val := range t {
			flatten(key(k), val, out)
		}
	case map[string]float64:
		for k, val := range t {
			out[key(k)] = val
		}
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		out[prefix] = strings.Join(parts, ",")
	default:
		if _, scalar := fieldValue(t); !scalar && t != nil {
			if decoded, ok := viaJSON(t); ok {
				flatten(prefix, decoded, out)
				return
			}
		}
		out[prefix] = t
	}
}

// viaJSON decodes the JSON form of a struct value into maps and scalars.
func viaJSON(v any) (any, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false
	}
	return out, true
}

func fieldValue(v any) (any, bool) {
	switch x := v.(type) {
	case float64, bool, string:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), true
	default:
		return nil, false
	}
}

var fieldKeyRe = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

func sanitize(k string) string {
	k = fieldKeyRe.ReplaceAllString(strings.TrimSpace(k), "_")
	return strings.Trim(k, "_")
}
