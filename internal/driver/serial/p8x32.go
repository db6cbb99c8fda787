package serial

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	rc "robot_control"
	"robot_control/internal/logger"
)

const (
	P8X32Baud    = 115200
	P8X32Timeout = time.Second
)

// P8X32 reads the range microcontroller, which emits one JSON document per
// line: {"Ranges":{"Forward":cm,...,"Deltat":ticks}}.
type P8X32 struct {
	conn *lineConn
	log  *logger.Logger
}

func OpenP8X32(dev string, log *logger.Logger) (*P8X32, error) {
	p, err := Open(dev, P8X32Baud, P8X32Timeout)
	if err != nil {
		return nil, err
	}
	return NewP8X32(p, log), nil
}

func NewP8X32(port io.ReadWriteCloser, log *logger.Logger) *P8X32 {
	return &P8X32{conn: newLineConn(port), log: log}
}

// defaultRanges is returned with ok=false when no line could be read.
func defaultRanges() rc.RangeSample {
	return rc.RangeSample{
		Ranges: map[string]float64{
			rc.SensorForward: -1, rc.SensorBottom: -1, rc.SensorLeft: -1,
			rc.SensorRight: -1, rc.SensorBack: -1,
		},
		Timestamp: time.Now(),
	}
}

func (p *P8X32) Read() (bool, rc.RangeSample) {
	line, err := p.conn.readUntil('\n')
	if err != nil {
		if p.log != nil {
			p.log.Debugw("range_read_failed", "line", line, "err", err)
		}
		return false, defaultRanges()
	}
	sample, err := decodeRangeLine(line)
	if err != nil {
		if p.log != nil {
			p.log.Debugw("range_decode_failed", "line", line, "err", err)
		}
		return false, defaultRanges()
	}
	return true, sample
}

func decodeRangeLine(line string) (rc.RangeSample, error) {
	var doc struct {
		Ranges map[string]float64 `json:"Ranges"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &doc); err != nil {
		return rc.RangeSample{}, err
	}
	s := rc.RangeSample{Ranges: doc.Ranges, Timestamp: time.Now()}
	if s.Ranges == nil {
		s.Ranges = map[string]float64{}
	}
	if dt, ok := s.Ranges["Deltat"]; ok {
		s.Deltat = dt
		delete(s.Ranges, "Deltat")
	}
	return s, nil
}

func (p *P8X32) Close() error {
	return p.conn.close()
}
