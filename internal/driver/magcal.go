package driver

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// MaxCalibrationSamples caps a magnetometer calibration run.
const MaxCalibrationSamples = 1000

const outlierSigmas = 3.0

// HardIron computes the hard iron offsets (alpha, beta) of a set of x/y
// magnetometer readings taken while the robot spins about its z axis.
// Points further than three standard deviations from the mean on either
// axis are discarded first.
func HardIron(x, y []float64) (alpha, beta float64, err error) {
	if len(x) != len(y) {
		return 0, 0, errors.New("x and y require equal lengths")
	}
	if len(x) < 2 {
		return 0, 0, errors.New("at least two samples are required")
	}

	drop := outliers(x)
	for i := range outliers(y) {
		drop[i] = true
	}

	xMin, xMax := math.Inf(1), math.Inf(-1)
	yMin, yMax := math.Inf(1), math.Inf(-1)
	kept := 0
	for i := range x {
		if drop[i] {
			continue
		}
		kept++
		xMin, xMax = math.Min(xMin, x[i]), math.Max(xMax, x[i])
		yMin, yMax = math.Min(yMin, y[i]), math.Max(yMax, y[i])
	}
	if kept == 0 {
		return 0, 0, errors.New("no samples left after outlier removal")
	}
	return (xMin + xMax) / 2, (yMin + yMax) / 2, nil
}

func outliers(data []float64) map[int]bool {
	var sum float64
	for _, d := range data {
		sum += d
	}
	mean := sum / float64(len(data))

	var sq float64
	for _, d := range data {
		sq += (d - mean) * (d - mean)
	}
	sigma := math.Sqrt(sq / float64(len(data)-1))

	out := make(map[int]bool)
	for i, d := range data {
		if math.Abs(d-mean) > outlierSigmas*sigma {
			out[i] = true
		}
	}
	return out
}

// ReadCalibrationSamples parses a saved calibration run: a header line
// followed by X,Y,Z,Heading records.
func ReadCalibrationSamples(r io.Reader) (x, y []float64, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read calibration samples: %w", err)
	}
	for i, rec := range records {
		if i == 0 {
			continue
		}
		if len(rec) < 2 {
			return nil, nil, fmt.Errorf("calibration record %d: %w", i, ErrMalformed)
		}
		xv, errX := strconv.ParseFloat(rec[0], 64)
		yv, errY := strconv.ParseFloat(rec[1], 64)
		if errX != nil || errY != nil {
			return nil, nil, fmt.Errorf("calibration record %d: %w", i, ErrMalformed)
		}
		x = append(x, xv)
		y = append(y, yv)
	}
	return x, y, nil
}

// WriteCalibrationSamples saves a run in the format ReadCalibrationSamples reads.
func WriteCalibrationSamples(w io.Writer, samples []Sample3) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"X", "Y", "Z", "Heading"}); err != nil {
		return err
	}
	for _, s := range samples {
		rec := []string{
			strconv.FormatFloat(s.X, 'f', -1, 64),
			strconv.FormatFloat(s.Y, 'f', -1, 64),
			strconv.FormatFloat(s.Z, 'f', -1, 64),
			strconv.FormatFloat(s.Heading, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Sample3 is one magnetometer reading with the heading computed from it.
type Sample3 struct {
	X, Y, Z float64
	Heading float64
}
