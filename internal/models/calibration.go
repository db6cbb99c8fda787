package models

import "time"

// Calibration setting names.
const (
	SettingMagAlpha = "MAG_ALPHA" // hard iron x offset
	SettingMagBeta  = "MAG_BETA"  // hard iron y offset
)

// CalibrationSetting is one persisted sensor correction for a robot.
type CalibrationSetting struct {
	Robot     string    `json:"robot"`
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
