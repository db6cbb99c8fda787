package navigation

// Battery power sources.
const (
	SourceBattery = "BAT"
	SourceAC      = "AC"
)

// BatteryLevel is a state-of-charge estimate.
type BatteryLevel struct {
	Voltage float64 `json:"voltage"`
	Level   float64 `json:"level"` // 0..1
	Source  string  `json:"source"`
}

type socPoint struct {
	volts float64
	level float64
}

// 12V AGM resting voltage to state of charge.
var agmTable = []socPoint{
	{10.5, 0.0},
	{11.3, 0.1},
	{11.5, 0.2},
	{11.7, 0.3},
	{11.9, 0.4},
	{12.0, 0.5},
	{12.2, 0.6},
	{12.4, 0.7},
	{12.5, 0.8},
	{12.6, 0.9},
	{12.7, 1.0},
}

// BatteryLevelFor estimates the charge of a 12V AGM battery. Voltages above
// the top of the table mean the robot is on a charger.
func BatteryLevelFor(volts float64) BatteryLevel {
	top := agmTable[len(agmTable)-1]
	if volts > top.volts {
		return BatteryLevel{Voltage: volts, Level: 1.0, Source: SourceAC}
	}
	level := 0.0
	for _, p := range agmTable {
		if volts >= p.volts {
			level = p.level
		}
	}
	return BatteryLevel{Voltage: volts, Level: level, Source: SourceBattery}
}
