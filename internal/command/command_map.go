package command

import (
	rc "robot_control"
)

// FieldType is the declared type of one token field.
type FieldType int

const (
	Float FieldType = iota
	Int
	String
	// Text absorbs the rest of the token, slashes included. Only valid last.
	Text
)

func (f FieldType) String() string {
	switch f {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	case Text:
		return "text"
	default:
		return "unknown"
	}
}

// Variant describes one overload of a prefix: the field types it expects and
// how to build the message from the coerced values.
type Variant struct {
	Name   string
	Fields []FieldType
	Build  func(v Values) rc.Message
}

// Values are coerced fields in declaration order.
type Values []any

func (v Values) Float(i int) float64 { return v[i].(float64) }
func (v Values) Int(i int) int       { return v[i].(int) }
func (v Values) Str(i int) string    { return v[i].(string) }

// CommandMap maps a prefix to its overloads keyed by field count.
type CommandMap map[string]map[int]Variant

// DefaultCommands is the textual command surface.
//
//	/r/<level>/<angle>                              power
//	/r/<level>/<angle>/<range>/<sensor>/<interval>  nav
//	/a/<angle>    observe turn      /t/<angle>    execute turn
//	/o/<heading>  observe heading   /h/<heading>  execute heading
//	/s/<text>     speech            /d/<song>     dance
//	/m/<samples>[/<source>]         calibrate magnetometer
var DefaultCommands = CommandMap{
	"r": {
		2: {Name: "power", Fields: []FieldType{Float, Float}, Build: func(v Values) rc.Message {
			return rc.Power{Level: v.Float(0), Angle: v.Float(1)}
		}},
		5: {Name: "nav", Fields: []FieldType{Float, Float, Float, String, Float}, Build: func(v Values) rc.Message {
			return rc.Nav{
				Power:    rc.Power{Level: v.Float(0), Angle: v.Float(1)},
				Range:    v.Float(2),
				Sensor:   v.Str(3),
				Interval: v.Float(4),
			}
		}},
	},
	"a": {
		1: {Name: "observeTurn", Fields: []FieldType{Float}, Build: func(v Values) rc.Message {
			return rc.ObserveTurn{Angle: v.Float(0)}
		}},
	},
	"t": {
		1: {Name: "executeTurn", Fields: []FieldType{Float}, Build: func(v Values) rc.Message {
			return rc.ExecuteTurn{Angle: v.Float(0)}
		}},
	},
	"o": {
		1: {Name: "observeHeading", Fields: []FieldType{Float}, Build: func(v Values) rc.Message {
			return rc.ObserveHeading{Heading: v.Float(0)}
		}},
	},
	"h": {
		1: {Name: "executeHeading", Fields: []FieldType{Float}, Build: func(v Values) rc.Message {
			return rc.ExecuteHeading{Heading: v.Float(0)}
		}},
	},
	"s": {
		1: {Name: "speech", Fields: []FieldType{Text}, Build: func(v Values) rc.Message {
			return rc.Speech{Msg: v.Str(0)}
		}},
	},
	"d": {
		1: {Name: "dance", Fields: []FieldType{Text}, Build: func(v Values) rc.Message {
			return rc.Dance{Song: v.Str(0)}
		}},
	},
	"m": {
		1: {Name: "calibrateMagnetometer", Fields: []FieldType{Int}, Build: func(v Values) rc.Message {
			return rc.CalibrateMagnetometer{Samples: v.Int(0)}
		}},
		2: {Name: "calibrateMagnetometer", Fields: []FieldType{Int, String}, Build: func(v Values) rc.Message {
			return rc.CalibrateMagnetometer{Samples: v.Int(0), Source: v.Str(1)}
		}},
	},
}
