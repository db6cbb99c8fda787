// Package command turns textual command tokens into typed messages.
package command

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	rc "robot_control"
	"robot_control/internal/logger"
)

const (
	separator     = "/"
	tokenShutdown = "Shutdown"
)

// Parse failure reasons. Use errors.Is on a *ParseError.
var (
	ErrEmpty         = errors.New("empty command")
	ErrUnknownPrefix = errors.New("unknown command prefix")
	ErrArity         = errors.New("wrong number of fields")
	ErrCoerce        = errors.New("field type mismatch")

	errNotFinite = errors.New("not a finite number")
)

// ParseError reports why a token could not be turned into a command.
type ParseError struct {
	Token  string
	Reason error
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("parse %q: %v", e.Token, e.Reason)
	}
	return fmt.Sprintf("parse %q: %v: %s", e.Token, e.Reason, e.Detail)
}

func (e *ParseError) Unwrap() error { return e.Reason }

// Interpreter parses tokens against a CommandMap.
type Interpreter struct {
	commands CommandMap
	log      *logger.Logger
}

// NewInterpreter returns an interpreter for DefaultCommands.
func NewInterpreter(log *logger.Logger) *Interpreter {
	return NewInterpreterWithMap(DefaultCommands, log)
}

func NewInterpreterWithMap(m CommandMap, log *logger.Logger) *Interpreter {
	return &Interpreter{commands: m, log: log}
}

// Parse converts a token to exactly one message or returns a *ParseError.
func (i *Interpreter) Parse(token string) (rc.Message, error) {
	token = strings.TrimSpace(token)
	switch token {
	case "S", "s":
		return rc.Power{Level: 0, Angle: 0}, nil
	case tokenShutdown:
		return rc.Shutdown{}, nil
	}

	parts := splitToken(token)
	if len(parts) == 0 {
		return nil, &ParseError{Token: token, Reason: ErrEmpty}
	}

	overloads, ok := i.commands[parts[0]]
	if !ok {
		return nil, &ParseError{Token: token, Reason: ErrUnknownPrefix, Detail: parts[0]}
	}

	fields := parts[1:]
	variant, fields, ok := selectVariant(overloads, fields)
	if !ok {
		return nil, &ParseError{
			Token:  token,
			Reason: ErrArity,
			Detail: fmt.Sprintf("prefix %q does not take %d fields", parts[0], len(parts)-1),
		}
	}

	values := make(Values, len(variant.Fields))
	for idx, ft := range variant.Fields {
		v, err := coerce(fields[idx], ft)
		if err != nil {
			return nil, &ParseError{
				Token:  token,
				Reason: ErrCoerce,
				Detail: fmt.Sprintf("field %d of %s: want %s, got %q", idx+1, variant.Name, ft, fields[idx]),
			}
		}
		values[idx] = v
	}
	return variant.Build(values), nil
}

// Prepare is the permissive entry point used by the orchestrator. Messages
// pass through, telemetry maps become Feedback, tokens are parsed, and
// anything unrecognised is wrapped in Feedback. A nil input yields nil.
func (i *Interpreter) Prepare(input any) rc.Message {
	switch in := input.(type) {
	case nil:
		return nil
	case rc.Telemetry:
		return rc.Feedback{Info: in}
	case rc.Message:
		return in
	case string:
		msg, err := i.Parse(in)
		if err != nil {
			if i.log != nil {
				i.log.Debugw("command_parse_failed", "token", in, "err", err)
			}
			return rc.Feedback{Info: in}
		}
		return msg
	default:
		return rc.Feedback{Info: input}
	}
}

// splitToken splits on the separator and drops empty segments.
func splitToken(token string) []string {
	raw := strings.Split(token, separator)
	out := raw[:0]
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// selectVariant picks the overload for the field count. A variant ending in
// Text also accepts more fields, which are joined back into its last field.
func selectVariant(overloads map[int]Variant, fields []string) (Variant, []string, bool) {
	if v, ok := overloads[len(fields)]; ok {
		return v, fields, true
	}
	for n, v := range overloads {
		if n == 0 || n > len(fields) || v.Fields[n-1] != Text {
			continue
		}
		joined := append(append([]string{}, fields[:n-1]...), strings.Join(fields[n-1:], separator))
		return v, joined, true
	}
	return Variant{}, nil, false
}

func coerce(s string, ft FieldType) (any, error) {
	switch ft {
	case Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errNotFinite
		}
		return f, nil
	case Int:
		return strconv.Atoi(s)
	default:
		return s, nil
	}
}
