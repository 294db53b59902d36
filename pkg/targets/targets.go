// Package targets defines the target-types adapter: the small surface
// through which the backend asks a target language how to render
// types, time literals, and the bodies of generated delay reactions.
package targets

import (
	"errors"
	"fmt"

	"github.com/julianrobledom/lingua-franca/pkg/ast"
)

// ErrUnsupported reports a construct the target cannot render. The
// wrapping error carries a human-readable description.
var ErrUnsupported = errors.New("unsupported by target")

// Types is implemented once per target language.
type Types interface {
	// SupportsGenerics reports whether the target can parameterize the
	// generated delay reactor class by the payload type.
	SupportsGenerics() bool
	// TimeLiteral renders a time expression in the target language.
	TimeLiteral(magnitude int64, unit ast.Unit) (string, error)
	// Type renders a type annotation, or the target's undefined type
	// for an empty annotation.
	Type(t ast.Type) (string, error)
	// DelayBody renders the body of the reaction that schedules the
	// delay action when the delay reactor's input arrives.
	DelayBody(action *ast.Action, port *ast.Port) string
	// ForwardBody renders the body of the reaction that forwards the
	// delayed value from the action to the output port.
	ForwardBody(action *ast.Action, port *ast.Port) string
	// Missing renders a value for an absent initializer.
	Missing() string
}

// C renders for the C runtime.
type C struct{}

// SupportsGenerics is false for C; delay reactors are monomorphized
// per payload type instead.
func (C) SupportsGenerics() bool { return false }

var cUnits = map[ast.Unit]string{
	ast.UnitNsec: "NSEC",
	ast.UnitUsec: "USEC",
	ast.UnitMsec: "MSEC",
	ast.UnitSec:  "SEC",
	ast.UnitMin:  "MINUTE",
	ast.UnitHour: "HOUR",
}

// TimeLiteral renders e.g. MSEC(100). A zero magnitude renders as 0.
func (C) TimeLiteral(magnitude int64, unit ast.Unit) (string, error) {
	if magnitude == 0 {
		return "0", nil
	}
	macro, ok := cUnits[unit]
	if !ok {
		return "", fmt.Errorf("%w: time unit %q", ErrUnsupported, unit)
	}
	return fmt.Sprintf("%s(%d)", macro, magnitude), nil
}

// Type renders the annotation unchanged; C types pass through.
func (C) Type(t ast.Type) (string, error) {
	if len(t.Args) > 0 {
		return "", fmt.Errorf("%w: generic type %s", ErrUnsupported, t)
	}
	if t.Name == "" {
		return "interval_t", nil
	}
	return t.Name, nil
}

// DelayBody schedules the action with the value read from the port.
func (C) DelayBody(action *ast.Action, port *ast.Port) string {
	if port.Type == "" {
		return fmt.Sprintf("lf_schedule(%s, 0);", action.Name)
	}
	return fmt.Sprintf("lf_schedule_copy(%s, 0, &%s->value, 1);", action.Name, port.Name)
}

// ForwardBody copies the action's value to the output port.
func (C) ForwardBody(action *ast.Action, port *ast.Port) string {
	if port.Type == "" {
		return fmt.Sprintf("lf_set(%s, 0);", port.Name)
	}
	return fmt.Sprintf("lf_set(%s, %s->value);", port.Name, action.Name)
}

// Missing renders C's absent default.
func (C) Missing() string { return "0" }
