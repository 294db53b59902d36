// Package ast defines the checked, name-resolved program representation
// consumed by the scheduling backend. Parsing and validation happen
// upstream; this package only models the result and loads it from a
// YAML program description.
package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Unit is a time unit accepted in time expressions.
type Unit string

const (
	UnitNsec Unit = "ns"
	UnitUsec Unit = "us"
	UnitMsec Unit = "ms"
	UnitSec  Unit = "s"
	UnitMin  Unit = "min"
	UnitHour Unit = "h"
)

// unitScale maps a unit to its length in nanoseconds.
var unitScale = map[Unit]int64{
	UnitNsec: 1,
	UnitUsec: 1_000,
	UnitMsec: 1_000_000,
	UnitSec:  1_000_000_000,
	UnitMin:  60_000_000_000,
	UnitHour: 3_600_000_000_000,
}

// Time is a literal time expression: a magnitude and a unit.
type Time struct {
	Magnitude int64
	Unit      Unit
}

// ToNanoseconds converts the time expression to a TimeValue.
func (t Time) ToNanoseconds() tag.TimeValue {
	return tag.TimeValue(t.Magnitude * unitScale[t.Unit])
}

func (t Time) String() string {
	return fmt.Sprintf("%d %s", t.Magnitude, t.Unit)
}

// ParseTime parses a time expression such as "100 ms", "1s", or "0".
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return Time{Magnitude: 0, Unit: UnitNsec}, nil
	}
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9') {
		i++
	}
	if i == 0 {
		return Time{}, fmt.Errorf("time %q: missing magnitude", s)
	}
	mag, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return Time{}, fmt.Errorf("time %q: %w", s, err)
	}
	unit := Unit(strings.TrimSpace(s[i:]))
	switch unit {
	case "sec":
		unit = UnitSec
	case "msec":
		unit = UnitMsec
	case "usec":
		unit = UnitUsec
	case "nsec":
		unit = UnitNsec
	case "hour":
		unit = UnitHour
	}
	if _, ok := unitScale[unit]; !ok {
		return Time{}, fmt.Errorf("time %q: unknown unit %q", s, unit)
	}
	return Time{Magnitude: mag, Unit: unit}, nil
}

// UnmarshalYAML parses a time expression from a YAML scalar.
func (t *Time) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML renders the time expression back to its scalar form.
func (t Time) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// Origin distinguishes logical from physical actions.
type Origin string

const (
	OriginLogical  Origin = "logical"
	OriginPhysical Origin = "physical"
)

// Type is a target-language type annotation carried through unchanged.
type Type struct {
	Name string   `yaml:"name"`
	Args []string `yaml:"args,omitempty"`
}

func (t Type) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	return t.Name + "<" + strings.Join(t.Args, ", ") + ">"
}

// TypeParm is a type parameter of a generic reactor class.
type TypeParm struct {
	Name string `yaml:"name"`
}

// Port declares an input or output port on a reactor class.
type Port struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

// Timer declares a timer with an offset and a period.
// A zero period makes the timer a one-shot.
type Timer struct {
	Name   string `yaml:"name"`
	Offset Time   `yaml:"offset,omitempty"`
	Period Time   `yaml:"period,omitempty"`
}

// Action declares a schedulable action.
type Action struct {
	Name     string `yaml:"name"`
	Origin   Origin `yaml:"origin,omitempty"`
	MinDelay Time   `yaml:"minDelay,omitempty"`
	Type     string `yaml:"type,omitempty"`
}

// Reaction declares a reaction. Triggers, sources, and effects are
// references of the form "name" (local), "childName.portName",
// "startup", or "shutdown". Priority is by declaration order.
type Reaction struct {
	Triggers []string `yaml:"triggers,omitempty"`
	Sources  []string `yaml:"sources,omitempty"`
	Effects  []string `yaml:"effects,omitempty"`
	Body     string   `yaml:"body,omitempty"`
}

// Instantiation declares a child reactor instance.
type Instantiation struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class"`
}

// Connection declares a directed connection between two port references.
// Delay is the logical delay applied to messages; After is surface-level
// sugar that the delayed-connection transformation rewrites into a delay
// reactor before elaboration.
type Connection struct {
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Delay    *Time  `yaml:"delay,omitempty"`
	After    *Time  `yaml:"after,omitempty"`
	Physical bool   `yaml:"physical,omitempty"`
	Width    int    `yaml:"width,omitempty"`
}

// Reactor declares a reactor class.
type Reactor struct {
	Name           string           `yaml:"name"`
	TypeParms      []TypeParm       `yaml:"typeParms,omitempty"`
	Inputs         []*Port          `yaml:"inputs,omitempty"`
	Outputs        []*Port          `yaml:"outputs,omitempty"`
	Timers         []*Timer         `yaml:"timers,omitempty"`
	Actions        []*Action        `yaml:"actions,omitempty"`
	Reactions      []*Reaction      `yaml:"reactions,omitempty"`
	Instantiations []*Instantiation `yaml:"instantiations,omitempty"`
	Connections    []*Connection    `yaml:"connections,omitempty"`
}

// Input returns the input port declaration with the given name, or nil.
func (r *Reactor) Input(name string) *Port {
	for _, p := range r.Inputs {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Output returns the output port declaration with the given name, or nil.
func (r *Reactor) Output(name string) *Port {
	for _, p := range r.Outputs {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// TargetOptions carries scheduling-relevant target properties.
type TargetOptions struct {
	Timeout *Time `yaml:"timeout,omitempty"`
	Fast    bool  `yaml:"fast,omitempty"`
	Workers int   `yaml:"workers,omitempty"`
}

// Program is the root of the checked AST: a set of reactor classes and
// the name of the main class.
type Program struct {
	Target   TargetOptions `yaml:"target,omitempty"`
	Main     string        `yaml:"main"`
	Reactors []*Reactor    `yaml:"reactors"`
}

// ReactorByName returns the reactor class with the given name, or nil.
func (p *Program) ReactorByName(name string) *Reactor {
	for _, r := range p.Reactors {
		if r.Name == name {
			return r
		}
	}
	return nil
}
