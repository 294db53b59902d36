// Package elaborate lowers the checked AST into the runtime reactor
// instance tree, wiring connection maps and the dependency edges
// between ports and reactions.
package elaborate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianrobledom/lingua-franca/pkg/ast"
	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Elaboration error kinds. All are fatal; callers report and abort.
var (
	ErrUnknownReactorClass = errors.New("unknown reactor class")
	ErrUnresolvedPort      = errors.New("unresolved port reference")
	ErrDuplicate           = errors.New("duplicate declaration")
)

// Elaborate builds the full instance tree rooted at the program's main
// reactor class.
func Elaborate(prog *ast.Program) (*instance.ReactorInstance, error) {
	mainDef := prog.ReactorByName(prog.Main)
	if mainDef == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReactorClass, prog.Main)
	}
	e := &elaborator{prog: prog}
	return e.instantiate(mainDef, nil, "main", 0)
}

type elaborator struct {
	prog *ast.Program
}

// instantiate creates one reactor instance and recursively its
// children, then populates ports, timers, actions, connections, and
// reactions in that order. Children come first so that connection and
// trigger references into them resolve.
func (e *elaborator) instantiate(def *ast.Reactor, parent *instance.ReactorInstance, name string, ordinal int) (*instance.ReactorInstance, error) {
	r := instance.NewReactorInstance(def, parent, name, ordinal)

	if err := checkUniqueNames(def); err != nil {
		return nil, err
	}

	// Children, in textual declaration order. The ordinal counts prior
	// siblings of the same class.
	classCount := make(map[string]int)
	for _, inst := range def.Instantiations {
		childDef := e.prog.ReactorByName(inst.Class)
		if childDef == nil {
			return nil, fmt.Errorf("%w: %s (instantiated as %s in %s)", ErrUnknownReactorClass, inst.Class, inst.Name, def.Name)
		}
		child, err := e.instantiate(childDef, r, inst.Name, classCount[inst.Class])
		if err != nil {
			return nil, err
		}
		classCount[inst.Class]++
		r.Children = append(r.Children, child)
	}

	for _, p := range def.Inputs {
		r.AddPort(p, instance.Input)
	}
	for _, p := range def.Outputs {
		r.AddPort(p, instance.Output)
	}
	for _, t := range def.Timers {
		r.AddTimer(t)
	}
	for _, a := range def.Actions {
		r.AddAction(a)
	}

	for _, conn := range def.Connections {
		if err := e.addConnection(r, conn); err != nil {
			return nil, err
		}
	}

	for i, reaction := range def.Reactions {
		if err := e.addReaction(r, reaction, i+1); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// addConnection resolves both endpoints (a local port or an immediate
// child's port) and records the pair in the connection map.
func (e *elaborator) addConnection(r *instance.ReactorInstance, conn *ast.Connection) error {
	src, err := resolvePort(r, conn.From)
	if err != nil {
		return err
	}
	dst, err := resolvePort(r, conn.To)
	if err != nil {
		return err
	}
	delay := tag.Zero
	if conn.Delay != nil {
		delay = conn.Delay.ToNanoseconds()
	}
	r.AddConnection(src, dst, delay, conn.Physical)
	return nil
}

// addReaction creates a reaction instance at 1-based position index,
// links it into the priority chain, and records trigger/source/effect
// edges.
func (e *elaborator) addReaction(r *instance.ReactorInstance, def *ast.Reaction, index int) error {
	ri := &instance.ReactionInstance{
		Definition: def,
		Parent:     r,
		Index:      index,
	}

	// Priority: depend on the previous reaction of the same reactor.
	if len(r.Reactions) > 0 {
		prev := r.Reactions[len(r.Reactions)-1]
		ri.DependsOnReactions = append(ri.DependsOnReactions, prev)
		prev.DependentReactions = append(prev.DependentReactions, ri)
	}

	for _, ref := range def.Triggers {
		trig, err := resolveTrigger(r, ref)
		if err != nil {
			return err
		}
		ri.Triggers = append(ri.Triggers, trig)
		trig.AddDependentReaction(ri)
		if p, ok := trig.(*instance.PortInstance); ok {
			ri.Sources = append(ri.Sources, p)
		}
	}

	for _, ref := range def.Sources {
		p, err := resolvePort(r, ref)
		if err != nil {
			return err
		}
		ri.Sources = append(ri.Sources, p)
		p.AddDependentReaction(ri)
	}

	for _, ref := range def.Effects {
		eff, err := resolveEffect(r, ref)
		if err != nil {
			return err
		}
		ri.Effects = append(ri.Effects, eff)
		if p, ok := eff.(*instance.PortInstance); ok {
			recordWrite(p, ri)
		}
	}

	r.Reactions = append(r.Reactions, ri)
	return nil
}

// resolvePort resolves "portName" or "childName.portName" relative to r.
func resolvePort(r *instance.ReactorInstance, ref string) (*instance.PortInstance, error) {
	if child, port, ok := strings.Cut(ref, "."); ok {
		c := r.Child(child)
		if c == nil {
			return nil, fmt.Errorf("%w: %s in %s (no child %q)", ErrUnresolvedPort, ref, r.FullName(), child)
		}
		if p := c.Port(port); p != nil {
			return p, nil
		}
		return nil, fmt.Errorf("%w: %s in %s", ErrUnresolvedPort, ref, r.FullName())
	}
	if p := r.Port(ref); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrUnresolvedPort, ref, r.FullName())
}

// resolveTrigger resolves a trigger reference: startup, shutdown, a
// timer, an action, a local port, or a child's port.
func resolveTrigger(r *instance.ReactorInstance, ref string) (instance.TriggerInstance, error) {
	switch ref {
	case "startup":
		return r.EnsureStartupTrigger(), nil
	case "shutdown":
		return r.EnsureShutdownTrigger(), nil
	}
	if t := r.Timer(ref); t != nil {
		return t, nil
	}
	if a := r.Action(ref); a != nil {
		return a, nil
	}
	return resolvePort(r, ref)
}

// resolveEffect resolves an effect reference: an action or a port.
func resolveEffect(r *instance.ReactorInstance, ref string) (instance.TriggerInstance, error) {
	if a := r.Action(ref); a != nil {
		return a, nil
	}
	return resolvePort(r, ref)
}

func recordWrite(p *instance.PortInstance, ri *instance.ReactionInstance) {
	for _, w := range p.DependsOnReactions {
		if w == ri {
			return
		}
	}
	p.DependsOnReactions = append(p.DependsOnReactions, ri)
}

// checkUniqueNames asserts the validator's uniqueness guarantees.
// Violations are reported as ErrDuplicate; elaboration never repairs.
func checkUniqueNames(def *ast.Reactor) error {
	seen := make(map[string]bool)
	check := func(kind, name string) error {
		if seen[name] {
			return fmt.Errorf("%w: %s %q in reactor %s", ErrDuplicate, kind, name, def.Name)
		}
		seen[name] = true
		return nil
	}
	for _, p := range def.Inputs {
		if err := check("input", p.Name); err != nil {
			return err
		}
	}
	for _, p := range def.Outputs {
		if err := check("output", p.Name); err != nil {
			return err
		}
	}
	for _, t := range def.Timers {
		if err := check("timer", t.Name); err != nil {
			return err
		}
	}
	for _, a := range def.Actions {
		if err := check("action", a.Name); err != nil {
			return err
		}
	}
	for _, inst := range def.Instantiations {
		if err := check("instantiation", inst.Name); err != nil {
			return err
		}
	}
	return nil
}
