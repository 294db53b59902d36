// Package transform rewrites surface-level constructs into core ones
// before elaboration. The only transformation here turns connections
// with an "after" delay into generated delay reactor classes: a
// logical action carrying the delay, a reaction forwarding the delayed
// value, and a reaction scheduling it.
package transform

import (
	"fmt"
	"strings"

	"github.com/julianrobledom/lingua-franca/pkg/ast"
	"github.com/julianrobledom/lingua-franca/pkg/targets"
)

// DelayedConnections rewrites every connection carrying an After delay
// into a generated delay reactor instance. Generated classes are
// shared per payload type and after delay. The transformation is idempotent: a second
// run finds no After connections.
func DelayedConnections(prog *ast.Program, types targets.Types) error {
	t := &delayTransformer{
		prog:    prog,
		types:   types,
		classes: make(map[string]*ast.Reactor),
	}
	for _, reactor := range prog.Reactors {
		if err := t.transformReactor(reactor); err != nil {
			return err
		}
	}
	return nil
}

type delayTransformer struct {
	prog    *ast.Program
	types   targets.Types
	classes map[string]*ast.Reactor // payload type and delay -> generated class
	serial  int
}

func (t *delayTransformer) transformReactor(reactor *ast.Reactor) error {
	var rewritten []*ast.Connection
	for _, conn := range reactor.Connections {
		if conn.After == nil {
			rewritten = append(rewritten, conn)
			continue
		}
		payload, err := t.payloadType(reactor, conn.From)
		if err != nil {
			return err
		}
		class, err := t.delayClass(payload, *conn.After)
		if err != nil {
			return err
		}
		t.serial++
		instName := fmt.Sprintf("delay%d", t.serial)
		reactor.Instantiations = append(reactor.Instantiations, &ast.Instantiation{
			Name:  instName,
			Class: class.Name,
		})
		// The delay lives entirely in the generated action; both
		// replacement connections are immediate.
		rewritten = append(rewritten,
			&ast.Connection{From: conn.From, To: instName + ".in", Physical: conn.Physical},
			&ast.Connection{From: instName + ".out", To: conn.To},
		)
	}
	reactor.Connections = rewritten
	return nil
}

// payloadType resolves the source port reference to its declared type.
func (t *delayTransformer) payloadType(reactor *ast.Reactor, ref string) (string, error) {
	if child, port, ok := strings.Cut(ref, "."); ok {
		for _, inst := range reactor.Instantiations {
			if inst.Name != child {
				continue
			}
			class := t.prog.ReactorByName(inst.Class)
			if class == nil {
				return "", fmt.Errorf("delayed connection %s: unknown class %s", ref, inst.Class)
			}
			if p := class.Output(port); p != nil {
				return p.Type, nil
			}
			if p := class.Input(port); p != nil {
				return p.Type, nil
			}
			return "", fmt.Errorf("delayed connection: no port %s on %s", port, inst.Class)
		}
		return "", fmt.Errorf("delayed connection: no instantiation %s in %s", child, reactor.Name)
	}
	if p := reactor.Input(ref); p != nil {
		return p.Type, nil
	}
	if p := reactor.Output(ref); p != nil {
		return p.Type, nil
	}
	return "", fmt.Errorf("delayed connection: no port %s in %s", ref, reactor.Name)
}

// delayClass returns the generated delay reactor class for the payload
// type, creating it on first use. Each distinct after delay gets its
// own class since the action's minimum delay is part of the class.
func (t *delayTransformer) delayClass(payload string, after ast.Time) (*ast.Reactor, error) {
	key := payload + "@" + after.String()
	if class, ok := t.classes[key]; ok {
		return class, nil
	}

	// Validate that the target can render the pieces we generate.
	if _, err := t.types.TimeLiteral(after.Magnitude, after.Unit); err != nil {
		return nil, err
	}
	if _, err := t.types.Type(ast.Type{Name: payload}); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("_Delay%s_%d", typeSuffix(payload, t.types), len(t.classes))
	in := &ast.Port{Name: "in", Type: payload}
	out := &ast.Port{Name: "out", Type: payload}
	act := &ast.Action{
		Name:     "act",
		Origin:   ast.OriginLogical,
		MinDelay: after,
		Type:     payload,
	}
	class := &ast.Reactor{
		Name:    name,
		Inputs:  []*ast.Port{in},
		Outputs: []*ast.Port{out},
		Actions: []*ast.Action{act},
		Reactions: []*ast.Reaction{
			{
				Triggers: []string{"act"},
				Effects:  []string{"out"},
				Body:     t.types.ForwardBody(act, out),
			},
			{
				Triggers: []string{"in"},
				Effects:  []string{"act"},
				Body:     t.types.DelayBody(act, in),
			},
		},
	}
	t.classes[key] = class
	t.prog.Reactors = append(t.prog.Reactors, class)
	return class, nil
}

func typeSuffix(payload string, types targets.Types) string {
	if payload == "" || types.SupportsGenerics() {
		return ""
	}
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, payload)
	return "_" + clean
}
