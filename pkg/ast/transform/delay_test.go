package transform

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/julianrobledom/lingua-franca/pkg/ast"
	"github.com/julianrobledom/lingua-franca/pkg/targets"
)

func afterProgram() *ast.Program {
	after := ast.Time{Magnitude: 50, Unit: ast.UnitMsec}
	return &ast.Program{
		Main: "Main",
		Reactors: []*ast.Reactor{
			{
				Name:    "Source",
				Outputs: []*ast.Port{{Name: "out", Type: "int"}},
			},
			{
				Name:   "Sink",
				Inputs: []*ast.Port{{Name: "in", Type: "int"}},
			},
			{
				Name: "Main",
				Instantiations: []*ast.Instantiation{
					{Name: "a", Class: "Source"},
					{Name: "b", Class: "Sink"},
				},
				Connections: []*ast.Connection{
					{From: "a.out", To: "b.in", After: &after},
				},
			},
		},
	}
}

func TestDelayedConnectionsRewrite(t *testing.T) {
	prog := afterProgram()
	if err := DelayedConnections(prog, targets.C{}); err != nil {
		t.Fatalf("transform: %v", err)
	}

	main := prog.ReactorByName("Main")
	if len(main.Connections) != 2 {
		t.Fatalf("connections = %d, want 2", len(main.Connections))
	}
	for _, conn := range main.Connections {
		if conn.After != nil {
			t.Errorf("connection %s -> %s still has an after delay", conn.From, conn.To)
		}
	}
	if len(main.Instantiations) != 3 {
		t.Fatalf("instantiations = %d, want 3", len(main.Instantiations))
	}

	delayInst := main.Instantiations[2]
	want := []*ast.Connection{
		{From: "a.out", To: delayInst.Name + ".in"},
		{From: delayInst.Name + ".out", To: "b.in"},
	}
	if diff := cmp.Diff(want, main.Connections); diff != "" {
		t.Errorf("connections mismatch (-want +got):\n%s", diff)
	}

	// The generated class has the action, both reactions, and the
	// payload type threaded through.
	class := prog.ReactorByName(delayInst.Class)
	if class == nil {
		t.Fatal("generated delay class missing")
	}
	if len(class.Actions) != 1 || class.Actions[0].MinDelay.ToNanoseconds() != 50_000_000 {
		t.Errorf("delay action = %+v, want minDelay 50 ms", class.Actions)
	}
	if class.Actions[0].Origin != ast.OriginLogical {
		t.Errorf("delay action origin = %v, want logical", class.Actions[0].Origin)
	}
	if len(class.Reactions) != 2 {
		t.Fatalf("reactions = %d, want 2", len(class.Reactions))
	}
	if !strings.Contains(class.Reactions[1].Body, "lf_schedule") {
		t.Errorf("delay reaction body = %q", class.Reactions[1].Body)
	}
	if !strings.Contains(class.Reactions[0].Body, "lf_set") {
		t.Errorf("forward reaction body = %q", class.Reactions[0].Body)
	}
}

func TestDelayedConnectionsIdempotent(t *testing.T) {
	prog := afterProgram()
	if err := DelayedConnections(prog, targets.C{}); err != nil {
		t.Fatalf("first transform: %v", err)
	}
	reactorsAfterFirst := len(prog.Reactors)
	connsAfterFirst := len(prog.ReactorByName("Main").Connections)

	if err := DelayedConnections(prog, targets.C{}); err != nil {
		t.Fatalf("second transform: %v", err)
	}
	if got := len(prog.Reactors); got != reactorsAfterFirst {
		t.Errorf("second run added reactor classes: %d -> %d", reactorsAfterFirst, got)
	}
	if got := len(prog.ReactorByName("Main").Connections); got != connsAfterFirst {
		t.Errorf("second run rewired connections: %d -> %d", connsAfterFirst, got)
	}
}

func TestDelayedConnectionsSharedClassPerTypeAndDelay(t *testing.T) {
	after := ast.Time{Magnitude: 1, Unit: ast.UnitMsec}
	prog := afterProgram()
	main := prog.ReactorByName("Main")
	main.Connections[0].After = &after
	main.Connections = append(main.Connections, &ast.Connection{
		From: "a.out", To: "b.in", After: &after,
	})

	if err := DelayedConnections(prog, targets.C{}); err != nil {
		t.Fatalf("transform: %v", err)
	}
	// Two delayed connections, same type and delay: one shared class,
	// two instantiations.
	if got := len(prog.Reactors); got != 4 {
		t.Errorf("reactors = %d, want 4 (three originals plus one delay class)", got)
	}
	if got := len(main.Instantiations); got != 4 {
		t.Errorf("instantiations = %d, want 4", got)
	}
}
