package instance

import (
	"strings"
	"testing"

	"github.com/julianrobledom/lingua-franca/pkg/ast"
)

func TestFullNameWithOrdinals(t *testing.T) {
	def := &ast.Reactor{Name: "R"}
	root := NewReactorInstance(def, nil, "main", 0)
	first := NewReactorInstance(def, root, "child", 0)
	second := NewReactorInstance(def, root, "child", 1)
	root.Children = append(root.Children, first, second)

	if got := first.FullName(); got != "main.child" {
		t.Errorf("FullName = %q, want main.child", got)
	}
	if got := second.FullName(); got != "main.child_1" {
		t.Errorf("FullName = %q, want main.child_1", got)
	}
	if got := second.FullNameWithJoiner("_"); got != "main_child_1" {
		t.Errorf("FullNameWithJoiner = %q, want main_child_1", got)
	}
}

func TestBuiltinTriggersAreSingletons(t *testing.T) {
	root := NewReactorInstance(&ast.Reactor{Name: "R"}, nil, "main", 0)
	if root.StartupTrigger() != nil {
		t.Error("startup should not exist before first use")
	}
	s1 := root.EnsureStartupTrigger()
	s2 := root.EnsureStartupTrigger()
	if s1 != s2 {
		t.Error("startup trigger should be a singleton")
	}
	if s1.Name() != "startup" || s1.Owner() != root {
		t.Errorf("startup = %s owned by %v", s1.Name(), s1.Owner())
	}
	if root.ShutdownTrigger() != nil {
		t.Error("shutdown should not exist before first use")
	}
}

func TestOneShotTimerPeriodZero(t *testing.T) {
	root := NewReactorInstance(&ast.Reactor{Name: "R"}, nil, "main", 0)
	timer := root.AddTimer(&ast.Timer{
		Name:   "once",
		Offset: ast.Time{Magnitude: 3, Unit: ast.UnitMsec},
	})
	if timer.Period != 0 {
		t.Errorf("period = %v, want 0", timer.Period)
	}
	if timer.Offset != 3_000_000 {
		t.Errorf("offset = %v, want 3ms", timer.Offset)
	}
}

func TestActionDefaultsToLogical(t *testing.T) {
	root := NewReactorInstance(&ast.Reactor{Name: "R"}, nil, "main", 0)
	action := root.AddAction(&ast.Action{Name: "a"})
	if action.IsPhysical() {
		t.Error("unspecified origin should default to logical")
	}
	phys := root.AddAction(&ast.Action{Name: "p", Origin: ast.OriginPhysical})
	if !phys.IsPhysical() {
		t.Error("physical origin lost")
	}
}

func TestPrinterRendersTree(t *testing.T) {
	def := &ast.Reactor{Name: "Main"}
	root := NewReactorInstance(def, nil, "main", 0)
	in := root.AddPort(&ast.Port{Name: "in"}, Input)
	out := root.AddPort(&ast.Port{Name: "out"}, Output)
	root.AddConnection(in, out, 5, false)

	var sb strings.Builder
	NewPrinter(&sb).PrintTree(root)
	text := sb.String()
	for _, want := range []string{"reactor main : Main", "input in", "output out", "main.in -> main.out delay=5ns"} {
		if !strings.Contains(text, want) {
			t.Errorf("printer output missing %q:\n%s", want, text)
		}
	}
}
