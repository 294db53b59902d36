package pretvmgen

import (
	"strings"
	"testing"

	"github.com/julianrobledom/lingua-franca/pkg/ast"
	"github.com/julianrobledom/lingua-franca/pkg/dag"
	"github.com/julianrobledom/lingua-franca/pkg/elaborate"
	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/pretvm"
	"github.com/julianrobledom/lingua-franca/pkg/statespace"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

func singleTimerProgram(reactions int) *ast.Program {
	var rs []*ast.Reaction
	for i := 0; i < reactions; i++ {
		rs = append(rs, &ast.Reaction{Triggers: []string{"t"}})
	}
	return &ast.Program{
		Main: "Main",
		Reactors: []*ast.Reactor{
			{
				Name:      "Main",
				Timers:    []*ast.Timer{{Name: "t", Period: ast.Time{Magnitude: 1, Unit: ast.UnitSec}}},
				Reactions: rs,
			},
		},
	}
}

// pipeline runs elaborate -> explore -> fragmentize -> dag for a test
// program and returns everything a generator needs.
func pipeline(t *testing.T, prog *ast.Program, workers int) (*instance.ReactorInstance, []*statespace.Fragment, []*dag.Dag) {
	t.Helper()
	main, err := elaborate.Elaborate(prog)
	if err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	x := &statespace.Explorer{}
	diagram := x.Explore(main, tag.ForeverTag, statespace.InitAndPeriodic)
	fragments := statespace.FragmentizeInitAndPeriodic(diagram)
	var dags []*dag.Dag
	for _, fragment := range fragments {
		d := dag.Generate(fragment.Diagram)
		dag.Partition(d, workers)
		dags = append(dags, d)
	}
	return main, fragments, dags
}

func opcodes(stream []pretvm.Instruction) []pretvm.Opcode {
	out := make([]pretvm.Opcode, len(stream))
	for i, inst := range stream {
		out[i] = inst.Opcode()
	}
	return out
}

func TestGenerateInstructionsPriorityChainOneWorker(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(2), 1)
	gen := New(main, 1)
	obj := gen.GenerateInstructions(dags[0], fragments[0])

	// One worker: EXE r1; ADDI; EXE r2; ADDI; then the tail sync code.
	got := opcodes(obj.Workers[0])
	want := []pretvm.Opcode{
		pretvm.OpEXE, pretvm.OpADDI,
		pretvm.OpEXE, pretvm.OpADDI,
		pretvm.OpDU, pretvm.OpADDI, pretvm.OpJAL,
	}
	if len(got) != len(want) {
		t.Fatalf("opcodes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("opcodes = %v, want %v", got, want)
		}
	}

	// The EXEs execute r1 then r2.
	exe1 := obj.Workers[0][0].(*pretvm.EXE)
	exe2 := obj.Workers[0][2].(*pretvm.EXE)
	if exe1.Reaction.Index != 1 || exe2.Reaction.Index != 2 {
		t.Errorf("EXE order = %d, %d; want 1, 2", exe1.Reaction.Index, exe2.Reaction.Index)
	}
}

func TestGenerateInstructionsCrossWorkerWait(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(2), 2)
	gen := New(main, 2)
	obj := gen.GenerateInstructions(dags[0], fragments[0])

	// r1 on worker 0, r2 on worker 1: worker 1 must first wait for
	// worker 0's counter to reach r1's release value.
	w1 := obj.Workers[1]
	if len(w1) == 0 {
		t.Fatal("worker 1 stream is empty")
	}
	wu, ok := w1[0].(*pretvm.WU)
	if !ok {
		t.Fatalf("worker 1 starts with %T, want WU", w1[0])
	}
	if wu.Counter.Reg != pretvm.WorkerCounter || wu.Counter.Owner != 0 {
		t.Errorf("WU waits on %v, want WORKER_COUNTER[0]", wu.Counter)
	}
	if wu.Release != 1 {
		t.Errorf("WU release = %d, want 1", wu.Release)
	}
}

func TestGenerateInstructionsGuardedExe(t *testing.T) {
	// A reaction triggered by an input port gets a presence guard.
	prog := &ast.Program{
		Main: "Main",
		Reactors: []*ast.Reactor{
			{
				Name:   "Sink",
				Inputs: []*ast.Port{{Name: "in"}},
				Reactions: []*ast.Reaction{
					{Triggers: []string{"in"}},
				},
			},
			{
				Name:   "Main",
				Timers: []*ast.Timer{{Name: "t", Period: ast.Time{Magnitude: 1, Unit: ast.UnitSec}}},
				Instantiations: []*ast.Instantiation{
					{Name: "s", Class: "Sink"},
				},
				Reactions: []*ast.Reaction{
					{Triggers: []string{"t"}, Effects: []string{"s.in"}},
				},
				Connections: nil,
			},
		},
	}
	main, err := elaborate.Elaborate(prog)
	if err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	x := &statespace.Explorer{}
	diagram := x.Explore(main, tag.ForeverTag, statespace.InitAndPeriodic)
	fragments := statespace.FragmentizeInitAndPeriodic(diagram)
	if len(fragments) == 0 {
		t.Fatal("no fragments")
	}
	d := dag.Generate(fragments[0].Diagram)
	dag.Partition(d, 1)

	gen := New(main, 1)
	obj := gen.GenerateInstructions(d, fragments[0])

	// Find the guarded sequence: BEQ ... ; JAL skip ; EXE ; ADDI.
	stream := obj.Workers[0]
	found := false
	for i := 0; i+3 < len(stream); i++ {
		beq, ok := stream[i].(*pretvm.BEQ)
		if !ok {
			continue
		}
		jal, okJ := stream[i+1].(*pretvm.JAL)
		exe, okE := stream[i+2].(*pretvm.EXE)
		addi, okA := stream[i+3].(*pretvm.ADDI)
		if !okJ || !okE || !okA {
			continue
		}
		found = true
		if _, isEnv := beq.Rs1.(pretvm.EnvRef); !isEnv {
			t.Errorf("BEQ rs1 = %v, want an environment reference", beq.Rs1)
		}
		if !hasLabel(exe, beq.Target) {
			t.Errorf("BEQ target %q should name the EXE", beq.Target)
		}
		if !hasLabel(addi, jal.Target) {
			t.Errorf("JAL target %q should name the post-EXE ADDI", jal.Target)
		}
	}
	if !found {
		t.Errorf("no guarded EXE sequence found in %v", opcodes(stream))
	}
}

func hasLabel(inst pretvm.Instruction, l pretvm.Label) bool {
	for _, have := range inst.Labels() {
		if have == l {
			return true
		}
	}
	return false
}

func TestGenerateInstructionsFastModeSkipsDU(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(1), 1)
	gen := New(main, 1, WithFast(true))
	obj := gen.GenerateInstructions(dags[0], fragments[0])

	for _, inst := range obj.Workers[0] {
		if inst.Opcode() == pretvm.OpDU {
			t.Errorf("fast mode must not emit DU")
		}
	}
}

func TestLinkSingleTimer(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(1), 1)
	gen := New(main, 1, WithTimeout(10_000_000_000))

	var objs []*ObjectFile
	for i := range fragments {
		objs = append(objs, gen.GenerateInstructions(dags[i], fragments[i]))
	}
	exe, err := gen.Link(objs)
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	if exe.Hyperperiod != 1_000_000_000 {
		t.Errorf("hyperperiod = %v, want 1s", exe.Hyperperiod)
	}

	stream := exe.Workers[0]
	labels := map[pretvm.Label]int{}
	for line, inst := range stream {
		for _, l := range inst.Labels() {
			if _, dup := labels[l]; dup {
				t.Errorf("duplicate label %s", l)
			}
			labels[l] = line
		}
	}
	for _, phase := range []string{"PREAMBLE", "PERIODIC", "EPILOGUE", "SYNC_BLOCK"} {
		if _, ok := labels[pretvm.Label(phase)]; !ok {
			t.Errorf("missing %s label", phase)
		}
	}

	// The preamble comes first; the epilogue's STP precedes the sync
	// block, which ends the stream.
	if labels[pretvm.Label("PREAMBLE")] != 0 {
		t.Errorf("PREAMBLE at line %d, want 0", labels[pretvm.Label("PREAMBLE")])
	}
	if !(labels[pretvm.Label("EPILOGUE")] < labels[pretvm.Label("SYNC_BLOCK")]) {
		t.Errorf("EPILOGUE should precede SYNC_BLOCK")
	}
	if stream[labels[pretvm.Label("EPILOGUE")]].Opcode() != pretvm.OpSTP {
		t.Errorf("EPILOGUE should label an STP")
	}

	// Every branch target resolves.
	for _, inst := range stream {
		switch v := inst.(type) {
		case *pretvm.JAL:
			if _, ok := labels[v.Target]; !ok {
				t.Errorf("JAL to undefined label %s", v.Target)
			}
		case *pretvm.BEQ:
			if _, ok := labels[v.Target]; !ok {
				t.Errorf("BEQ to undefined label %s", v.Target)
			}
		}
	}
}

func TestLinkSyncBlockProtocol(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(2), 2)
	gen := New(main, 2)

	var objs []*ObjectFile
	for i := range fragments {
		objs = append(objs, gen.GenerateInstructions(dags[i], fragments[i]))
	}
	exe, err := gen.Link(objs)
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	// Worker 0's sync block: WU on worker 1's semaphore, the offset
	// advance, counter resets, reactor ADVIs, release, JALR.
	w0 := syncBlockOf(t, exe.Workers[0])
	if _, ok := w0[0].(*pretvm.WU); !ok {
		t.Errorf("worker 0 sync block starts with %T, want WU", w0[0])
	}
	foundAdd := false
	for _, inst := range w0 {
		if add, ok := inst.(*pretvm.ADD); ok {
			foundAdd = true
			if add.Dest.Reg != pretvm.GlobalOffset || add.Src2.Reg != pretvm.GlobalOffsetInc {
				t.Errorf("offset advance = %v, want GLOBAL_OFFSET += GLOBAL_OFFSET_INC", add)
			}
		}
	}
	if !foundAdd {
		t.Error("worker 0 sync block missing the offset advance")
	}
	if _, ok := w0[len(w0)-1].(*pretvm.JALR); !ok {
		t.Errorf("worker 0 sync block ends with %T, want JALR", w0[len(w0)-1])
	}

	// Worker 1: post arrival, wait for release, return.
	w1 := syncBlockOf(t, exe.Workers[1])
	if len(w1) != 3 {
		t.Fatalf("worker 1 sync block length = %d, want 3", len(w1))
	}
	addi, ok := w1[0].(*pretvm.ADDI)
	if !ok || addi.Dest.Reg != pretvm.WorkerBinarySema || addi.Imm != 1 {
		t.Errorf("worker 1 should post its semaphore first, got %v", w1[0])
	}
	wlt, ok := w1[1].(*pretvm.WLT)
	if !ok || wlt.Counter.Reg != pretvm.WorkerBinarySema || wlt.Release != 1 {
		t.Errorf("worker 1 should wait on its semaphore, got %v", w1[1])
	}
	if _, ok := w1[2].(*pretvm.JALR); !ok {
		t.Errorf("worker 1 sync block ends with %T, want JALR", w1[2])
	}
}

// syncBlockOf returns the instructions from the SYNC_BLOCK label to
// the end of the stream.
func syncBlockOf(t *testing.T, stream []pretvm.Instruction) []pretvm.Instruction {
	t.Helper()
	for i, inst := range stream {
		if hasLabel(inst, pretvm.Label(statespace.PhaseSyncBlock.String())) && i > 0 {
			return stream[i:]
		}
	}
	t.Fatal("no SYNC_BLOCK in stream")
	return nil
}

// Link a program with a timeout: the periodic fragment carries a
// guarded BGE transition into the shutdown fragment, and every
// fragment opens with a BIT guard routing to the epilogue's STP.
func TestLinkGuardedTimeoutTransition(t *testing.T) {
	const timeout = 10_000_000_000
	prog := singleTimerProgram(1)
	main, err := elaborate.Elaborate(prog)
	if err != nil {
		t.Fatalf("elaborate: %v", err)
	}
	x := &statespace.Explorer{Timeout: timeout}
	diagram := x.Explore(main, tag.ForeverTag, statespace.InitAndPeriodic)
	fragments := statespace.FragmentizeInitAndPeriodic(diagram)

	shutdownDiagram := x.Explore(main, tag.New(0), statespace.ShutdownTimeout)
	shutdownDiagram.Phase = statespace.PhaseShutdownTimeout
	if shutdownDiagram.Len() == 0 {
		t.Fatal("shutdown exploration produced no nodes")
	}
	shutdown := statespace.NewFragment(shutdownDiagram)
	statespace.ConnectFragmentsGuarded(fragments[len(fragments)-1], shutdown,
		statespace.GuardedTimeoutTransition(shutdown))
	fragments = append(fragments, shutdown)

	gen := New(main, 1, WithTimeout(timeout))
	var objs []*ObjectFile
	for _, fragment := range fragments {
		d := dag.Generate(fragment.Diagram)
		dag.Partition(d, 1)
		objs = append(objs, gen.GenerateInstructions(d, fragment))
	}
	exe, err := gen.Link(objs)
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	stream := exe.Workers[0]
	labels := map[pretvm.Label]int{}
	for line, inst := range stream {
		for _, l := range inst.Labels() {
			labels[l] = line
		}
	}
	shutdownLine, ok := labels[pretvm.Label("SHUTDOWN_TIMEOUT")]
	if !ok {
		t.Fatal("SHUTDOWN_TIMEOUT label missing")
	}

	// Each fragment's first instruction is its BIT guard, targeting
	// the epilogue.
	for _, phase := range []pretvm.Label{"PERIODIC", "SHUTDOWN_TIMEOUT"} {
		bit, ok := stream[labels[phase]].(*pretvm.BIT)
		if !ok {
			t.Fatalf("%s starts with %T, want BIT", phase, stream[labels[phase]])
		}
		if bit.Target != pretvm.Label("EPILOGUE") {
			t.Errorf("%s BIT targets %q, want EPILOGUE", phase, bit.Target)
		}
	}

	// Between the periodic body and its default self-jump sits the
	// guarded BGE into the shutdown phase.
	var bgeLine, defaultLine = -1, -1
	for line := labels[pretvm.Label("PERIODIC")]; line < shutdownLine; line++ {
		switch v := stream[line].(type) {
		case *pretvm.BGE:
			if v.Target == pretvm.Label("SHUTDOWN_TIMEOUT") {
				bgeLine = line
			}
		case *pretvm.JAL:
			if v.Target == pretvm.Label("PERIODIC") && v.RetAddr.Reg == pretvm.WorkerReturnAddr {
				defaultLine = line
			}
		}
	}
	if bgeLine < 0 {
		t.Fatal("no guarded BGE into SHUTDOWN_TIMEOUT in the periodic region")
	}
	if defaultLine < 0 {
		t.Fatal("no default self-transition in the periodic region")
	}
	if bgeLine > defaultLine {
		t.Errorf("guarded transition at line %d should precede the default at %d", bgeLine, defaultLine)
	}

	// The shutdown fragment executes the timer's reaction.
	foundExe := false
	for line := shutdownLine; line < len(stream); line++ {
		if _, ok := stream[line].(*pretvm.EXE); ok {
			foundExe = true
			break
		}
	}
	if !foundExe {
		t.Error("shutdown fragment body contains no EXE")
	}
}

func TestLinkRejectsDuplicateDefaultTransitions(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(1), 1)
	gen := New(main, 1)
	obj := gen.GenerateInstructions(dags[0], fragments[0])

	// Wire a second default transition onto the fragment.
	statespace.ConnectFragmentsDefault(fragments[0], fragments[0])

	_, err := gen.Link([]*ObjectFile{obj})
	if err == nil {
		t.Fatal("expected duplicate default transition error")
	}
	if !strings.Contains(err.Error(), "default transition") {
		t.Errorf("error = %v, want duplicate default transition", err)
	}
}

func TestEmitC(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(2), 2)
	gen := New(main, 2, WithTimeout(10_000_000_000))

	var objs []*ObjectFile
	for i := range fragments {
		objs = append(objs, gen.GenerateInstructions(dags[i], fragments[i]))
	}
	exe, err := gen.Link(objs)
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	var sb strings.Builder
	if err := gen.EmitC(&sb, exe, "timer"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"#define PLACEHOLDER NULL",
		"inst_t schedule_0[]",
		"inst_t schedule_1[]",
		"const inst_t* static_schedules[]",
		"void initialize_static_schedule()",
		"volatile uint64_t timeout = 10000000000LL;",
		"const uint64_t hyperperiod = 1000000000ULL;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("emitted code missing %q", want)
		}
	}

	// Every placeholder line rewrites op1 with a runtime address.
	if !strings.Contains(out, ".op1.reg = (reg_t*)&envs[0].") {
		t.Errorf("initialize_static_schedule should rewrite placeholders")
	}

	// PLACEHOLDER appears only in its #define, in instruction operands
	// awaiting initialization, and never as an unresolved label.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "WORKER_") && strings.Contains(line, "#define") {
			if strings.Contains(line, "PLACEHOLDER") {
				t.Errorf("label macro contains PLACEHOLDER: %s", line)
			}
		}
	}
}

func TestEmitCLabelMacrosResolve(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(1), 1)
	gen := New(main, 1)

	var objs []*ObjectFile
	for i := range fragments {
		objs = append(objs, gen.GenerateInstructions(dags[i], fragments[i]))
	}
	exe, err := gen.Link(objs)
	if err != nil {
		t.Fatalf("link: %v", err)
	}

	var sb strings.Builder
	if err := gen.EmitC(&sb, exe, "timer"); err != nil {
		t.Fatalf("emit: %v", err)
	}
	out := sb.String()

	// Every branch operand macro used in the tables must be defined.
	defined := map[string]bool{}
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "#define WORKER_") {
			fields := strings.Fields(line)
			defined[fields[1]] = true
		}
	}
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, ".op3.imm=WORKER_")
		if idx < 0 {
			idx = strings.Index(line, ".op2.imm=WORKER_")
		}
		if idx < 0 {
			continue
		}
		macro := line[idx:]
		macro = macro[strings.Index(macro, "WORKER_"):]
		macro = strings.TrimRight(macro, "},")
		if !defined[macro] {
			t.Errorf("branch macro %q is not defined", macro)
		}
	}
}

// Property: for two same-tag reactions under intra-reactor priority on
// different workers, worker 0 carries a publishing ADDI on its own
// counter, and worker 1 opens with a WU waiting for release value 1.
func TestReleasePublishedBeforeWait(t *testing.T) {
	main, fragments, dags := pipeline(t, singleTimerProgram(2), 2)
	gen := New(main, 2)
	obj := gen.GenerateInstructions(dags[0], fragments[0])

	// Worker 0 publishes release 1 via ADDI WORKER_COUNTER[0].
	var publishLine = -1
	for i, inst := range obj.Workers[0] {
		if addi, ok := inst.(*pretvm.ADDI); ok && addi.Dest.Reg == pretvm.WorkerCounter && addi.Dest.Owner == 0 {
			publishLine = i
			break
		}
	}
	if publishLine < 0 {
		t.Fatal("no publishing ADDI on worker 0")
	}
	wu, ok := obj.Workers[1][0].(*pretvm.WU)
	if !ok {
		t.Fatalf("worker 1 does not start with WU")
	}
	if wu.Release != 1 {
		t.Errorf("WU release = %d, want 1", wu.Release)
	}
}
