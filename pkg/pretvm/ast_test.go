package pretvm

import (
	"strings"
	"testing"
)

func TestCloneCopiesLabels(t *testing.T) {
	jal := &JAL{RetAddr: Global(WorkerReturnAddr), Target: "PERIODIC"}
	jal.AddLabel("ORIGINAL")

	clone := jal.Clone().(*JAL)
	clone.AddLabel("EXTRA")

	if len(jal.Labels()) != 1 {
		t.Errorf("labels leaked into the original: %v", jal.Labels())
	}
	if len(clone.Labels()) != 2 {
		t.Errorf("clone labels = %v, want 2 entries", clone.Labels())
	}
	if clone.Target != jal.Target || clone.RetAddr != jal.RetAddr {
		t.Errorf("clone operands differ: %v vs %v", clone, jal)
	}
}

func TestVarString(t *testing.T) {
	if got := Global(GlobalOffset).String(); got != "GLOBAL_OFFSET" {
		t.Errorf("Global var = %q", got)
	}
	if got := OfWorker(WorkerCounter, 3).String(); got != "WORKER_COUNTER[3]" {
		t.Errorf("worker var = %q", got)
	}
}

func TestInstructionStrings(t *testing.T) {
	cases := []struct {
		inst Instruction
		want string
	}{
		{&ADDI{Dest: Global(GlobalOffsetInc), Src: Global(GlobalZero), Imm: 7}, "ADDI GLOBAL_OFFSET_INC GLOBAL_ZERO 7"},
		{&WU{Counter: OfWorker(WorkerCounter, 1), Release: 2}, "WU WORKER_COUNTER[1] 2"},
		{&STP{}, "STP"},
		{&DU{Ref: Global(GlobalOffset), Release: 1000}, "DU GLOBAL_OFFSET 1000ns"},
	}
	for _, c := range cases {
		if got := c.inst.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
}

func TestPrinterOutput(t *testing.T) {
	stp := &STP{}
	stp.AddLabel("EPILOGUE")
	exe := &Executable{
		Workers:     [][]Instruction{{stp}},
		Hyperperiod: 1_000_000_000,
	}
	var sb strings.Builder
	NewPrinter(&sb).PrintExecutable(exe)
	out := sb.String()
	for _, want := range []string{"; hyperperiod = 1000000000ns", "worker 0:", "EPILOGUE:", "STP"} {
		if !strings.Contains(out, want) {
			t.Errorf("printer output missing %q:\n%s", want, out)
		}
	}
}
