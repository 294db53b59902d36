// Package pretvm defines the PRET virtual machine representation: a
// small RISC-like instruction set over a fixed register file, executed
// at runtime by a pool of workers coordinated by a sense-reversing
// barrier. Instructions are uniform three-operand records; operands are
// immediates, register pointers, or placeholders resolved at emission.
package pretvm

import (
	"fmt"

	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Opcode identifies an instruction.
type Opcode string

const (
	OpADD  Opcode = "ADD"
	OpADDI Opcode = "ADDI"
	OpADV  Opcode = "ADV"
	OpADVI Opcode = "ADVI"
	OpBEQ  Opcode = "BEQ"
	OpBGE  Opcode = "BGE"
	OpBIT  Opcode = "BIT"
	OpBLT  Opcode = "BLT"
	OpBNE  Opcode = "BNE"
	OpDU   Opcode = "DU"
	OpEIT  Opcode = "EIT"
	OpEXE  Opcode = "EXE"
	OpJAL  Opcode = "JAL"
	OpJALR Opcode = "JALR"
	OpSTP  Opcode = "STP"
	OpWLT  Opcode = "WLT"
	OpWU   Opcode = "WU"
)

// Label is a branch target, unique per worker stream.
type Label string

// Register is a symbolic global register in the runtime environment.
type Register int

const (
	GlobalZero Register = iota
	GlobalOne
	GlobalOffset
	GlobalOffsetInc
	GlobalTimeout
	ExternStartTime
	WorkerCounter
	WorkerReturnAddr
	WorkerBinarySema
)

func (r Register) String() string {
	switch r {
	case GlobalZero:
		return "GLOBAL_ZERO"
	case GlobalOne:
		return "GLOBAL_ONE"
	case GlobalOffset:
		return "GLOBAL_OFFSET"
	case GlobalOffsetInc:
		return "GLOBAL_OFFSET_INC"
	case GlobalTimeout:
		return "GLOBAL_TIMEOUT"
	case ExternStartTime:
		return "EXTERN_START_TIME"
	case WorkerCounter:
		return "WORKER_COUNTER"
	case WorkerReturnAddr:
		return "WORKER_RETURN_ADDR"
	case WorkerBinarySema:
		return "WORKER_BINARY_SEMA"
	}
	return fmt.Sprintf("REG(%d)", int(r))
}

// NoOwner marks a Var that is not a per-worker array slot.
const NoOwner = -1

// Var is a register reference, optionally indexed by an owning worker
// for the per-worker arrays.
type Var struct {
	Reg   Register
	Owner int
}

// Global returns a Var for a non-worker-indexed register.
func Global(r Register) Var { return Var{Reg: r, Owner: NoOwner} }

// OfWorker returns a Var indexing a per-worker array slot.
func OfWorker(r Register, w int) Var { return Var{Reg: r, Owner: w} }

func (v Var) String() string {
	if v.Owner == NoOwner {
		return v.Reg.String()
	}
	return fmt.Sprintf("%s[%d]", v.Reg, v.Owner)
}

func (v Var) isSource() {}

// EnvRef is an operand naming runtime state that only exists in the
// target environment (a trigger presence flag, a reactor self struct).
// It is emitted as a placeholder and rewritten at initialization.
type EnvRef string

func (e EnvRef) isSource()      {}
func (e EnvRef) String() string { return string(e) }

// Source is a readable operand: a register Var or an EnvRef.
type Source interface {
	isSource()
	String() string
}

// Instruction is the interface for PretVM instructions.
type Instruction interface {
	Opcode() Opcode
	// Labels are the branch-target names attached to this instruction.
	// An instruction may carry several, e.g. its own generated label
	// plus the phase label the linker adds to a fragment's first
	// instruction.
	Labels() []Label
	AddLabel(l Label)
	// Clone deep-copies the instruction record. Operand strings are
	// immutable and shared.
	Clone() Instruction
	String() string
}

type base struct {
	labels []Label
}

func (b *base) Labels() []Label { return b.labels }

func (b *base) AddLabel(l Label) {
	b.labels = append(b.labels, l)
}

func (b *base) cloneBase() base {
	labels := make([]Label, len(b.labels))
	copy(labels, b.labels)
	return base{labels: labels}
}

// ADD computes dst = *src1 + *src2.
type ADD struct {
	base
	Dest, Src1, Src2 Var
}

func (i *ADD) Opcode() Opcode { return OpADD }
func (i *ADD) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *ADD) String() string {
	return fmt.Sprintf("ADD %s %s %s", i.Dest, i.Src1, i.Src2)
}

// ADDI computes dst = *src + imm.
type ADDI struct {
	base
	Dest, Src Var
	Imm       int64
}

func (i *ADDI) Opcode() Opcode { return OpADDI }
func (i *ADDI) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *ADDI) String() string {
	return fmt.Sprintf("ADDI %s %s %d", i.Dest, i.Src, i.Imm)
}

// ADV advances a reactor's logical tag to *base + *inc.
type ADV struct {
	base
	Reactor   *instance.ReactorInstance
	Base, Inc Var
}

func (i *ADV) Opcode() Opcode { return OpADV }
func (i *ADV) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *ADV) String() string {
	return fmt.Sprintf("ADV %s %s %s", i.Reactor.FullName(), i.Base, i.Inc)
}

// ADVI advances a reactor's logical tag to *base + imm.
type ADVI struct {
	base
	Reactor *instance.ReactorInstance
	Base    Var
	Imm     int64
}

func (i *ADVI) Opcode() Opcode { return OpADVI }
func (i *ADVI) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *ADVI) String() string {
	return fmt.Sprintf("ADVI %s %s %d", i.Reactor.FullName(), i.Base, i.Imm)
}

// BEQ branches to Target if *rs1 == *rs2.
type BEQ struct {
	base
	Rs1, Rs2 Source
	Target   Label
}

func (i *BEQ) Opcode() Opcode { return OpBEQ }
func (i *BEQ) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *BEQ) String() string {
	return fmt.Sprintf("BEQ %s %s %s", i.Rs1, i.Rs2, i.Target)
}

// BGE branches to Target if *rs1 >= *rs2.
type BGE struct {
	base
	Rs1, Rs2 Source
	Target   Label
}

func (i *BGE) Opcode() Opcode { return OpBGE }
func (i *BGE) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *BGE) String() string {
	return fmt.Sprintf("BGE %s %s %s", i.Rs1, i.Rs2, i.Target)
}

// BIT branches to Target if the global timeout flag is set.
type BIT struct {
	base
	Target Label
}

func (i *BIT) Opcode() Opcode { return OpBIT }
func (i *BIT) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *BIT) String() string {
	return fmt.Sprintf("BIT %s", i.Target)
}

// BLT branches to Target if *rs1 < *rs2.
type BLT struct {
	base
	Rs1, Rs2 Source
	Target   Label
}

func (i *BLT) Opcode() Opcode { return OpBLT }
func (i *BLT) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *BLT) String() string {
	return fmt.Sprintf("BLT %s %s %s", i.Rs1, i.Rs2, i.Target)
}

// BNE branches to Target if *rs1 != *rs2.
type BNE struct {
	base
	Rs1, Rs2 Source
	Target   Label
}

func (i *BNE) Opcode() Opcode { return OpBNE }
func (i *BNE) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *BNE) String() string {
	return fmt.Sprintf("BNE %s %s %s", i.Rs1, i.Rs2, i.Target)
}

// DU delays the worker until physical time reaches *ref + Release.
type DU struct {
	base
	Ref     Var
	Release tag.TimeValue
}

func (i *DU) Opcode() Opcode { return OpDU }
func (i *DU) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *DU) String() string {
	return fmt.Sprintf("DU %s %s", i.Ref, i.Release)
}

// EIT executes a reaction if the runtime marked it queued.
type EIT struct {
	base
	Reaction *instance.ReactionInstance
}

func (i *EIT) Opcode() Opcode { return OpEIT }
func (i *EIT) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *EIT) String() string {
	return fmt.Sprintf("EIT %s", i.Reaction.FullNameWithJoiner("."))
}

// EXE executes the reaction pointed to by a placeholder operand.
type EXE struct {
	base
	Reaction *instance.ReactionInstance
}

func (i *EXE) Opcode() Opcode { return OpEXE }
func (i *EXE) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *EXE) String() string {
	return fmt.Sprintf("EXE %s", i.Reaction.FullNameWithJoiner("."))
}

// JAL stores the next PC into the link register and jumps to Target.
type JAL struct {
	base
	RetAddr Var
	Target  Label
}

func (i *JAL) Opcode() Opcode { return OpJAL }
func (i *JAL) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *JAL) String() string {
	return fmt.Sprintf("JAL %s %s", i.RetAddr, i.Target)
}

// JALR jumps indirectly to *base + imm, storing the next PC in dest.
type JALR struct {
	base
	Dest, Base Var
	Imm        int64
}

func (i *JALR) Opcode() Opcode { return OpJALR }
func (i *JALR) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *JALR) String() string {
	return fmt.Sprintf("JALR %s %s %d", i.Dest, i.Base, i.Imm)
}

// STP stops the worker.
type STP struct {
	base
}

func (i *STP) Opcode() Opcode { return OpSTP }
func (i *STP) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *STP) String() string { return "STP" }

// WLT busy-waits while *counter >= Release.
type WLT struct {
	base
	Counter Var
	Release int64
}

func (i *WLT) Opcode() Opcode { return OpWLT }
func (i *WLT) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *WLT) String() string {
	return fmt.Sprintf("WLT %s %d", i.Counter, i.Release)
}

// WU busy-waits while *counter < Release.
type WU struct {
	base
	Counter Var
	Release int64
}

func (i *WU) Opcode() Opcode { return OpWU }
func (i *WU) Clone() Instruction {
	c := *i
	c.base = i.cloneBase()
	return &c
}
func (i *WU) String() string {
	return fmt.Sprintf("WU %s %d", i.Counter, i.Release)
}

// Executable is the linked program: one instruction stream per worker
// plus the hyperperiod constant.
type Executable struct {
	Workers     [][]Instruction
	Hyperperiod tag.TimeValue
}
