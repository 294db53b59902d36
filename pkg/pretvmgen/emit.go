package pretvmgen

import (
	"fmt"
	"io"
	"sort"

	"github.com/julianrobledom/lingua-franca/pkg/pretvm"
)

const placeholderMacro = "PLACEHOLDER"

// EmitC writes the linked executable as a C schedule file: label
// macros, the runtime register variables, one instruction table per
// worker, and the initialization routine that rewrites placeholder
// operands with runtime-derived addresses.
func (g *Generator) EmitC(w io.Writer, exe *pretvm.Executable, name string) error {
	lines, err := g.resolveLabels(exe)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "/**")
	fmt.Fprintln(w, " * An auto-generated schedule file for the STATIC scheduler.")
	fmt.Fprintln(w, " */")
	fmt.Fprintln(w, "#include <stdint.h>")
	fmt.Fprintln(w, "#include <stddef.h> // size_t")
	fmt.Fprintln(w, "#include \"core/environment.h\"")
	fmt.Fprintln(w, "#include \"core/threaded/scheduler_instance.h\"")
	fmt.Fprintf(w, "#include \"%s.h\"\n", name)
	fmt.Fprintln(w)

	// Label macros.
	for worker, stream := range exe.Workers {
		for line, inst := range stream {
			for _, l := range inst.Labels() {
				fmt.Fprintf(w, "#define %s %d\n", workerLabel(l, worker), line)
			}
		}
	}
	fmt.Fprintf(w, "#define %s NULL\n", placeholderMacro)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "// Extern variables")
	fmt.Fprintln(w, "extern environment_t envs[_num_enclaves];")
	fmt.Fprintf(w, "extern instant_t %s;\n", varName(pretvm.Global(pretvm.ExternStartTime)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "// Runtime variables")
	if g.hasTimeout {
		fmt.Fprintf(w, "volatile uint64_t timeout = %dLL;\n", int64(g.timeout))
	}
	fmt.Fprintf(w, "const size_t num_counters = %d;\n", g.workers)
	fmt.Fprintln(w, "volatile reg_t time_offset = 0ULL;")
	fmt.Fprintln(w, "volatile reg_t offset_inc = 0ULL;")
	fmt.Fprintln(w, "const uint64_t zero = 0ULL;")
	fmt.Fprintln(w, "const uint64_t one = 1ULL;")
	fmt.Fprintf(w, "const uint64_t hyperperiod = %dULL;\n", int64(exe.Hyperperiod))
	fmt.Fprintf(w, "volatile uint64_t counters[%d] = {0ULL};\n", g.workers)
	fmt.Fprintf(w, "volatile reg_t return_addr[%d] = {0ULL};\n", g.workers)
	fmt.Fprintf(w, "volatile reg_t binary_sema[%d] = {0ULL};\n", g.workers)
	fmt.Fprintln(w)

	for worker, stream := range exe.Workers {
		fmt.Fprintf(w, "inst_t schedule_%d[] = {\n", worker)
		for line, inst := range stream {
			for _, l := range inst.Labels() {
				fmt.Fprintf(w, "  // %s:\n", workerLabel(l, worker))
			}
			fmt.Fprintf(w, "  // Line %d: %s\n", line, inst)
			fmt.Fprintf(w, "  %s,\n", g.emitInstruction(inst, worker))
		}
		fmt.Fprintln(w, "};")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "const inst_t* static_schedules[] = {")
	for worker := range exe.Workers {
		fmt.Fprintf(w, "  schedule_%d,\n", worker)
	}
	fmt.Fprintln(w, "};")
	fmt.Fprintln(w)

	// Placeholder rewriting, replayed at startup.
	fmt.Fprintln(w, "void initialize_static_schedule() {")
	fmt.Fprintln(w, "  // Fill in placeholders in the schedule.")
	for worker := 0; worker < g.workers; worker++ {
		for _, label := range sortedLabels(g.placeholders[worker]) {
			if _, ok := lines[worker][label]; !ok {
				return fmt.Errorf("%w: %s on worker %d", ErrUnresolvedPlaceholder, label, worker)
			}
			fmt.Fprintf(w, "  schedule_%d[%s].op1.reg = (reg_t*)&%s;\n",
				worker, workerLabel(label, worker), g.placeholders[worker][label])
		}
	}
	fmt.Fprintln(w, "}")
	return nil
}

// resolveLabels assigns per-worker line numbers to every label; the
// first emission pass. Duplicates are fatal.
func (g *Generator) resolveLabels(exe *pretvm.Executable) ([]map[pretvm.Label]int, error) {
	lines := make([]map[pretvm.Label]int, len(exe.Workers))
	for worker, stream := range exe.Workers {
		lines[worker] = make(map[pretvm.Label]int)
		for line, inst := range stream {
			for _, l := range inst.Labels() {
				if _, ok := lines[worker][l]; ok {
					return nil, fmt.Errorf("%w: %s on worker %d", ErrDuplicateLabel, l, worker)
				}
				lines[worker][l] = line
			}
		}
	}
	return lines, nil
}

// emitInstruction renders one instruction record. Operands that name
// runtime environment state render as the placeholder macro.
func (g *Generator) emitInstruction(inst pretvm.Instruction, worker int) string {
	op := inst.Opcode()
	switch v := inst.(type) {
	case *pretvm.ADD:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.reg=(reg_t*)%s, .op3.reg=(reg_t*)%s}",
			op, regPtr(v.Dest), regPtr(v.Src1), regPtr(v.Src2))
	case *pretvm.ADDI:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.reg=(reg_t*)%s, .op3.imm=%dLL}",
			op, regPtr(v.Dest), regPtr(v.Src), v.Imm)
	case *pretvm.ADV:
		return fmt.Sprintf("{.opcode=%s, .op1.imm=%d, .op2.reg=(reg_t*)%s, .op3.reg=(reg_t*)%s}",
			op, indexOf(g.reactors, v.Reactor), regPtr(v.Base), regPtr(v.Inc))
	case *pretvm.ADVI:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.reg=(reg_t*)%s, .op3.imm=%dLL}",
			op, placeholderMacro, regPtr(v.Base), v.Imm)
	case *pretvm.BEQ:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.reg=(reg_t*)%s, .op3.imm=%s}",
			op, g.sourcePtr(v.Rs1), g.sourcePtr(v.Rs2), workerLabel(v.Target, worker))
	case *pretvm.BGE:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.reg=(reg_t*)%s, .op3.imm=%s}",
			op, g.sourcePtr(v.Rs1), g.sourcePtr(v.Rs2), workerLabel(v.Target, worker))
	case *pretvm.BLT:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.reg=(reg_t*)%s, .op3.imm=%s}",
			op, g.sourcePtr(v.Rs1), g.sourcePtr(v.Rs2), workerLabel(v.Target, worker))
	case *pretvm.BNE:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.reg=(reg_t*)%s, .op3.imm=%s}",
			op, g.sourcePtr(v.Rs1), g.sourcePtr(v.Rs2), workerLabel(v.Target, worker))
	case *pretvm.BIT:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)&timeout, .op2.imm=%s}",
			op, workerLabel(v.Target, worker))
	case *pretvm.DU:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.imm=%dLL}",
			op, regPtr(v.Ref), int64(v.Release))
	case *pretvm.EIT:
		return fmt.Sprintf("{.opcode=%s, .op1.imm=%d, .op2.imm=-1}",
			op, indexOf(g.reactions, v.Reaction))
	case *pretvm.EXE:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s}", op, placeholderMacro)
	case *pretvm.JAL:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.imm=%s}",
			op, regPtr(v.RetAddr), workerLabel(v.Target, worker))
	case *pretvm.JALR:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.reg=(reg_t*)%s, .op3.imm=%d}",
			op, regPtr(v.Dest), regPtr(v.Base), v.Imm)
	case *pretvm.STP:
		return fmt.Sprintf("{.opcode=%s}", op)
	case *pretvm.WLT:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.imm=%d}",
			op, regPtr(v.Counter), v.Release)
	case *pretvm.WU:
		return fmt.Sprintf("{.opcode=%s, .op1.reg=(reg_t*)%s, .op2.imm=%d}",
			op, regPtr(v.Counter), v.Release)
	}
	panic(fmt.Sprintf("pretvmgen: unknown opcode %s", op))
}

// varName maps a symbolic register to its C variable.
func varName(v pretvm.Var) string {
	var base string
	switch v.Reg {
	case pretvm.GlobalTimeout:
		base = "timeout"
	case pretvm.GlobalOffset:
		base = "time_offset"
	case pretvm.GlobalOffsetInc:
		base = "offset_inc"
	case pretvm.GlobalZero:
		base = "zero"
	case pretvm.GlobalOne:
		base = "one"
	case pretvm.WorkerCounter:
		base = "counters"
	case pretvm.WorkerReturnAddr:
		base = "return_addr"
	case pretvm.WorkerBinarySema:
		base = "binary_sema"
	case pretvm.ExternStartTime:
		base = "start_time"
	default:
		panic(fmt.Sprintf("pretvmgen: unknown register %s", v.Reg))
	}
	if v.Owner != pretvm.NoOwner {
		return fmt.Sprintf("%s[%d]", base, v.Owner)
	}
	return base
}

func regPtr(v pretvm.Var) string {
	return "&" + varName(v)
}

// sourcePtr renders a branch source operand: a register pointer, or
// the placeholder macro for environment references.
func (g *Generator) sourcePtr(s pretvm.Source) string {
	switch v := s.(type) {
	case pretvm.Var:
		return regPtr(v)
	case pretvm.EnvRef:
		return placeholderMacro
	}
	panic(fmt.Sprintf("pretvmgen: unknown source operand %v", s))
}

func workerLabel(l pretvm.Label, worker int) string {
	return fmt.Sprintf("WORKER_%d_%s", worker, l)
}

func sortedLabels(m map[pretvm.Label]string) []pretvm.Label {
	out := make([]pretvm.Label, 0, len(m))
	for l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
