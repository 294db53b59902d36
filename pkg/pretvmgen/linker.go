package pretvmgen

import (
	"errors"
	"fmt"

	"github.com/julianrobledom/lingua-franca/pkg/pretvm"
	"github.com/julianrobledom/lingua-franca/pkg/statespace"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Emission error kinds. These indicate internal bugs and are fatal.
var (
	ErrUnresolvedPlaceholder     = errors.New("unresolved placeholder")
	ErrDuplicateDefaultTransition = errors.New("multiple default transitions")
	ErrUndefinedLabel            = errors.New("undefined label")
	ErrDuplicateLabel            = errors.New("duplicate label")
)

// Link concatenates the object files along the fragment transition
// graph into one executable: a per-worker PREAMBLE, the fragment
// bodies with their transition code, an EPILOGUE, and the
// synchronization block.
func (g *Generator) Link(objectFiles []*ObjectFile) (*pretvm.Executable, error) {
	schedules := g.generatePreamble()

	byFragment := make(map[*statespace.Fragment]*ObjectFile, len(objectFiles))
	for _, obj := range objectFiles {
		byFragment[obj.Fragment] = obj
	}

	hyperperiod := tag.Zero

	// Breadth-first over the fragment transition graph, starting from
	// the first object file.
	queue := []*ObjectFile{objectFiles[0]}
	seen := map[*ObjectFile]bool{objectFiles[0]: true}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.Fragment.IsCyclic() && current.Fragment.Hyperperiod > hyperperiod {
			hyperperiod = current.Fragment.Hyperperiod
		}

		// With a timeout configured, every fragment opens with the
		// cancellation guard: once the
		// global timeout flag is set, control routes to the epilogue's
		// STP instead of entering the fragment body.
		partial := make([][]pretvm.Instruction, g.workers)
		for w := range partial {
			if g.hasTimeout {
				partial[w] = append(partial[w], &pretvm.BIT{
					Target: pretvm.Label(statespace.PhaseEpilogue.String()),
				})
			}
			partial[w] = append(partial[w], current.Workers[w]...)
		}

		// Guarded transitions are cloned per worker; the default
		// transition, if any, comes last.
		var defaultTransition []pretvm.Instruction
		for _, transition := range current.Fragment.Downstream {
			if statespace.IsDefaultTransition(transition.Instructions) {
				if defaultTransition != nil {
					return nil, fmt.Errorf("%w: fragment %s", ErrDuplicateDefaultTransition, current.Fragment.Phase)
				}
				defaultTransition = transition.Instructions
				continue
			}
			for w := 0; w < g.workers; w++ {
				partial[w] = append(partial[w], cloneAll(transition.Instructions)...)
			}
		}
		if defaultTransition != nil {
			for w := 0; w < g.workers; w++ {
				partial[w] = append(partial[w], cloneAll(defaultTransition)...)
			}
		}

		// Label each worker's first instruction with the phase so
		// transition jumps resolve. A worker with nothing to do in
		// this fragment still needs the label; give it a fallthrough
		// jump to the epilogue.
		for w := 0; w < g.workers; w++ {
			if len(partial[w]) == 0 {
				partial[w] = append(partial[w], &pretvm.JAL{
					RetAddr: pretvm.Global(pretvm.GlobalZero),
					Target:  pretvm.Label(statespace.PhaseEpilogue.String()),
				})
			}
			partial[w][0].AddLabel(pretvm.Label(current.Fragment.Phase.String()))
			schedules[w] = append(schedules[w], partial[w]...)
		}

		for _, transition := range current.Fragment.Downstream {
			next, ok := byFragment[transition.To]
			if !ok || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}

	epilogue := g.generateEpilogue()
	syncBlock := g.generateSyncBlock()
	for w := 0; w < g.workers; w++ {
		schedules[w] = append(schedules[w], epilogue[w]...)
		schedules[w] = append(schedules[w], syncBlock[w]...)
	}

	exe := &pretvm.Executable{Workers: schedules, Hyperperiod: hyperperiod}
	if err := g.validate(exe); err != nil {
		return nil, err
	}
	return exe, nil
}

// generatePreamble sets up the global registers and sends every worker
// through the synchronization block once before the first fragment.
func (g *Generator) generatePreamble() [][]pretvm.Instruction {
	schedules := make([][]pretvm.Instruction, g.workers)
	for worker := 0; worker < g.workers; worker++ {
		if worker == 0 {
			schedules[worker] = append(schedules[worker], &pretvm.ADDI{
				Dest: pretvm.Global(pretvm.GlobalOffset),
				Src:  pretvm.Global(pretvm.ExternStartTime),
				Imm:  0,
			})
			if g.hasTimeout {
				schedules[worker] = append(schedules[worker], &pretvm.ADDI{
					Dest: pretvm.Global(pretvm.GlobalTimeout),
					Src:  pretvm.Global(pretvm.ExternStartTime),
					Imm:  int64(g.timeout),
				})
			}
			schedules[worker] = append(schedules[worker], &pretvm.ADDI{
				Dest: pretvm.Global(pretvm.GlobalOffsetInc),
				Src:  pretvm.Global(pretvm.GlobalZero),
				Imm:  0,
			})
		}
		schedules[worker] = append(schedules[worker], &pretvm.JAL{
			RetAddr: pretvm.Global(pretvm.WorkerReturnAddr),
			Target:  pretvm.Label(statespace.PhaseSyncBlock.String()),
		})
		schedules[worker][0].AddLabel(pretvm.Label(statespace.PhasePreamble.String()))
	}
	return schedules
}

// generateEpilogue stops every worker.
func (g *Generator) generateEpilogue() [][]pretvm.Instruction {
	schedules := make([][]pretvm.Instruction, g.workers)
	for worker := 0; worker < g.workers; worker++ {
		stp := &pretvm.STP{}
		stp.AddLabel(pretvm.Label(statespace.PhaseEpilogue.String()))
		schedules[worker] = append(schedules[worker], stp)
	}
	return schedules
}

// generateSyncBlock emits the reusable barrier between hyperperiods.
// Worker 0 coordinates: it collects the other workers' semaphores,
// advances the hyperperiod base, resets counters, advances every
// reactor's tag, and releases. The others post arrival and wait.
func (g *Generator) generateSyncBlock() [][]pretvm.Instruction {
	schedules := make([][]pretvm.Instruction, g.workers)
	for w := 0; w < g.workers; w++ {
		if w == 0 {
			for worker := 1; worker < g.workers; worker++ {
				schedules[w] = append(schedules[w], &pretvm.WU{
					Counter: pretvm.OfWorker(pretvm.WorkerBinarySema, worker),
					Release: 1,
				})
			}
			schedules[w] = append(schedules[w], &pretvm.ADD{
				Dest: pretvm.Global(pretvm.GlobalOffset),
				Src1: pretvm.Global(pretvm.GlobalOffset),
				Src2: pretvm.Global(pretvm.GlobalOffsetInc),
			})
			for worker := 0; worker < g.workers; worker++ {
				schedules[w] = append(schedules[w], &pretvm.ADDI{
					Dest: pretvm.OfWorker(pretvm.WorkerCounter, worker),
					Src:  pretvm.Global(pretvm.GlobalZero),
					Imm:  0,
				})
			}
			for _, reactor := range g.reactors {
				advi := &pretvm.ADVI{
					Reactor: reactor,
					Base:    pretvm.Global(pretvm.GlobalOffset),
					Imm:     0,
				}
				label := g.uniqueLabel("ADVANCE_TAG_FOR_" + reactor.FullNameWithJoiner("_"))
				advi.AddLabel(label)
				g.setPlaceholder(w, label, g.reactorEnv(reactor))
				schedules[w] = append(schedules[w], advi)
			}
			for worker := 1; worker < g.workers; worker++ {
				schedules[w] = append(schedules[w], &pretvm.ADDI{
					Dest: pretvm.OfWorker(pretvm.WorkerBinarySema, worker),
					Src:  pretvm.Global(pretvm.GlobalZero),
					Imm:  0,
				})
			}
			schedules[w] = append(schedules[w], &pretvm.JALR{
				Dest: pretvm.Global(pretvm.GlobalZero),
				Base: pretvm.Global(pretvm.WorkerReturnAddr),
				Imm:  0,
			})
		} else {
			schedules[w] = append(schedules[w], &pretvm.ADDI{
				Dest: pretvm.OfWorker(pretvm.WorkerBinarySema, w),
				Src:  pretvm.Global(pretvm.GlobalZero),
				Imm:  1,
			})
			schedules[w] = append(schedules[w], &pretvm.WLT{
				Counter: pretvm.OfWorker(pretvm.WorkerBinarySema, w),
				Release: 1,
			})
			schedules[w] = append(schedules[w], &pretvm.JALR{
				Dest: pretvm.Global(pretvm.GlobalZero),
				Base: pretvm.Global(pretvm.WorkerReturnAddr),
				Imm:  0,
			})
		}
		schedules[w][0].AddLabel(pretvm.Label(statespace.PhaseSyncBlock.String()))
	}
	return schedules
}

// validate checks the linked executable: labels unique per worker,
// every branch target defined, every placeholder label present.
func (g *Generator) validate(exe *pretvm.Executable) error {
	for w, stream := range exe.Workers {
		defined := make(map[pretvm.Label]bool)
		for _, inst := range stream {
			for _, l := range inst.Labels() {
				if defined[l] {
					return fmt.Errorf("%w: %s on worker %d", ErrDuplicateLabel, l, w)
				}
				defined[l] = true
			}
		}
		for _, inst := range stream {
			for _, target := range branchTargets(inst) {
				if !defined[target] {
					return fmt.Errorf("%w: %s on worker %d", ErrUndefinedLabel, target, w)
				}
			}
		}
		for label := range g.placeholders[w] {
			if !defined[label] {
				return fmt.Errorf("%w: label %s missing on worker %d", ErrUnresolvedPlaceholder, label, w)
			}
		}
	}
	return nil
}

func branchTargets(inst pretvm.Instruction) []pretvm.Label {
	switch v := inst.(type) {
	case *pretvm.BEQ:
		return []pretvm.Label{v.Target}
	case *pretvm.BNE:
		return []pretvm.Label{v.Target}
	case *pretvm.BLT:
		return []pretvm.Label{v.Target}
	case *pretvm.BGE:
		return []pretvm.Label{v.Target}
	case *pretvm.BIT:
		return []pretvm.Label{v.Target}
	case *pretvm.JAL:
		return []pretvm.Label{v.Target}
	}
	return nil
}

func cloneAll(instructions []pretvm.Instruction) []pretvm.Instruction {
	out := make([]pretvm.Instruction, len(instructions))
	for i, inst := range instructions {
		out[i] = inst.Clone()
	}
	return out
}
