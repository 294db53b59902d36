package statespace

import (
	"fmt"

	"github.com/julianrobledom/lingua-franca/pkg/pretvm"
)

// Transition is a guarded edge between two fragments: the instruction
// list the linker appends after the upstream fragment's body. A
// transition is the default one iff it is a single unconditional jump.
type Transition struct {
	To           *Fragment
	Instructions []pretvm.Instruction
}

// Fragment is a sub-diagram tagged with a phase, wired to its
// neighbors in the phase transition graph.
type Fragment struct {
	*Diagram

	Downstream []Transition
	Upstream   []*Fragment
}

// NewFragment wraps a diagram into a fragment.
func NewFragment(d *Diagram) *Fragment {
	return &Fragment{Diagram: d}
}

// IsDefaultTransition reports whether the instruction list forms a
// default (unguarded) transition: exactly one unconditional jump.
func IsDefaultTransition(instructions []pretvm.Instruction) bool {
	if len(instructions) != 1 {
		return false
	}
	_, ok := instructions[0].(*pretvm.JAL)
	return ok
}

// ConnectFragmentsDefault wires downstream after upstream with a
// default transition: a single jump to the downstream phase label.
func ConnectFragmentsDefault(upstream, downstream *Fragment) {
	transition := []pretvm.Instruction{
		&pretvm.JAL{
			RetAddr: pretvm.Global(pretvm.WorkerReturnAddr),
			Target:  pretvm.Label(downstream.Phase.String()),
		},
	}
	upstream.Downstream = append(upstream.Downstream, Transition{To: downstream, Instructions: transition})
	downstream.Upstream = append(downstream.Upstream, upstream)
}

// ConnectFragmentsGuarded wires downstream after upstream with a
// caller-supplied guarded transition.
func ConnectFragmentsGuarded(upstream, downstream *Fragment, transition []pretvm.Instruction) {
	upstream.Downstream = append(upstream.Downstream, Transition{To: downstream, Instructions: transition})
	downstream.Upstream = append(downstream.Upstream, upstream)
}

// FragmentizeInitAndPeriodic splits an INIT_AND_PERIODIC diagram into
// an initialization fragment and a periodic fragment, wiring the
// default transitions between them. At most two fragments result.
func FragmentizeInitAndPeriodic(stateSpace *Diagram) []*Fragment {
	var fragments []*Fragment
	current := stateSpace.Head
	var previous *Node

	// Initialization phase: everything before the loop node.
	if stateSpace.Head != stateSpace.LoopNode {
		initPhase := NewDiagram()
		initPhase.Phase = PhaseInit
		initPhase.Head = current
		for current != stateSpace.LoopNode && current != nil {
			initPhase.AddNode(current)
			initPhase.AddEdge(previous, current)
			previous = current
			current = stateSpace.Downstream(current)
		}
		initPhase.Tail = previous
		if stateSpace.LoopNode != nil {
			initPhase.Hyperperiod = stateSpace.LoopNode.Tag.Time
		}
		fragments = append(fragments, NewFragment(initPhase))
	}

	// Periodic phase: the loop.
	if stateSpace.IsCyclic() {
		if current != stateSpace.LoopNode {
			panic(fmt.Sprintf("statespace: init fragment did not stop at the loop node (at %v)", current))
		}
		periodic := NewDiagram()
		periodic.Phase = PhasePeriodic
		periodic.Head = current
		periodic.AddNode(current)
		for current != stateSpace.Tail {
			previous = current
			current = stateSpace.Downstream(current)
			periodic.AddNode(current)
			periodic.AddEdge(previous, current)
		}
		periodic.Tail = current
		periodic.LoopNode = stateSpace.LoopNode
		periodic.LoopNodeNext = stateSpace.LoopNodeNext
		periodic.Hyperperiod = stateSpace.Hyperperiod
		periodic.AddEdge(periodic.Tail, periodic.LoopNode)
		fragments = append(fragments, NewFragment(periodic))
	}

	if len(fragments) == 2 {
		ConnectFragmentsDefault(fragments[0], fragments[1])
	}
	if len(fragments) > 0 {
		last := fragments[len(fragments)-1]
		if last.Phase == PhasePeriodic {
			ConnectFragmentsDefault(last, last)
		}
	}
	if len(fragments) > 2 {
		panic("statespace: more than two fragments from INIT_AND_PERIODIC")
	}
	return fragments
}

// GuardedTimeoutTransition builds the transition that leaves the
// periodic phase for the shutdown phase once the hyperperiod base time
// reaches the timeout.
func GuardedTimeoutTransition(downstream *Fragment) []pretvm.Instruction {
	return []pretvm.Instruction{
		&pretvm.BGE{
			Rs1:    pretvm.Global(pretvm.GlobalOffset),
			Rs2:    pretvm.Global(pretvm.GlobalTimeout),
			Target: pretvm.Label(downstream.Phase.String()),
		},
	}
}
