package statespace

import (
	"fmt"
	"io"

	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Phase names an execution phase of the schedule.
type Phase int

const (
	PhaseInit Phase = iota
	PhasePeriodic
	PhaseShutdownTimeout
	PhaseShutdownStarvation
	PhaseSyncBlock
	PhasePreamble
	PhaseEpilogue
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhasePeriodic:
		return "PERIODIC"
	case PhaseShutdownTimeout:
		return "SHUTDOWN_TIMEOUT"
	case PhaseShutdownStarvation:
		return "SHUTDOWN_STARVATION"
	case PhaseSyncBlock:
		return "SYNC_BLOCK"
	case PhasePreamble:
		return "PREAMBLE"
	case PhaseEpilogue:
		return "EPILOGUE"
	}
	return fmt.Sprintf("PHASE(%d)", int(p))
}

// Diagram is the state-space diagram: a chain of nodes from Head to
// Tail, optionally closed by a back edge from Tail to LoopNode.
type Diagram struct {
	Phase Phase

	Nodes []*Node
	next  map[*Node]*Node

	Head *Node
	Tail *Node

	// LoopNode is the first repeated node; LoopNodeNext is the node
	// reached on the second visit. Hyperperiod is the timestamp
	// difference between them.
	LoopNode     *Node
	LoopNodeNext *Node
	Hyperperiod  tag.TimeValue
}

// NewDiagram creates an empty diagram.
func NewDiagram() *Diagram {
	return &Diagram{next: make(map[*Node]*Node)}
}

// AddNode appends a finalized node.
func (d *Diagram) AddNode(n *Node) {
	d.Nodes = append(d.Nodes, n)
}

// AddEdge records that to is the downstream successor of from.
func (d *Diagram) AddEdge(from, to *Node) {
	if from == nil || to == nil {
		return
	}
	d.next[from] = to
}

// Downstream returns the successor of n, or nil.
func (d *Diagram) Downstream(n *Node) *Node {
	return d.next[n]
}

// IsCyclic reports whether a loop was detected.
func (d *Diagram) IsCyclic() bool {
	return d.LoopNode != nil
}

// Len returns the number of finalized nodes.
func (d *Diagram) Len() int {
	return len(d.Nodes)
}

// Dump writes a readable rendering of the diagram.
func (d *Diagram) Dump(w io.Writer) {
	fmt.Fprintf(w, "state space (%s): %d node(s)", d.Phase, len(d.Nodes))
	if d.IsCyclic() {
		fmt.Fprintf(w, ", hyperperiod=%s", d.Hyperperiod)
	}
	fmt.Fprintln(w)
	for i, n := range d.Nodes {
		marker := ""
		if n == d.Head {
			marker += " head"
		}
		if n == d.Tail {
			marker += " tail"
		}
		if n == d.LoopNode {
			marker += " loop"
		}
		fmt.Fprintf(w, "node %d @ %s%s\n", i, n.Tag, marker)
		for _, r := range n.Reactions() {
			fmt.Fprintf(w, "  invoke %s\n", r.FullNameWithJoiner("."))
		}
		for _, e := range n.EventQueueSnapshot {
			fmt.Fprintf(w, "  queued %s @ %s\n", e.Trigger.FullNameWithJoiner("."), e.Tag)
		}
	}
}
