// Package dag builds the partitioned precedence graph of reaction
// invocations from a state-space fragment: SYNC nodes mark logical
// time boundaries, DUMMY nodes carry delays between them, and REACTION
// nodes carry the work, each assigned to a worker lane.
package dag

import (
	"fmt"
	"io"

	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// NodeType distinguishes the DAG node variants.
type NodeType int

const (
	Sync NodeType = iota
	Dummy
	Reaction
)

func (t NodeType) String() string {
	switch t {
	case Sync:
		return "SYNC"
	case Dummy:
		return "DUMMY"
	}
	return "REACTION"
}

// Node is a DAG node. SYNC nodes carry a logical time, DUMMY nodes a
// duration, REACTION nodes a reaction instance plus its worker
// assignment, release value, and nearest upstream SYNC.
type Node struct {
	Type NodeType

	// Time is the logical time of a SYNC node or the duration of a
	// DUMMY node.
	Time tag.TimeValue

	Reaction *instance.ReactionInstance

	// Worker is the lane the partitioner assigned; ReleaseValue is the
	// per-worker monotone counter value published when the reaction
	// completes.
	Worker       int
	ReleaseValue int64

	// AssociatedSync is the nearest transitively upstream SYNC node.
	AssociatedSync *Node
}

func (n *Node) String() string {
	switch n.Type {
	case Sync:
		return fmt.Sprintf("SYNC@%s", n.Time)
	case Dummy:
		return fmt.Sprintf("DUMMY(%s)", n.Time)
	}
	return fmt.Sprintf("REACTION(%s)", n.Reaction.FullNameWithJoiner("."))
}

// Dag is the node list plus forward and reverse adjacency maps.
type Dag struct {
	Nodes []*Node

	Edges    map[*Node]map[*Node]bool
	RevEdges map[*Node]map[*Node]bool

	Head *Node
	Tail *Node
}

// New creates an empty DAG.
func New() *Dag {
	return &Dag{
		Edges:    make(map[*Node]map[*Node]bool),
		RevEdges: make(map[*Node]map[*Node]bool),
	}
}

// AddSync appends a SYNC node at the given logical time.
func (d *Dag) AddSync(t tag.TimeValue) *Node {
	n := &Node{Type: Sync, Time: t, Worker: -1}
	d.Nodes = append(d.Nodes, n)
	return n
}

// AddDummy appends a DUMMY node of the given duration.
func (d *Dag) AddDummy(duration tag.TimeValue) *Node {
	n := &Node{Type: Dummy, Time: duration, Worker: -1}
	d.Nodes = append(d.Nodes, n)
	return n
}

// AddReaction appends a REACTION node.
func (d *Dag) AddReaction(r *instance.ReactionInstance) *Node {
	n := &Node{Type: Reaction, Reaction: r, Worker: -1}
	d.Nodes = append(d.Nodes, n)
	return n
}

// AddEdge records a precedence edge from src to dst.
func (d *Dag) AddEdge(src, dst *Node) {
	if src == nil || dst == nil || src == dst {
		return
	}
	if d.Edges[src] == nil {
		d.Edges[src] = make(map[*Node]bool)
	}
	d.Edges[src][dst] = true
	if d.RevEdges[dst] == nil {
		d.RevEdges[dst] = make(map[*Node]bool)
	}
	d.RevEdges[dst][src] = true
}

// UpstreamOf returns the direct predecessors of n in node-list order.
func (d *Dag) UpstreamOf(n *Node) []*Node {
	return d.ordered(d.RevEdges[n])
}

// DownstreamOf returns the direct successors of n in node-list order.
func (d *Dag) DownstreamOf(n *Node) []*Node {
	return d.ordered(d.Edges[n])
}

func (d *Dag) ordered(set map[*Node]bool) []*Node {
	if len(set) == 0 {
		return nil
	}
	out := make([]*Node, 0, len(set))
	for _, n := range d.Nodes {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}

// TopologicalSort returns the nodes in a topological order using
// Kahn's algorithm. Ready nodes are taken first in, first out; the
// initial ready set is seeded in node creation order, so the result is
// deterministic. A cycle is an invariant violation upstream and panics.
func (d *Dag) TopologicalSort() []*Node {
	indegree := make(map[*Node]int, len(d.Nodes))
	for _, n := range d.Nodes {
		indegree[n] = len(d.RevEdges[n])
	}

	var ready []*Node
	for _, n := range d.Nodes {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	sorted := make([]*Node, 0, len(d.Nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		sorted = append(sorted, n)
		for _, m := range d.DownstreamOf(n) {
			indegree[m]--
			if indegree[m] == 0 {
				ready = append(ready, m)
			}
		}
	}

	if len(sorted) != len(d.Nodes) {
		panic(fmt.Sprintf("dag: not topologically sortable: %d of %d nodes ordered", len(sorted), len(d.Nodes)))
	}
	return sorted
}

// WriteDot renders the DAG in Graphviz dot format.
func (d *Dag) WriteDot(w io.Writer) {
	index := make(map[*Node]int, len(d.Nodes))
	for i, n := range d.Nodes {
		index[n] = i
	}
	fmt.Fprintln(w, "digraph dag {")
	for i, n := range d.Nodes {
		label := n.String()
		if n.Type == Reaction {
			label = fmt.Sprintf("%s\\nworker=%d release=%d", label, n.Worker, n.ReleaseValue)
		}
		fmt.Fprintf(w, "  n%d [label=\"%s\"];\n", i, label)
	}
	for _, src := range d.Nodes {
		for _, dst := range d.DownstreamOf(src) {
			fmt.Fprintf(w, "  n%d -> n%d;\n", index[src], index[dst])
		}
	}
	fmt.Fprintln(w, "}")
}
