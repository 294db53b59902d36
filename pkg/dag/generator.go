package dag

import (
	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/statespace"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Generate converts a state-space diagram (or fragment) into a DAG.
//
// The walk visits state-space nodes from head to tail. Each timestamp
// becomes a SYNC node, preceded by a DUMMY carrying the elapsed time.
// Invoked reactions hang off their SYNC, with intra-reactor priority
// edges between them. Two carry-over sets add the cross-step edges
// that preserve determinism: a reaction invoked again at a later step
// is sequenced behind the new SYNC, and consecutive invocations within
// one reactor are chained. For a cyclic diagram the second visit of
// the loop node closes the graph with a terminal SYNC one hyperperiod
// after the loop node; an acyclic diagram terminates with a SYNC at Forever,
// which downstream stages treat as "no real-time constraint".
func Generate(diagram *statespace.Diagram) *Dag {
	d := New()

	current := diagram.Head
	previousTime := tag.Zero
	var previousSync *Node
	loopNodeReached := 0
	lastIteration := false

	var currentReactionNodes []*Node
	var reactionsUnconnectedToSync []*Node
	var reactionsUnconnectedToNextInvocation []*Node

	var sync *Node
	for current != nil {
		if current == diagram.LoopNode {
			loopNodeReached++
			if loopNodeReached >= 2 {
				lastIteration = true
			}
		}

		// The loop closes one hyperperiod after the loop node, i.e. at
		// the second visit's timestamp.
		var time tag.TimeValue
		if lastIteration {
			time = diagram.LoopNode.Tag.Time.Add(diagram.Hyperperiod)
		} else {
			time = current.Tag.Time
		}

		sync = d.AddSync(time)
		if d.Head == nil {
			d.Head = sync
		}

		if time != tag.Zero {
			dummy := d.AddDummy(time.Sub(previousTime))
			d.AddEdge(previousSync, dummy)
			d.AddEdge(dummy, sync)
		}

		if lastIteration {
			for _, n := range reactionsUnconnectedToSync {
				d.AddEdge(n, sync)
			}
			break
		}

		currentReactionNodes = currentReactionNodes[:0]
		for _, reaction := range current.Reactions() {
			node := d.AddReaction(reaction)
			node.AssociatedSync = sync
			currentReactionNodes = append(currentReactionNodes, node)
			d.AddEdge(sync, node)
		}

		// Intra-reactor priority edges and same-tag port dataflow
		// edges within this step: a reader of a port transitively
		// written by another invoked reaction runs after the writer.
		for _, n1 := range currentReactionNodes {
			for _, n2 := range currentReactionNodes {
				if n1 == n2 {
					continue
				}
				if n2.Reaction.DependsOn(n1.Reaction) || readsEffectOf(n1.Reaction, n2.Reaction) {
					d.AddEdge(n1, n2)
				}
			}
		}

		currentReactions := make(map[*instance.ReactionInstance]bool, len(currentReactionNodes))
		for _, n := range currentReactionNodes {
			currentReactions[n.Reaction] = true
		}

		// A reaction invoked again at this step sequences its prior
		// invocation before the new SYNC.
		reactionsUnconnectedToSync = retain(reactionsUnconnectedToSync, func(n *Node) bool {
			if currentReactions[n.Reaction] {
				d.AddEdge(n, sync)
				return false
			}
			return true
		})
		reactionsUnconnectedToSync = append(reactionsUnconnectedToSync, currentReactionNodes...)

		// Invocations of reactions from the same reactor across two
		// steps are chained to preserve determinism.
		reactionsUnconnectedToNextInvocation = retain(reactionsUnconnectedToNextInvocation, func(n1 *Node) bool {
			connected := false
			for _, n2 := range currentReactionNodes {
				if n1.Reaction.Parent == n2.Reaction.Parent {
					d.AddEdge(n1, n2)
					connected = true
				}
			}
			return !connected
		})
		reactionsUnconnectedToNextInvocation = append(reactionsUnconnectedToNextInvocation, currentReactionNodes...)

		next := diagram.Downstream(current)
		if next == nil && !lastIteration {
			// Acyclic diagram: terminate with an unconstrained SYNC.
			tail := d.AddSync(tag.Forever)
			d.AddEdge(sync, tail)
			for _, n := range reactionsUnconnectedToSync {
				d.AddEdge(n, tail)
			}
			sync = tail
			break
		}
		current = next
		previousSync = sync
		previousTime = time
	}

	d.Tail = sync
	return d
}

// readsEffectOf reports whether reader is triggered by, or sources, a
// port that writer effects directly or through zero or more
// connections.
func readsEffectOf(writer, reader *instance.ReactionInstance) bool {
	written := make(map[*instance.PortInstance]bool)
	for _, effect := range writer.Effects {
		p, ok := effect.(*instance.PortInstance)
		if !ok {
			continue
		}
		written[p] = true
		for _, d := range instance.TransitiveClosure(p) {
			if d.Delay == 0 {
				written[d.Port] = true
			}
		}
	}
	for _, src := range reader.Sources {
		if written[src] {
			return true
		}
	}
	return false
}

func retain(nodes []*Node, keep func(*Node) bool) []*Node {
	out := nodes[:0]
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}
