package statespace

import (
	"hash/fnv"
	"sort"

	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Node is a finalized snapshot of one logical timestamp: the tag, the
// set of reactions invoked there, and the event queue on exit.
type Node struct {
	Tag               tag.Tag
	ReactionsInvoked  map[*instance.ReactionInstance]bool
	EventQueueSnapshot []Event
}

// NewNode creates a state-space node.
func NewNode(t tag.Tag, reactions map[*instance.ReactionInstance]bool, snapshot []Event) *Node {
	return &Node{
		Tag:                t,
		ReactionsInvoked:   reactions,
		EventQueueSnapshot: snapshot,
	}
}

// Merge folds another iteration at the same timestamp into the node.
func (n *Node) Merge(reactions map[*instance.ReactionInstance]bool, snapshot []Event) {
	for r := range reactions {
		n.ReactionsInvoked[r] = true
	}
	n.EventQueueSnapshot = snapshot
}

// Hash identifies logically equivalent states: it covers the invoked
// reaction set and the multiset of queued triggers, independent of the
// tag. Names are sorted before hashing so the value is stable across
// runs.
func (n *Node) Hash() uint64 {
	reactions := make([]string, 0, len(n.ReactionsInvoked))
	for r := range n.ReactionsInvoked {
		reactions = append(reactions, r.FullNameWithJoiner("."))
	}
	sort.Strings(reactions)

	triggers := make([]string, 0, len(n.EventQueueSnapshot))
	for _, e := range n.EventQueueSnapshot {
		triggers = append(triggers, e.Trigger.FullNameWithJoiner("."))
	}
	sort.Strings(triggers)

	h := fnv.New64a()
	for _, s := range reactions {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write([]byte{1})
	for _, s := range triggers {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// Reactions returns the invoked reactions sorted by hierarchical name,
// for deterministic iteration.
func (n *Node) Reactions() []*instance.ReactionInstance {
	out := make([]*instance.ReactionInstance, 0, len(n.ReactionsInvoked))
	for r := range n.ReactionsInvoked {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FullNameWithJoiner(".") < out[j].FullNameWithJoiner(".")
	})
	return out
}
