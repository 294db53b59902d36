package instance

import "github.com/julianrobledom/lingua-franca/pkg/tag"

// DestinationsOf returns the direct destinations of a source port at
// its own level: the level where connections naming it are declared.
// For an output port that is the parent of its owner; for an input
// port it is the owner itself (inputs may be forwarded to children).
func DestinationsOf(p *PortInstance) []Destination {
	var level *ReactorInstance
	if p.IsInput() {
		level = p.Owner()
	} else {
		level = p.Owner().Parent
	}
	if level == nil {
		return nil
	}
	return level.Connections[p]
}

// TransitiveClosure computes the smallest destination set of p: every
// direct destination, plus the destinations of any input port in the
// set at its own level. Propagation stops at output ports that are
// themselves destinations, so the closure never escapes the subtree of
// p's owner. Delays accumulate along the path.
func TransitiveClosure(p *PortInstance) []Destination {
	var closure []Destination
	seen := make(map[*PortInstance]bool)

	var visit func(q *PortInstance, delay tag.TimeValue)
	visit = func(q *PortInstance, delay tag.TimeValue) {
		for _, d := range DestinationsOf(q) {
			if seen[d.Port] {
				continue
			}
			seen[d.Port] = true
			total := Destination{
				Port:     d.Port,
				Delay:    delay.Add(d.Delay),
				Physical: d.Physical,
			}
			closure = append(closure, total)
			if d.Port.IsInput() {
				visit(d.Port, total.Delay)
			}
		}
	}
	visit(p, 0)
	return closure
}
