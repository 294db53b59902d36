package statespace

import (
	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// Mode selects the initial events of an exploration.
type Mode int

const (
	// InitAndPeriodic starts from startup and the timers' first firings.
	InitAndPeriodic Mode = iota
	// ShutdownTimeout over-approximates the instant a timeout fires:
	// shutdown, timers aligned with the timeout, and every input port
	// and logical action are assumed present. Reactions that turn out
	// not to trigger become runtime NOPs behind presence guards.
	ShutdownTimeout
	// ShutdownStarvation starts from shutdown only.
	ShutdownStarvation
)

// Explorer symbolically executes a program from a start mode.
type Explorer struct {
	// Timeout is the program timeout; only consulted in ShutdownTimeout
	// mode to decide which timers fire at the shutdown instant.
	Timeout tag.TimeValue
}

// Explore runs the event-queue simulation from main until the horizon
// is passed, the queue runs dry, or a loop is detected. The horizon
// bounds the last explored timestamp; pass tag.ForeverTag for none.
func (x *Explorer) Explore(main *instance.ReactorInstance, horizon tag.Tag, mode Mode) *Diagram {
	diagram := NewDiagram()
	eventQ := NewEventQueue()
	uniqueNodes := make(map[uint64]*Node)

	x.addInitialEvents(main, eventQ, mode)
	if eventQ.Len() == 0 {
		return diagram
	}

	var (
		currentNode  *Node
		previousNode *Node
		currentTag   = eventQ.Peek().Tag
		previousTag  tag.Tag
		started      bool
	)
	// Iteration states seen at the current timestamp, for detecting
	// loops that advance only the microstep.
	seenIterations := make(map[uint64]bool)

	for {
		currentEvents := eventQ.PopTag(currentTag)
		invoked := reactionsTriggeredBy(currentEvents)
		for _, e := range newEvents(currentEvents, invoked, currentTag) {
			eventQ.Push(e)
		}
		iterHash := iterationHash(invoked, eventQ.Snapshot())

		switch {
		case !started:
			currentNode = NewNode(currentTag, copyReactions(invoked), eventQ.Snapshot())
			started = true
			seenIterations = map[uint64]bool{iterHash: true}

		case currentTag.Time > previousTag.Time:
			// A true time advance finalizes the node built for the
			// previous timestamp. Check it against previously
			// finalized nodes first: a match closes the loop.
			if dup, ok := uniqueNodes[currentNode.Hash()]; ok {
				diagram.LoopNode = dup
				diagram.LoopNodeNext = currentNode
				diagram.Tail = previousNode
				diagram.Hyperperiod = currentNode.Tag.Time.Sub(dup.Tag.Time)
				diagram.AddEdge(diagram.Tail, diagram.LoopNode)
				return diagram
			}
			uniqueNodes[currentNode.Hash()] = currentNode
			diagram.AddNode(currentNode)
			diagram.Tail = currentNode
			if previousNode != nil {
				diagram.AddEdge(previousNode, currentNode)
			} else {
				diagram.Head = currentNode
			}
			previousNode = currentNode
			currentNode = NewNode(currentTag, copyReactions(invoked), eventQ.Snapshot())
			seenIterations = map[uint64]bool{iterHash: true}

		default:
			// Only the microstep advanced: merge into the open node.
			// A repeated iteration state at the same timestamp is a
			// loop that never advances time; close it on the node
			// itself with a zero hyperperiod.
			if seenIterations[iterHash] {
				diagram.AddNode(currentNode)
				if diagram.Head == nil {
					diagram.Head = currentNode
				}
				diagram.Tail = currentNode
				if previousNode != nil {
					diagram.AddEdge(previousNode, currentNode)
				}
				diagram.LoopNode = currentNode
				diagram.LoopNodeNext = currentNode
				diagram.Hyperperiod = 0
				diagram.AddEdge(currentNode, currentNode)
				return diagram
			}
			seenIterations[iterHash] = true
			currentNode.Merge(invoked, eventQ.Snapshot())
		}

		if eventQ.Len() == 0 {
			break
		}
		previousTag = currentTag
		currentTag = eventQ.Peek().Tag
		if !horizon.Time.IsForever() && currentTag.Time > horizon.Time {
			break
		}
	}

	// The last node may still be dangling; flush it.
	if currentNode != nil && (previousNode == nil || previousNode.Tag.Time < currentNode.Tag.Time) {
		diagram.AddNode(currentNode)
		diagram.Tail = currentNode
		if previousNode != nil {
			diagram.AddEdge(previousNode, currentNode)
		}
	}
	if diagram.Head == nil {
		diagram.Head = currentNode
	}
	return diagram
}

// addInitialEvents seeds the queue for the whole subtree. Shutdown
// tags are relative to the shutdown phase, hence (0, 0). Physical
// actions are never enqueued; they only arrive nondeterministically at
// runtime.
func (x *Explorer) addInitialEvents(r *instance.ReactorInstance, eventQ *EventQueue, mode Mode) {
	switch mode {
	case InitAndPeriodic:
		if s := r.StartupTrigger(); s != nil {
			eventQ.Push(Event{Trigger: s, Tag: tag.Tag{}})
		}
		for _, t := range r.Timers {
			eventQ.Push(Event{Trigger: t, Tag: tag.New(t.Offset)})
		}

	case ShutdownTimeout:
		if s := r.ShutdownTrigger(); s != nil {
			eventQ.Push(Event{Trigger: s, Tag: tag.Tag{}})
		}
		for _, t := range r.Timers {
			if timerFiresAt(t, x.Timeout) {
				eventQ.Push(Event{Trigger: t, Tag: tag.Tag{}})
			}
		}
		for _, p := range r.Inputs {
			eventQ.Push(Event{Trigger: p, Tag: tag.Tag{}})
		}
		for _, a := range r.Actions {
			if !a.IsPhysical() {
				eventQ.Push(Event{Trigger: a, Tag: tag.Tag{}})
			}
		}

	case ShutdownStarvation:
		if s := r.ShutdownTrigger(); s != nil {
			eventQ.Push(Event{Trigger: s, Tag: tag.Tag{}})
		}
	}

	for _, child := range r.Children {
		x.addInitialEvents(child, eventQ, mode)
	}
}

// timerFiresAt reports whether the timer has a firing exactly at t:
// t = offset + N * period for some nonnegative integer N.
func timerFiresAt(timer *instance.TimerInstance, t tag.TimeValue) bool {
	if t < timer.Offset {
		return false
	}
	if timer.Period == 0 {
		return t == timer.Offset
	}
	return (t-timer.Offset)%timer.Period == 0
}

// reactionsTriggeredBy unions the dependent reactions of the popped
// events. A set deduplicates reactions triggered by several events.
func reactionsTriggeredBy(events []Event) map[*instance.ReactionInstance]bool {
	invoked := make(map[*instance.ReactionInstance]bool)
	for _, e := range events {
		for _, r := range e.Trigger.DependentReactions() {
			invoked[r] = true
		}
	}
	return invoked
}

// newEvents computes the successor events of one iteration: the next
// firing of each periodic timer popped, and the downstream effects of
// each invoked reaction.
func newEvents(currentEvents []Event, invoked map[*instance.ReactionInstance]bool, now tag.Tag) []Event {
	var out []Event

	for _, e := range currentEvents {
		if timer, ok := e.Trigger.(*instance.TimerInstance); ok && timer.Period > 0 {
			out = append(out, Event{
				Trigger: timer,
				Tag:     tag.New(e.Tag.Time.Add(timer.Period)),
			})
		}
	}

	for reaction := range invoked {
		for _, effect := range reaction.Effects {
			switch eff := effect.(type) {
			case *instance.PortInstance:
				// A written port triggers its own dependent reactions
				// at the current timestamp, and its connection
				// destinations after each connection's delay.
				if len(eff.DependentReactions()) > 0 {
					out = append(out, Event{Trigger: eff, Tag: tag.New(now.Time)})
				}
				for _, dst := range instance.DestinationsOf(eff) {
					out = append(out, Event{
						Trigger: dst.Port,
						Tag:     tag.New(now.Time.Add(dst.Delay)),
					})
				}
			case *instance.ActionInstance:
				microstep := uint32(0)
				if eff.MinDelay == 0 {
					microstep = now.Microstep + 1
				}
				out = append(out, Event{
					Trigger: eff,
					Tag:     tag.Tag{Time: now.Time.Add(eff.MinDelay), Microstep: microstep},
				})
			}
		}
	}
	return out
}

// iterationHash fingerprints one loop iteration by its invoked
// reactions and the queued trigger multiset, ignoring tags entirely so
// that microstep-shifted repetitions compare equal.
func iterationHash(invoked map[*instance.ReactionInstance]bool, snapshot []Event) uint64 {
	n := Node{ReactionsInvoked: invoked, EventQueueSnapshot: snapshot}
	return n.Hash()
}

func copyReactions(set map[*instance.ReactionInstance]bool) map[*instance.ReactionInstance]bool {
	out := make(map[*instance.ReactionInstance]bool, len(set))
	for r := range set {
		out[r] = true
	}
	return out
}
