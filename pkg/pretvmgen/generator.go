// Package pretvmgen lowers partitioned DAGs into PretVM object files
// and links them into one executable per program. All naming state
// (label serial numbers, placeholder tables) lives on the Generator so
// concurrent compilations never share globals.
package pretvmgen

import (
	"fmt"
	"sync"

	"github.com/julianrobledom/lingua-franca/pkg/dag"
	"github.com/julianrobledom/lingua-franca/pkg/instance"
	"github.com/julianrobledom/lingua-franca/pkg/pretvm"
	"github.com/julianrobledom/lingua-franca/pkg/statespace"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// ObjectFile is the per-fragment compilation unit: one instruction
// stream per worker plus the fragment it was generated from.
type ObjectFile struct {
	Workers  [][]pretvm.Instruction
	Fragment *statespace.Fragment
}

// Generator holds the per-compilation context shared by instruction
// generation, linking, and emission.
type Generator struct {
	workers    int
	fast       bool
	timeout    tag.TimeValue
	hasTimeout bool

	main      *instance.ReactorInstance
	reactors  []*instance.ReactorInstance
	reactions []*instance.ReactionInstance
	triggers  []instance.TriggerInstance

	// placeholders maps, per worker, an instruction label to the
	// symbolic runtime name the emitted initialization routine writes
	// into the instruction's first operand.
	placeholders []map[pretvm.Label]string

	// mu guards serial and placeholders; object files for independent
	// fragments may be generated concurrently.
	mu     sync.Mutex
	serial int
}

// Option configures a Generator.
type Option func(*Generator)

// WithFast disables physical-time DU emission.
func WithFast(fast bool) Option {
	return func(g *Generator) { g.fast = fast }
}

// WithTimeout sets the program timeout.
func WithTimeout(t tag.TimeValue) Option {
	return func(g *Generator) {
		g.timeout = t
		g.hasTimeout = true
	}
}

// New creates a Generator for the elaborated program.
func New(main *instance.ReactorInstance, workers int, opts ...Option) *Generator {
	if workers < 1 {
		workers = 1
	}
	g := &Generator{
		workers:   workers,
		main:      main,
		reactors:  main.AllReactors(),
		reactions: main.AllReactions(),
		triggers:  main.AllTriggers(),
	}
	for i := 0; i < workers; i++ {
		g.placeholders = append(g.placeholders, make(map[pretvm.Label]string))
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Workers returns the worker count the generator emits for.
func (g *Generator) Workers() int { return g.workers }

// GenerateInstructions walks a partitioned DAG in topological order
// and emits the per-worker instruction streams for one fragment.
func (g *Generator) GenerateInstructions(d *dag.Dag, fragment *statespace.Fragment) *ObjectFile {
	// Last associated SYNC per reactor, to advance each reactor's tag
	// once per time step rather than once per reaction.
	reactorToLastSync := make(map[*instance.ReactorInstance]*dag.Node)

	streams := make([][]pretvm.Instruction, g.workers)

	for _, current := range d.TopologicalSort() {
		switch current.Type {
		case dag.Reaction:
			g.genReaction(d, current, streams, reactorToLastSync)
		case dag.Sync:
			if current == d.Tail && !current.Time.IsForever() {
				g.genTailSync(current, d, streams)
			}
		}
	}
	return &ObjectFile{Workers: streams, Fragment: fragment}
}

func (g *Generator) genReaction(d *dag.Dag, current *dag.Node, streams [][]pretvm.Instruction, reactorToLastSync map[*instance.ReactorInstance]*dag.Node) {
	worker := current.Worker

	// Wait for upstream reactions owned by other workers.
	for _, up := range d.UpstreamOf(current) {
		if up.Type != dag.Reaction || up.Worker == worker {
			continue
		}
		streams[worker] = append(streams[worker], &pretvm.WU{
			Counter: pretvm.OfWorker(pretvm.WorkerCounter, up.Worker),
			Release: up.ReleaseValue,
		})
	}

	// Advance the reactor's tag when its associated SYNC changed.
	// The head SYNC is handled by the synchronization block.
	reactor := current.Reaction.Parent
	if sync := current.AssociatedSync; sync != reactorToLastSync[reactor] {
		reactorToLastSync[reactor] = sync
		if sync != d.Head {
			advi := &pretvm.ADVI{
				Reactor: reactor,
				Base:    pretvm.Global(pretvm.GlobalOffset),
				Imm:     int64(sync.Time),
			}
			label := g.uniqueLabel("ADVANCE_TAG_FOR_" + reactor.FullNameWithJoiner("_"))
			advi.AddLabel(label)
			g.setPlaceholder(worker, label, g.reactorEnv(reactor))
			streams[worker] = append(streams[worker], advi)
			if !g.fast {
				streams[worker] = append(streams[worker], &pretvm.DU{
					Ref:     pretvm.Global(pretvm.GlobalOffset),
					Release: sync.Time,
				})
			}
		}
	}

	// Guarded execute: test each trigger that has a presence flag and
	// fall through past the EXE when none is present.
	reaction := current.Reaction
	exe := &pretvm.EXE{Reaction: reaction}
	exeLabel := g.uniqueLabel("EXECUTE_" + reaction.FullNameWithJoiner("_"))
	exe.AddLabel(exeLabel)
	g.setPlaceholder(worker, exeLabel, g.reactionEnv(reaction))

	hasGuards := false
	for _, trigger := range reaction.Triggers {
		if !hasPresenceField(trigger) {
			continue
		}
		hasGuards = true
		beq := &pretvm.BEQ{
			Rs1:    pretvm.EnvRef(g.triggerPresenceEnv(trigger)),
			Rs2:    pretvm.Global(pretvm.GlobalOne),
			Target: exeLabel,
		}
		beqLabel := g.uniqueLabel("TEST_TRIGGER_" + trigger.FullNameWithJoiner("_"))
		beq.AddLabel(beqLabel)
		g.setPlaceholder(worker, beqLabel, g.triggerPresenceEnv(trigger))
		streams[worker] = append(streams[worker], beq)
	}

	// The counter increment doubles as the jump target that skips the
	// EXE when no guard fired.
	addi := &pretvm.ADDI{
		Dest: pretvm.OfWorker(pretvm.WorkerCounter, worker),
		Src:  pretvm.OfWorker(pretvm.WorkerCounter, worker),
		Imm:  1,
	}
	postLabel := g.uniqueLabel("ONE_LINE_AFTER_EXE")
	addi.AddLabel(postLabel)

	if hasGuards {
		streams[worker] = append(streams[worker], &pretvm.JAL{
			RetAddr: pretvm.Global(pretvm.GlobalZero),
			Target:  postLabel,
		})
	}
	streams[worker] = append(streams[worker], exe, addi)
}

// genTailSync closes a fragment whose tail carries a real-time
// constraint: delay to the boundary, set the next offset increment,
// and call the synchronization block. The increment is the length of
// the closed interval (the hyperperiod), so repeated rounds keep the
// fragment's absolute sync times valid against the advancing offset.
func (g *Generator) genTailSync(current *dag.Node, d *dag.Dag, streams [][]pretvm.Instruction) {
	increment := current.Time
	if d.Head != nil {
		increment = current.Time.Sub(d.Head.Time)
	}
	for worker := 0; worker < g.workers; worker++ {
		if !g.fast {
			streams[worker] = append(streams[worker], &pretvm.DU{
				Ref:     pretvm.Global(pretvm.GlobalOffset),
				Release: current.Time,
			})
		}
		if worker == 0 {
			streams[worker] = append(streams[worker], &pretvm.ADDI{
				Dest: pretvm.Global(pretvm.GlobalOffsetInc),
				Src:  pretvm.Global(pretvm.GlobalZero),
				Imm:  int64(increment),
			})
		}
		streams[worker] = append(streams[worker], &pretvm.JAL{
			RetAddr: pretvm.Global(pretvm.WorkerReturnAddr),
			Target:  pretvm.Label(statespace.PhaseSyncBlock.String()),
		})
	}
}

// hasPresenceField reports whether the trigger has an is-present flag
// at runtime: actions and input ports do, timers and builtins do not.
func hasPresenceField(t instance.TriggerInstance) bool {
	switch v := t.(type) {
	case *instance.ActionInstance:
		return true
	case *instance.PortInstance:
		return v.IsInput()
	}
	return false
}

// uniqueLabel derives a label that is unique within this compilation.
func (g *Generator) uniqueLabel(prefix string) pretvm.Label {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.serial++
	return pretvm.Label(fmt.Sprintf("%s_%d", prefix, g.serial))
}

// setPlaceholder records a placeholder rewrite for a worker's label.
func (g *Generator) setPlaceholder(worker int, label pretvm.Label, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placeholders[worker][label] = name
}

func (g *Generator) reactorEnv(r *instance.ReactorInstance) string {
	return fmt.Sprintf("envs[0].reactor_self_array[%d]", indexOf(g.reactors, r))
}

func (g *Generator) reactionEnv(r *instance.ReactionInstance) string {
	return fmt.Sprintf("envs[0].reaction_array[%d]", indexOf(g.reactions, r))
}

func (g *Generator) triggerPresenceEnv(t instance.TriggerInstance) string {
	return fmt.Sprintf("envs[0].pqueue_heads[%d]", indexOf(g.triggers, t))
}

func indexOf[T comparable](list []T, x T) int {
	for i, v := range list {
		if v == x {
			return i
		}
	}
	return -1
}
