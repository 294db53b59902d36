// Package instance defines the runtime reactor instance tree: the
// unfolded hierarchy of reactor instances with their ports, timers,
// actions, reactions, and connection maps. The tree owns every
// port/reaction/timer/action instance; parent and owner references are
// lookup-only back-edges and never carry ownership.
package instance

import (
	"strconv"

	"github.com/julianrobledom/lingua-franca/pkg/ast"
	"github.com/julianrobledom/lingua-franca/pkg/tag"
)

// TriggerInstance is anything a reaction can be triggered by: a port,
// a timer, an action, or a builtin startup/shutdown trigger.
type TriggerInstance interface {
	// Name is the trigger's name within its owning reactor.
	Name() string
	// Owner is the reactor instance the trigger belongs to.
	Owner() *ReactorInstance
	// DependentReactions are the reactions triggered by this trigger.
	DependentReactions() []*ReactionInstance
	// FullNameWithJoiner returns the hierarchical name joined with sep.
	FullNameWithJoiner(sep string) string
	// AddDependentReaction records a trigger-to-reaction edge.
	AddDependentReaction(r *ReactionInstance)
}

// triggerBase carries the fields shared by all trigger variants.
type triggerBase struct {
	name      string
	owner     *ReactorInstance
	dependent []*ReactionInstance
}

func (t *triggerBase) Name() string                            { return t.name }
func (t *triggerBase) Owner() *ReactorInstance                 { return t.owner }
func (t *triggerBase) DependentReactions() []*ReactionInstance { return t.dependent }

func (t *triggerBase) AddDependentReaction(r *ReactionInstance) {
	for _, d := range t.dependent {
		if d == r {
			return
		}
	}
	t.dependent = append(t.dependent, r)
}

func (t *triggerBase) FullNameWithJoiner(sep string) string {
	return t.owner.FullNameWithJoiner(sep) + sep + t.name
}

// PortKind distinguishes input from output ports.
type PortKind int

const (
	Input PortKind = iota
	Output
)

func (k PortKind) String() string {
	if k == Input {
		return "input"
	}
	return "output"
}

// PortInstance is a runtime port. It records the reactions that depend
// on it (read it or are triggered by it) and the reactions that write
// to it.
type PortInstance struct {
	triggerBase
	Kind       PortKind
	Definition *ast.Port

	// DependsOnReactions are the reactions that write to this port.
	DependsOnReactions []*ReactionInstance
}

// IsInput returns true for input ports.
func (p *PortInstance) IsInput() bool { return p.Kind == Input }

// TimerInstance is a runtime timer. A zero period makes it a one-shot.
type TimerInstance struct {
	triggerBase
	Definition *ast.Timer
	Offset     tag.TimeValue
	Period     tag.TimeValue
}

// ActionInstance is a runtime action.
type ActionInstance struct {
	triggerBase
	Definition *ast.Action
	Origin     ast.Origin
	MinDelay   tag.TimeValue
}

// IsPhysical returns true for physical actions, which are never
// enqueued by the state-space explorer.
func (a *ActionInstance) IsPhysical() bool { return a.Origin == ast.OriginPhysical }

// BuiltinKind names the builtin trigger variants.
type BuiltinKind int

const (
	Startup BuiltinKind = iota
	Shutdown
)

func (k BuiltinKind) String() string {
	if k == Startup {
		return "startup"
	}
	return "shutdown"
}

// BuiltinTriggerInstance is a startup or shutdown trigger. At most one
// of each exists per reactor instance, created on demand.
type BuiltinTriggerInstance struct {
	triggerBase
	Kind BuiltinKind
}

// ReactionInstance is a runtime occurrence of a reaction, priority
// ordered among its siblings by declaration position (1-based).
type ReactionInstance struct {
	Definition *ast.Reaction
	Parent     *ReactorInstance
	Index      int // 1-based declaration position

	Triggers []TriggerInstance
	Sources  []*PortInstance
	Effects  []TriggerInstance // ports and actions

	// DependsOnReactions are reactions that must complete before this
	// one at the same tag; DependentReactions is the reverse set.
	// Together they thread the intra-reactor priority chain.
	DependsOnReactions []*ReactionInstance
	DependentReactions []*ReactionInstance
}

// Name returns the reaction's display name within its reactor.
func (r *ReactionInstance) Name() string {
	return "reaction_" + itoa(r.Index)
}

// FullNameWithJoiner returns the hierarchical name joined with sep.
func (r *ReactionInstance) FullNameWithJoiner(sep string) string {
	return r.Parent.FullNameWithJoiner(sep) + sep + r.Name()
}

// DependsOn reports whether other is in this reaction's dependency set.
func (r *ReactionInstance) DependsOn(other *ReactionInstance) bool {
	for _, d := range r.DependsOnReactions {
		if d == other {
			return true
		}
	}
	return false
}

func (r *ReactionInstance) addDependency(on *ReactionInstance) {
	if r == on || r.DependsOn(on) {
		return
	}
	r.DependsOnReactions = append(r.DependsOnReactions, on)
	on.DependentReactions = append(on.DependentReactions, r)
}

// Destination is one endpoint of a connection: a destination port and
// the connection's attributes.
type Destination struct {
	Port     *PortInstance
	Delay    tag.TimeValue
	Physical bool
}

// ReactorInstance is a node in the runtime tree.
type ReactorInstance struct {
	Definition *ast.Reactor
	Parent     *ReactorInstance
	Name       string
	// Ordinal counts earlier siblings instantiating the same class.
	// It only disambiguates display names.
	Ordinal int

	Children  []*ReactorInstance
	Inputs    []*PortInstance
	Outputs   []*PortInstance
	Timers    []*TimerInstance
	Actions   []*ActionInstance
	Reactions []*ReactionInstance

	// Connections maps each source port at this level to its
	// destination set, materialized from the class's declarations.
	Connections map[*PortInstance][]Destination

	startup  *BuiltinTriggerInstance
	shutdown *BuiltinTriggerInstance
}

// NewReactorInstance creates a bare reactor instance node.
func NewReactorInstance(def *ast.Reactor, parent *ReactorInstance, name string, ordinal int) *ReactorInstance {
	return &ReactorInstance{
		Definition:  def,
		Parent:      parent,
		Name:        name,
		Ordinal:     ordinal,
		Connections: make(map[*PortInstance][]Destination),
	}
}

// DisplayName is the instance name, suffixed with "_<ordinal>" when an
// earlier sibling at this level has the same class; the first instance
// of a class carries no suffix.
func (r *ReactorInstance) DisplayName() string {
	if r.Ordinal > 0 {
		return r.Name + "_" + itoa(r.Ordinal)
	}
	return r.Name
}

// FullName returns the dot-joined hierarchical name.
func (r *ReactorInstance) FullName() string {
	return r.FullNameWithJoiner(".")
}

// FullNameWithJoiner returns the hierarchical name joined with sep.
func (r *ReactorInstance) FullNameWithJoiner(sep string) string {
	if r.Parent == nil {
		return r.DisplayName()
	}
	return r.Parent.FullNameWithJoiner(sep) + sep + r.DisplayName()
}

// StartupTrigger returns the reactor's startup trigger, or nil if
// EnsureStartupTrigger has not created it.
func (r *ReactorInstance) StartupTrigger() *BuiltinTriggerInstance { return r.startup }

// ShutdownTrigger returns the reactor's shutdown trigger, or nil.
func (r *ReactorInstance) ShutdownTrigger() *BuiltinTriggerInstance { return r.shutdown }

// EnsureStartupTrigger returns the startup trigger, creating it if needed.
func (r *ReactorInstance) EnsureStartupTrigger() *BuiltinTriggerInstance {
	if r.startup == nil {
		r.startup = &BuiltinTriggerInstance{
			triggerBase: triggerBase{name: "startup", owner: r},
			Kind:        Startup,
		}
	}
	return r.startup
}

// EnsureShutdownTrigger returns the shutdown trigger, creating it if needed.
func (r *ReactorInstance) EnsureShutdownTrigger() *BuiltinTriggerInstance {
	if r.shutdown == nil {
		r.shutdown = &BuiltinTriggerInstance{
			triggerBase: triggerBase{name: "shutdown", owner: r},
			Kind:        Shutdown,
		}
	}
	return r.shutdown
}

// Child returns the child instance with the given name, or nil.
func (r *ReactorInstance) Child(name string) *ReactorInstance {
	for _, c := range r.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Input returns the input port instance with the given name, or nil.
func (r *ReactorInstance) Input(name string) *PortInstance {
	for _, p := range r.Inputs {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Output returns the output port instance with the given name, or nil.
func (r *ReactorInstance) Output(name string) *PortInstance {
	for _, p := range r.Outputs {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// Port returns the input or output port with the given name, or nil.
func (r *ReactorInstance) Port(name string) *PortInstance {
	if p := r.Input(name); p != nil {
		return p
	}
	return r.Output(name)
}

// Timer returns the timer instance with the given name, or nil.
func (r *ReactorInstance) Timer(name string) *TimerInstance {
	for _, t := range r.Timers {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Action returns the action instance with the given name, or nil.
func (r *ReactorInstance) Action(name string) *ActionInstance {
	for _, a := range r.Actions {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// AddPort creates and owns a new port instance.
func (r *ReactorInstance) AddPort(def *ast.Port, kind PortKind) *PortInstance {
	p := &PortInstance{
		triggerBase: triggerBase{name: def.Name, owner: r},
		Kind:        kind,
		Definition:  def,
	}
	if kind == Input {
		r.Inputs = append(r.Inputs, p)
	} else {
		r.Outputs = append(r.Outputs, p)
	}
	return p
}

// AddTimer creates and owns a new timer instance.
func (r *ReactorInstance) AddTimer(def *ast.Timer) *TimerInstance {
	t := &TimerInstance{
		triggerBase: triggerBase{name: def.Name, owner: r},
		Definition:  def,
		Offset:      def.Offset.ToNanoseconds(),
		Period:      def.Period.ToNanoseconds(),
	}
	r.Timers = append(r.Timers, t)
	return t
}

// AddAction creates and owns a new action instance.
func (r *ReactorInstance) AddAction(def *ast.Action) *ActionInstance {
	origin := def.Origin
	if origin == "" {
		origin = ast.OriginLogical
	}
	a := &ActionInstance{
		triggerBase: triggerBase{name: def.Name, owner: r},
		Definition:  def,
		Origin:      origin,
		MinDelay:    def.MinDelay.ToNanoseconds(),
	}
	r.Actions = append(r.Actions, a)
	return a
}

// AddConnection records a source-to-destination pair in the map.
func (r *ReactorInstance) AddConnection(src, dst *PortInstance, delay tag.TimeValue, physical bool) {
	r.Connections[src] = append(r.Connections[src], Destination{
		Port:     dst,
		Delay:    delay,
		Physical: physical,
	})
}

// Root returns the root of the tree (the main reactor).
func (r *ReactorInstance) Root() *ReactorInstance {
	for r.Parent != nil {
		r = r.Parent
	}
	return r
}

// AllReactors returns this reactor and every descendant, depth first
// in declaration order.
func (r *ReactorInstance) AllReactors() []*ReactorInstance {
	out := []*ReactorInstance{r}
	for _, c := range r.Children {
		out = append(out, c.AllReactors()...)
	}
	return out
}

// AllReactions returns every reaction instance in the subtree, depth
// first, each reactor's reactions in priority order.
func (r *ReactorInstance) AllReactions() []*ReactionInstance {
	var out []*ReactionInstance
	for _, ri := range r.AllReactors() {
		out = append(out, ri.Reactions...)
	}
	return out
}

// AllTriggers returns every trigger instance in the subtree: builtin
// triggers (where created), timers, actions, and ports.
func (r *ReactorInstance) AllTriggers() []TriggerInstance {
	var out []TriggerInstance
	for _, ri := range r.AllReactors() {
		if ri.startup != nil {
			out = append(out, ri.startup)
		}
		if ri.shutdown != nil {
			out = append(out, ri.shutdown)
		}
		for _, t := range ri.Timers {
			out = append(out, t)
		}
		for _, a := range ri.Actions {
			out = append(out, a)
		}
		for _, p := range ri.Inputs {
			out = append(out, p)
		}
		for _, p := range ri.Outputs {
			out = append(out, p)
		}
	}
	return out
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
