// Package hsm implements a hierarchical (UML-style) state machine: nested
// composite states, orthogonal (parallel) regions, shallow and deep history,
// and run-to-completion event dispatch with a deferred FIFO for events
// posted while a dispatch is already running.
//
// A Machine[C] owns every node in its tree in a single arena (the nodes
// slice) and refers to them only by Handle, never by pointer, so that the
// tree can be built with value-returning fluent builders without the usual
// "don't copy this after wiring" hazard that pointer-linked trees have.
package hsm

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handle identifies a node in a Machine's arena: it is the node's index,
// starting at 0. Use NoHandle for "absent".
type Handle int32

// NoHandle represents the absence of a node reference.
const NoHandle Handle = -1

// None is the reserved event id for completion ("anonymous") transitions.
// Client event ids should start at 1.
const None int = 0

// NodeKind distinguishes the six kinds of node the tree can contain.
type NodeKind int

const (
	KindLeaf NodeKind = iota
	KindComposite
	KindOrthogonal
	KindRegion
	KindShallowHistory
	KindDeepHistory
)

func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindComposite:
		return "composite"
	case KindOrthogonal:
		return "orthogonal"
	case KindRegion:
		return "region"
	case KindShallowHistory:
		return "shallow-history"
	case KindDeepHistory:
		return "deep-history"
	default:
		return "invalid"
	}
}

// Event is delivered to a Machine's HandleEvent. Id identifies the event
// type; Data is optional auxiliary data made available to guards/actions.
type Event struct {
	Id   int
	Data any
}

type namedAction[C any] struct {
	name   string
	action func(Event, C)
}

type namedGuard[C any] struct {
	name  string
	guard func(Event, C) bool
}

type named interface{ Name() string }

func (na namedAction[C]) Name() string { return na.name }
func (ng namedGuard[C]) Name() string  { return ng.name }

// combineNames joins the non-empty names of items with ';', matching the
// teacher's diagram-label convention for chained entry/exit/guard/action.
func combineNames[N named](items []N) string {
	var names []string
	for _, it := range items {
		if it.Name() != "" {
			names = append(names, it.Name())
		}
	}
	return strings.Join(names, ";")
}

func combineActions[C any](actions []namedAction[C]) (string, func(Event, C)) {
	switch len(actions) {
	case 0:
		return "", nil
	case 1:
		return actions[0].name, actions[0].action
	default:
		return combineNames(actions), func(e Event, c C) {
			for _, a := range actions {
				a.action(e, c)
			}
		}
	}
}

func combineGuards[C any](guards []namedGuard[C]) (string, func(Event, C) bool) {
	if len(guards) == 0 {
		return "", func(Event, C) bool { return true }
	}
	if len(guards) == 1 {
		return guards[0].name, guards[0].guard
	}
	return combineNames(guards), func(e Event, c C) bool {
		for _, g := range guards {
			if !g.guard(e, c) {
				return false
			}
		}
		return true
	}
}

// transitionEntry is one guarded row of a node's transition table for a
// single event id. dest == NoHandle marks an internal transition: the
// guard/action run but no state is exited or entered.
type transitionEntry[C any] struct {
	dest       Handle
	guardName  string
	guard      func(Event, C) bool
	actionName string
	action     func(Event, C)
}

func (t *transitionEntry[C]) String() string {
	var b strings.Builder
	if t.guardName != "" {
		b.WriteByte('[')
		b.WriteString(t.guardName)
		b.WriteByte(']')
	}
	if t.actionName != "" {
		b.WriteString(" / ")
		b.WriteString(t.actionName)
	}
	return b.String()
}

type node[C any] struct {
	name   string
	kind   NodeKind
	parent Handle

	children []Handle
	initial  Handle // composite/region/orthogonal: initial sub-state

	shallowHistory Handle // composite only
	deepHistory    Handle // composite only

	lastActive Handle // composite/region: most recently exited child, for history

	current Handle // composite/region: currently active child
	level   int     // region only: nesting depth, Top == 1

	entryName string
	entry     func(Event, C)
	exitName  string
	exit      func(Event, C)

	transitions *orderedmap.OrderedMap[int, []*transitionEntry[C]]

	validated bool
}

func newNode[C any](name string, kind NodeKind, parent Handle) node[C] {
	return node[C]{
		name:           name,
		kind:           kind,
		parent:         parent,
		initial:        NoHandle,
		shallowHistory: NoHandle,
		deepHistory:    NoHandle,
		lastActive:     NoHandle,
		current:        NoHandle,
		transitions:    orderedmap.New[int, []*transitionEntry[C]](),
	}
}

// Machine is a hierarchical state machine over extended-state type C. The
// zero value is not usable; create one with NewMachine.
type Machine[C any] struct {
	name string
	ctx  C

	nodes []node[C]
	root  Handle // the single node the caller built; wrapped by top during Init
	top   Handle // synthetic Top region, created by Init

	spy  Spy[C]
	fifo Fifo

	initialized     bool
	eventInProgress bool
	forceInProgress bool
}

// NewMachine creates an empty machine bound to ctx. Build the tree with
// Root/Child/Transition, then call Init.
func NewMachine[C any](name string, ctx C) *Machine[C] {
	return &Machine[C]{
		name: name,
		ctx:  ctx,
		root: NoHandle,
		top:  NoHandle,
		spy:  NoopSpy[C]{},
		fifo: NewSliceFifo(),
	}
}

// Option configures a Machine at construction time.
type Option[C any] func(*Machine[C])

// WithSpy installs the observer used for entry/exit/guard/action/error
// notifications. The default is NoopSpy.
func WithSpy[C any](s Spy[C]) Option[C] {
	return func(m *Machine[C]) { m.spy = s }
}

// WithFifo installs the deferred-event queue. The default is an unbounded
// SliceFifo.
func WithFifo[C any](f Fifo) Option[C] {
	return func(m *Machine[C]) { m.fifo = f }
}

// Apply applies options to the machine. Typically called right after
// NewMachine.
func (m *Machine[C]) Apply(opts ...Option[C]) {
	for _, o := range opts {
		o(m)
	}
}

func (m *Machine[C]) newNode(parent Handle, kind NodeKind, name string) Handle {
	h := Handle(len(m.nodes))
	m.nodes = append(m.nodes, newNode[C](name, kind, parent))
	if parent != NoHandle {
		p := &m.nodes[parent]
		p.children = append(p.children, h)
	}
	return h
}

func (m *Machine[C]) node(h Handle) *node[C] { return &m.nodes[h] }

// Root creates the single top-level node of the tree (kind must be one of
// KindLeaf, KindComposite or KindOrthogonal). Root may only be called once.
func (m *Machine[C]) Root(kind NodeKind, name string) Handle {
	if m.root != NoHandle {
		panic("hsm: Root already set")
	}
	if kind == KindRegion || kind == KindShallowHistory || kind == KindDeepHistory {
		panic("hsm: root node can not be a region or history pseudostate")
	}
	h := m.newNode(NoHandle, kind, name)
	m.root = h
	return h
}

// Child creates a sub-state of parent. kind must be KindLeaf, KindComposite
// or KindOrthogonal; Child panics for KindRegion and the history kinds, which
// are created with Region, ShallowHistory and DeepHistory. The parent's kind
// is not checked here; Init reports an Orthogonal with a non-Region child.
func (m *Machine[C]) Child(parent Handle, kind NodeKind, name string) Handle {
	switch kind {
	case KindRegion, KindShallowHistory, KindDeepHistory:
		panic("hsm: use Region/ShallowHistory/DeepHistory to create this kind of node")
	}
	return m.newNode(parent, kind, name)
}

// Region creates a region child of an Orthogonal node.
func (m *Machine[C]) Region(parent Handle, name string) Handle {
	if m.node(parent).kind != KindOrthogonal {
		panic("hsm: Region's parent must be Orthogonal")
	}
	return m.newNode(parent, KindRegion, name)
}

// Initial marks child as the initial sub-state of its parent.
func (m *Machine[C]) Initial(child Handle) {
	p := m.node(child).parent
	if p == NoHandle {
		panic("hsm: root node can not be marked initial")
	}
	pn := m.node(p)
	if pn.initial != NoHandle && pn.initial != child {
		panic(fmt.Sprintf("hsm: %s and %s can not both be marked initial", m.node(pn.initial).name, m.node(child).name))
	}
	pn.initial = child
}

// ShallowHistory returns (creating on first use) the shallow-history
// pseudostate of composite. Use its Handle as a transition destination.
func (m *Machine[C]) ShallowHistory(composite Handle) Handle {
	n := m.node(composite)
	if n.kind != KindComposite {
		panic("hsm: shallow history is only valid on a composite state")
	}
	if n.shallowHistory == NoHandle {
		h := Handle(len(m.nodes))
		m.nodes = append(m.nodes, newNode[C](n.name+".history*", KindShallowHistory, composite))
		m.node(composite).shallowHistory = h
		return h
	}
	return n.shallowHistory
}

// DeepHistory returns (creating on first use) the deep-history pseudostate
// of composite.
func (m *Machine[C]) DeepHistory(composite Handle) Handle {
	n := m.node(composite)
	if n.kind != KindComposite {
		panic("hsm: deep history is only valid on a composite state")
	}
	if n.deepHistory == NoHandle {
		h := Handle(len(m.nodes))
		m.nodes = append(m.nodes, newNode[C](n.name+".history", KindDeepHistory, composite))
		m.node(composite).deepHistory = h
		return h
	}
	return n.deepHistory
}

// Entry appends an entry action for h, run (in declaration order, after any
// previously assigned ones) whenever h is entered.
func (m *Machine[C]) Entry(h Handle, name string, f func(Event, C)) {
	n := m.node(h)
	var merged []namedAction[C]
	if n.entry != nil {
		merged = append(merged, namedAction[C]{name: n.entryName, action: n.entry})
	}
	merged = append(merged, namedAction[C]{name: name, action: f})
	n.entryName, n.entry = combineActions(merged)
}

// Exit appends an exit action for h.
func (m *Machine[C]) Exit(h Handle, name string, f func(Event, C)) {
	n := m.node(h)
	var merged []namedAction[C]
	if n.exit != nil {
		merged = append(merged, namedAction[C]{name: n.exitName, action: n.exit})
	}
	merged = append(merged, namedAction[C]{name: name, action: f})
	n.exitName, n.exit = combineActions(merged)
}

// Name returns the node's name, or "nil" for NoHandle.
func (m *Machine[C]) Name(h Handle) string {
	if h == NoHandle {
		return "nil"
	}
	return m.node(h).name
}

// TransitionBuilder provides a fluent API for adding one guarded row to a
// node's transition table.
type TransitionBuilder[C any] struct {
	m       *Machine[C]
	src     Handle
	eventID int
	dest    Handle
	guards  []namedGuard[C]
	actions []namedAction[C]
	built   bool
}

// Transition starts building a transition from src, triggered by eventID,
// into dest. Pass NoHandle for dest, or call Internal, for an internal
// transition.
func (m *Machine[C]) Transition(src Handle, eventID int, dest Handle) *TransitionBuilder[C] {
	if dest != NoHandle && m.node(dest).kind == KindRegion {
		panic(ErrDestinationIsRegion)
	}
	return &TransitionBuilder[C]{m: m, src: src, eventID: eventID, dest: dest}
}

// Guard adds a guard condition; all guards added to the same builder must
// pass for the transition to be taken. Name is used only for diagnostics
// and diagram/SCXML output.
func (tb *TransitionBuilder[C]) Guard(name string, f func(Event, C) bool) *TransitionBuilder[C] {
	tb.guards = append(tb.guards, namedGuard[C]{name: name, guard: f})
	return tb
}

// Action adds an action run when the transition fires, after exit actions
// and before entry actions (or, for an internal transition, with no exit or
// entry at all). May be called multiple times; actions run in the order
// added.
func (tb *TransitionBuilder[C]) Action(name string, f func(Event, C)) *TransitionBuilder[C] {
	tb.actions = append(tb.actions, namedAction[C]{name: name, action: f})
	return tb
}

// Internal marks the transition internal: guard/action run, but no state is
// exited or entered, even if dest was set to the same state as src.
func (tb *TransitionBuilder[C]) Internal() *TransitionBuilder[C] {
	tb.dest = NoHandle
	return tb
}

// Build adds the row to src's transition table for eventID.
func (tb *TransitionBuilder[C]) Build() {
	if tb.built {
		panic("hsm: transition builder used twice")
	}
	tb.built = true
	te := &transitionEntry[C]{dest: tb.dest}
	te.guardName, te.guard = combineGuards(tb.guards)
	te.actionName, te.action = combineActions(tb.actions)
	n := tb.m.node(tb.src)
	rows, _ := n.transitions.Get(tb.eventID)
	rows = append(rows, te)
	n.transitions.Set(tb.eventID, rows)
}

// AddRow is a convenience equivalent to Transition(src, eventID, dest).Build().
func (m *Machine[C]) AddRow(src Handle, eventID int, dest Handle) {
	m.Transition(src, eventID, dest).Build()
}
