package hsm

import "errors"

// candidate is one transition found to be eligible for firing in the
// current dispatch round.
type candidate[C any] struct {
	entry     *transitionEntry[C]
	src       Handle
	srcRegion Handle
	geo       transitionGeometry // meaningful only when entry.dest != NoHandle
}

// matchRow returns the first row of h's transition table for ev.Id whose
// guard passes, or nil if none matches (or h has no rows for ev.Id).
func (m *Machine[C]) matchRow(h Handle, ev Event) *transitionEntry[C] {
	rows, ok := m.node(h).transitions.Get(ev.Id)
	if !ok {
		return nil
	}
	for _, row := range rows {
		if row.guard == nil {
			return row
		}
		passed := row.guard(ev, m.ctx)
		m.spy.Guard(m.node(h).name, m.ctx, ev, row.guardName, passed)
		if passed {
			return row
		}
	}
	return nil
}

// collectAscend walks from 'from' up to and including 'upTo', looking for
// the first node (innermost wins) whose transition table has a matching row
// for ev. On a match it records a candidate and stops ascending further.
func (m *Machine[C]) collectAscend(from, upTo Handle, ev Event, out *[]*candidate[C]) bool {
	node := from
	for {
		if te := m.matchRow(node, ev); te != nil {
			c := &candidate[C]{entry: te, src: node, srcRegion: m.regionOf(node)}
			if te.dest != NoHandle {
				c.geo = m.geometry(node, te.dest)
			}
			*out = append(*out, c)
			return true
		}
		if node == upTo {
			return false
		}
		node = m.node(node).parent
	}
}

// collectForRegion finds the candidate transition(s) triggered by ev within
// region's active configuration. It descends to the deepest active node;
// if that node is Orthogonal, every one of its child regions is tried
// independently (without short-circuiting on the first match, so siblings
// are never starved), falling back to the orthogonal's own table only if no
// region found anything.
func (m *Machine[C]) collectForRegion(region Handle, ev Event, out *[]*candidate[C]) bool {
	leaf := region
	for {
		n := m.node(leaf)
		if n.kind == KindOrthogonal || n.current == NoHandle {
			break
		}
		leaf = n.current
	}
	if m.node(leaf).kind == KindOrthogonal {
		any := false
		for _, r := range m.node(leaf).children {
			if m.collectForRegion(r, ev, out) {
				any = true
			}
		}
		if any {
			return true
		}
		return m.collectAscend(leaf, region, ev, out)
	}
	return m.collectAscend(leaf, region, ev, out)
}

// enterAlong enters the chain of nodes from dst up to (excluding) lca,
// outermost first, then resolves dst itself: a plain default descent for an
// ordinary state, or a history-guided resume if dst is a history
// pseudostate (in which case the pseudostate itself is skipped — it is
// never actually entered — and its owning composite is entered in its
// place).
//
// Every Orthogonal node the chain passes through — whether it is lca
// itself (destructUpTo just emptied its regions, leaving the orthogonal
// itself entered, and they are being rebuilt targeting one specific nested
// state) or an ordinary
// waypoint nested deeper in the chain — must still construct every one of
// its regions, not just the one target lies in; entering an orthogonal
// always enters all its regions, each at its own default unless it is the
// one region on the path to target.
func (m *Machine[C]) enterAlong(dst, lca Handle, ev Event) {
	target := dst
	historyKind := KindLeaf // sentinel: "not a history pseudostate"
	if k := m.node(dst).kind; k == KindShallowHistory || k == KindDeepHistory {
		historyKind = k
		target = m.node(dst).parent
	}

	var chain []Handle
	for n := target; n != lca; n = m.node(n).parent {
		chain = append(chain, n)
	}

	if lca != NoHandle && m.node(lca).kind == KindOrthogonal && len(chain) > 0 {
		m.enterSiblingRegions(lca, chain[len(chain)-1], ev)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		h := chain[i]
		m.enterNode(h, ev)
		if h == target {
			continue
		}
		if m.node(h).kind == KindOrthogonal {
			m.enterSiblingRegions(h, chain[i-1], ev)
		}
	}

	switch historyKind {
	case KindShallowHistory:
		m.descendShallowHistory(target, ev)
	case KindDeepHistory:
		m.descendDeepHistory(target, ev)
	default:
		m.descendInto(target, ev)
	}
}

// enterSiblingRegions default-enters every region child of ortho other than
// onPath, the region that the rest of the chain continues through.
func (m *Machine[C]) enterSiblingRegions(ortho, onPath Handle, ev Event) {
	for _, r := range m.node(ortho).children {
		if r == onPath {
			continue
		}
		m.enterNode(r, ev)
		m.descendInto(r, ev)
	}
}

// isActive reports whether h is still reachable by following .current
// pointers from the synthetic Top region down to h.
func (m *Machine[C]) isActive(h Handle) bool {
	for h != m.top {
		p := m.node(h).parent
		if p == NoHandle {
			return false
		}
		pn := m.node(p)
		if (pn.kind == KindComposite || pn.kind == KindRegion) && pn.current != h {
			return false
		}
		h = p
	}
	return true
}

func (m *Machine[C]) executeTransition(ev Event, c *candidate[C]) {
	te := c.entry
	if te.dest == NoHandle {
		if te.action != nil {
			m.spy.Action(m.node(c.src).name, m.ctx, ev, te.actionName)
			te.action(ev, m.ctx)
		}
		return
	}
	m.destructUpTo(c.geo.src, c.geo.lca, ev)
	if te.action != nil {
		m.spy.Action(m.node(c.src).name, m.ctx, ev, te.actionName)
		te.action(ev, m.ctx)
	}
	m.enterAlong(c.geo.dst, c.geo.lca, ev)
}

// processTransitions executes candidates, then (unless ignoreEvents, used
// by ForceTransitionTo) keeps collecting and executing completion (None)
// events until none remain — the run-to-completion drain.
func (m *Machine[C]) processTransitions(ev Event, candidates []*candidate[C], ignoreEvents bool) {
	for len(candidates) > 0 {
		minLevel := -1
		for _, c := range candidates {
			lvl := m.node(c.srcRegion).level
			if minLevel == -1 || lvl < minLevel {
				minLevel = lvl
			}
		}
		for _, c := range candidates {
			if m.node(c.srcRegion).level != minLevel {
				continue
			}
			// A sibling candidate executed earlier in this same batch may
			// have torn down c.src already (e.g. two join branches of the
			// same orthogonal both completing into the same outer state);
			// such a stale candidate must not fire a second time.
			if !m.isActive(c.src) {
				continue
			}
			if !ignoreEvents {
				m.spy.Event(m.node(c.src).name, m.ctx, ev)
			}
			m.executeTransition(ev, c)
		}
		if ignoreEvents {
			return
		}
		candidates = nil
		m.collectForRegion(m.top, Event{Id: None}, &candidates)
		ev = Event{Id: None}
	}
}

// HandleEvent queues ev and, if no dispatch is already in progress, drains
// the queue: for each event, every active region contributes its innermost
// matching transition, the candidates from the outermost source-region level
// fire, and a completion-event flush follows, before the next queued event
// is considered.
func (m *Machine[C]) HandleEvent(ev Event) {
	if !m.initialized || m.forceInProgress {
		return
	}
	m.fifo.Push(ev)
	if m.eventInProgress {
		return
	}
	m.eventInProgress = true
	defer func() { m.eventInProgress = false }()

	for !m.fifo.Empty() {
		e := m.fifo.Front()
		m.fifo.PopFront()
		var candidates []*candidate[C]
		m.collectForRegion(m.top, e, &candidates)
		if len(candidates) == 0 {
			m.spy.NoTransition(m.ctx, e)
			continue
		}
		m.processTransitions(e, candidates, false)
	}
}

// ForceTransitionTo bypasses normal dispatch and transitions directly from
// the root's position to dst, as if by a single unconditional, unguarded,
// action-less external transition. No completion-event flush follows. This
// is a test/diagnostic affordance, not part of normal event processing.
func (m *Machine[C]) ForceTransitionTo(dst Handle) {
	if !m.initialized || m.forceInProgress {
		return
	}
	m.forceInProgress = true
	defer func() { m.forceInProgress = false }()

	src := m.node(m.top).initial
	geo := m.geometry(src, dst)
	te := &transitionEntry[C]{dest: dst}
	c := &candidate[C]{entry: te, src: src, srcRegion: m.regionOf(geo.src), geo: geo}
	m.processTransitions(Event{Id: None}, []*candidate[C]{c}, true)
}

// InitStatus reports whether the machine is currently initialized.
func (m *Machine[C]) InitStatus() bool { return m.initialized }

// CurrentNodes returns the names of every currently active leaf-most node,
// one per active region (more than one only when inside an orthogonal
// state). Returns nil while uninitialized or mid-dispatch.
func (m *Machine[C]) CurrentNodes() []string {
	if !m.initialized || m.eventInProgress || m.forceInProgress {
		return nil
	}
	var out []string
	var walk func(Handle)
	walk = func(h Handle) {
		n := m.node(h)
		if n.kind == KindOrthogonal {
			for _, r := range n.children {
				walk(m.node(r).current)
			}
			return
		}
		if n.kind == KindComposite && n.current != NoHandle {
			walk(n.current)
			return
		}
		out = append(out, n.name)
	}
	walk(m.node(m.top).current)
	return out
}

func (m *Machine[C]) validateNode(h Handle) error {
	n := m.node(h)
	switch n.kind {
	case KindComposite, KindRegion:
		if n.initial == NoHandle {
			return ErrMissingInitial
		}
	case KindOrthogonal:
		for _, c := range n.children {
			if m.node(c).kind != KindRegion {
				return ErrOrthogonalChildNotRegion
			}
		}
	}
	return nil
}

// Init (re-)initializes the machine: it wraps the built tree in a synthetic
// Top region, validates every node, computes region nesting levels, then
// performs the default entry descent followed by a completion-event flush.
// A non-nil error leaves the machine uninitialized.
func (m *Machine[C]) Init() error {
	if m.initialized {
		m.Uninit()
	}
	if m.root == NoHandle {
		m.spy.Error(m.name, m.ctx, ErrNoRoot)
		return ErrNoRoot
	}
	if m.top == NoHandle {
		top := Handle(len(m.nodes))
		m.nodes = append(m.nodes, newNode[C]("Top", KindRegion, NoHandle))
		m.top = top
		m.node(m.root).parent = top
		m.node(top).children = []Handle{m.root}
	}
	m.node(m.top).initial = m.root

	var errs []error
	for h := range m.nodes {
		if err := m.validateNode(Handle(h)); err != nil {
			m.spy.Error(m.node(Handle(h)).name, m.ctx, err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	for h := range m.nodes {
		if m.node(Handle(h)).kind == KindRegion {
			m.node(Handle(h)).level = m.computeLevel(Handle(h))
		}
	}

	initEvt := Event{Id: None}
	m.enterNode(m.root, initEvt)
	m.descendInto(m.root, initEvt)

	var candidates []*candidate[C]
	m.collectForRegion(m.top, initEvt, &candidates)
	m.processTransitions(initEvt, candidates, false)

	m.initialized = true
	return nil
}

// computeLevel counts the Region ancestors of h (inclusive), from h up to
// the root, with a fail-safe ceiling against a malformed (cyclic) tree.
func (m *Machine[C]) computeLevel(h Handle) int {
	level := 0
	for n := h; n != NoHandle; n = m.node(n).parent {
		if m.node(n).kind == KindRegion {
			level++
		}
		if level > 1_000_000 {
			m.spy.Error(m.node(h).name, m.ctx, ErrDepthCeilingExceeded)
			panic(ErrDepthCeilingExceeded)
		}
	}
	return level
}

// Uninit marks the machine uninitialized. The built tree and its arena are
// retained; a subsequent Init reuses the same synthetic Top region and
// redoes the default-entry descent from scratch.
func (m *Machine[C]) Uninit() {
	m.initialized = false
}
