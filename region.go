package hsm

// enterNode runs h's entry action (preceded by the spy notification) and
// records h as its parent's active child, so that a later exit can find its
// way back down to h.
func (m *Machine[C]) enterNode(h Handle, event Event) {
	n := m.node(h)
	if n.parent != NoHandle {
		pn := m.node(n.parent)
		if pn.kind == KindComposite || pn.kind == KindRegion {
			pn.current = h
		}
	}
	// A Region's own entry/exit is a no-op: regions are bookkeeping, not
	// states a Spy should see entered or exited.
	if n.kind == KindRegion {
		return
	}
	m.spy.OnEntry(n.name, m.ctx, event)
	if n.entry != nil {
		n.entry(event, m.ctx)
	}
}

func (m *Machine[C]) exitNode(h Handle, event Event) {
	n := m.node(h)
	if n.kind == KindRegion {
		return
	}
	if n.exit != nil {
		n.exit(event, m.ctx)
	}
	m.spy.OnExit(n.name, m.ctx, event)
}

// descendInto enters the default configuration beneath an already-entered
// node h: its initial child for a Composite or Region, every region (each
// entered at its own initial child) for an Orthogonal, nothing for a Leaf.
func (m *Machine[C]) descendInto(h Handle, event Event) {
	n := m.node(h)
	switch n.kind {
	case KindComposite, KindRegion:
		m.enterNode(n.initial, event)
		m.descendInto(n.initial, event)
	case KindOrthogonal:
		for _, r := range n.children {
			m.enterNode(r, event)
			m.descendInto(r, event)
		}
	}
}

// descendShallowHistory resumes h's remembered child (or, on first visit,
// its default initial child) and then continues with an ordinary default
// descent beneath that one remembered level.
func (m *Machine[C]) descendShallowHistory(h Handle, event Event) {
	n := m.node(h)
	target := n.initial
	if n.lastActive != NoHandle {
		target = n.lastActive
	}
	m.enterNode(target, event)
	m.descendInto(target, event)
}

// descendDeepHistory resumes h's remembered child and recursively resumes
// history at every level beneath it, recursing into every region of any
// Orthogonal node it passes through.
func (m *Machine[C]) descendDeepHistory(h Handle, event Event) {
	n := m.node(h)
	target := n.initial
	if n.lastActive != NoHandle {
		target = n.lastActive
	}
	m.enterNode(target, event)
	m.descendDeepHistoryInto(target, event)
}

func (m *Machine[C]) descendDeepHistoryInto(h Handle, event Event) {
	n := m.node(h)
	switch n.kind {
	case KindComposite, KindRegion:
		m.descendDeepHistory(h, event)
	case KindOrthogonal:
		for _, r := range n.children {
			m.enterNode(r, event)
			m.descendDeepHistoryInto(r, event)
		}
	}
}

// exitActiveSubtree tears down the entire currently-active configuration
// rooted at h, deepest node first, recording each Composite/Region's
// lastActive child for future history resumption as it goes, then exits h
// itself. It recurses into every region of an Orthogonal node without
// short-circuiting, so that siblings unrelated to the transition in
// progress are still torn down correctly.
func (m *Machine[C]) exitActiveSubtree(h Handle, event Event) {
	m.exitActiveChildren(h, event)
	m.exitNode(h, event)
}

// exitActiveChildren tears down h's active sub-configuration — its current
// child for a Composite/Region, every region for an Orthogonal — without
// exiting h itself.
func (m *Machine[C]) exitActiveChildren(h Handle, event Event) {
	n := m.node(h)
	switch n.kind {
	case KindComposite, KindRegion:
		if n.current != NoHandle {
			child := n.current
			m.exitActiveSubtree(child, event)
			n.lastActive = child
			n.current = NoHandle
		}
	case KindOrthogonal:
		for _, r := range n.children {
			m.exitActiveSubtree(r, event)
		}
	}
}

// destructUpTo tears down the active configuration from src up to (but not
// including) lca, and returns the node whose parent is lca — the node that
// was actually exited at the top of the torn-down subtree. When src == lca
// (the transition's source is itself the common ancestor — e.g.
// ForceTransitionTo entering fresh from the tree's root), there is no
// strict child of lca to find; lca's own active children are torn down
// directly, and lca itself stays put, never exited.
func (m *Machine[C]) destructUpTo(src, lca Handle, event Event) Handle {
	if src == lca {
		m.exitActiveChildren(lca, event)
		return lca
	}
	cur := src
	for m.node(cur).parent != lca {
		cur = m.node(cur).parent
	}
	m.exitActiveSubtree(cur, event)
	if lca != NoHandle {
		ln := m.node(lca)
		if ln.kind == KindComposite || ln.kind == KindRegion {
			ln.lastActive = cur
		}
	}
	return cur
}
