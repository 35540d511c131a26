package hsm

// depth returns h's distance from the tree root (Top has depth 0), walking
// parent pointers.
func (m *Machine[C]) depth(h Handle) int {
	d := 0
	for p := m.node(h).parent; p != NoHandle; p = m.node(p).parent {
		d++
	}
	return d
}

// findLCA returns the lowest common ancestor of src and dst. As a special
// case, when src == dst the "lowest common ancestor" is defined as the
// parent of src, so that a self-transition still exits and re-enters the
// state itself.
func (m *Machine[C]) findLCA(src, dst Handle) Handle {
	if src == dst {
		return m.node(src).parent
	}
	ds, dd := m.depth(src), m.depth(dst)
	for ds > dd {
		src = m.node(src).parent
		ds--
	}
	for dd > ds {
		dst = m.node(dst).parent
		dd--
	}
	for src != dst {
		src = m.node(src).parent
		dst = m.node(dst).parent
	}
	return src
}

// regionOf returns the nearest Region ancestor of h, inclusive of h itself.
func (m *Machine[C]) regionOf(h Handle) Handle {
	for h != NoHandle {
		if m.node(h).kind == KindRegion {
			return h
		}
		h = m.node(h).parent
	}
	return NoHandle
}

// transitionGeometry holds the handles processTransitions needs to execute
// one transition: the effective source and destination (after orthogonal
// normalization), their LCA, and the regions that own the source and the
// LCA.
type transitionGeometry struct {
	src, dst     Handle
	lca          Handle
	srcRegion    Handle
	lcaRegion    Handle
}

// geometry computes the transitionGeometry for a transition firing from src
// to dst. If the raw LCA would be an Orthogonal node that src is not itself
// — i.e. src lies inside one of its regions and dst lies in another region
// or is the orthogonal itself — the transition is normalized to exit/enter
// the whole orthogonal: src and dst become the orthogonal node itself, and
// the LCA becomes the orthogonal's parent. This mirrors the fact that a
// transition crossing region boundaries can not partially tear down a
// single region of an orthogonal state.
//
// When src *is* the orthogonal itself (lca == src), there is nothing to
// collapse: destructUpTo empties its regions without exiting it, and
// collapsing here would discard a dst naming a specific node nested inside
// one of its regions.
func (m *Machine[C]) geometry(src, dst Handle) transitionGeometry {
	lca := m.findLCA(src, dst)
	if lca != NoHandle && m.node(lca).kind == KindOrthogonal && lca != src {
		ortho := lca
		src = ortho
		dst = ortho
		lca = m.node(ortho).parent
	}
	return transitionGeometry{
		src:       src,
		dst:       dst,
		lca:       lca,
		srcRegion: m.regionOf(src),
		lcaRegion: m.regionOf(lca),
	}
}
