package hsm

import (
	"fmt"
	"io"
	"strings"
)

// GraphViz writes a best-effort DOT representation of the tree: one node
// per state, a dashed edge to each composite/region's initial child, and a
// labeled edge per transition row. It is a diagnostic dump, not a committed
// wire format — like the original engine this is ported from, which treats
// graph/SCXML export as a thin, optional collaborator rather than a core
// concern. Returns nil without writing anything while uninitialized or
// mid-dispatch, matching CurrentNodes' same guard.
func (m *Machine[C]) GraphViz(w io.Writer) error {
	if !m.initialized || m.eventInProgress || m.forceInProgress {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", m.name)
	for h := range m.nodes {
		hh := Handle(h)
		if hh == m.top {
			continue
		}
		n := m.node(hh)
		shape := "rectangle"
		if n.kind == KindShallowHistory || n.kind == KindDeepHistory {
			shape = "circle"
		}
		fmt.Fprintf(&b, "  %q [shape=%s];\n", n.name, shape)
		if n.initial != NoHandle {
			fmt.Fprintf(&b, "  %q -> %q [style=dashed];\n", n.name, m.node(n.initial).name)
		}
		for pair := n.transitions.Oldest(); pair != nil; pair = pair.Next() {
			for _, te := range pair.Value {
				dest := "[self]"
				if te.dest != NoHandle {
					dest = m.node(te.dest).name
				}
				fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", n.name, dest, fmt.Sprintf("%d %s", pair.Key, te.String()))
			}
		}
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// SCXML writes a best-effort SCXML representation of the tree, rooted at
// the built root (the synthetic Top region is not emitted). When
// includeTransitions is false, only the state hierarchy is written — no
// <transition> elements — which is enough to visualize the tree's shape
// without exposing guard/action names.
func (m *Machine[C]) SCXML(w io.Writer, includeTransitions bool) error {
	if !m.initialized || m.eventInProgress || m.forceInProgress {
		return nil
	}
	var b strings.Builder
	b.WriteString(`<scxml xmlns="http://www.w3.org/2005/07/scxml" version="1.0">` + "\n")
	m.writeSCXMLNode(&b, m.root, includeTransitions, 1)
	b.WriteString("</scxml>\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func (m *Machine[C]) writeSCXMLNode(b *strings.Builder, h Handle, includeTransitions bool, indent int) {
	n := m.node(h)
	pad := strings.Repeat("  ", indent)
	switch n.kind {
	case KindOrthogonal:
		fmt.Fprintf(b, "%s<parallel id=%q>\n", pad, n.name)
		for _, c := range n.children {
			m.writeSCXMLNode(b, c, includeTransitions, indent+1)
		}
		fmt.Fprintf(b, "%s</parallel>\n", pad)
	case KindRegion:
		// Regions are transparent bookkeeping; SCXML has no equivalent
		// node, so their children are emitted directly under the parallel.
		for _, c := range n.children {
			m.writeSCXMLNode(b, c, includeTransitions, indent)
		}
	case KindLeaf:
		if !includeTransitions {
			fmt.Fprintf(b, "%s<state id=%q/>\n", pad, n.name)
			return
		}
		fmt.Fprintf(b, "%s<state id=%q>\n", pad, n.name)
		m.writeSCXMLTransitions(b, h, indent+1)
		fmt.Fprintf(b, "%s</state>\n", pad)
	case KindComposite:
		fmt.Fprintf(b, "%s<state id=%q>\n", pad, n.name)
		if includeTransitions && n.initial != NoHandle {
			fmt.Fprintf(b, "%s  <initial><transition target=%q/></initial>\n", pad, m.node(n.initial).name)
		}
		for _, c := range n.children {
			m.writeSCXMLNode(b, c, includeTransitions, indent+1)
		}
		if n.shallowHistory != NoHandle {
			fmt.Fprintf(b, "%s  <history id=%q type=\"shallow\"/>\n", pad, n.name+".history*")
		}
		if n.deepHistory != NoHandle {
			fmt.Fprintf(b, "%s  <history id=%q type=\"deep\"/>\n", pad, n.name+".history")
		}
		if includeTransitions {
			m.writeSCXMLTransitions(b, h, indent+1)
		}
		fmt.Fprintf(b, "%s</state>\n", pad)
	}
}

func (m *Machine[C]) writeSCXMLTransitions(b *strings.Builder, h Handle, indent int) {
	pad := strings.Repeat("  ", indent)
	n := m.node(h)
	for pair := n.transitions.Oldest(); pair != nil; pair = pair.Next() {
		for _, te := range pair.Value {
			fmt.Fprintf(b, "%s<transition event=\"%d\"", pad, pair.Key)
			if te.guardName != "" {
				fmt.Fprintf(b, " cond=%q", te.guardName)
			}
			if te.dest != NoHandle {
				fmt.Fprintf(b, " target=%q", m.scxmlTargetName(te.dest))
			} else {
				b.WriteString(` type="internal"`)
			}
			b.WriteString("/>\n")
		}
	}
}

func (m *Machine[C]) scxmlTargetName(h Handle) string {
	n := m.node(h)
	switch n.kind {
	case KindShallowHistory:
		return m.node(n.parent).name + ".history*"
	case KindDeepHistory:
		return m.node(n.parent).name + ".history"
	default:
		return n.name
	}
}
