package graph

import (
	"fmt"
	"io"
	"strings"
)

// WriteDot renders the event graph in Graphviz .dot form: one node per
// event labeled with its abbreviated ID and kind, one edge per causal
// link, and one cluster per named branch grouping its head events.
// Output is deterministic, so it is safe to diff or snapshot.
func (g *Graph) WriteDot(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph {"); err != nil {
		return err
	}

	for _, id := range g.IDs() {
		ev := g.events[id]
		label := fmt.Sprintf("%s\\n%s", abbrev(string(id)), dotEscape(ev.Kind))
		if _, err := fmt.Fprintf(w, "  %q [label=\"%s\"];\n", id, label); err != nil {
			return err
		}
	}

	for _, id := range g.IDs() {
		for _, pred := range g.events[id].Predecessors {
			if _, err := fmt.Fprintf(w, "  %q -> %q;\n", id, pred); err != nil {
				return err
			}
		}
	}

	for _, name := range g.Branches() {
		head := g.branches[name]
		if _, err := fmt.Fprintf(w, "  subgraph \"cluster_%s\" {\n", dotEscape(name)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "    label=%q;\n", name); err != nil {
			return err
		}
		for _, id := range head {
			if _, err := fmt.Fprintf(w, "    %q;\n", id); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, "  }"); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

func abbrev(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func dotEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
