// Package visualization renders model dependency graphs in various output
// formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/sdrun/internal/model"
	"github.com/nvandessel/sdrun/internal/sdengine"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("invalid graph format %q (valid: dot, json)", s)
	}
}

// nodeShapes maps equation types to DOT shapes.
var nodeShapes = map[model.EquationType]string{
	model.TypeStock:     "box",
	model.TypeFlow:      "doublecircle",
	model.TypeConverter: "ellipse",
	model.TypeConstant:  "plaintext",
	model.TypeLookup:    "note",
}

// nodeColors maps equation types to DOT fill colors.
var nodeColors = map[model.EquationType]string{
	model.TypeStock:     "steelblue",
	model.TypeFlow:      "mediumseagreen",
	model.TypeConverter: "goldenrod",
	model.TypeConstant:  "white",
	model.TypeLookup:    "lightgray",
}

// edgeStyles maps dependency kinds to DOT styles.
var edgeStyles = map[string]string{
	sdengine.DependsReads:   "solid",
	sdengine.DependsInitial: "dotted",
	sdengine.DependsLookup:  "dashed",
	sdengine.DependsInflow:  "bold",
	sdengine.DependsOutflow: "bold",
}

// Node is one equation of the graph.
type Node struct {
	ID    string             `json:"id"`
	Type  model.EquationType `json:"type"`
	Label string             `json:"label"`
}

// Graph is a model's equations and the dependencies between them.
type Graph struct {
	Name  string                `json:"name"`
	Nodes []Node                `json:"nodes"`
	Edges []sdengine.Dependency `json:"edges"`
}

// Build collects the graph of m. Duplicate edges are dropped.
func Build(m *model.Model) (*Graph, error) {
	deps, err := sdengine.Dependencies(m)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", m.Name, err)
	}

	g := &Graph{Name: m.Name, Nodes: []Node{}, Edges: []sdengine.Dependency{}}
	for _, name := range m.Names() {
		eq, _ := m.Equation(name)
		g.Nodes = append(g.Nodes, Node{ID: name, Type: eq.Type, Label: label(name, eq)})
	}

	seen := make(map[sdengine.Dependency]bool) // dedup from|to|kind
	for _, d := range deps {
		if seen[d] {
			continue
		}
		seen[d] = true
		g.Edges = append(g.Edges, d)
	}
	return g, nil
}

// RenderDOT produces a Graphviz DOT representation of g.
func RenderDOT(g *Graph) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", g.Name)
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, n := range g.Nodes {
		shape := nodeShapes[n.Type]
		if shape == "" {
			shape = "ellipse"
		}
		color := nodeColors[n.Type]
		if color == "" {
			color = "lightgray"
		}
		fmt.Fprintf(&b, "  %q [label=%q, shape=%s, fillcolor=%q, tooltip=%q];\n",
			n.ID, n.Label, shape, color, string(n.Type))
	}
	b.WriteString("\n")

	for _, e := range g.Edges {
		style := edgeStyles[e.Kind]
		if style == "" {
			style = "solid"
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q, style=%s];\n", e.From, e.To, e.Kind, style)
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready graph with nodes and edges arrays.
func RenderJSON(g *Graph) map[string]interface{} {
	return map[string]interface{}{
		"name":       g.Name,
		"nodes":      g.Nodes,
		"edges":      g.Edges,
		"node_count": len(g.Nodes),
		"edge_count": len(g.Edges),
	}
}

// label is the node text: the name plus the constant value or a shortened
// expression.
func label(name string, eq model.Equation) string {
	switch eq.Type {
	case model.TypeConstant:
		return fmt.Sprintf("%s = %g", name, eq.Value)
	case model.TypeConverter, model.TypeFlow:
		return name + "\n" + truncate(eq.Expr, 40)
	case model.TypeStock:
		return name + "\n(" + truncate(eq.Initial, 30) + ")"
	default:
		return name
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
