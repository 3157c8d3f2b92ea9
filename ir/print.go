package ir

import (
	"fmt"
	"strings"
)

// String renders the module in a stable textual form, one function after
// another.
func (m *Module) String() string {
	parts := make([]string, len(m.funcs))
	for i, f := range m.funcs {
		parts[i] = f.String()
	}
	return strings.Join(parts, "\n")
}

// String renders the function. The output is deterministic: values are
// numbered in program order (entry parameters as %arg0..., everything else
// as %0...), so it is suitable for golden tests.
func (f *Func) String() string {
	names := make(map[*Value]string)
	for i, p := range f.Entry().params {
		names[p] = fmt.Sprintf("%%arg%d", i)
	}
	next := 0
	name := func(v *Value) string {
		s, ok := names[v]
		if !ok {
			s = fmt.Sprintf("%%%d", next)
			next++
			names[v] = s
		}
		return s
	}
	for bi, b := range f.blocks {
		if bi > 0 {
			for _, p := range b.params {
				name(p)
			}
		}
		for _, n := range b.nodes {
			for _, r := range n.results {
				name(r)
			}
		}
	}
	blockLabel := make(map[*Block]string)
	for i, b := range f.blocks {
		blockLabel[b] = fmt.Sprintf("^bb%d", i)
	}

	var sb strings.Builder
	sb.WriteString("func @")
	sb.WriteString(f.name)
	sb.WriteString("(")
	for i, p := range f.Entry().params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", names[p], p.Type())
	}
	sb.WriteString(") -> (")
	for i, r := range f.results {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	sb.WriteString(")")
	if len(f.attrs) > 0 {
		sb.WriteString(" attributes ")
		sb.WriteString(attrsString(f.attrs))
	}
	sb.WriteString(" {\n")
	for bi, b := range f.blocks {
		if bi > 0 {
			sb.WriteString(blockLabel[b])
			sb.WriteString("(")
			for i, p := range b.params {
				if i > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "%s: %s", names[p], p.Type())
			}
			sb.WriteString("):\n")
		}
		for _, n := range b.nodes {
			sb.WriteString("  ")
			sb.WriteString(nodeString(n, names, blockLabel))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func nodeString(n *Node, names map[*Value]string, blockLabel map[*Block]string) string {
	var sb strings.Builder
	if len(n.results) > 0 {
		for i, r := range n.results {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(names[r])
		}
		sb.WriteString(" = ")
	}
	sb.WriteString(n.op)
	sb.WriteString("(")
	for i, o := range n.operands {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(names[o])
	}
	sb.WriteString(")")
	if len(n.succs) > 0 {
		sb.WriteString("[")
		for i, s := range n.succs {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(blockLabel[s])
		}
		sb.WriteString("]")
	}
	if len(n.attrs) > 0 {
		sb.WriteString(" ")
		sb.WriteString(attrsString(n.attrs))
	}
	if len(n.results) == 1 {
		fmt.Fprintf(&sb, " : %s", n.results[0].Type())
	} else if len(n.results) > 1 {
		sb.WriteString(" : (")
		for i, r := range n.results {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(r.Type().String())
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func attrsString(attrs []Attr) string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, a := range attrs {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s = %s", a.Name, a.valueString())
	}
	sb.WriteString("}")
	return sb.String()
}
