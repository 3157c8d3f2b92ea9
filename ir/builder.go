package ir

// Builder accumulates detached nodes for a replacement subgraph. Lowering
// rules are pure: they emit through a Builder and return the resulting
// Replacement; nothing touches the graph until the driver commits it with
// Block.ReplaceNode.
type Builder struct {
	fn    *Func
	nodes []*Node
}

// NewBuilder returns a builder allocating nodes in fn's arena.
func NewBuilder(fn *Func) *Builder {
	return &Builder{fn: fn}
}

// Emit allocates a detached node and records it in emission order.
func (b *Builder) Emit(op string, resultTypes []Type, operands ...*Value) *Node {
	n := b.fn.NewNode(op, resultTypes, operands...)
	b.nodes = append(b.nodes, n)
	return n
}

// Emit1 is Emit for the common single-result case; it returns the result
// value directly.
func (b *Builder) Emit1(op string, resultType Type, operands ...*Value) *Value {
	return b.Emit(op, []Type{resultType}, operands...).Result(0)
}

// Nodes returns the nodes emitted so far, in order.
func (b *Builder) Nodes() []*Node { return append([]*Node{}, b.nodes...) }

// Replacement packages the emitted nodes with the result mapping for the
// node being replaced.
func (b *Builder) Replacement(results ...*Value) *Replacement {
	return &Replacement{
		Nodes:   append([]*Node{}, b.nodes...),
		Results: append([]*Value{}, results...),
	}
}
