package ir

// use records one operand slot consuming a value.
type use struct {
	node  *Node
	index int
}

// Value is an SSA-style typed value: either the result of a node or a block
// parameter. Uses are tracked so that node replacement can re-link every
// consumer in one step.
type Value struct {
	typ   Type
	def   *Node  // nil for block parameters
	owner *Block // non-nil for block parameters
	index int    // result index, or parameter index
	uses  []use
}

// Type returns the value's type.
func (v *Value) Type() Type { return v.typ }

// SetType retags the value's type. Used by the type conversion passes;
// representation changes are the caller's responsibility to bridge.
func (v *Value) SetType(t Type) { v.typ = t }

// Def returns the defining node, or nil for a block parameter.
func (v *Value) Def() *Node { return v.def }

// IsBlockParam reports whether the value is a block parameter.
func (v *Value) IsBlockParam() bool { return v.def == nil }

// Index returns the result index (or parameter index) of the value.
func (v *Value) Index() int { return v.index }

// NumUses returns how many operand slots currently consume the value.
func (v *Value) NumUses() int { return len(v.uses) }

func (v *Value) addUse(n *Node, index int) {
	v.uses = append(v.uses, use{node: n, index: index})
}

func (v *Value) removeUse(n *Node, index int) {
	for i, u := range v.uses {
		if u.node == n && u.index == index {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}

// ReplaceAllUses re-links every operand slot consuming v to consume with
// instead.
func (v *Value) ReplaceAllUses(with *Value) {
	v.ReplaceAllUsesExcept(with, nil)
}

// ReplaceAllUsesExcept re-links every use of v to with, skipping operand
// slots owned by except. Used when inserting a bridge that must keep
// consuming the original value.
func (v *Value) ReplaceAllUsesExcept(with *Value, except *Node) {
	if v == with {
		return
	}
	remaining := v.uses[:0]
	for _, u := range v.uses {
		if u.node == except {
			remaining = append(remaining, u)
			continue
		}
		u.node.operands[u.index] = with
		with.uses = append(with.uses, u)
	}
	v.uses = remaining
}

// NodeID is a stable handle into a function's node arena. It stays valid
// until the node is removed; removed slots are never reused.
type NodeID int

// Node is one operator invocation: an op name, an opset version (meaningful
// for source-dialect nodes), ordered operands and results, an ordered
// attribute list and, for terminators, successor blocks.
type Node struct {
	id       NodeID
	fn       *Func
	block    *Block // nil while detached (under construction)
	op       string
	opset    int
	operands []*Value
	results  []*Value
	attrs    []Attr
	succs    []*Block
}

// ID returns the node's stable arena handle.
func (n *Node) ID() NodeID { return n.id }

// Op returns the operator name.
func (n *Node) Op() string { return n.op }

// Opset returns the opset version the node was authored against.
func (n *Node) Opset() int { return n.opset }

// Block returns the block the node is inserted in, or nil while detached.
func (n *Node) Block() *Block { return n.block }

// Func returns the function owning the node's arena slot.
func (n *Node) Func() *Func { return n.fn }

// NumOperands returns the operand count.
func (n *Node) NumOperands() int { return len(n.operands) }

// Operand returns the i-th operand value.
func (n *Node) Operand(i int) *Value { return n.operands[i] }

// Operands returns a copy of the operand list.
func (n *Node) Operands() []*Value { return append([]*Value{}, n.operands...) }

// SetOperand re-points the i-th operand slot at v, keeping use lists
// consistent.
func (n *Node) SetOperand(i int, v *Value) {
	if n.block != nil {
		n.operands[i].removeUse(n, i)
		v.addUse(n, i)
	}
	n.operands[i] = v
}

// NumResults returns the result count.
func (n *Node) NumResults() int { return len(n.results) }

// Result returns the i-th result value.
func (n *Node) Result(i int) *Value { return n.results[i] }

// Results returns a copy of the result list.
func (n *Node) Results() []*Value { return append([]*Value{}, n.results...) }

// Attrs returns a copy of the attribute list.
func (n *Node) Attrs() []Attr { return append([]Attr{}, n.attrs...) }

// Attr looks up an attribute by name.
func (n *Node) Attr(name string) (Attr, bool) {
	for _, a := range n.attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// WithOpset sets the opset version; returns n for chaining during
// construction.
func (n *Node) WithOpset(v int) *Node {
	n.opset = v
	return n
}

// WithAttrs appends attributes; returns n for chaining during construction.
func (n *Node) WithAttrs(attrs ...Attr) *Node {
	n.attrs = append(n.attrs, attrs...)
	return n
}

// WithSuccessors sets the successor blocks of a terminator; returns n for
// chaining during construction.
func (n *Node) WithSuccessors(blocks ...*Block) *Node {
	n.succs = append([]*Block{}, blocks...)
	return n
}

// Successors returns the successor blocks of a terminator (nil otherwise).
func (n *Node) Successors() []*Block { return append([]*Block{}, n.succs...) }

// IsTerminator reports whether the node ends its block: it is one of the
// control-flow ops or carries successors.
func (n *Node) IsTerminator() bool {
	return len(n.succs) > 0 || n.op == OpReturn || n.op == OpBr || n.op == OpCondBr
}

// attach registers the node's operand uses. Called when the node is inserted
// into a block.
func (n *Node) attach(b *Block) {
	n.block = b
	for i, o := range n.operands {
		o.addUse(n, i)
	}
}

// detach unregisters the node's operand uses.
func (n *Node) detach() {
	for i, o := range n.operands {
		o.removeUse(n, i)
	}
	n.block = nil
}
