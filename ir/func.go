package ir

import (
	"slices"

	"github.com/pkg/errors"
)

// Control-flow op names. These are the only ops the graph itself needs to
// understand; everything else is an opaque operator to this package.
const (
	OpReturn = "core.return"
	OpBr     = "core.br"
	OpCondBr = "core.cond_br"
	OpCall   = "core.call"
)

// Module is the root container: a list of functions.
type Module struct {
	funcs []*Func
}

// NewModule returns an empty module.
func NewModule() *Module { return &Module{} }

// AddFunc creates a function with the given name and declared result types
// and adds it to the module. The entry block is created empty; add its
// parameters with Block.AddParam.
func (m *Module) AddFunc(name string, results ...Type) *Func {
	f := NewFunc(name, results...)
	m.funcs = append(m.funcs, f)
	return f
}

// Funcs returns the module's functions in declaration order.
func (m *Module) Funcs() []*Func { return append([]*Func{}, m.funcs...) }

// Func looks a function up by name.
func (m *Module) Func(name string) *Func {
	for _, f := range m.funcs {
		if f.name == name {
			return f
		}
	}
	return nil
}

// Func is a function: an entry block plus any number of successor blocks,
// declared result types, and function attributes. All nodes of the function
// live in a per-function arena addressed by NodeID.
type Func struct {
	name    string
	attrs   []Attr
	blocks  []*Block
	results []Type
	arena   []*Node
}

// NewFunc returns a standalone function with an empty entry block.
func NewFunc(name string, results ...Type) *Func {
	f := &Func{name: name, results: append([]Type{}, results...)}
	f.NewBlock()
	return f
}

// Name returns the function name.
func (f *Func) Name() string { return f.name }

// Entry returns the entry block.
func (f *Func) Entry() *Block { return f.blocks[0] }

// Blocks returns the function's blocks; the entry block is first.
func (f *Func) Blocks() []*Block { return append([]*Block{}, f.blocks...) }

// Results returns the declared result types.
func (f *Func) Results() []Type { return append([]Type{}, f.results...) }

// SetResults replaces the declared result types.
func (f *Func) SetResults(results []Type) { f.results = append([]Type{}, results...) }

// Attrs returns the function attributes.
func (f *Func) Attrs() []Attr { return append([]Attr{}, f.attrs...) }

// SetAttrs replaces the function attributes.
func (f *Func) SetAttrs(attrs []Attr) { f.attrs = append([]Attr{}, attrs...) }

// WithAttrs appends function attributes; returns f for chaining.
func (f *Func) WithAttrs(attrs ...Attr) *Func {
	f.attrs = append(f.attrs, attrs...)
	return f
}

// NewBlock appends a block with the given parameter types.
func (f *Func) NewBlock(paramTypes ...Type) *Block {
	b := &Block{fn: f}
	for _, t := range paramTypes {
		b.AddParam(t)
	}
	f.blocks = append(f.blocks, b)
	return b
}

// NewNode allocates a node in the function's arena. The node is detached: it
// owns its operand and result lists but registers no uses until it is
// inserted into a block (or spliced in by ReplaceNode).
func (f *Func) NewNode(op string, resultTypes []Type, operands ...*Value) *Node {
	n := &Node{
		id:       NodeID(len(f.arena)),
		fn:       f,
		op:       op,
		operands: append([]*Value{}, operands...),
	}
	for i, t := range resultTypes {
		n.results = append(n.results, &Value{typ: t, def: n, index: i})
	}
	f.arena = append(f.arena, n)
	return n
}

// Node resolves a stable handle; returns nil if the node was removed.
func (f *Func) Node(id NodeID) *Node {
	if int(id) < 0 || int(id) >= len(f.arena) {
		return nil
	}
	return f.arena[id]
}

// NumLiveNodes counts the nodes still inserted in some block.
func (f *Func) NumLiveNodes() int {
	count := 0
	for _, b := range f.blocks {
		count += len(b.nodes)
	}
	return count
}

// Block is an ordered list of nodes with typed parameters. The last node of
// a complete block is a terminator.
type Block struct {
	fn     *Func
	params []*Value
	nodes  []*Node
}

// Func returns the owning function.
func (b *Block) Func() *Func { return b.fn }

// AddParam appends a block parameter of the given type.
func (b *Block) AddParam(t Type) *Value {
	p := &Value{typ: t, owner: b, index: len(b.params)}
	b.params = append(b.params, p)
	return p
}

// Params returns the block parameters.
func (b *Block) Params() []*Value { return append([]*Value{}, b.params...) }

// Param returns the i-th block parameter.
func (b *Block) Param(i int) *Value { return b.params[i] }

// Nodes returns the block's nodes in order.
func (b *Block) Nodes() []*Node { return append([]*Node{}, b.nodes...) }

// Terminator returns the block's terminator, or nil if the block is empty or
// unterminated.
func (b *Block) Terminator() *Node {
	if len(b.nodes) == 0 {
		return nil
	}
	if last := b.nodes[len(b.nodes)-1]; last.IsTerminator() {
		return last
	}
	return nil
}

// Append inserts a detached node at the end of the block.
func (b *Block) Append(n *Node) *Node {
	n.attach(b)
	b.nodes = append(b.nodes, n)
	return n
}

// InsertFront inserts a detached node at the beginning of the block.
func (b *Block) InsertFront(n *Node) *Node {
	n.attach(b)
	b.nodes = append([]*Node{n}, b.nodes...)
	return n
}

// InsertBefore inserts a detached node immediately before an existing one.
func (b *Block) InsertBefore(n, before *Node) *Node {
	i := b.indexOf(before)
	if i < 0 {
		panic(errors.Errorf("InsertBefore: node %s (id=%d) is not in this block", before.op, before.id))
	}
	n.attach(b)
	b.nodes = slices.Insert(b.nodes, i, n)
	return n
}

// InsertAfter inserts a detached node immediately after an existing one.
func (b *Block) InsertAfter(n, after *Node) *Node {
	i := b.indexOf(after)
	if i < 0 {
		panic(errors.Errorf("InsertAfter: node %s (id=%d) is not in this block", after.op, after.id))
	}
	n.attach(b)
	b.nodes = slices.Insert(b.nodes, i+1, n)
	return n
}

func (b *Block) indexOf(n *Node) int {
	for i, cand := range b.nodes {
		if cand == n {
			return i
		}
	}
	return -1
}

// RemoveNode deletes a node from the block and clears its arena slot. All of
// the node's results must be unused.
func (b *Block) RemoveNode(n *Node) error {
	i := b.indexOf(n)
	if i < 0 {
		return errors.Errorf("RemoveNode: node %s (id=%d) is not in this block", n.op, n.id)
	}
	for ri, r := range n.results {
		if r.NumUses() > 0 {
			return errors.Errorf("RemoveNode: result #%d of %s (id=%d) still has %d uses", ri, n.op, n.id, r.NumUses())
		}
	}
	n.detach()
	b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
	b.fn.arena[n.id] = nil
	return nil
}

// Replacement is the outcome of a successful lowering rule: an ordered
// sequence of detached nodes plus, for every result of the node being
// replaced, the value that takes its place. A mapped value may be a result
// of one of the new nodes or any pre-existing value (a pass-through).
type Replacement struct {
	Nodes   []*Node
	Results []*Value
}

// ReplaceNode atomically replaces old with the given subgraph: the
// replacement nodes are spliced in immediately before old, every use of
// old's results is re-linked to the mapped values, and old is deleted. The
// operation validates everything before mutating; on error the graph is
// unchanged.
func (b *Block) ReplaceNode(old *Node, rep *Replacement) error {
	if old.block != b {
		return errors.Errorf("ReplaceNode: node %s (id=%d) is not in this block", old.op, old.id)
	}
	if len(rep.Results) != len(old.results) {
		return errors.Errorf("ReplaceNode: %s (id=%d) has %d results, replacement maps %d",
			old.op, old.id, len(old.results), len(rep.Results))
	}
	for i, v := range rep.Results {
		if v == nil {
			return errors.Errorf("ReplaceNode: replacement for result #%d of %s is nil", i, old.op)
		}
		if !SameType(old.results[i].Type(), v.Type()) {
			return errors.Errorf("ReplaceNode: result #%d of %s has type %s, replacement has type %s",
				i, old.op, old.results[i].Type(), v.Type())
		}
	}
	for _, n := range rep.Nodes {
		if n.block != nil {
			return errors.Errorf("ReplaceNode: replacement node %s (id=%d) is already inserted", n.op, n.id)
		}
		if n.fn != b.fn {
			return errors.Errorf("ReplaceNode: replacement node %s belongs to a different function", n.op)
		}
		for _, o := range n.operands {
			if o.def == old {
				return errors.Errorf("ReplaceNode: replacement node %s consumes a result of the node being replaced", n.op)
			}
		}
	}

	// Point of no return: splice, re-link, delete.
	for _, n := range rep.Nodes {
		b.InsertBefore(n, old)
	}
	for i, r := range old.results {
		r.ReplaceAllUses(rep.Results[i])
	}
	if err := b.RemoveNode(old); err != nil {
		// Unreachable: all uses were just re-linked.
		return errors.WithMessagef(err, "ReplaceNode: removing %s", old.op)
	}
	return nil
}
