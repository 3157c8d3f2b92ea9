package lower

import (
	"github.com/gomlx/onnx-lower/ir"
)

// Binder extracts typed, validated operands, attributes and result types
// from a matched node. Every extraction either succeeds or returns a
// *BindingError naming what was malformed or missing; the node is never
// mutated. Defaults for absent attributes are supplied by the caller.
type Binder struct {
	node *ir.Node
}

// NewBinder returns a binder over the given node.
func NewBinder(n *ir.Node) *Binder { return &Binder{node: n} }

// Node returns the bound node.
func (b *Binder) Node() *ir.Node { return b.node }

// TensorOperandAtIndex returns the i-th operand, which must be
// tensor-typed.
func (b *Binder) TensorOperandAtIndex(i int) (*ir.Value, error) {
	if i < 0 || i >= b.node.NumOperands() {
		return nil, bindingErrf(b.node, "operand #%d required, node has %d operands", i, b.node.NumOperands())
	}
	v := b.node.Operand(i)
	if _, ok := v.Type().(ir.TensorType); !ok {
		return nil, bindingErrf(b.node, "operand #%d must be a tensor, got %s", i, v.Type())
	}
	return v, nil
}

// TensorOperands returns exactly n tensor operands.
func (b *Binder) TensorOperands(n int) ([]*ir.Value, error) {
	if b.node.NumOperands() != n {
		return nil, bindingErrf(b.node, "exactly %d operands required, got %d", n, b.node.NumOperands())
	}
	return b.TensorOperandsList()
}

// TensorOperandsList returns all operands, each of which must be
// tensor-typed.
func (b *Binder) TensorOperandsList() ([]*ir.Value, error) {
	operands := b.node.Operands()
	for i, v := range operands {
		if _, ok := v.Type().(ir.TensorType); !ok {
			return nil, bindingErrf(b.node, "operand #%d must be a tensor, got %s", i, v.Type())
		}
	}
	return operands, nil
}

// IntAttrOr returns the named integer attribute, or defaultValue when
// absent.
func (b *Binder) IntAttrOr(name string, defaultValue int64) (int64, error) {
	attr, found := b.node.Attr(name)
	if !found {
		return defaultValue, nil
	}
	if attr.Kind != ir.AttrInt {
		return 0, bindingErrf(b.node, "attribute %q must be an int, got %s", name, attr.Kind)
	}
	return attr.I, nil
}

// FloatAttrOr returns the named float attribute, or defaultValue when
// absent.
func (b *Binder) FloatAttrOr(name string, defaultValue float32) (float32, error) {
	attr, found := b.node.Attr(name)
	if !found {
		return defaultValue, nil
	}
	if attr.Kind != ir.AttrFloat {
		return 0, bindingErrf(b.node, "attribute %q must be a float, got %s", name, attr.Kind)
	}
	return attr.F, nil
}

// StringAttrOr returns the named string attribute, or defaultValue when
// absent.
func (b *Binder) StringAttrOr(name, defaultValue string) (string, error) {
	attr, found := b.node.Attr(name)
	if !found {
		return defaultValue, nil
	}
	if attr.Kind != ir.AttrString {
		return "", bindingErrf(b.node, "attribute %q must be a string, got %s", name, attr.Kind)
	}
	return attr.S, nil
}

// IntsAttrOr returns the named integer list attribute, or defaultValues
// when absent.
func (b *Binder) IntsAttrOr(name string, defaultValues []int64) ([]int64, error) {
	attr, found := b.node.Attr(name)
	if !found {
		return defaultValues, nil
	}
	if attr.Kind != ir.AttrInts {
		return nil, bindingErrf(b.node, "attribute %q must be an int list, got %s", name, attr.Kind)
	}
	return attr.Ints, nil
}

// FloatsAttrOr returns the named float list attribute, or defaultValues
// when absent.
func (b *Binder) FloatsAttrOr(name string, defaultValues []float32) ([]float32, error) {
	attr, found := b.node.Attr(name)
	if !found {
		return defaultValues, nil
	}
	if attr.Kind != ir.AttrFloats {
		return nil, bindingErrf(b.node, "attribute %q must be a float list, got %s", name, attr.Kind)
	}
	return attr.Floats, nil
}

// TensorResultType returns the single declared result type; the node must
// have exactly one tensor result.
func (b *Binder) TensorResultType() (ir.TensorType, error) {
	types, err := b.TensorResultTypes(1)
	if err != nil {
		return ir.TensorType{}, err
	}
	return types[0], nil
}

// TensorResultTypes returns the declared result types; the node must have
// exactly n results, all tensors.
func (b *Binder) TensorResultTypes(n int) ([]ir.TensorType, error) {
	if b.node.NumResults() != n {
		return nil, bindingErrf(b.node, "exactly %d results required, got %d", n, b.node.NumResults())
	}
	types := make([]ir.TensorType, n)
	for i := 0; i < n; i++ {
		t, ok := b.node.Result(i).Type().(ir.TensorType)
		if !ok {
			return nil, bindingErrf(b.node, "result #%d must be a tensor, got %s", i, b.node.Result(i).Type())
		}
		types[i] = t
	}
	return types, nil
}
