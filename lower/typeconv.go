package lower

import (
	"k8s.io/klog/v2"

	"github.com/gomlx/onnx-lower/ir"
)

// TypeConverter maps source-dialect types to their canonical counterparts.
// Total: core types convert to themselves. Stateless; construct one per pass
// invocation.
type TypeConverter struct{}

// NewTypeConverter returns a fresh converter.
func NewTypeConverter() *TypeConverter { return &TypeConverter{} }

// Convert returns the canonical counterpart of t. The representation
// (element type, dimensions, scalar kind) is preserved; only the dialect tag
// changes.
func (tc *TypeConverter) Convert(t ir.Type) ir.Type {
	switch tt := t.(type) {
	case ir.TensorType:
		if tt.Dialect == ir.DialectONNX {
			return tt.WithDialect(ir.DialectCore)
		}
		return tt
	case ir.ScalarType:
		if tt.Dialect == ir.DialectONNX {
			return ir.Scalar(ir.DialectCore, tt.Kind)
		}
		return tt
	}
	return t
}

// IsLegal reports whether t is already canonical.
func (tc *TypeConverter) IsLegal(t ir.Type) bool {
	return ir.DialectOf(t) == ir.DialectCore
}

// convState tracks the per-function conversion state machine. The pass
// either walks Unconverted -> SignatureConverting -> BodyConverting ->
// FullyLegal, or parks in Failed without having mutated the function.
type convState uint8

const (
	stateUnconverted convState = iota
	stateSignatureConverting
	stateBodyConverting
	stateFullyLegal
	stateFailed
)

// funcConversion is one function's trip through the state machine.
type funcConversion struct {
	fn    *ir.Func
	tc    *TypeConverter
	state convState
}

// ConvertFuncTypes legalizes fn's signature, block parameters, calls and
// terminators against the converter, inserting materialization bridges
// wherever a value's producer and consumer now disagree on the dialect. The
// conversion is full or not at all: if any reachable operation cannot be
// made legal the function is returned unmodified with a
// *ConversionCompletenessError.
func ConvertFuncTypes(fn *ir.Func, tc *TypeConverter) error {
	c := &funcConversion{fn: fn, tc: tc}
	if err := c.preflight(); err != nil {
		c.state = stateFailed
		return err
	}
	c.state = stateSignatureConverting
	c.convertSignature()
	c.state = stateBodyConverting
	c.convertBody()
	if err := c.checkLegal(); err != nil {
		// Unreachable if preflight was sound; surfaced rather than swallowed.
		c.state = stateFailed
		return err
	}
	c.state = stateFullyLegal
	klog.V(2).Infof("converted func %q to canonical boundary types", fn.Name())
	return nil
}

// preflight proves the whole function convertible before anything is
// mutated. The converter itself is total, so the only obstacles are
// structural: operations this pass does not know how to rewrite.
func (c *funcConversion) preflight() error {
	for _, b := range c.fn.Blocks() {
		for _, n := range b.Nodes() {
			if IsBridge(n.Op()) {
				return &ConversionCompletenessError{
					Func:   c.fn.Name(),
					Reason: "materialization bridge " + n.Op() + " present before conversion",
				}
			}
			if !isBoundaryOp(n) {
				continue
			}
			if len(n.Successors()) > 0 {
				switch n.Op() {
				case ir.OpBr, ir.OpCondBr:
				default:
					return &ConversionCompletenessError{
						Func:   c.fn.Name(),
						Reason: "cannot rewrite terminator " + n.Op(),
					}
				}
			}
			if n.Op() == ir.OpBr {
				succs := n.Successors()
				if len(succs) != 1 || n.NumOperands() != len(succs[0].Params()) {
					return &ConversionCompletenessError{
						Func:   c.fn.Name(),
						Reason: "branch operand count does not match successor parameters",
					}
				}
			}
		}
	}
	return nil
}

// convertSignature converts the declared result types and every block's
// parameter types. A parameter with remaining source-dialect uses gets a
// bridge back to its old type at the top of the block.
func (c *funcConversion) convertSignature() {
	results := c.fn.Results()
	for i, t := range results {
		results[i] = c.tc.Convert(t)
	}
	c.fn.SetResults(results)

	for _, b := range c.fn.Blocks() {
		for _, p := range b.Params() {
			oldType := p.Type()
			if c.tc.IsLegal(oldType) {
				continue
			}
			p.SetType(c.tc.Convert(oldType))
			if p.NumUses() == 0 {
				continue
			}
			_, fromCore := bridgeOpsFor(oldType)
			bridge := c.fn.NewNode(fromCore, []ir.Type{oldType}, p)
			b.InsertFront(bridge)
			p.ReplaceAllUsesExcept(bridge.Result(0), bridge)
		}
	}
}

// convertBody rewrites calls and terminators: operands crossing into
// canonical positions are bridged to their converted types, and call results
// are retagged with a bridge back for their source-dialect consumers.
func (c *funcConversion) convertBody() {
	for _, b := range c.fn.Blocks() {
		for _, n := range b.Nodes() {
			if !isBoundaryOp(n) {
				continue
			}
			if n.Op() == ir.OpCondBr {
				// Operand 0 is the condition; successor arguments follow.
				c.bridgeOperandsToCore(b, n, 0)
			} else {
				c.bridgeOperandsToCore(b, n, -1)
			}
			if n.Op() == ir.OpCall {
				c.retagCallResults(b, n)
			}
		}
	}
}

// bridgeOperandsToCore bridges every illegal operand of n (the condition
// operand condIndex excepted) to its canonical type, inserting the bridge
// immediately before n.
func (c *funcConversion) bridgeOperandsToCore(b *ir.Block, n *ir.Node, condIndex int) {
	for i := 0; i < n.NumOperands(); i++ {
		if i == condIndex {
			continue
		}
		v := n.Operand(i)
		if c.tc.IsLegal(v.Type()) {
			continue
		}
		toCore, _ := bridgeOpsFor(v.Type())
		bridge := c.fn.NewNode(toCore, []ir.Type{c.tc.Convert(v.Type())}, v)
		b.InsertBefore(bridge, n)
		n.SetOperand(i, bridge.Result(0))
	}
}

// retagCallResults converts a call's declared result types; consumers still
// expecting the old type are fed through a bridge inserted right after the
// call.
func (c *funcConversion) retagCallResults(b *ir.Block, n *ir.Node) {
	for _, r := range n.Results() {
		oldType := r.Type()
		if c.tc.IsLegal(oldType) {
			continue
		}
		r.SetType(c.tc.Convert(oldType))
		if r.NumUses() == 0 {
			continue
		}
		_, fromCore := bridgeOpsFor(oldType)
		bridge := c.fn.NewNode(fromCore, []ir.Type{oldType}, r)
		b.InsertAfter(bridge, n)
		r.ReplaceAllUsesExcept(bridge.Result(0), bridge)
	}
}

// checkLegal is the closing structural legality sweep: an operation is legal
// if it is not a boundary op, or if all of its boundary types are canonical.
func (c *funcConversion) checkLegal() error {
	for _, t := range c.fn.Results() {
		if !c.tc.IsLegal(t) {
			return &ConversionCompletenessError{
				Func:   c.fn.Name(),
				Reason: "result type " + t.String() + " is not canonical",
			}
		}
	}
	for _, b := range c.fn.Blocks() {
		for _, p := range b.Params() {
			if !c.tc.IsLegal(p.Type()) {
				return &ConversionCompletenessError{
					Func:   c.fn.Name(),
					Reason: "block parameter type " + p.Type().String() + " is not canonical",
				}
			}
		}
		for _, n := range b.Nodes() {
			if !isBoundaryOp(n) {
				continue
			}
			for i := 0; i < n.NumOperands(); i++ {
				if n.Op() == ir.OpCondBr && i == 0 {
					continue
				}
				if !c.tc.IsLegal(n.Operand(i).Type()) {
					return &ConversionCompletenessError{
						Func:   c.fn.Name(),
						Reason: "operand of " + n.Op() + " has type " + n.Operand(i).Type().String(),
					}
				}
			}
		}
	}
	return nil
}

// isBoundaryOp reports whether n is branch/return/call-like, i.e. carries
// values across a signature boundary this pass owns.
func isBoundaryOp(n *ir.Node) bool {
	switch n.Op() {
	case ir.OpReturn, ir.OpBr, ir.OpCondBr, ir.OpCall:
		return true
	}
	return len(n.Successors()) > 0
}

// bridgeOpsFor returns the bridge op names converting a value of source type
// t to its canonical counterpart (toCore) and back (fromCore).
func bridgeOpsFor(t ir.Type) (toCore, fromCore string) {
	switch tt := t.(type) {
	case ir.TensorType:
		return BridgeToTensor, BridgeFromTensor
	case ir.ScalarType:
		switch tt.Kind {
		case ir.ScalarInt:
			return BridgeToI64, BridgeFromI64
		case ir.ScalarFloat:
			return BridgeToF64, BridgeFromF64
		case ir.ScalarBool:
			return BridgeToI1, BridgeFromI1
		}
	}
	return BridgeToTensor, BridgeFromTensor
}
