package lower

import (
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/gomlx/onnx-lower/ir"
)

// FinalizeMaterializations is the second phase of boundary legalization:
// once ConvertFuncTypes has proven fn fully legal, every surviving bridge
// must be a representational identity. Each bridge is cancelled against an
// inverse bridge feeding it, or collapsed to its operand. A bridge that is
// neither fails the pass with a *FinalizationInconsistencyError before
// anything is rewritten.
//
// A companion peephole removes exact widen-then-narrow precision round
// trips (core.truncf of core.extf back to the original type), and function
// attributes in the pre-conversion "onnx." namespace are stripped last.
func FinalizeMaterializations(fn *ir.Func) error {
	if err := checkBridgesEliminable(fn); err != nil {
		return err
	}

	eliminated := 0
	for _, b := range fn.Blocks() {
		for _, n := range b.Nodes() {
			if n.Block() == nil || !IsBridge(n.Op()) {
				continue
			}
			operand := n.Operand(0)
			replacement := operand
			if inner, ok := cancelsAgainstInverse(n); ok {
				replacement = inner
			}
			n.Result(0).ReplaceAllUses(replacement)
			if err := b.RemoveNode(n); err != nil {
				return &FinalizationInconsistencyError{Func: fn.Name(), Reason: err.Error()}
			}
			eliminated++
			// The feeding bridge may have just lost its last use.
			if def := operand.Def(); def != nil && IsBridge(def.Op()) && def.Block() != nil &&
				def.Result(0).NumUses() == 0 {
				if err := def.Block().RemoveNode(def); err != nil {
					return &FinalizationInconsistencyError{Func: fn.Name(), Reason: err.Error()}
				}
				eliminated++
			}
		}
	}

	removeExtTruncPairs(fn)
	stripSourceAttrs(fn)
	klog.V(2).Infof("finalized func %q: eliminated %d materialization bridges", fn.Name(), eliminated)
	return nil
}

// checkBridgesEliminable proves every bridge in fn is an identity (or
// cancels against its inverse) before any rewrite happens.
func checkBridgesEliminable(fn *ir.Func) error {
	for _, b := range fn.Blocks() {
		for _, n := range b.Nodes() {
			if !IsBridge(n.Op()) {
				continue
			}
			if n.NumOperands() != 1 || n.NumResults() != 1 {
				return &FinalizationInconsistencyError{
					Func:   fn.Name(),
					Reason: fmt.Sprintf("bridge %s (id=%d) is malformed", n.Op(), n.ID()),
				}
			}
			if _, ok := cancelsAgainstInverse(n); ok {
				continue
			}
			if !ir.SameRepresentation(n.Operand(0).Type(), n.Result(0).Type()) {
				return &FinalizationInconsistencyError{
					Func: fn.Name(),
					Reason: fmt.Sprintf("bridge %s (id=%d) is not an identity: operand %s, result %s",
						n.Op(), n.ID(), n.Operand(0).Type(), n.Result(0).Type()),
				}
			}
		}
	}
	return nil
}

// cancelsAgainstInverse reports whether bridge n is fed by its exact inverse
// bridge, returning the inner pre-bridge value if so.
func cancelsAgainstInverse(n *ir.Node) (*ir.Value, bool) {
	def := n.Operand(0).Def()
	if def == nil {
		return nil, false
	}
	inv, ok := inverseBridgeOp(n.Op())
	if !ok || def.Op() != inv || def.NumOperands() != 1 {
		return nil, false
	}
	inner := def.Operand(0)
	if !ir.SameType(inner.Type(), n.Result(0).Type()) {
		return nil, false
	}
	return inner, true
}

// removeExtTruncPairs cancels core.truncf(core.extf(x)) back to x when the
// narrowing lands exactly on x's type.
func removeExtTruncPairs(fn *ir.Func) {
	for _, b := range fn.Blocks() {
		for _, n := range b.Nodes() {
			if n.Block() == nil || n.Op() != OpTruncF {
				continue
			}
			def := n.Operand(0).Def()
			if def == nil || def.Op() != OpExtF {
				continue
			}
			x := def.Operand(0)
			if !ir.SameType(x.Type(), n.Result(0).Type()) {
				continue
			}
			n.Result(0).ReplaceAllUses(x)
			if err := b.RemoveNode(n); err != nil {
				continue
			}
			if def.Block() != nil && def.Result(0).NumUses() == 0 {
				_ = def.Block().RemoveNode(def)
			}
		}
	}
}

// stripSourceAttrs drops function attributes in the "onnx." namespace; they
// describe the pre-conversion dialect and are meaningless once the boundary
// is canonical.
func stripSourceAttrs(fn *ir.Func) {
	attrs := fn.Attrs()
	kept := attrs[:0]
	for _, a := range attrs {
		if strings.HasPrefix(a.Name, "onnx.") {
			continue
		}
		kept = append(kept, a)
	}
	fn.SetAttrs(kept)
}
