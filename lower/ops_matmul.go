package lower

import (
	"github.com/gomlx/onnx-lower/ir"
)

// lowerFusedMatMul lowers FusedMatMul: a single matmul over operands whose
// last two axes are transposed when the corresponding flag is set.
// Batch-axis transposition is not supported.
//
// Operands: a, b. Attributes: transA, transB, transBatchA, transBatchB.
func lowerFusedMatMul(b *Binder, bld *ir.Builder) Outcome {
	operands, err := b.TensorOperands(2)
	if err != nil {
		return Decline(err)
	}
	resultType, err := b.TensorResultType()
	if err != nil {
		return Decline(err)
	}
	transA, err := b.IntAttrOr("transA", 0)
	if err != nil {
		return Decline(err)
	}
	transB, err := b.IntAttrOr("transB", 0)
	if err != nil {
		return Decline(err)
	}
	transBatchA, err := b.IntAttrOr("transBatchA", 0)
	if err != nil {
		return Decline(err)
	}
	transBatchB, err := b.IntAttrOr("transBatchB", 0)
	if err != nil {
		return Decline(err)
	}
	if transBatchA != 0 {
		return Decline(unsupportedDefault(b.Node(), "transBatchA", "0"))
	}
	if transBatchB != 0 {
		return Decline(unsupportedDefault(b.Node(), "transBatchB", "0"))
	}

	lhs, rhs := operands[0], operands[1]
	if transA != 0 {
		if lhs, err = transposeLastTwo(bld, b.Node(), lhs); err != nil {
			return Decline(err)
		}
	}
	if transB != 0 {
		if rhs, err = transposeLastTwo(bld, b.Node(), rhs); err != nil {
			return Decline(err)
		}
	}

	out := bld.Emit1(OpMatMul, resultType, lhs, rhs)
	return Replace(bld.Replacement(out))
}

// transposeLastTwo emits a swap of v's last two axes. Requires a known rank
// of at least 2.
func transposeLastTwo(bld *ir.Builder, n *ir.Node, v *ir.Value) (*ir.Value, error) {
	t, ok := v.Type().(ir.TensorType)
	if !ok || !t.RankKnown() {
		return nil, shapeErrf(n, "cannot transpose an unranked input")
	}
	r := t.Rank()
	if r < 2 {
		return nil, shapeErrf(n, "transposition requires rank >= 2, got %d", r)
	}
	dims := append([]int{}, t.Dims...)
	dims[r-2], dims[r-1] = dims[r-1], dims[r-2]
	node := bld.Emit(OpTranspose, []ir.Type{t.WithDims(dims...)}, v).
		WithAttrs(ir.IntAttr("dim_a", int64(r-2)), ir.IntAttr("dim_b", int64(r-1)))
	return node.Result(0), nil
}
