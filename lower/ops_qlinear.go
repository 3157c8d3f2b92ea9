package lower

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/onnx-lower/ir"
)

// The QLinear operator family lowers uniformly: dequantize every quantized
// input to float32, compute the real-valued operator, requantize into the
// declared result type. Only per-tensor quantization is supported.

// lowerQLinearElementwise lowers QLinearAdd and QLinearMul; op selects the
// canonical elementwise op emitted between dequantize and quantize.
//
// Operands: a, a_scale, a_zero_point, b, b_scale, b_zero_point, c_scale,
// c_zero_point.
func lowerQLinearElementwise(op string) Rule {
	return func(b *Binder, bld *ir.Builder) Outcome {
		operands, err := b.TensorOperandsList()
		if err != nil {
			return Decline(err)
		}
		resultType, err := b.TensorResultType()
		if err != nil {
			return Decline(err)
		}
		if len(operands) != 8 {
			return Decline(bindingErrf(b.Node(), "exactly 8 operands required, got %d", len(operands)))
		}

		aScale, aZp, err := perTensorQuantArgs(bld, b.Node(), operands[1], operands[2])
		if err != nil {
			return Decline(err)
		}
		bScale, bZp, err := perTensorQuantArgs(bld, b.Node(), operands[4], operands[5])
		if err != nil {
			return Decline(err)
		}
		cScale, cZp, err := perTensorQuantArgs(bld, b.Node(), operands[6], operands[7])
		if err != nil {
			return Decline(err)
		}

		a, err := emitDequantize(bld, b.Node(), operands[0], aScale, aZp)
		if err != nil {
			return Decline(err)
		}
		bb, err := emitDequantize(bld, b.Node(), operands[3], bScale, bZp)
		if err != nil {
			return Decline(err)
		}

		c := bld.Emit1(op, resultType.WithElem(dtypes.Float32), a, bb)
		q, err := emitQuantize(bld, b.Node(), c, cScale, cZp, resultType)
		if err != nil {
			return Decline(err)
		}
		return Replace(bld.Replacement(q))
	}
}

// lowerQLinearLeakyRelu lowers QLinearLeakyRelu.
//
// Operands: x, x_scale, x_zero_point, y_scale, y_zero_point.
func lowerQLinearLeakyRelu(b *Binder, bld *ir.Builder) Outcome {
	operands, err := b.TensorOperandsList()
	if err != nil {
		return Decline(err)
	}
	resultType, err := b.TensorResultType()
	if err != nil {
		return Decline(err)
	}
	alpha, err := b.FloatAttrOr("alpha", 0)
	if err != nil {
		return Decline(err)
	}
	if len(operands) != 5 {
		return Decline(bindingErrf(b.Node(), "exactly 5 operands required, got %d", len(operands)))
	}

	xScale, xZp, err := perTensorQuantArgs(bld, b.Node(), operands[1], operands[2])
	if err != nil {
		return Decline(err)
	}
	yScale, yZp, err := perTensorQuantArgs(bld, b.Node(), operands[3], operands[4])
	if err != nil {
		return Decline(err)
	}
	x, err := emitDequantize(bld, b.Node(), operands[0], xScale, xZp)
	if err != nil {
		return Decline(err)
	}

	y := bld.Emit(OpLeakyRelu, []ir.Type{resultType.WithElem(dtypes.Float32)}, x).
		WithAttrs(ir.FloatAttr("alpha", alpha)).Result(0)
	q, err := emitQuantize(bld, b.Node(), y, yScale, yZp, resultType)
	if err != nil {
		return Decline(err)
	}
	return Replace(bld.Replacement(q))
}

// lowerQLinearSigmoid lowers QLinearSigmoid.
//
// Operands: x, x_scale, x_zero_point, y_scale, y_zero_point.
func lowerQLinearSigmoid(b *Binder, bld *ir.Builder) Outcome {
	operands, err := b.TensorOperandsList()
	if err != nil {
		return Decline(err)
	}
	resultType, err := b.TensorResultType()
	if err != nil {
		return Decline(err)
	}
	if len(operands) != 5 {
		return Decline(bindingErrf(b.Node(), "exactly 5 operands required, got %d", len(operands)))
	}

	xScale, xZp, err := perTensorQuantArgs(bld, b.Node(), operands[1], operands[2])
	if err != nil {
		return Decline(err)
	}
	yScale, yZp, err := perTensorQuantArgs(bld, b.Node(), operands[3], operands[4])
	if err != nil {
		return Decline(err)
	}
	x, err := emitDequantize(bld, b.Node(), operands[0], xScale, xZp)
	if err != nil {
		return Decline(err)
	}

	y := bld.Emit1(OpSigmoid, resultType.WithElem(dtypes.Float32), x)
	q, err := emitQuantize(bld, b.Node(), y, yScale, yZp, resultType)
	if err != nil {
		return Decline(err)
	}
	return Replace(bld.Replacement(q))
}

// lowerQLinearConcat lowers QLinearConcat.
//
// Operands: y_scale, y_zero_point, then one (input, scale, zero_point)
// triple per concatenated tensor. The axis attribute selects the
// concatenation axis.
func lowerQLinearConcat(b *Binder, bld *ir.Builder) Outcome {
	operands, err := b.TensorOperandsList()
	if err != nil {
		return Decline(err)
	}
	resultType, err := b.TensorResultType()
	if err != nil {
		return Decline(err)
	}
	axis, err := b.IntAttrOr("axis", 0)
	if err != nil {
		return Decline(err)
	}
	if len(operands) < 5 || (len(operands)-2)%3 != 0 {
		return Decline(bindingErrf(b.Node(),
			"expected 2 output quantization operands plus (input, scale, zero_point) triples, got %d operands", len(operands)))
	}

	numInputs := (len(operands) - 2) / 3
	dequantized := make([]*ir.Value, 0, numInputs)
	for i := 2; i < len(operands); i += 3 {
		scale, zp, err := perTensorQuantArgs(bld, b.Node(), operands[i+1], operands[i+2])
		if err != nil {
			return Decline(err)
		}
		x, err := emitDequantize(bld, b.Node(), operands[i], scale, zp)
		if err != nil {
			return Decline(err)
		}
		dequantized = append(dequantized, x)
	}

	concat := bld.Emit(OpCat, []ir.Type{resultType.WithElem(dtypes.Float32)}, dequantized...).
		WithAttrs(ir.IntAttr("axis", axis)).Result(0)

	yScale, yZp, err := perTensorQuantArgs(bld, b.Node(), operands[0], operands[1])
	if err != nil {
		return Decline(err)
	}
	q, err := emitQuantize(bld, b.Node(), concat, yScale, yZp, resultType)
	if err != nil {
		return Decline(err)
	}
	return Replace(bld.Replacement(q))
}

// lowerQLinearGlobalAveragePool lowers QLinearGlobalAveragePool. The pooling
// kernel is not an attribute of the source op: it is derived from the static
// difference between input and result spatial dimensions, and the pool
// flavor (1-D/2-D/3-D) from the input rank.
//
// Operands: x, x_scale, x_zero_point, y_scale, y_zero_point.
func lowerQLinearGlobalAveragePool(b *Binder, bld *ir.Builder) Outcome {
	operands, err := b.TensorOperands(5)
	if err != nil {
		return Decline(err)
	}
	resultType, err := b.TensorResultType()
	if err != nil {
		return Decline(err)
	}
	channelsLast, err := b.IntAttrOr("channels_last", 0)
	if err != nil {
		return Decline(err)
	}
	if channelsLast != 0 {
		return Decline(unsupportedDefault(b.Node(), "channels_last", "0"))
	}

	xT, ok := operands[0].Type().(ir.TensorType)
	if !ok || !xT.RankKnown() {
		return Decline(shapeErrf(b.Node(), "input `x` must have a known rank"))
	}
	if !resultType.RankKnown() || resultType.Rank() != xT.Rank() {
		return Decline(shapeErrf(b.Node(), "result must have the same known rank as the input"))
	}

	rank := xT.Rank()
	kernel := make([]int64, 0, rank-2)
	strides := make([]int64, 0, rank-2)
	pads := make([]int64, 0, rank-2)
	for i := 2; i < rank; i++ {
		if xT.Dims[i] == ir.DynamicDim || resultType.Dims[i] == ir.DynamicDim {
			return Decline(shapeErrf(b.Node(), "spatial dimension %d must be static to derive the pooling kernel", i))
		}
		kernel = append(kernel, int64(xT.Dims[i]-resultType.Dims[i]+1))
		strides = append(strides, 1)
		pads = append(pads, 0)
	}

	var poolOp string
	switch rank {
	case 3:
		poolOp = OpAvgPool1D
	case 4:
		poolOp = OpAvgPool2D
	case 5:
		poolOp = OpAvgPool3D
	default:
		return Decline(bindingErrf(b.Node(), "unsupported input rank %d, expected 3, 4 or 5", rank))
	}

	xScale, xZp, err := perTensorQuantArgs(bld, b.Node(), operands[1], operands[2])
	if err != nil {
		return Decline(err)
	}
	yScale, yZp, err := perTensorQuantArgs(bld, b.Node(), operands[3], operands[4])
	if err != nil {
		return Decline(err)
	}
	x, err := emitDequantize(bld, b.Node(), operands[0], xScale, xZp)
	if err != nil {
		return Decline(err)
	}

	pool := bld.Emit(poolOp, []ir.Type{resultType.WithElem(dtypes.Float32)}, x).WithAttrs(
		ir.IntsAttr("kernel", kernel...),
		ir.IntsAttr("strides", strides...),
		ir.IntsAttr("pads", pads...),
		ir.IntAttr("ceil_mode", 0),
		ir.IntAttr("count_include_pad", 0),
	).Result(0)

	q, err := emitQuantize(bld, b.Node(), pool, yScale, yZp, resultType)
	if err != nil {
		return Decline(err)
	}
	return Replace(bld.Replacement(q))
}

// lowerQLinearAveragePool lowers QLinearAveragePool by unwrapping it: the
// input is dequantized, a plain source-dialect AveragePool carrying the
// original attributes is emitted for a later pattern to lower, and the
// result is requantized.
//
// Operands: x, x_scale, x_zero_point, y_scale, y_zero_point.
func lowerQLinearAveragePool(b *Binder, bld *ir.Builder) Outcome {
	operands, err := b.TensorOperandsList()
	if err != nil {
		return Decline(err)
	}
	resultType, err := b.TensorResultType()
	if err != nil {
		return Decline(err)
	}
	channelsLast, err := b.IntAttrOr("channels_last", 0)
	if err != nil {
		return Decline(err)
	}
	if channelsLast != 0 {
		return Decline(unsupportedDefault(b.Node(), "channels_last", "0"))
	}
	if len(operands) != 5 {
		return Decline(bindingErrf(b.Node(), "exactly 5 operands required, got %d", len(operands)))
	}

	xScale, xZp, err := perTensorQuantArgs(bld, b.Node(), operands[1], operands[2])
	if err != nil {
		return Decline(err)
	}
	yScale, yZp, err := perTensorQuantArgs(bld, b.Node(), operands[3], operands[4])
	if err != nil {
		return Decline(err)
	}
	x, err := emitDequantize(bld, b.Node(), operands[0], xScale, xZp)
	if err != nil {
		return Decline(err)
	}

	pool := bld.Emit(
		"AveragePool",
		[]ir.Type{resultType.WithElem(dtypes.Float32)},
		x,
	).WithOpset(b.Node().Opset()).WithAttrs(b.Node().Attrs()...).Result(0)

	q, err := emitQuantize(bld, b.Node(), pool, yScale, yZp, resultType)
	if err != nil {
		return Decline(err)
	}
	return Replace(bld.Replacement(q))
}
