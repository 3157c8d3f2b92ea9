package lower

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/onnx-lower/ir"
)

// This file contains the emission helpers shared across the lowering rules.
// Rules build source-dialect-typed values: the dialect boundary is
// legalized later by the type conversion passes.

func onnxInt() ir.ScalarType   { return ir.Scalar(ir.DialectONNX, ir.ScalarInt) }
func onnxFloat() ir.ScalarType { return ir.Scalar(ir.DialectONNX, ir.ScalarFloat) }
func onnxBool() ir.ScalarType  { return ir.Scalar(ir.DialectONNX, ir.ScalarBool) }

func constInt(bld *ir.Builder, v int64) *ir.Value {
	return bld.Emit(OpConstInt, []ir.Type{onnxInt()}).WithAttrs(ir.IntAttr("value", v)).Result(0)
}

func constFloat(bld *ir.Builder, v float32) *ir.Value {
	return bld.Emit(OpConstFloat, []ir.Type{onnxFloat()}).WithAttrs(ir.FloatAttr("value", v)).Result(0)
}

func isFloatDType(dt dtypes.DType) bool {
	switch dt {
	case dtypes.Float16, dtypes.BFloat16, dtypes.Float32, dtypes.Float64:
		return true
	}
	return false
}

func isIntDType(dt dtypes.DType) bool {
	switch dt {
	case dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64,
		dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64:
		return true
	}
	return false
}

// isScalarShaped reports whether a tensor type holds exactly one element in
// the per-tensor quantization sense: rank 0, or rank 1 with one element.
func isScalarShaped(t ir.TensorType) bool {
	if !t.RankKnown() {
		return false
	}
	return t.Rank() == 0 || (t.Rank() == 1 && t.Dims[0] == 1)
}

// perTensorQuantArgs validates a (scale, zero_point) operand pair for
// per-tensor quantization and extracts both as scalars. Anything other than
// a single scale/zero-point scalar per tensor is rejected as unsupported.
func perTensorQuantArgs(bld *ir.Builder, n *ir.Node, scale, zeroPoint *ir.Value) (scaleS, zpS *ir.Value, err error) {
	scaleT, ok := scale.Type().(ir.TensorType)
	if !ok || !isScalarShaped(scaleT) || !isFloatDType(scaleT.Elem) {
		return nil, nil, &UnsupportedAttributeError{
			Op: n.Op(), Attr: "scale",
			Reason: "per-tensor quantization requires a single floating-point scale scalar",
		}
	}
	zpT, ok := zeroPoint.Type().(ir.TensorType)
	if !ok || !isScalarShaped(zpT) || !isIntDType(zpT.Elem) {
		return nil, nil, &UnsupportedAttributeError{
			Op: n.Op(), Attr: "zero_point",
			Reason: "per-tensor quantization requires a single integer zero-point scalar",
		}
	}
	scaleS = bld.Emit1(OpItem, onnxFloat(), scale)
	zpS = bld.Emit1(OpItem, onnxInt(), zeroPoint)
	return scaleS, zpS, nil
}

// emitDequantize emits the dequantization of x to float32:
// (x - zero_point) * scale. Requires x's rank to be known.
func emitDequantize(bld *ir.Builder, n *ir.Node, x, scaleS, zpS *ir.Value) (*ir.Value, error) {
	xT, ok := x.Type().(ir.TensorType)
	if !ok || !xT.RankKnown() {
		return nil, shapeErrf(n, "cannot dequantize an input without known sizes")
	}
	return bld.Emit1(OpDequantize, xT.WithElem(dtypes.Float32), x, scaleS, zpS), nil
}

// emitQuantize emits the requantization of a float tensor into the
// declared quantized result type: round(x/scale) + zero_point, saturated to
// the destination integer range.
func emitQuantize(bld *ir.Builder, n *ir.Node, x, scaleS, zpS *ir.Value, resultType ir.TensorType) (*ir.Value, error) {
	if _, _, err := quantizedRange(resultType.Elem); err != nil {
		return nil, bindingErrf(n, "cannot quantize to result element type %s", resultType.Elem)
	}
	node := bld.Emit(OpQuantize, []ir.Type{resultType}, x, scaleS, zpS).
		WithAttrs(ir.IntAttr("dtype", int64(resultType.Elem)))
	return node.Result(0), nil
}

func dimsEqual(a, b []int) bool { return slices.Equal(a, b) }
