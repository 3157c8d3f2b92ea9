package lower

// The canonical destination vocabulary. Lowering rules may only emit these
// ops (plus, transitionally, plain source-dialect ops that later rules pick
// up again, e.g. the AveragePool a QLinearAveragePool unwraps to).
//
// Result types always record the produced type; attributes carry the static
// parameters a runtime needs beyond the result type:
//
//	core.const_int/const_float/const_bool  {value}
//	core.item        tensor -> scalar of the element kind
//	core.convert     {dtype} element type cast
//	core.reshape     {shape} (-1 allowed once, as in ONNX Reshape)
//	core.transpose   {dim_a, dim_b} swaps two axes
//	core.cat         {axis}
//	core.repeat      {repeats}
//	core.arange      (end) -> 1-D int64 tensor
//	core.zeros/full  result type fixes shape; full takes the fill scalar
//	core.leaky_relu  {alpha}
//	core.avg_pool*   {kernel, strides, pads, ceil_mode, count_include_pad}
//	core.sdpa        {dropout_p, is_causal, enable_gqa[, scale]}
//	core.rotary_embedding (input, position_ids, cos_cache, sin_cache,
//	                  interleaved, is_packed_batching, num_heads,
//	                  rotary_embedding_dim, scale) all scalar-promoted
//	core.dequantize  (x, scale, zero_point) -> float tensor
//	core.quantize    {dtype} (x, scale, zero_point) -> integer tensor,
//	                  round-half-away, zero point added, saturating
//	core.extf/truncf {dtype} float precision widening/narrowing
const (
	OpConstInt   = "core.const_int"
	OpConstFloat = "core.const_float"
	OpConstBool  = "core.const_bool"

	OpItem      = "core.item"
	OpConvert   = "core.convert"
	OpReshape   = "core.reshape"
	OpTranspose = "core.transpose"
	OpCat       = "core.cat"
	OpRepeat    = "core.repeat"
	OpArange    = "core.arange"
	OpZeros     = "core.zeros"
	OpFull      = "core.full"

	OpAdd     = "core.add"
	OpSub     = "core.sub"
	OpMul     = "core.mul"
	OpLess    = "core.lt"
	OpWhere   = "core.where"
	OpGtInt   = "core.gt_int"
	OpNeInt   = "core.ne_int"
	OpAndBool = "core.and_bool"

	OpMatMul    = "core.matmul"
	OpLeakyRelu = "core.leaky_relu"
	OpSigmoid   = "core.sigmoid"
	OpAvgPool1D = "core.avg_pool1d"
	OpAvgPool2D = "core.avg_pool2d"
	OpAvgPool3D = "core.avg_pool3d"

	OpSDPA            = "core.sdpa"
	OpRotaryEmbedding = "core.rotary_embedding"

	OpDequantize = "core.dequantize"
	OpQuantize   = "core.quantize"

	OpExtF   = "core.extf"
	OpTruncF = "core.truncf"
)

// Materialization bridges. A to_* bridge converts a source-dialect value to
// its core representation, a from_* bridge the other way around. They are
// inserted by the type boundary converter and must all be gone after the
// finalizer runs.
const (
	BridgeToTensor   = "boundary.to_tensor"
	BridgeFromTensor = "boundary.from_tensor"
	BridgeToI64      = "boundary.to_i64"
	BridgeFromI64    = "boundary.from_i64"
	BridgeToF64      = "boundary.to_f64"
	BridgeFromF64    = "boundary.from_f64"
	BridgeToI1       = "boundary.to_i1"
	BridgeFromI1     = "boundary.from_i1"
)

var bridgeInverse = map[string]string{
	BridgeToTensor:   BridgeFromTensor,
	BridgeFromTensor: BridgeToTensor,
	BridgeToI64:      BridgeFromI64,
	BridgeFromI64:    BridgeToI64,
	BridgeToF64:      BridgeFromF64,
	BridgeFromF64:    BridgeToF64,
	BridgeToI1:       BridgeFromI1,
	BridgeFromI1:     BridgeToI1,
}

// IsBridge reports whether op names a materialization bridge.
func IsBridge(op string) bool {
	_, ok := bridgeInverse[op]
	return ok
}

func inverseBridgeOp(op string) (string, bool) {
	inv, ok := bridgeInverse[op]
	return inv, ok
}
