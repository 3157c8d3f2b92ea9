package lower

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/onnx-lower/ir"
)

// lowerRotaryEmbedding lowers RotaryEmbedding to the canonical
// core.rotary_embedding op. A direct 1:1 mapping: the source attributes are
// promoted to explicit scalar const operands.
//
// Operands: input, position_ids, cos_cache, sin_cache.
func lowerRotaryEmbedding(b *Binder, bld *ir.Builder) Outcome {
	input, err := b.TensorOperandAtIndex(0)
	if err != nil {
		return Decline(err)
	}
	positionIds, err := b.TensorOperandAtIndex(1)
	if err != nil {
		return Decline(err)
	}
	cosCache, err := b.TensorOperandAtIndex(2)
	if err != nil {
		return Decline(err)
	}
	sinCache, err := b.TensorOperandAtIndex(3)
	if err != nil {
		return Decline(err)
	}
	interleaved, err := b.IntAttrOr("interleaved", 0)
	if err != nil {
		return Decline(err)
	}
	isPackedBatching, err := b.IntAttrOr("is_packed_batching", 0)
	if err != nil {
		return Decline(err)
	}
	numHeads, err := b.IntAttrOr("num_heads", 0)
	if err != nil {
		return Decline(err)
	}
	rotaryEmbeddingDim, err := b.IntAttrOr("rotary_embedding_dim", 0)
	if err != nil {
		return Decline(err)
	}
	scale, err := b.FloatAttrOr("scale", 1.0)
	if err != nil {
		return Decline(err)
	}
	resultType, err := b.TensorResultType()
	if err != nil {
		return Decline(err)
	}

	out := bld.Emit1(OpRotaryEmbedding, resultType,
		input, positionIds, cosCache, sinCache,
		constInt(bld, interleaved),
		constInt(bld, isPackedBatching),
		constInt(bld, numHeads),
		constInt(bld, rotaryEmbeddingDim),
		constFloat(bld, scale))
	return Replace(bld.Replacement(out))
}

// lowerGroupQueryAttention lowers GroupQueryAttention.
//
// Operands: query, key, value, past_key, past_value, seqlens_k,
// total_sequence_length, and, when do_rotary is set, cos_cache and
// sin_cache. Produces 3 results: attention output, present_key,
// present_value.
//
// local_window_size, smooth_softmax and softcap are only accepted at their
// default (disabled) values. Packed QKV is not supported.
func lowerGroupQueryAttention(b *Binder, bld *ir.Builder) Outcome {
	operands, err := b.TensorOperandsList()
	if err != nil {
		return Decline(err)
	}
	resultTypes, err := b.TensorResultTypes(3)
	if err != nil {
		return Decline(err)
	}

	doRotary, err := b.IntAttrOr("do_rotary", 0)
	if err != nil {
		return Decline(err)
	}
	kvNumHeads, err := b.IntAttrOr("kv_num_heads", 0)
	if err != nil {
		return Decline(err)
	}
	localWindowSize, err := b.IntAttrOr("local_window_size", -1)
	if err != nil {
		return Decline(err)
	}
	numHeads, err := b.IntAttrOr("num_heads", 0)
	if err != nil {
		return Decline(err)
	}
	rotaryInterleaved, err := b.IntAttrOr("rotary_interleaved", 0)
	if err != nil {
		return Decline(err)
	}
	scale, err := b.FloatAttrOr("scale", 0.0)
	if err != nil {
		return Decline(err)
	}
	smoothSoftmax, err := b.IntAttrOr("smooth_softmax", 0)
	if err != nil {
		return Decline(err)
	}
	softcap, err := b.FloatAttrOr("softcap", 0.0)
	if err != nil {
		return Decline(err)
	}

	// 7 operands without rotary caches, 9 with them. do_rotary with only 7
	// operands is malformed.
	if !(len(operands) == 9 || (doRotary == 0 && len(operands) == 7)) {
		return Decline(bindingErrf(b.Node(),
			"expected 7 or 9 operands depending on `do_rotary`, got %d", len(operands)))
	}
	if kvNumHeads == 0 {
		return Decline(bindingErrf(b.Node(), "kv_num_heads is required and must be non-zero"))
	}
	if numHeads == 0 {
		return Decline(bindingErrf(b.Node(), "num_heads is required and must be non-zero"))
	}
	if localWindowSize != -1 {
		return Decline(unsupportedDefault(b.Node(), "local_window_size", "-1"))
	}
	if smoothSoftmax != 0 {
		return Decline(unsupportedDefault(b.Node(), "smooth_softmax", "0"))
	}
	if softcap != 0.0 {
		return Decline(unsupportedDefault(b.Node(), "softcap", "0.0"))
	}

	query, key, value := operands[0], operands[1], operands[2]
	pastKey, pastValue := operands[3], operands[4]
	seqlensK, totalSequenceLength := operands[5], operands[6]
	var cosCache, sinCache *ir.Value
	if doRotary != 0 {
		cosCache, sinCache = operands[7], operands[8]
	}

	queryT := query.Type().(ir.TensorType)
	if !queryT.AllDimsKnown() {
		return Decline(shapeErrf(b.Node(), "input `query` must have statically known sizes"))
	}
	batchSize := queryT.Dims[0]
	sequenceLength := queryT.Dims[1]
	hiddenSize := queryT.Dims[2]
	headSize := hiddenSize / int(numHeads)

	// Split the heads out of the hidden dimension:
	//   query (batch, seq, hidden)    -> (batch, num_heads, seq, head_size)
	//   key/value (batch, seq, kv_hidden)
	//                                 -> (batch, kv_num_heads, seq, head_size)
	keyT := key.Type().(ir.TensorType)
	valueT := value.Type().(ir.TensorType)
	qShape := []int{batchSize, int(numHeads), sequenceLength, headSize}
	kvShape := []int{batchSize, int(kvNumHeads), sequenceLength, headSize}
	qIn := emitReshape(bld, queryT.WithDims(qShape...), query, qShape)
	kIn := emitReshape(bld, keyT.WithDims(kvShape...), key, kvShape)
	vIn := emitReshape(bld, valueT.WithDims(kvShape...), value, kvShape)

	qRotary, kRotary := qIn, kIn
	if doRotary != 0 {
		// Build per-batch position ids with a two-branch policy:
		//
		//   pos_ids_a = zeros(batch, seq)
		//
		//   total_seqlens = seqlens_k + 1
		//   past_seqlens = total_seqlens - seq
		//   pos_ids_b = arange(seq).repeat(batch, 1) + past_seqlens.view(-1, 1)
		//   pos_ids_b = where(pos_ids_b < total_seqlens.view(-1, 1), pos_ids_b, 1)
		//
		// Branch B applies to subsequent prompt chunks, detected per the
		// condition seq > 1 && seq != total_sequence_length; branch A covers
		// the initial prompt and single-token decode.
		totalSeqScalar := bld.Emit1(OpItem, onnxInt(), totalSequenceLength)
		cstSeqLen := constInt(bld, int64(sequenceLength))
		cstOne := constInt(bld, 1)
		condA := bld.Emit1(OpGtInt, onnxBool(), cstSeqLen, cstOne)
		condB := bld.Emit1(OpNeInt, onnxBool(), cstSeqLen, totalSeqScalar)
		isSubsequentPrompt := bld.Emit1(OpAndBool, onnxBool(), condA, condB)

		posIdsType := ir.Tensor(ir.DialectONNX, dtypes.Int64, batchSize, sequenceLength)
		posIdsA := bld.Emit1(OpZeros, posIdsType)

		seqlensKT := seqlensK.Type().(ir.TensorType)
		seqlensK64 := bld.Emit(OpConvert, []ir.Type{seqlensKT.WithElem(dtypes.Int64)}, seqlensK).
			WithAttrs(ir.IntAttr("dtype", int64(dtypes.Int64))).Result(0)
		totalSeqLens := bld.Emit1(OpAdd, seqlensK64.Type(), seqlensK64, cstOne)
		pastSeqLens := bld.Emit1(OpSub, totalSeqLens.Type(), totalSeqLens, cstSeqLen)

		initPosIds := bld.Emit1(OpArange, ir.Tensor(ir.DialectONNX, dtypes.Int64, sequenceLength), cstSeqLen)
		posIdsB := bld.Emit(OpRepeat, []ir.Type{posIdsType}, initPosIds).
			WithAttrs(ir.IntsAttr("repeats", int64(batchSize), 1)).Result(0)

		colType := ir.Tensor(ir.DialectONNX, dtypes.Int64, batchSize, 1)
		pastSeqLensCol := emitReshape(bld, colType, pastSeqLens, []int{-1, 1})
		posIdsB = bld.Emit1(OpAdd, posIdsType, posIdsB, pastSeqLensCol)

		totalSeqLensCol := emitReshape(bld, colType, totalSeqLens, []int{-1, 1})
		cond := bld.Emit1(OpLess,
			ir.Tensor(ir.DialectONNX, dtypes.Bool, batchSize, sequenceLength),
			posIdsB, totalSeqLensCol)
		oneTensor := bld.Emit1(OpFull, ir.Tensor(ir.DialectONNX, dtypes.Int64), cstOne)
		posIdsB = bld.Emit1(OpWhere, posIdsType, cond, posIdsB, oneTensor)

		subsequentMask := bld.Emit1(OpFull,
			ir.Tensor(ir.DialectONNX, dtypes.Bool, batchSize, sequenceLength),
			isSubsequentPrompt)
		posIds := bld.Emit1(OpWhere, posIdsType, subsequentMask, posIdsB, posIdsA)

		cstInterleaved := constInt(bld, rotaryInterleaved)
		cstZero := constInt(bld, 0)
		cstFloatOne := constFloat(bld, 1.0)
		qRotary = bld.Emit1(OpRotaryEmbedding, qIn.Type(),
			qIn, posIds, cosCache, sinCache,
			cstInterleaved, cstZero, cstZero, cstZero, cstFloatOne)
		kRotary = bld.Emit1(OpRotaryEmbedding, kIn.Type(),
			kIn, posIds, cosCache, sinCache,
			cstInterleaved, cstZero, cstZero, cstZero, cstFloatOne)
	}

	sdpaAttrs := []ir.Attr{
		ir.FloatAttr("dropout_p", 0.0),
		ir.IntAttr("is_causal", 0),
		ir.IntAttr("enable_gqa", 1),
	}
	if scale != 0.0 {
		sdpaAttrs = append(sdpaAttrs, ir.FloatAttr("scale", scale))
	}
	attention := bld.Emit(OpSDPA, []ir.Type{qRotary.Type()}, qRotary, kRotary, vIn).
		WithAttrs(sdpaAttrs...).Result(0)

	// Merge the heads back: (batch, num_heads, seq, head_size) ->
	// (batch, seq, hidden).
	attention = emitReshape(bld, resultTypes[0], attention,
		[]int{batchSize, sequenceLength, hiddenSize})

	// present_key = cat(past_key, key, dim=2) when the cache grows, else the
	// past cache passes through unchanged. Same for present_value.
	presentKey := pastKey
	if !dimsEqual(pastKey.Type().(ir.TensorType).Dims, resultTypes[1].Dims) {
		presentKey = bld.Emit(OpCat, []ir.Type{resultTypes[1]}, pastKey, kRotary).
			WithAttrs(ir.IntAttr("axis", 2)).Result(0)
	}
	presentValue := pastValue
	if !dimsEqual(pastValue.Type().(ir.TensorType).Dims, resultTypes[2].Dims) {
		presentValue = bld.Emit(OpCat, []ir.Type{resultTypes[2]}, pastValue, vIn).
			WithAttrs(ir.IntAttr("axis", 2)).Result(0)
	}

	return Replace(bld.Replacement(attention, presentKey, presentValue))
}

// emitReshape emits a core.reshape of v to the given target shape (-1
// allowed once, as in ONNX Reshape).
func emitReshape(bld *ir.Builder, resultType ir.TensorType, v *ir.Value, shape []int) *ir.Value {
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return bld.Emit(OpReshape, []ir.Type{resultType}, v).
		WithAttrs(ir.IntsAttr("shape", dims...)).Result(0)
}
