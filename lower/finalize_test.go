package lower

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/onnx-lower/ir"
)

func TestFinalizeCancelsInverseBridges(t *testing.T) {
	intT := ir.Scalar(ir.DialectONNX, ir.ScalarInt)
	i64T := ir.Scalar(ir.DialectCore, ir.ScalarInt)
	fn := ir.NewFunc("f")
	entry := fn.Entry()
	p := entry.AddParam(intT)
	to := fn.NewNode(BridgeToI64, []ir.Type{i64T}, p)
	entry.Append(to)
	from := fn.NewNode(BridgeFromI64, []ir.Type{intT}, to.Result(0))
	entry.Append(from)
	use := fn.NewNode("scalar.use", []ir.Type{intT}, from.Result(0))
	entry.Append(use)

	require.NoError(t, FinalizeMaterializations(fn))
	require.Zero(t, countBridges(fn))
	// The round trip cancelled back to the original parameter.
	require.Equal(t, p, use.Operand(0))
}

func TestFinalizeCollapsesIdentityBridge(t *testing.T) {
	xT := onnxTensor(dtypes.Float32, 2, 3)
	fn := ir.NewFunc("f")
	entry := fn.Entry()
	p := entry.AddParam(xT)
	bridge := fn.NewNode(BridgeToTensor, []ir.Type{xT.WithDialect(ir.DialectCore)}, p)
	entry.Append(bridge)
	use := fn.NewNode("tensor.use", nil, bridge.Result(0))
	entry.Append(use)

	require.NoError(t, FinalizeMaterializations(fn))
	require.Zero(t, countBridges(fn))
	require.Equal(t, p, use.Operand(0))
}

func TestFinalizeFailsOnNonIdentityBridge(t *testing.T) {
	// A bridge whose operand and result disagree on representation cannot
	// be eliminated: legalization left an inconsistency.
	fn := ir.NewFunc("f")
	entry := fn.Entry()
	p := entry.AddParam(onnxTensor(dtypes.Float32, 2, 3))
	bridge := fn.NewNode(BridgeToTensor,
		[]ir.Type{ir.Tensor(ir.DialectCore, dtypes.Float32, 4)}, p)
	entry.Append(bridge)
	before := fn.NumLiveNodes()

	err := FinalizeMaterializations(fn)
	require.Error(t, err)
	var inconsistency *FinalizationInconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	// Nothing was rewritten.
	require.Equal(t, before, fn.NumLiveNodes())
	require.Equal(t, 1, countBridges(fn))
}

func TestFinalizeRemovesExtTruncPairs(t *testing.T) {
	f16T := ir.Tensor(ir.DialectCore, dtypes.Float16, 8)
	f32T := ir.Tensor(ir.DialectCore, dtypes.Float32, 8)
	fn := ir.NewFunc("f")
	entry := fn.Entry()
	p := entry.AddParam(f16T)
	ext := fn.NewNode(OpExtF, []ir.Type{f32T}, p).WithAttrs(ir.IntAttr("dtype", int64(dtypes.Float32)))
	entry.Append(ext)
	trunc := fn.NewNode(OpTruncF, []ir.Type{f16T}, ext.Result(0)).WithAttrs(ir.IntAttr("dtype", int64(dtypes.Float16)))
	entry.Append(trunc)
	use := fn.NewNode("tensor.use", nil, trunc.Result(0))
	entry.Append(use)

	require.NoError(t, FinalizeMaterializations(fn))
	require.Empty(t, findNodes(fn, OpExtF))
	require.Empty(t, findNodes(fn, OpTruncF))
	require.Equal(t, p, use.Operand(0))
}

func TestFinalizeKeepsInexactPrecisionRoundTrip(t *testing.T) {
	// truncf landing on a different width than the original is a real
	// conversion, not a cancellable pair.
	bf16T := ir.Tensor(ir.DialectCore, dtypes.BFloat16, 8)
	f16T := ir.Tensor(ir.DialectCore, dtypes.Float16, 8)
	f32T := ir.Tensor(ir.DialectCore, dtypes.Float32, 8)
	fn := ir.NewFunc("f")
	entry := fn.Entry()
	p := entry.AddParam(bf16T)
	ext := fn.NewNode(OpExtF, []ir.Type{f32T}, p)
	entry.Append(ext)
	trunc := fn.NewNode(OpTruncF, []ir.Type{f16T}, ext.Result(0))
	entry.Append(trunc)
	entry.Append(fn.NewNode("tensor.use", nil, trunc.Result(0)))

	require.NoError(t, FinalizeMaterializations(fn))
	require.Len(t, findNodes(fn, OpExtF), 1)
	require.Len(t, findNodes(fn, OpTruncF), 1)
}

func TestFinalizeStripsSourceAttrs(t *testing.T) {
	fn := ir.NewFunc("f").WithAttrs(
		ir.IntAttr("onnx.opset", 21),
		ir.StringAttr("onnx.producer", "onnxruntime"),
		ir.StringAttr("entry", "main"))

	require.NoError(t, FinalizeMaterializations(fn))
	attrs := fn.Attrs()
	require.Len(t, attrs, 1)
	require.Equal(t, "entry", attrs[0].Name)
}
