package lower

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/onnx-lower/ir"
)

func TestTypeConverterIsTotal(t *testing.T) {
	tc := NewTypeConverter()

	onnxT := onnxTensor(dtypes.Float32, 2, ir.DynamicDim)
	coreT := tc.Convert(onnxT)
	require.False(t, tc.IsLegal(onnxT))
	require.True(t, tc.IsLegal(coreT))
	// Only the dialect tag changes.
	require.True(t, ir.SameRepresentation(onnxT, coreT))
	// Already-canonical types convert to themselves.
	require.True(t, ir.SameType(coreT, tc.Convert(coreT)))

	onnxInt := ir.Scalar(ir.DialectONNX, ir.ScalarInt)
	require.True(t, ir.SameType(ir.Scalar(ir.DialectCore, ir.ScalarInt), tc.Convert(onnxInt)))
}

// legalizableFunc builds func @f(%arg0: !onnx.tensor<2x3xf32>) with a body
// op consuming the parameter and a return of the op's result.
func legalizableFunc() (*ir.Func, *ir.Node) {
	xT := onnxTensor(dtypes.Float32, 2, 3)
	fn := ir.NewFunc("f", xT)
	entry := fn.Entry()
	p := entry.AddParam(xT)
	body := fn.NewNode("some.op", []ir.Type{xT}, p)
	entry.Append(body)
	entry.Append(fn.NewNode(ir.OpReturn, nil, body.Result(0)))
	return fn, body
}

func TestConvertFuncTypesInsertsBridges(t *testing.T) {
	fn, body := legalizableFunc()
	tc := NewTypeConverter()
	require.NoError(t, ConvertFuncTypes(fn, tc))

	// Signature and results are canonical now.
	for _, p := range fn.Entry().Params() {
		require.True(t, tc.IsLegal(p.Type()))
	}
	for _, rt := range fn.Results() {
		require.True(t, tc.IsLegal(rt))
	}

	// One bridge back to the source type for the parameter's use, one to
	// the canonical type for the return operand.
	require.Len(t, findNodes(fn, BridgeFromTensor), 1)
	require.Len(t, findNodes(fn, BridgeToTensor), 1)

	// The body op still sees its original source-dialect type.
	require.Equal(t, ir.DialectONNX, ir.DialectOf(body.Operand(0).Type()))

	// The return now carries the canonical type.
	term := fn.Entry().Terminator()
	require.NotNil(t, term)
	require.True(t, tc.IsLegal(term.Operand(0).Type()))
}

func TestConvertThenFinalizeRoundTrip(t *testing.T) {
	fn, body := legalizableFunc()
	bodyResult := body.Result(0)

	require.NoError(t, ConvertFuncTypes(fn, NewTypeConverter()))
	require.NoError(t, FinalizeMaterializations(fn))

	// No bridge survives, and the body op's result value is untouched: the
	// return consumes it directly again.
	require.Zero(t, countBridges(fn))
	require.Equal(t, bodyResult, body.Result(0))
	term := fn.Entry().Terminator()
	require.Equal(t, bodyResult, term.Operand(0))
}

func TestConvertFuncTypesBranches(t *testing.T) {
	xT := onnxTensor(dtypes.Float32, 4)
	fn := ir.NewFunc("g", xT)
	entry := fn.Entry()
	p := entry.AddParam(xT)
	bb1 := fn.NewBlock(xT)
	entry.Append(fn.NewNode(ir.OpBr, nil, p).WithSuccessors(bb1))
	bb1.Append(fn.NewNode(ir.OpReturn, nil, bb1.Param(0)))

	tc := NewTypeConverter()
	require.NoError(t, ConvertFuncTypes(fn, tc))

	// The successor parameter converted, and the branch argument was
	// bridged to match it.
	require.True(t, tc.IsLegal(bb1.Param(0).Type()))
	br := entry.Terminator()
	require.True(t, tc.IsLegal(br.Operand(0).Type()))

	require.NoError(t, FinalizeMaterializations(fn))
	require.Zero(t, countBridges(fn))
}

func TestConvertFuncTypesScalarBridgeKinds(t *testing.T) {
	intT := ir.Scalar(ir.DialectONNX, ir.ScalarInt)
	fn := ir.NewFunc("h")
	entry := fn.Entry()
	p := entry.AddParam(intT)
	use := fn.NewNode("scalar.use", []ir.Type{intT}, p)
	entry.Append(use)
	entry.Append(fn.NewNode(ir.OpReturn, nil))

	require.NoError(t, ConvertFuncTypes(fn, NewTypeConverter()))
	// Scalar ints bridge through the i64 bridge kind, not the tensor one.
	require.Len(t, findNodes(fn, BridgeFromI64), 1)
	require.Empty(t, findNodes(fn, BridgeFromTensor))
}

func TestConvertFuncTypesFailsWithoutMutating(t *testing.T) {
	xT := onnxTensor(dtypes.Float32, 2, 3)
	fn := ir.NewFunc("f", xT)
	entry := fn.Entry()
	p := entry.AddParam(xT)
	// A stray pre-existing bridge makes the function unconvertible.
	stray := fn.NewNode(BridgeToTensor, []ir.Type{xT.WithDialect(ir.DialectCore)}, p)
	entry.Append(stray)
	entry.Append(fn.NewNode(ir.OpReturn, nil, stray.Result(0)))
	before := fn.NumLiveNodes()

	err := ConvertFuncTypes(fn, NewTypeConverter())
	require.Error(t, err)
	var complErr *ConversionCompletenessError
	require.ErrorAs(t, err, &complErr)

	// The failure left the function exactly as it was.
	require.Equal(t, before, fn.NumLiveNodes())
	require.True(t, ir.SameType(xT, p.Type()))
	require.True(t, ir.SameType(xT, fn.Results()[0]))
}

func TestConvertFuncTypesRejectsUnknownTerminator(t *testing.T) {
	xT := onnxTensor(dtypes.Float32, 2)
	fn := ir.NewFunc("f")
	entry := fn.Entry()
	p := entry.AddParam(xT)
	bb1 := fn.NewBlock()
	entry.Append(fn.NewNode("weird.jump", nil, p).WithSuccessors(bb1))
	bb1.Append(fn.NewNode(ir.OpReturn, nil))

	err := ConvertFuncTypes(fn, NewTypeConverter())
	require.Error(t, err)
	var complErr *ConversionCompletenessError
	require.ErrorAs(t, err, &complErr)
	// Untouched on failure.
	require.True(t, ir.SameType(xT, p.Type()))
}
