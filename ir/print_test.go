package ir

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

func TestPrintFunc(t *testing.T) {
	xT := Tensor(DialectONNX, dtypes.Float32, 2, 4)
	fn := NewFunc("attention", xT)
	entry := fn.Entry()
	a := entry.AddParam(xT)
	b := entry.AddParam(xT)
	add := fn.NewNode("core.add", []Type{xT}, a, b)
	entry.Append(add)
	relu := fn.NewNode("core.leaky_relu", []Type{xT}, add.Result(0)).
		WithAttrs(FloatAttr("alpha", 0.1))
	entry.Append(relu)
	entry.Append(fn.NewNode(OpReturn, nil, relu.Result(0)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "print_func", []byte(fn.String()))
}

func TestPrintBlocksAndTerminators(t *testing.T) {
	condT := Scalar(DialectCore, ScalarBool)
	xT := Tensor(DialectCore, dtypes.Float32, 4)
	fn := NewFunc("select")
	entry := fn.Entry()
	cond := entry.AddParam(condT)
	bb1 := fn.NewBlock(xT)
	bb2 := fn.NewBlock(xT)
	zeros := fn.NewNode("core.zeros", []Type{xT})
	entry.Append(zeros)
	entry.Append(fn.NewNode(OpCondBr, nil, cond, zeros.Result(0), zeros.Result(0)).
		WithSuccessors(bb1, bb2))
	bb1.Append(fn.NewNode(OpReturn, nil, bb1.Param(0)))
	bb2.Append(fn.NewNode(OpReturn, nil, bb2.Param(0)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "print_blocks", []byte(fn.String()))
}

func TestPrintIsDeterministic(t *testing.T) {
	xT := Tensor(DialectONNX, dtypes.Int8, 3)
	fn := NewFunc("f", xT)
	entry := fn.Entry()
	p := entry.AddParam(xT)
	n := fn.NewNode("Source", []Type{xT, xT}, p).WithAttrs(IntsAttr("pads", 0, 1))
	entry.Append(n)
	entry.Append(fn.NewNode(OpReturn, nil, n.Result(1)))

	first := fn.String()
	require.Equal(t, first, fn.String())
	require.Contains(t, first, "%0, %1 = Source(%arg0) {pads = [0, 1]} : (!onnx.tensor<3xi8>, !onnx.tensor<3xi8>)")
}
