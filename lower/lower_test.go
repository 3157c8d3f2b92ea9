package lower

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/gomlx/onnx-lower/ir"
)

// Shared graph-building helpers for the package tests.

func onnxTensor(elem dtypes.DType, dims ...int) ir.TensorType {
	return ir.Tensor(ir.DialectONNX, elem, dims...)
}

// newSourceNode builds a one-block function whose entry parameters feed a
// single node of the given op, and returns that node. The usual fixture for
// exercising one lowering rule.
func newSourceNode(op string, opset int, operandTypes []ir.Type, resultTypes []ir.Type, attrs ...ir.Attr) *ir.Node {
	fn := ir.NewFunc("fixture")
	entry := fn.Entry()
	operands := make([]*ir.Value, 0, len(operandTypes))
	for _, t := range operandTypes {
		operands = append(operands, entry.AddParam(t))
	}
	n := fn.NewNode(op, resultTypes, operands...).WithOpset(opset).WithAttrs(attrs...)
	entry.Append(n)
	return n
}

// findNodes returns fn's live nodes with the given op, in program order.
func findNodes(fn *ir.Func, op string) []*ir.Node {
	var found []*ir.Node
	for _, b := range fn.Blocks() {
		for _, n := range b.Nodes() {
			if n.Op() == op {
				found = append(found, n)
			}
		}
	}
	return found
}

// countBridges counts the live materialization bridge nodes in fn.
func countBridges(fn *ir.Func) int {
	count := 0
	for _, b := range fn.Blocks() {
		for _, n := range b.Nodes() {
			if IsBridge(n.Op()) {
				count++
			}
		}
	}
	return count
}
