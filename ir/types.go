// Package ir provides the operator graph the lowering rules and the type
// conversion passes operate on: an arena-indexed graph of nodes over
// SSA-style typed values, organized in functions and blocks.
//
// Types carry a dialect tag: values produced by the ONNX frontend are tagged
// DialectONNX, and the backend type conversion passes retag the boundary to
// DialectCore while keeping the representation (element type and dimensions)
// unchanged.
package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
)

// Dialect tags which side of the conversion boundary a type belongs to.
type Dialect uint8

const (
	// DialectONNX marks types produced by the ONNX frontend, before backend
	// type conversion.
	DialectONNX Dialect = iota

	// DialectCore marks canonical backend types.
	DialectCore
)

// String implements fmt.Stringer.
func (d Dialect) String() string {
	switch d {
	case DialectONNX:
		return "onnx"
	case DialectCore:
		return "core"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

// DynamicDim denotes a dimension whose size is not statically known.
const DynamicDim = -1

// Type is the type of a Value: either a TensorType or a ScalarType.
type Type interface {
	fmt.Stringer
	isType()
}

// TensorType is a tensor-shaped type: an element type plus an optional
// static shape. Dims == nil means the rank itself is unknown; a dimension
// equal to DynamicDim is symbolic. Names optionally carries the symbolic
// dimension names, aligned with Dims.
//
// Modeled after DynamicShape in the onnx-gomlx converter.
type TensorType struct {
	Dialect Dialect
	Elem    dtypes.DType
	Dims    []int
	Names   []string
}

func (TensorType) isType() {}

// Tensor returns a ranked tensor type. Call with no dims for a rank-0
// (scalar-shaped) tensor.
func Tensor(d Dialect, elem dtypes.DType, dims ...int) TensorType {
	return TensorType{Dialect: d, Elem: elem, Dims: append([]int{}, dims...)}
}

// UnrankedTensor returns a tensor type whose rank is unknown.
func UnrankedTensor(d Dialect, elem dtypes.DType) TensorType {
	return TensorType{Dialect: d, Elem: elem}
}

// RankKnown reports whether the tensor's rank is statically known.
func (t TensorType) RankKnown() bool { return t.Dims != nil }

// Rank returns the tensor rank. Only meaningful if RankKnown.
func (t TensorType) Rank() int { return len(t.Dims) }

// AllDimsKnown reports whether the rank and every dimension are static.
func (t TensorType) AllDimsKnown() bool {
	if !t.RankKnown() {
		return false
	}
	for _, d := range t.Dims {
		if d == DynamicDim {
			return false
		}
	}
	return true
}

// WithDims returns a copy of the type with the given static dimensions.
func (t TensorType) WithDims(dims ...int) TensorType {
	return TensorType{Dialect: t.Dialect, Elem: t.Elem, Dims: append([]int{}, dims...)}
}

// WithElem returns a copy of the type with a different element type.
func (t TensorType) WithElem(elem dtypes.DType) TensorType {
	return TensorType{Dialect: t.Dialect, Elem: elem, Dims: slices.Clone(t.Dims), Names: slices.Clone(t.Names)}
}

// WithDialect returns a copy of the type retagged to the given dialect.
func (t TensorType) WithDialect(d Dialect) TensorType {
	return TensorType{Dialect: d, Elem: t.Elem, Dims: slices.Clone(t.Dims), Names: slices.Clone(t.Names)}
}

// String implements fmt.Stringer. The ONNX dialect prints with a "!onnx."
// prefix, the core dialect without, e.g. "!onnx.tensor<2x?xf32>" vs.
// "tensor<2x3xi8>".
func (t TensorType) String() string {
	var sb strings.Builder
	if t.Dialect == DialectONNX {
		sb.WriteString("!onnx.")
	}
	sb.WriteString("tensor<")
	if !t.RankKnown() {
		sb.WriteString("*x")
	} else {
		for _, d := range t.Dims {
			if d == DynamicDim {
				sb.WriteString("?x")
			} else {
				fmt.Fprintf(&sb, "%dx", d)
			}
		}
	}
	sb.WriteString(elemName(t.Elem))
	sb.WriteString(">")
	return sb.String()
}

// ScalarKind enumerates the scalar (non-tensor) value kinds.
type ScalarKind uint8

const (
	ScalarInt ScalarKind = iota
	ScalarFloat
	ScalarBool
)

// ScalarType is the type of a scalar value such as an extracted dimension
// size or a promoted attribute. The ONNX dialect scalars convert to i64, f64
// and i1 respectively.
type ScalarType struct {
	Dialect Dialect
	Kind    ScalarKind
}

func (ScalarType) isType() {}

// Scalar returns the scalar type of the given kind in the given dialect.
func Scalar(d Dialect, k ScalarKind) ScalarType {
	return ScalarType{Dialect: d, Kind: k}
}

// String implements fmt.Stringer.
func (t ScalarType) String() string {
	if t.Dialect == DialectONNX {
		switch t.Kind {
		case ScalarInt:
			return "!onnx.int"
		case ScalarFloat:
			return "!onnx.float"
		case ScalarBool:
			return "!onnx.bool"
		}
	}
	switch t.Kind {
	case ScalarInt:
		return "i64"
	case ScalarFloat:
		return "f64"
	case ScalarBool:
		return "i1"
	}
	return fmt.Sprintf("ScalarType(%d)", int(t.Kind))
}

// DialectOf returns the dialect tag of any Type.
func DialectOf(t Type) Dialect {
	switch tt := t.(type) {
	case TensorType:
		return tt.Dialect
	case ScalarType:
		return tt.Dialect
	}
	return DialectCore
}

// SameType reports whether two types are identical, dialect included.
func SameType(a, b Type) bool {
	switch at := a.(type) {
	case TensorType:
		bt, ok := b.(TensorType)
		if !ok {
			return false
		}
		return at.Dialect == bt.Dialect && at.Elem == bt.Elem &&
			at.RankKnown() == bt.RankKnown() && slices.Equal(at.Dims, bt.Dims)
	case ScalarType:
		bt, ok := b.(ScalarType)
		return ok && at == bt
	}
	return false
}

// SameRepresentation reports whether two types have the same in-memory
// representation, ignoring the dialect tag.
func SameRepresentation(a, b Type) bool {
	switch at := a.(type) {
	case TensorType:
		bt, ok := b.(TensorType)
		if !ok {
			return false
		}
		return at.Elem == bt.Elem && at.RankKnown() == bt.RankKnown() &&
			slices.Equal(at.Dims, bt.Dims)
	case ScalarType:
		bt, ok := b.(ScalarType)
		return ok && at.Kind == bt.Kind
	}
	return false
}

// elemName returns the short element type spelling used by the printer.
func elemName(dt dtypes.DType) string {
	switch dt {
	case dtypes.Float16:
		return "f16"
	case dtypes.BFloat16:
		return "bf16"
	case dtypes.Float32:
		return "f32"
	case dtypes.Float64:
		return "f64"
	case dtypes.Int8:
		return "i8"
	case dtypes.Int16:
		return "i16"
	case dtypes.Int32:
		return "i32"
	case dtypes.Int64:
		return "i64"
	case dtypes.Uint8:
		return "u8"
	case dtypes.Uint16:
		return "u16"
	case dtypes.Uint32:
		return "u32"
	case dtypes.Uint64:
		return "u64"
	case dtypes.Bool:
		return "i1"
	}
	return dt.String()
}
