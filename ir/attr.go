package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// AttrKind enumerates the attribute payload kinds, mirroring the scalar and
// list attribute types of ONNX.
type AttrKind uint8

const (
	AttrInt AttrKind = iota
	AttrFloat
	AttrString
	AttrInts
	AttrFloats
	AttrStrings
)

// String implements fmt.Stringer.
func (k AttrKind) String() string {
	switch k {
	case AttrInt:
		return "int"
	case AttrFloat:
		return "float"
	case AttrString:
		return "string"
	case AttrInts:
		return "ints"
	case AttrFloats:
		return "floats"
	case AttrStrings:
		return "strings"
	}
	return fmt.Sprintf("AttrKind(%d)", int(k))
}

// Attr is a named, typed attribute attached to a node. Only the field
// selected by Kind is meaningful.
type Attr struct {
	Name    string
	Kind    AttrKind
	I       int64
	F       float32
	S       string
	Ints    []int64
	Floats  []float32
	Strings []string
}

// IntAttr returns an integer attribute.
func IntAttr(name string, v int64) Attr { return Attr{Name: name, Kind: AttrInt, I: v} }

// FloatAttr returns a float attribute.
func FloatAttr(name string, v float32) Attr { return Attr{Name: name, Kind: AttrFloat, F: v} }

// StringAttr returns a string attribute.
func StringAttr(name, v string) Attr { return Attr{Name: name, Kind: AttrString, S: v} }

// IntsAttr returns an integer list attribute.
func IntsAttr(name string, vs ...int64) Attr {
	return Attr{Name: name, Kind: AttrInts, Ints: append([]int64{}, vs...)}
}

// FloatsAttr returns a float list attribute.
func FloatsAttr(name string, vs ...float32) Attr {
	return Attr{Name: name, Kind: AttrFloats, Floats: append([]float32{}, vs...)}
}

// StringsAttr returns a string list attribute.
func StringsAttr(name string, vs ...string) Attr {
	return Attr{Name: name, Kind: AttrStrings, Strings: append([]string{}, vs...)}
}

// valueString renders the attribute payload for the printer.
func (a Attr) valueString() string {
	switch a.Kind {
	case AttrInt:
		return strconv.FormatInt(a.I, 10)
	case AttrFloat:
		return formatFloat(a.F)
	case AttrString:
		return strconv.Quote(a.S)
	case AttrInts:
		parts := make([]string, len(a.Ints))
		for i, v := range a.Ints {
			parts[i] = strconv.FormatInt(v, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case AttrFloats:
		parts := make([]string, len(a.Floats))
		for i, v := range a.Floats {
			parts[i] = formatFloat(v)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case AttrStrings:
		parts := make([]string, len(a.Strings))
		for i, v := range a.Strings {
			parts[i] = strconv.Quote(v)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "?"
}

func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
