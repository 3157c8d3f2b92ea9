package lower

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// The per-tensor scale/zero-point algebra carried by the emitted
// core.dequantize and core.quantize ops:
//
//	real = (code - zero_point) * scale
//	code = round(real / scale) + zero_point, saturated to the integer range
//
// The functions here are the reference semantics the canonical ops must
// implement; the rules use quantizedRange to gate the dtypes they accept.

// quantizedRange returns the representable code range of a quantized
// element type.
func quantizedRange(dt dtypes.DType) (lo, hi int64, err error) {
	switch dt {
	case dtypes.Int8:
		return -128, 127, nil
	case dtypes.Uint8:
		return 0, 255, nil
	case dtypes.Int16:
		return -32768, 32767, nil
	case dtypes.Uint16:
		return 0, 65535, nil
	case dtypes.Int32:
		return -2147483648, 2147483647, nil
	default:
		return 0, 0, errors.Errorf("dtype %s is not a supported quantized type", dt)
	}
}

// QuantizeToCode quantizes a real value: round(x/scale) + zeroPoint,
// saturated (never wrapped) to dt's representable range.
func QuantizeToCode(x, scale float32, zeroPoint int64, dt dtypes.DType) (int64, error) {
	lo, hi, err := quantizedRange(dt)
	if err != nil {
		return 0, err
	}
	if scale == 0 {
		return 0, errors.Errorf("quantization scale must be non-zero")
	}
	// Compare in float64 before narrowing, so an overflowing code saturates
	// instead of wrapping.
	code := float64(math32.Round(x/scale)) + float64(zeroPoint)
	if code < float64(lo) {
		return lo, nil
	}
	if code > float64(hi) {
		return hi, nil
	}
	return int64(code), nil
}

// DequantizeCode recovers the real value of a quantized code:
// (code - zeroPoint) * scale. The out element type selects the storage
// rounding of the result; Float16 rounds through IEEE half precision.
func DequantizeCode(code int64, scale float32, zeroPoint int64, out dtypes.DType) (float32, error) {
	v := float32(code-zeroPoint) * scale
	switch out {
	case dtypes.Float32, dtypes.Float64:
		return v, nil
	case dtypes.Float16:
		return float16.Fromfloat32(v).Float32(), nil
	default:
		return 0, errors.Errorf("dtype %s is not a supported dequantization output type", out)
	}
}
