package lower

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestQuantizeRoundTrip(t *testing.T) {
	// dequantize(quantize(x)) must reproduce x within one code step.
	for _, tc := range []struct {
		name  string
		x     float32
		scale float32
		zp    int64
		dt    dtypes.DType
	}{
		{"int8", 3.5, 0.5, 0, dtypes.Int8},
		{"int8_negative", -12.25, 0.25, 0, dtypes.Int8},
		{"uint8_with_zp", 1.5, 0.1, 128, dtypes.Uint8},
		{"int16", 100.0, 0.125, -3, dtypes.Int16},
		{"int32", 12345.0, 1.0, 0, dtypes.Int32},
	} {
		t.Run(tc.name, func(t *testing.T) {
			code, err := QuantizeToCode(tc.x, tc.scale, tc.zp, tc.dt)
			require.NoError(t, err)
			back, err := DequantizeCode(code, tc.scale, tc.zp, dtypes.Float32)
			require.NoError(t, err)
			// Round-trip bound: one unit in the last place of the code.
			require.InDelta(t, tc.x, back, float64(tc.scale))
		})
	}
}

func TestQuantizeSaturates(t *testing.T) {
	// Overflowing codes must clamp to the representable range, never wrap.
	code, err := QuantizeToCode(1e9, 0.5, 0, dtypes.Int8)
	require.NoError(t, err)
	require.Equal(t, int64(127), code)

	code, err = QuantizeToCode(-1e9, 0.5, 0, dtypes.Int8)
	require.NoError(t, err)
	require.Equal(t, int64(-128), code)

	// A zero point pushing the code past the top of the range.
	code, err = QuantizeToCode(200.0, 1.0, 100, dtypes.Uint8)
	require.NoError(t, err)
	require.Equal(t, int64(255), code)

	// Unsigned range clamps at zero from below.
	code, err = QuantizeToCode(-5.0, 1.0, 0, dtypes.Uint8)
	require.NoError(t, err)
	require.Equal(t, int64(0), code)
}

func TestQuantizeRejectsBadArguments(t *testing.T) {
	_, err := QuantizeToCode(1.0, 0.5, 0, dtypes.Float32)
	require.Error(t, err)

	_, err = QuantizeToCode(1.0, 0, 0, dtypes.Int8)
	require.Error(t, err)

	_, err = DequantizeCode(1, 0.5, 0, dtypes.Int8)
	require.Error(t, err)
}

func TestDequantizeFloat16Rounding(t *testing.T) {
	// The float16 output path must round through half precision: 0.1 * 3
	// is not representable in f16 and must land on the nearest half float.
	v32, err := DequantizeCode(3, 0.1, 0, dtypes.Float32)
	require.NoError(t, err)
	v16, err := DequantizeCode(3, 0.1, 0, dtypes.Float16)
	require.NoError(t, err)
	require.NotEqual(t, v32, v16)
	require.InDelta(t, v32, v16, 1e-3)
}

func TestQLinearAddEndToEndNumeric(t *testing.T) {
	// a = (int8, scale 0.5, zp 0) code 10 -> 5.0
	// b = (int8, scale 0.5, zp 0) code 10 -> 5.0
	// output (scale 1.0, zp 0): 5.0 + 5.0 = 10.0 -> code 10
	a := must.M1(DequantizeCode(10, 0.5, 0, dtypes.Float32))
	b := must.M1(DequantizeCode(10, 0.5, 0, dtypes.Float32))
	require.Equal(t, float32(5.0), a)
	require.Equal(t, float32(5.0), b)

	out := must.M1(QuantizeToCode(a+b, 1.0, 0, dtypes.Int8))
	require.Equal(t, int64(10), out)
}
