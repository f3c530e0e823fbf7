package srgb

import (
	"math"
	"testing"

	"github.com/kovidgoyal/uplift/colorconv"
	"github.com/stretchr/testify/require"
)

func TestLUTRoundtrip8(t *testing.T) {
	for i := range 256 {
		v := uint8(i)
		require.Equal(t, v, To8Bit(From8Bit(v)), "value: %d", i)
	}
}

func TestLUTMatchesExact(t *testing.T) {
	for i := 0; i <= math.MaxUint16; i += 257 {
		require.InDelta(t, colorconv.SRGBToLinear(float64(i)/math.MaxUint16), From16Bit(uint16(i)), 1e-12)
	}
	require.Equal(t, uint8(0), To8Bit(-1))
	require.Equal(t, uint8(0), To8Bit(math.NaN()))
	require.Equal(t, uint8(255), To8Bit(2))
}
