package srgb

import (
	"math"
	"sync"

	"github.com/kovidgoyal/uplift/colorconv"
)

// The linear -> encoded direction is sampled at this many steps; the
// quantisation error stays well below half an 8-bit step.
const linear_steps = 4096

var encoded8ToLinearLUT = sync.OnceValue(func() (ans [256]float64) {
	for i := range ans {
		ans[i] = colorconv.SRGBToLinear(float64(i) / 255)
	}
	return
})

var encoded16ToLinearLUT = sync.OnceValue(func() []float64 {
	ans := make([]float64, math.MaxUint16+1)
	for i := range ans {
		ans[i] = colorconv.SRGBToLinear(float64(i) / math.MaxUint16)
	}
	return ans
})

var linearToEncoded8LUT = sync.OnceValue(func() (ans [linear_steps + 1]uint8) {
	for i := range ans {
		ans[i] = uint8(math.Round(255 * colorconv.LinearToSRGB(float64(i)/linear_steps)))
	}
	return
})

// From8Bit converts an 8-bit sRGB encoded value to a normalised linear value
// between 0.0 and 1.0.
func From8Bit(v uint8) float64 {
	return encoded8ToLinearLUT()[v]
}

// From16Bit converts a 16-bit sRGB encoded value to a normalised linear value
// between 0.0 and 1.0.
func From16Bit(v uint16) float64 {
	return encoded16ToLinearLUT()[v]
}

// To8Bit converts a linear value to an 8-bit sRGB encoded value, clipping the
// linear value to between 0.0 and 1.0.
//
// This implementation uses a look-up table and is approximate. For exact
// values use colorconv.LinearToSRGB.
func To8Bit(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return linearToEncoded8LUT()[int(v*linear_steps+0.5)]
}

// Vec8 converts a linear colour to 8-bit sRGB channels.
func Vec8(c colorconv.Vec3) (r, g, b uint8) {
	return To8Bit(c[0]), To8Bit(c[1]), To8Bit(c[2])
}
