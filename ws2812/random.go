package ws2812

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// RandFunc returns a uniformly distributed integer in [lo, hi], inclusive at
// both ends. The default draws from math/rand; anything honoring the
// contract can replace it, which is how tests get deterministic colors.
type RandFunc func(lo, hi int) int

func defaultRand(lo, hi int) int {
	return lo + rand.Intn(hi-lo+1)
}

// draw invokes the generator and checks that it stayed within the requested
// range. A violation surfaces as ErrRand rather than being clamped.
func (b *Buffer) draw(lo, hi int) (int, error) {
	v := b.rng(lo, hi)
	if v < lo || v > hi {
		return 0, errors.Wrapf(ErrRand, "rng(%d,%d) gave %d", lo, hi, v)
	}
	return v, nil
}

// randPixel draws one value per channel, red then green then blue.
func (b *Buffer) randPixel() (Pixel, error) {
	var p Pixel
	var err error
	if p.R, err = b.draw(0, MaxChannel); err != nil {
		return Pixel{}, err
	}
	if p.G, err = b.draw(0, MaxChannel); err != nil {
		return Pixel{}, err
	}
	if p.B, err = b.draw(0, MaxChannel); err != nil {
		return Pixel{}, err
	}
	return p, nil
}

// randBrightness draws one brightness from [min, max]. The draw happens over
// the tenths scale, so results have one-decimal resolution.
func (b *Buffer) randBrightness(min, max float64) (float64, error) {
	if err := checkBrightness(min); err != nil {
		return 0, err
	}
	if err := checkBrightness(max); err != nil {
		return 0, err
	}
	if min > max {
		return 0, errors.Wrapf(ErrBrightness, "min %v > max %v", min, max)
	}
	v, err := b.draw(int(math.Round(min*10)), int(math.Round(max*10)))
	if err != nil {
		return 0, err
	}
	return float64(v) / 10, nil
}
