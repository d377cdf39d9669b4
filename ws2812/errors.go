package ws2812

import (
	"github.com/pkg/errors"
)

// Sentinel errors for the failure classes Buffer operations can hit. Call
// sites wrap these with the offending values; test with errors.Is.
var (
	// ErrOutOfRange is a pixel index or range that falls outside the strip.
	// Requests are rejected outright, never clamped.
	ErrOutOfRange = errors.New("pixel index out of range")

	// ErrChannel is a color channel value outside [0, MaxChannel].
	ErrChannel = errors.New("channel value out of range")

	// ErrBrightness is a brightness value outside [0, 1].
	ErrBrightness = errors.New("brightness out of range")

	// ErrRand means the injected random generator returned a value outside
	// the range it was asked for.
	ErrRand = errors.New("random generator returned out-of-range value")

	// ErrTiming is a Timing that can't describe a usable waveform.
	ErrTiming = errors.New("invalid timing")
)
