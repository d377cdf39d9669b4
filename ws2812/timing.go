package ws2812

import (
	"time"

	"github.com/pkg/errors"
)

// Timing describes the pulse protocol for one logical bit in ticks of the
// generator clock. A 1 bit is high for T1+T2 ticks then low for T3; a 0 bit
// is high for T1 then low for T2+T3.
type Timing struct {
	T1     int
	T2     int
	T3     int
	TickHz int
}

// DefaultTiming is the WS2812 protocol at an 8MHz tick: 1.25us per bit, a 1
// bit high for 875ns, a 0 bit high for 250ns.
var DefaultTiming = Timing{T1: 2, T2: 5, T3: 3, TickHz: 8000000}

const (
	// MinLatch is the shortest low period the strip accepts as end-of-frame.
	MinLatch = 50 * time.Microsecond

	// DefaultLatch is the low period actually left between frames, with a
	// little slack over MinLatch.
	DefaultLatch = 55 * time.Microsecond
)

func (t Timing) Validate() error {
	if t.T1 <= 0 || t.T2 <= 0 || t.T3 <= 0 {
		return errors.Wrapf(ErrTiming, "pulse widths %d/%d/%d", t.T1, t.T2, t.T3)
	}
	if t.TickHz <= 0 {
		return errors.Wrapf(ErrTiming, "tick frequency %d", t.TickHz)
	}
	return nil
}

// TicksPerBit returns the generator ticks making up one logical bit.
func (t Timing) TicksPerBit() int {
	return t.T1 + t.T2 + t.T3
}

// BitPeriod returns the wall-clock duration of one logical bit.
func (t Timing) BitPeriod() time.Duration {
	return time.Duration(t.TicksPerBit()) * time.Second / time.Duration(t.TickHz)
}

// FrameDuration returns how long the substrate takes to drain a frame of
// numWords words of wordBits bits each.
func (t Timing) FrameDuration(numWords, wordBits int) time.Duration {
	ticks := numWords * wordBits * t.TicksPerBit()
	return time.Duration(ticks) * time.Second / time.Duration(t.TickHz)
}
