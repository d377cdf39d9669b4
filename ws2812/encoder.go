package ws2812

import (
	"time"

	"github.com/pkg/errors"
)

// WordBits is the width of one transmit word on the wire: three 8-bit
// channels per pixel.
const WordBits = 24

// Transmitter is what a Buffer needs from the transmit path: hand off one
// frame of words, each carrying its payload in the low wordBits bits. Word 0
// is the LED nearest the data pin.
type Transmitter interface {
	Transmit(words []uint32, wordBits int) error
}

// WordStreamer is the timing-generator substrate. It emits each word's low
// wordBits bits most-significant-first, words back-to-back with no gap, at
// the pulse timing it was configured with. The hand-off may return before
// the frame has drained.
type WordStreamer interface {
	StreamWords(words []uint32, wordBits int) error
}

// Encoder paces frames onto a WordStreamer so that consecutive frames are
// separated by at least the strip's latch period. The substrate drains each
// frame on its own, so pacing works on wall-clock time from the hand-off.
type Encoder struct {
	s     WordStreamer
	t     Timing
	latch time.Duration

	busyUntil time.Time

	// Clock hooks, swapped out in tests.
	now   func() time.Time
	sleep func(time.Duration)
}

var _ Transmitter = (*Encoder)(nil)

type EncoderOption func(*Encoder)

// WithLatch overrides the inter-frame latch period. It cannot go below
// MinLatch.
func WithLatch(d time.Duration) EncoderOption {
	return func(e *Encoder) {
		e.latch = d
	}
}

func NewEncoder(s WordStreamer, t Timing, opts ...EncoderOption) (*Encoder, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	e := &Encoder{
		s:     s,
		t:     t,
		latch: DefaultLatch,
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, o := range opts {
		o(e)
	}
	if e.latch < MinLatch {
		return nil, errors.Wrapf(ErrTiming, "latch %v below minimum %v", e.latch, MinLatch)
	}
	return e, nil
}

// Transmit blocks until the previous frame has drained and the latch period
// has passed, then hands the words to the substrate.
func (e *Encoder) Transmit(words []uint32, wordBits int) error {
	if wait := e.busyUntil.Sub(e.now()); wait > 0 {
		e.sleep(wait)
	}
	if err := e.s.StreamWords(words, wordBits); err != nil {
		return errors.Wrap(err, "couldn't stream frame")
	}
	e.busyUntil = e.now().Add(e.t.FrameDuration(len(words), wordBits) + e.latch)
	return nil
}
