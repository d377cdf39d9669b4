// Package ws2812 models a strip of WS2812-family addressable LEDs: one raw
// color and one independent brightness per pixel, composed at refresh time
// into the 24-bit wire words the strip decodes. The model never bakes
// brightness into stored colors, so dimming stays reversible.
package ws2812

import (
	"math"

	"github.com/pkg/errors"
)

// DefaultBrightness is the brightness every pixel starts at unless
// WithBrightness overrides it.
const DefaultBrightness = 0.1

// Buffer holds the logical state of one strip. It is not safe for concurrent
// use; a strip has exactly one owner.
type Buffer struct {
	colors     []uint32
	brightness []float64
	tx         Transmitter
	rng        RandFunc
	deferred   bool
	batchDepth int
}

// Option configures a Buffer at construction.
type Option func(*Buffer) error

// WithBrightness sets the initial brightness of every pixel.
func WithBrightness(f float64) Option {
	return func(b *Buffer) error {
		if err := checkBrightness(f); err != nil {
			return err
		}
		for i := range b.brightness {
			b.brightness[i] = f
		}
		return nil
	}
}

// WithRand replaces the default random generator.
func WithRand(r RandFunc) Option {
	return func(b *Buffer) error {
		b.rng = r
		return nil
	}
}

// WithDeferredRefresh turns off the automatic refresh after every mutation.
// The owner then decides when frames go out by calling Refresh.
func WithDeferredRefresh() Option {
	return func(b *Buffer) error {
		b.deferred = true
		return nil
	}
}

// New creates a Buffer for a strip of numPixels LEDs whose frames go out
// through tx. Every pixel starts black at DefaultBrightness, and every
// mutation transmits a fresh frame unless WithDeferredRefresh or Batch says
// otherwise.
func New(numPixels int, tx Transmitter, opts ...Option) (*Buffer, error) {
	if numPixels <= 0 {
		return nil, errors.Wrapf(ErrOutOfRange, "strip length %d", numPixels)
	}
	b := &Buffer{
		colors:     make([]uint32, numPixels),
		brightness: make([]float64, numPixels),
		tx:         tx,
		rng:        defaultRand,
	}
	for i := range b.brightness {
		b.brightness[i] = DefaultBrightness
	}
	for _, o := range opts {
		if err := o(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Buffer) NumPixels() int {
	return len(b.colors)
}

func (b *Buffer) checkIndex(i int) error {
	if i < 0 || i >= len(b.colors) {
		return errors.Wrapf(ErrOutOfRange, "pixel %d of %d", i, len(b.colors))
	}
	return nil
}

func (b *Buffer) checkRange(start, length int) error {
	if start < 0 || length < 0 || start+length > len(b.colors) {
		return errors.Wrapf(ErrOutOfRange, "range [%d,%d) of %d", start, start+length, len(b.colors))
	}
	return nil
}

func checkBrightness(f float64) error {
	if f < 0 || f > 1 || math.IsNaN(f) {
		return errors.Wrapf(ErrBrightness, "%v", f)
	}
	return nil
}

// SetPixel stores p as pixel i's raw color. Brightness is untouched.
func (b *Buffer) SetPixel(i int, p Pixel) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	b.colors[i] = p.pack()
	return b.autoRefresh()
}

// SetPixelOff turns pixel i black.
func (b *Buffer) SetPixelOff(i int) error {
	return b.SetPixel(i, Pixel{})
}

// SetBrightness stores f as pixel i's brightness. Color is untouched.
func (b *Buffer) SetBrightness(i int, f float64) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	if err := checkBrightness(f); err != nil {
		return err
	}
	b.brightness[i] = f
	return b.autoRefresh()
}

// SetPixelRandom gives pixel i an independently drawn random color.
func (b *Buffer) SetPixelRandom(i int) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	p, err := b.randPixel()
	if err != nil {
		return err
	}
	b.colors[i] = p.pack()
	return b.autoRefresh()
}

// SetBrightnessRandom draws one brightness from [min, max] for pixel i.
func (b *Buffer) SetBrightnessRandom(i int, min, max float64) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	f, err := b.randBrightness(min, max)
	if err != nil {
		return err
	}
	b.brightness[i] = f
	return b.autoRefresh()
}

// SetRange stores p at every pixel in [start, start+length).
func (b *Buffer) SetRange(start, length int, p Pixel) error {
	if err := b.checkRange(start, length); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	c := p.pack()
	for i := start; i < start+length; i++ {
		b.colors[i] = c
	}
	return b.autoRefresh()
}

// SetRangeOff turns every pixel in [start, start+length) black.
func (b *Buffer) SetRangeOff(start, length int) error {
	return b.SetRange(start, length, Pixel{})
}

// SetRangeBrightness stores f at every pixel in [start, start+length).
func (b *Buffer) SetRangeBrightness(start, length int, f float64) error {
	if err := b.checkRange(start, length); err != nil {
		return err
	}
	if err := checkBrightness(f); err != nil {
		return err
	}
	for i := start; i < start+length; i++ {
		b.brightness[i] = f
	}
	return b.autoRefresh()
}

// SetRangeRandom draws an independent random color for every pixel in
// [start, start+length), giving speckled output.
func (b *Buffer) SetRangeRandom(start, length int) error {
	if err := b.checkRange(start, length); err != nil {
		return err
	}
	for i := start; i < start+length; i++ {
		p, err := b.randPixel()
		if err != nil {
			return err
		}
		b.colors[i] = p.pack()
	}
	return b.autoRefresh()
}

// SetRangeRandomSolid draws one random color and fills [start, start+length)
// with it.
func (b *Buffer) SetRangeRandomSolid(start, length int) error {
	if err := b.checkRange(start, length); err != nil {
		return err
	}
	p, err := b.randPixel()
	if err != nil {
		return err
	}
	c := p.pack()
	for i := start; i < start+length; i++ {
		b.colors[i] = c
	}
	return b.autoRefresh()
}

// SetRangeBrightnessRandom draws an independent brightness from [min, max]
// for every pixel in [start, start+length).
func (b *Buffer) SetRangeBrightnessRandom(start, length int, min, max float64) error {
	if err := b.checkRange(start, length); err != nil {
		return err
	}
	for i := start; i < start+length; i++ {
		f, err := b.randBrightness(min, max)
		if err != nil {
			return err
		}
		b.brightness[i] = f
	}
	return b.autoRefresh()
}

// SetRangeBrightnessRandomSolid draws one brightness from [min, max] and
// applies it to every pixel in [start, start+length).
func (b *Buffer) SetRangeBrightnessRandomSolid(start, length int, min, max float64) error {
	if err := b.checkRange(start, length); err != nil {
		return err
	}
	f, err := b.randBrightness(min, max)
	if err != nil {
		return err
	}
	for i := start; i < start+length; i++ {
		b.brightness[i] = f
	}
	return b.autoRefresh()
}

// SetColors stores colors[k] at pixel start+k. A nil entry means "draw an
// independent random color for that pixel", so one call can mix fixed and
// random pixels. Fixed entries are validated before anything is stored.
func (b *Buffer) SetColors(start int, colors []*Pixel) error {
	if err := b.checkRange(start, len(colors)); err != nil {
		return err
	}
	for _, p := range colors {
		if p == nil {
			continue
		}
		if err := p.validate(); err != nil {
			return err
		}
	}
	for k, p := range colors {
		if p == nil {
			rp, err := b.randPixel()
			if err != nil {
				return err
			}
			b.colors[start+k] = rp.pack()
			continue
		}
		b.colors[start+k] = p.pack()
	}
	return b.autoRefresh()
}

func (b *Buffer) SetAll(p Pixel) error {
	return b.SetRange(0, len(b.colors), p)
}

func (b *Buffer) SetAllOff() error {
	return b.SetRangeOff(0, len(b.colors))
}

func (b *Buffer) SetAllRandom() error {
	return b.SetRangeRandom(0, len(b.colors))
}

func (b *Buffer) SetAllRandomSolid() error {
	return b.SetRangeRandomSolid(0, len(b.colors))
}

func (b *Buffer) SetAllBrightness(f float64) error {
	return b.SetRangeBrightness(0, len(b.colors), f)
}

func (b *Buffer) SetAllBrightnessRandom(min, max float64) error {
	return b.SetRangeBrightnessRandom(0, len(b.colors), min, max)
}

func (b *Buffer) SetAllBrightnessRandomSolid(min, max float64) error {
	return b.SetRangeBrightnessRandomSolid(0, len(b.colors), min, max)
}

// GetPixel returns pixel i's raw color, before brightness scaling.
func (b *Buffer) GetPixel(i int) (Pixel, error) {
	if err := b.checkIndex(i); err != nil {
		return Pixel{}, err
	}
	return unpack(b.colors[i]), nil
}

// GetPixels returns the raw colors of the whole strip.
func (b *Buffer) GetPixels() []Pixel {
	p := make([]Pixel, len(b.colors))
	for i, c := range b.colors {
		p[i] = unpack(c)
	}
	return p
}

func (b *Buffer) GetBrightness(i int) (float64, error) {
	if err := b.checkIndex(i); err != nil {
		return 0, err
	}
	return b.brightness[i], nil
}

// IsOn reports whether pixel i will actually light. A raw color of black at
// any brightness and any color at zero brightness both count as off.
func (b *Buffer) IsOn(i int) (bool, error) {
	if err := b.checkIndex(i); err != nil {
		return false, err
	}
	return b.colors[i] != 0 && b.brightness[i] != 0, nil
}

// SetRand replaces the random generator for all subsequent draws. r must not
// be nil.
func (b *Buffer) SetRand(r RandFunc) {
	b.rng = r
}

// TransmitWords composes the frame the strip should display: every raw
// channel scaled by its pixel's brightness, floored, clamped to
// [0, MaxChannel] and repacked in wire order. It never mutates the buffer.
func (b *Buffer) TransmitWords() []uint32 {
	w := make([]uint32, len(b.colors))
	for i, c := range b.colors {
		w[i] = scale(c, b.brightness[i])
	}
	return w
}

// scale applies a brightness factor to one packed color. Channels floor, so
// zero brightness is exactly black.
func scale(c uint32, f float64) uint32 {
	g := clamp(int(float64((c >> 16) & 0xff) * f))
	r := clamp(int(float64((c >> 8) & 0xff) * f))
	bl := clamp(int(float64(c&0xff) * f))
	return uint32(g)<<16 | uint32(r)<<8 | uint32(bl)
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxChannel {
		return MaxChannel
	}
	return v
}

// Refresh transmits the current frame.
func (b *Buffer) Refresh() error {
	if err := b.tx.Transmit(b.TransmitWords(), WordBits); err != nil {
		return errors.Wrap(err, "couldn't transmit frame")
	}
	return nil
}

func (b *Buffer) autoRefresh() error {
	if b.deferred || b.batchDepth > 0 {
		return nil
	}
	return b.Refresh()
}

// Batch runs fn with automatic refreshes suspended, then flushes the result
// as one frame. Batches nest; only the outermost flushes. In deferred mode
// nothing flushes and the owner still calls Refresh.
func (b *Buffer) Batch(fn func() error) error {
	b.batchDepth++
	defer func() {
		b.batchDepth--
	}()
	if err := fn(); err != nil {
		return err
	}
	if b.batchDepth == 1 && !b.deferred {
		return b.Refresh()
	}
	return nil
}
