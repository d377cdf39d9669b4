package rpi

import (
	"fmt"
	"time"

	"github.com/ledcore/ws2812ctl/ws2812"
)

const defaultDMAChannel = 10

type serializerConfig struct {
	dmaChannel int
	latch      time.Duration
}

type SerializerOption func(*serializerConfig)

// WithDMAChannel picks the DMA channel that feeds the PWM FIFO. Channels 0-6
// tend to be claimed by the GPU; the default of 10 is normally free.
func WithDMAChannel(channel int) SerializerOption {
	return func(c *serializerConfig) {
		c.dmaChannel = channel
	}
}

// WithLatch overrides the low period appended after each frame's ticks.
func WithLatch(d time.Duration) SerializerOption {
	return func(c *serializerConfig) {
		c.latch = d
	}
}

// Serializer drives one PWM channel in serializer mode, feeding it
// rasterized pulse ticks over DMA. It implements ws2812.WordStreamer: words
// go out back to back, each frame followed by the latch period of driven-low
// line. The DMA buffer is sized once, for frames of up to maxWords words of
// up to 32 bits each.
type Serializer struct {
	rp         *RPi
	buf        *DMABuf
	ticks      []uint32
	timing     ws2812.Timing
	maxWords   int
	latchTicks int
	channel    int
	pin        int
}

var _ ws2812.WordStreamer = (*Serializer)(nil)

// NewSerializer opens the hardware and brings up the PWM and DMA for frames
// of up to maxWords words on the given data pin.
func NewSerializer(pin, maxWords int, t ws2812.Timing, opts ...SerializerOption) (*Serializer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if maxWords <= 0 {
		return nil, fmt.Errorf("bad capacity %d words", maxWords)
	}
	cfg := serializerConfig{
		dmaChannel: defaultDMAChannel,
		latch:      ws2812.DefaultLatch,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.latch < ws2812.MinLatch {
		return nil, fmt.Errorf("latch %v below the strip's %v reset time", cfg.latch, ws2812.MinLatch)
	}
	channel, ok := pwmChannelForPin(pin)
	if !ok {
		return nil, fmt.Errorf("pin %d has no PWM function", pin)
	}

	rp, err := NewRPi()
	if err != nil {
		return nil, fmt.Errorf("couldn't open hardware: %v", err)
	}
	s := Serializer{
		rp:         rp,
		timing:     t,
		maxWords:   maxWords,
		latchTicks: latchTickCount(cfg.latch, t.TickHz),
		channel:    channel,
		pin:        pin,
	}
	bytes := uint(4 * tickWords(maxWords*32*t.TicksPerBit()+s.latchTicks))
	s.buf, err = rp.GetDMABuf(bytes)
	if err != nil {
		rp.Close() // Ignore error
		return nil, fmt.Errorf("couldn't get DMA buffer: %v", err)
	}
	err = rp.initDMA(cfg.dmaChannel)
	if err != nil {
		rp.FreeDMABuf(s.buf) // Ignore error
		rp.Close()           // Ignore error
		return nil, fmt.Errorf("couldn't init DMA: %v", err)
	}
	err = rp.initPWM(uint32(t.TickHz), s.buf, bytes, channel, pin)
	if err != nil {
		rp.FreeDMABuf(s.buf) // Ignore error
		rp.Close()           // Ignore error
		return nil, fmt.Errorf("couldn't init PWM: %v", err)
	}
	s.ticks = s.buf.Uint32Slice()
	return &s, nil
}

// StreamWords rasterizes one frame into the DMA buffer and starts it
// playing. It blocks until any previous frame has drained, never while this
// one plays.
func (s *Serializer) StreamWords(words []uint32, wordBits int) error {
	if wordBits <= 0 || wordBits > 32 {
		return fmt.Errorf("word width %d out of range", wordBits)
	}
	if len(words) > s.maxWords {
		return fmt.Errorf("frame of %d words exceeds capacity %d", len(words), s.maxWords)
	}
	if err := s.rp.WaitForDMAEnd(); err != nil {
		return fmt.Errorf("previous frame didn't drain: %v", err)
	}
	n := rasterizeFrame(s.ticks, words, wordBits, s.timing, s.latchTicks)
	s.buf.SetFrameLen(n)
	s.rp.StartDMA(s.buf)
	return nil
}

// Pi exposes the underlying hardware handle, e.g. for GPIO power control of
// the LED supply rail.
func (s *Serializer) Pi() *RPi {
	return s.rp
}

// Close waits for the last frame to drain, quiets the pin and releases the
// hardware.
func (s *Serializer) Close() error {
	err := s.rp.WaitForDMAEnd()
	te := s.rp.FreeDMABuf(s.buf)
	if err == nil {
		err = te
	}
	te = s.rp.Close()
	if err == nil {
		err = te
	}
	return err
}

// latchTickCount converts the latch duration to generator ticks, rounding
// up so the line never idles short.
func latchTickCount(latch time.Duration, tickHz int) int {
	n := int64(latch) * int64(tickHz)
	return int((n + int64(time.Second) - 1) / int64(time.Second))
}

// tickWords returns how many 32-bit serializer words hold the given number
// of ticks.
func tickWords(ticks int) int {
	return (ticks + 31) / 32
}

// rasterizeFrame expands logical words into serializer ticks in dst: a 1 bit
// is t.T1+t.T2 ticks high then t.T3 low, a 0 bit t.T1 high then t.T2+t.T3
// low. Each word's low wordBits bits go out most-significant-first, words
// back to back, then latchTicks of low to hold the line idle. Ticks pack 32
// per dst word, first tick in the top bit, with the final partial word
// low-padded. Returns the number of dst words filled.
func rasterizeFrame(dst []uint32, words []uint32, wordBits int, t ws2812.Timing, latchTicks int) int {
	w := 0
	n := 0
	var acc uint32
	emit := func(level uint32, ticks int) {
		for i := 0; i < ticks; i++ {
			acc = acc<<1 | level
			n++
			if n == 32 {
				dst[w] = acc
				w++
				acc = 0
				n = 0
			}
		}
	}
	for _, word := range words {
		for bit := wordBits - 1; bit >= 0; bit-- {
			if word&(1<<uint(bit)) != 0 {
				emit(1, t.T1+t.T2)
				emit(0, t.T3)
			} else {
				emit(1, t.T1)
				emit(0, t.T2+t.T3)
			}
		}
	}
	emit(0, latchTicks)
	if n > 0 {
		dst[w] = acc << (32 - uint(n))
		w++
	}
	return w
}
