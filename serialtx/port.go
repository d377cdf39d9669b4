// Package serialtx streams LED frames to a microcontroller that sits on
// the far end of a serial line and performs the actual WS2812 waveform
// generation. The device acknowledges every packet, so a frame that was
// streamed successfully is known to have arrived intact.
package serialtx

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"github.com/ledcore/ws2812ctl/ws2812"
)

const (
	// DefaultBaud is the line rate the bridge firmware runs at.
	DefaultBaud = 115200

	// DefaultReadTimeout bounds how long a reply is waited for. It covers
	// the device consuming a full frame and shifting it out.
	DefaultReadTimeout = 2 * time.Second
)

// Port is a connection to a serial LED bridge. It implements
// ws2812.WordStreamer.
type Port struct {
	sp       serial.Port
	rw       io.ReadWriter
	maxWords int
	timeout  time.Duration
	logf     func(string)
}

var _ ws2812.WordStreamer = (*Port)(nil)

// Option adjusts how a Port is opened.
type Option func(*Port)

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) Option {
	return func(p *Port) { p.timeout = d }
}

// WithLog sets a sink for log messages the device sends between replies.
func WithLog(f func(string)) Option {
	return func(p *Port) { p.logf = f }
}

// Open connects to the bridge on the named serial device and configures
// it for frames of up to maxWords words.
func Open(device string, baud, maxWords int, opts ...Option) (*Port, error) {
	p, err := newPort(nil, maxWords, opts)
	if err != nil {
		return nil, err
	}
	sp, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", device)
	}
	if err := sp.SetReadTimeout(p.timeout); err != nil {
		sp.Close() // Ignore error
		return nil, errors.Wrap(err, "failed to set read timeout")
	}
	p.sp = sp
	p.rw = sp
	if err := p.handshake(); err != nil {
		sp.Close() // Ignore error
		return nil, err
	}
	return p, nil
}

// NewPort runs the protocol over an existing transport, such as a TCP
// tunnel to a remote bridge. The transport's own deadlines apply; the
// read timeout option has no effect here.
func NewPort(rw io.ReadWriter, maxWords int, opts ...Option) (*Port, error) {
	p, err := newPort(rw, maxWords, opts)
	if err != nil {
		return nil, err
	}
	if err := p.handshake(); err != nil {
		return nil, err
	}
	return p, nil
}

func newPort(rw io.ReadWriter, maxWords int, opts []Option) (*Port, error) {
	if maxWords <= 0 || maxWords > 0xffff {
		return nil, errors.Errorf("bad capacity %d words", maxWords)
	}
	p := &Port{
		rw:       rw,
		maxWords: maxWords,
		timeout:  DefaultReadTimeout,
		logf:     func(string) {},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// handshake sends the device its frame capacity and waits for it to come
// back ready.
func (p *Port) handshake() error {
	cfg := ConfigPacket{MaxWords: uint16(p.maxWords)}
	if err := WriteIncomingPacket(p.rw, cfg); err != nil {
		return errors.Wrap(err, "failed to send config")
	}
	if err := p.awaitAck(); err != nil {
		return errors.Wrap(err, "device rejected config")
	}
	return nil
}

// MaxWords returns the frame capacity the device was configured for.
func (p *Port) MaxWords() int {
	return p.maxWords
}

// StreamWords sends one frame to the bridge and waits for it to be
// acknowledged. The device latches the strip itself once the frame has
// been shifted out.
func (p *Port) StreamWords(words []uint32, wordBits int) error {
	if wordBits <= 0 || wordBits > 32 {
		return errors.Errorf("word width %d out of range", wordBits)
	}
	if len(words) > p.maxWords {
		return errors.Errorf("frame of %d words exceeds capacity %d", len(words), p.maxWords)
	}
	frame := FramePacket{WordBits: uint8(wordBits), Words: words}
	if err := WriteIncomingPacket(p.rw, frame); err != nil {
		return errors.Wrap(err, "failed to send frame")
	}
	return errors.Wrap(p.awaitAck(), "frame not acknowledged")
}

// Off tells the device to blank the strip immediately.
func (p *Port) Off() error {
	if err := WriteIncomingPacket(p.rw, OffPacket{}); err != nil {
		return errors.Wrap(err, "failed to send off")
	}
	return errors.Wrap(p.awaitAck(), "off not acknowledged")
}

// awaitAck consumes replies until the device acks or reports an error.
// Log packets can arrive at any point in between.
func (p *Port) awaitAck() error {
	r := timeoutReader{p.rw}
	for {
		pkt, err := ReadOutgoingPacket(r)
		if err != nil {
			return err
		}
		switch pkt := pkt.(type) {
		case AckPacket:
			return nil
		case ErrorPacket:
			return errors.Errorf("device: %s", pkt.Message)
		case LogPacket:
			p.logf(pkt.Message)
		}
	}
}

// Close closes the underlying serial device, if this Port owns one.
func (p *Port) Close() error {
	if p.sp == nil {
		return nil
	}
	return p.sp.Close()
}

// timeoutReader turns the zero-byte reads a serial port produces when
// its read timeout expires into a hard error, so a dead device can't
// stall a reply wait forever.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(buf []byte) (int, error) {
	n, err := t.r.Read(buf)
	if n == 0 && err == nil && len(buf) > 0 {
		return 0, errors.New("read timed out")
	}
	return n, err
}
