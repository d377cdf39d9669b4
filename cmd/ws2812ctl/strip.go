package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ledcore/ws2812ctl/rpi"
	"github.com/ledcore/ws2812ctl/serialtx"
	"github.com/ledcore/ws2812ctl/ws2812"
)

// strip is one opened strip: its pixel buffer plus whatever substrate it
// hangs off. pi is nil for serial-bridged strips.
type strip struct {
	name string
	cfg  StripConfig
	buf  *ws2812.Buffer
	pi   *rpi.RPi
	io   io.Closer
}

func openStrip(sc StripConfig) (*strip, error) {
	var opts []ws2812.Option
	if sc.Brightness != nil {
		opts = append(opts, ws2812.WithBrightness(*sc.Brightness))
	}

	if sc.Device != nil {
		return openSerialStrip(sc, opts)
	}
	return openPWMStrip(sc, opts)
}

func openSerialStrip(sc StripConfig, opts []ws2812.Option) (*strip, error) {
	baud := sc.Baud
	if baud == 0 {
		baud = serialtx.DefaultBaud
	}
	port, err := serialtx.Open(*sc.Device, baud, sc.Pixels, serialtx.WithLog(func(msg string) {
		slog.Info("bridge log", "strip", sc.Name, "message", msg)
	}))
	if err != nil {
		return nil, err
	}
	enc, err := ws2812.NewEncoder(port, ws2812.DefaultTiming, encoderOptions(sc)...)
	if err != nil {
		port.Close() // Ignore error
		return nil, err
	}
	buf, err := ws2812.New(sc.Pixels, enc, opts...)
	if err != nil {
		port.Close() // Ignore error
		return nil, err
	}
	return &strip{name: sc.Name, cfg: sc, buf: buf, io: port}, nil
}

func openPWMStrip(sc StripConfig, opts []ws2812.Option) (*strip, error) {
	if sc.DMAChannel == 0 && sc.Latch == 0 {
		st, err := rpi.OpenStrip(sc.Pixels, *sc.Pin, opts...)
		if err != nil {
			return nil, err
		}
		return &strip{name: sc.Name, cfg: sc, buf: st.Buffer, pi: st.Pi(), io: st}, nil
	}

	var sopts []rpi.SerializerOption
	if sc.DMAChannel != 0 {
		sopts = append(sopts, rpi.WithDMAChannel(sc.DMAChannel))
	}
	if sc.Latch != 0 {
		sopts = append(sopts, rpi.WithLatch(time.Duration(sc.Latch)))
	}
	ser, err := rpi.NewSerializer(*sc.Pin, sc.Pixels, ws2812.DefaultTiming, sopts...)
	if err != nil {
		return nil, err
	}
	enc, err := ws2812.NewEncoder(ser, ws2812.DefaultTiming, encoderOptions(sc)...)
	if err != nil {
		ser.Close() // Ignore error
		return nil, err
	}
	buf, err := ws2812.New(sc.Pixels, enc, opts...)
	if err != nil {
		ser.Close() // Ignore error
		return nil, err
	}
	return &strip{name: sc.Name, cfg: sc, buf: buf, pi: ser.Pi(), io: ser}, nil
}

func encoderOptions(sc StripConfig) []ws2812.EncoderOption {
	if sc.Latch == 0 {
		return nil
	}
	return []ws2812.EncoderOption{ws2812.WithLatch(time.Duration(sc.Latch))}
}

// apply shows the strip's configured pattern, flushing a single frame.
func (s *strip) apply() error {
	err := s.buf.Batch(func() error {
		return applyPattern(s.buf, s.cfg)
	})
	if err != nil {
		return fmt.Errorf("strip %q: %w", s.name, err)
	}
	return nil
}

func (s *strip) blank() {
	if err := s.buf.SetAllOff(); err != nil {
		slog.Warn("failed to blank strip", "name", s.name, "error", err)
	}
}

func (s *strip) lit() bool {
	for i := 0; i < s.buf.NumPixels(); i++ {
		if on, err := s.buf.IsOn(i); err == nil && on {
			return true
		}
	}
	return false
}

func (s *strip) Close() error {
	return s.io.Close()
}

// firstPi returns the Pi handle of the first PWM-attached strip, for
// power rail control.
func firstPi(strips []*strip) *rpi.RPi {
	for _, s := range strips {
		if s.pi != nil {
			return s.pi
		}
	}
	return nil
}
