package rpi

import (
	"github.com/ledcore/ws2812ctl/ws2812"
)

// Strip is a ws2812.Buffer wired straight to this Pi's PWM serializer.
// Mutations behave exactly as on a bare Buffer; frames go out over DMA with
// latch pacing handled by an Encoder in between.
type Strip struct {
	*ws2812.Buffer
	ser *Serializer
}

// OpenStrip opens the hardware and builds a Buffer for a strip of numPixels
// LEDs fed from the given data pin, at the standard WS2812 timing.
func OpenStrip(numPixels, pin int, opts ...ws2812.Option) (*Strip, error) {
	ser, err := NewSerializer(pin, numPixels, ws2812.DefaultTiming)
	if err != nil {
		return nil, err
	}
	enc, err := ws2812.NewEncoder(ser, ws2812.DefaultTiming)
	if err != nil {
		ser.Close() // Ignore error
		return nil, err
	}
	buf, err := ws2812.New(numPixels, enc, opts...)
	if err != nil {
		ser.Close() // Ignore error
		return nil, err
	}
	return &Strip{Buffer: buf, ser: ser}, nil
}

// Pi exposes the hardware handle, e.g. for GPIO power control.
func (s *Strip) Pi() *RPi {
	return s.ser.Pi()
}

// Close quiets the data pin and releases the hardware.
func (s *Strip) Close() error {
	return s.ser.Close()
}
