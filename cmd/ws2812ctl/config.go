package main

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/ledcore/ws2812ctl/ws2812"
)

// Config describes the strips to light and an optional power rail.
type Config struct {
	// Power configures a GPIO-switched supply feeding the strips.
	Power PowerConfig `toml:"power"`
	// Strips is the list of strips to drive.
	Strips []StripConfig `toml:"strip"`
}

// PowerConfig describes the GPIO pins controlling the strips' supply.
type PowerConfig struct {
	// CtrlPin, when set high, turns on power for the LEDs.
	CtrlPin *int `toml:"ctrl_pin,omitempty"`
	// StatusPin reads high while the supply is healthy.
	StatusPin *int `toml:"status_pin,omitempty"`
	// StatusWait is how long to wait for a healthy supply after
	// switching on. Defaults to 2s.
	StatusWait TOMLDuration `toml:"status_wait"`
}

// StripConfig describes one strip and the pattern to show on it.
// Exactly one of Pin and Device selects the substrate, and exactly one
// pattern field must be set.
type StripConfig struct {
	// Name identifies the strip in logs and errors.
	Name string `toml:"name"`
	// Pixels is the number of LEDs on the strip.
	Pixels int `toml:"pixels"`

	// Pin is the GPIO pin carrying the strip's data line.
	Pin *int `toml:"pin,omitempty"`
	// Device is the serial device of a tethered bridge, for hosts that
	// can't generate the waveform themselves.
	Device *string `toml:"device,omitempty"`
	// Baud is the bridge's line rate. Zero means the default.
	Baud int `toml:"baud"`

	// Brightness is the initial brightness for every pixel. Unset means
	// the library default.
	Brightness *float64 `toml:"brightness,omitempty"`
	// DMAChannel overrides the DMA channel used on the Pi. Zero means
	// the default.
	DMAChannel int `toml:"dma_channel"`
	// Latch overrides the reset window kept between frames.
	Latch TOMLDuration `toml:"latch"`

	// Solid fills the strip with one color.
	Solid *SolidConfig `toml:"solid,omitempty"`
	// Random draws colors from the generator.
	Random *RandomConfig `toml:"random,omitempty"`
	// Gradient blends between two colors along the strip.
	Gradient *GradientConfig `toml:"gradient,omitempty"`
	// Section fills a sub-range and leaves the rest dark.
	Section *SectionConfig `toml:"section,omitempty"`
	// Off blanks the strip.
	Off bool `toml:"off"`
}

// SolidConfig fills the whole strip with Color.
type SolidConfig struct {
	Color HexColor `toml:"color"`
}

// RandomConfig colors the strip randomly. Solid draws one color for the
// whole strip instead of one per pixel.
type RandomConfig struct {
	Solid bool `toml:"solid"`
}

// GradientConfig blends From into To across the strip.
type GradientConfig struct {
	From HexColor `toml:"from"`
	To   HexColor `toml:"to"`
}

// SectionConfig fills the half-open pixel range starting at Start.
type SectionConfig struct {
	Start  int      `toml:"start"`
	Length int      `toml:"length"`
	Color  HexColor `toml:"color"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Strips) == 0 {
		return errors.New("no strips configured")
	}
	for i := range c.Strips {
		if err := c.Strips[i].validate(); err != nil {
			return fmt.Errorf("strip %q: %w", c.Strips[i].Name, err)
		}
	}
	if c.Power.StatusPin != nil && c.Power.CtrlPin == nil {
		return errors.New("power status pin configured without a control pin")
	}
	return nil
}

func (s *StripConfig) validate() error {
	if s.Pixels <= 0 {
		return fmt.Errorf("bad pixel count %d", s.Pixels)
	}
	if (s.Pin == nil) == (s.Device == nil) {
		return errors.New("exactly one of pin and device must be set")
	}
	patterns := 0
	if s.Off {
		patterns++
	}
	if s.Solid != nil {
		patterns++
	}
	if s.Random != nil {
		patterns++
	}
	if s.Gradient != nil {
		patterns++
	}
	if s.Section != nil {
		patterns++
	}
	switch {
	case patterns == 0:
		return errors.New("no pattern configured")
	case patterns > 1:
		return errors.New("more than one pattern configured")
	}
	if s.Section != nil {
		if s.Section.Start < 0 || s.Section.Length <= 0 || s.Section.Start+s.Section.Length > s.Pixels {
			return fmt.Errorf("section [%d,%d) outside the strip",
				s.Section.Start, s.Section.Start+s.Section.Length)
		}
	}
	return nil
}

// HexColor is a color in "#rrggbb" form.
type HexColor struct {
	colorful.Color
}

var (
	_ encoding.TextUnmarshaler = (*HexColor)(nil)
	_ encoding.TextMarshaler   = (*HexColor)(nil)
)

func (h *HexColor) UnmarshalText(text []byte) error {
	c, err := colorful.Hex(string(text))
	if err != nil {
		return err
	}
	h.Color = c
	return nil
}

func (h HexColor) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// Pixel returns the color as strip channel values.
func (h HexColor) Pixel() ws2812.Pixel {
	r, g, b := h.RGB255()
	return ws2812.Pixel{R: int(r), G: int(g), B: int(b)}
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, err
	}
	for i := range config.Strips {
		if config.Strips[i].Name == "" {
			config.Strips[i].Name = fmt.Sprintf("strip%d", i)
		}
	}
	if config.Power.StatusWait == 0 {
		config.Power.StatusWait = TOMLDuration(2 * time.Second)
	}
	return &config, nil
}
