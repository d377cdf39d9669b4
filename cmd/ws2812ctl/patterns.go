package main

import (
	"github.com/pkg/errors"

	"github.com/ledcore/ws2812ctl/ws2812"
)

// applyPattern paints the configured pattern into the buffer. The caller
// decides when the result is flushed to the strip.
func applyPattern(b *ws2812.Buffer, cfg StripConfig) error {
	switch {
	case cfg.Off:
		return b.SetAllOff()
	case cfg.Solid != nil:
		return b.SetAll(cfg.Solid.Color.Pixel())
	case cfg.Random != nil:
		if cfg.Random.Solid {
			return b.SetAllRandomSolid()
		}
		return b.SetAllRandom()
	case cfg.Gradient != nil:
		return applyGradient(b, *cfg.Gradient)
	case cfg.Section != nil:
		if err := b.SetAllOff(); err != nil {
			return err
		}
		return b.SetRange(cfg.Section.Start, cfg.Section.Length, cfg.Section.Color.Pixel())
	default:
		return errors.New("no pattern configured")
	}
}

// applyGradient blends From into To in Luv space, which keeps the
// perceived brightness even along the strip.
func applyGradient(b *ws2812.Buffer, cfg GradientConfig) error {
	n := b.NumPixels()
	for i := 0; i < n; i++ {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		c := cfg.From.BlendLuv(cfg.To.Color, t).Clamped()
		r, g, bl := c.RGB255()
		if err := b.SetPixel(i, ws2812.Pixel{R: int(r), G: int(g), B: int(bl)}); err != nil {
			return err
		}
	}
	return nil
}
