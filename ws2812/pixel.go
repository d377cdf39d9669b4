package ws2812

import (
	"fmt"

	"github.com/pkg/errors"
)

// MaxChannel is the largest value a single color channel can carry.
const MaxChannel = 255

// Pixel is the raw color of one LED. Channel values are in [0, MaxChannel].
type Pixel struct {
	R int
	G int
	B int
}

func (p Pixel) String() string {
	return fmt.Sprintf("%02x%02x%02x", p.R, p.G, p.B)
}

func (p Pixel) validate() error {
	if p.R < 0 || p.R > MaxChannel {
		return errors.Wrapf(ErrChannel, "R=%d", p.R)
	}
	if p.G < 0 || p.G > MaxChannel {
		return errors.Wrapf(ErrChannel, "G=%d", p.G)
	}
	if p.B < 0 || p.B > MaxChannel {
		return errors.Wrapf(ErrChannel, "B=%d", p.B)
	}
	return nil
}

// pack returns the pixel in wire order: green, red, blue, high byte first.
func (p Pixel) pack() uint32 {
	return uint32(p.G)<<16 | uint32(p.R)<<8 | uint32(p.B)
}

func unpack(c uint32) Pixel {
	return Pixel{
		R: int((c >> 8) & 0xff),
		G: int((c >> 16) & 0xff),
		B: int(c & 0xff),
	}
}
