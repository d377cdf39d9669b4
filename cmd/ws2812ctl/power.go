package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ledcore/ws2812ctl/rpi"
)

// powerRail drives an optional GPIO-switched supply feeding the strips.
// A nil rail is safe to use and does nothing.
type powerRail struct {
	pi  *rpi.RPi
	cfg PowerConfig
}

// newPowerRail claims the configured pins. It returns a nil rail when no
// control pin is configured.
func newPowerRail(pi *rpi.RPi, cfg PowerConfig) (*powerRail, error) {
	if cfg.CtrlPin == nil {
		return nil, nil
	}
	if pi == nil {
		return nil, fmt.Errorf("power control needs a PWM-attached strip")
	}
	if err := pi.GPIOSetOutput(*cfg.CtrlPin, rpi.PullNone); err != nil {
		return nil, fmt.Errorf("failed to set power control to output: %w", err)
	}
	if cfg.StatusPin != nil {
		if err := pi.GPIOSetInput(*cfg.StatusPin); err != nil {
			return nil, fmt.Errorf("failed to set power status to input: %w", err)
		}
	}
	return &powerRail{pi: pi, cfg: cfg}, nil
}

// on raises the rail and, when a status pin is configured, waits for the
// supply to report healthy.
func (p *powerRail) on() error {
	if p == nil {
		return nil
	}
	slog.Info("power on")
	if err := p.pi.GPIOSetPin(*p.cfg.CtrlPin, true); err != nil {
		return fmt.Errorf("failed to set power control high: %w", err)
	}
	if p.cfg.StatusPin == nil {
		return nil
	}
	start := time.Now()
	for {
		val, err := p.pi.GPIOGetPin(*p.cfg.StatusPin)
		if err != nil {
			return fmt.Errorf("failed to query power status: %w", err)
		}
		now := time.Now()
		if val {
			slog.Debug("power stabilized", "after", now.Sub(start))
			return nil
		}
		if now.Sub(start) > time.Duration(p.cfg.StatusWait) {
			return fmt.Errorf("timed out waiting for healthy power after %v", now.Sub(start))
		}
		time.Sleep(50 * time.Millisecond) // No point polling harder than this
	}
}

// off drops the rail. It doesn't wait for the status pin to fall.
func (p *powerRail) off() error {
	if p == nil {
		return nil
	}
	slog.Info("power off")
	if err := p.pi.GPIOSetPin(*p.cfg.CtrlPin, false); err != nil {
		return fmt.Errorf("failed to set power control low: %w", err)
	}
	return nil
}
