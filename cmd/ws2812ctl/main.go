// Command ws2812ctl lights up WS2812-family strips for bring-up and
// smoke testing. Strips are described either by a TOML profile or, for
// quick one-strip checks, by flags alone.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ledcore/ws2812ctl/serialtx"
	"github.com/ledcore/ws2812ctl/ws2812"
)

var (
	configPath = "ws2812ctl.toml"
	verbose    = false
	hold       = false

	// Flags for running a single strip without a profile.
	pixels     = 160
	pin        = 18
	device     = ""
	baud       = serialtx.DefaultBaud
	brightness = ws2812.DefaultBrightness
	pattern    = "solid"
	color      = "#ff0000"
)

func init() {
	pflag.StringVarP(&configPath, "config", "c", configPath, "strip profile file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.BoolVar(&hold, "hold", hold, "keep the strips lit until interrupted")
	pflag.IntVar(&pixels, "pixels", pixels, "number of pixels, when no profile is used")
	pflag.IntVar(&pin, "pin", pin, "GPIO pin carrying the strip's data line")
	pflag.StringVar(&device, "device", device, "serial bridge device, overrides --pin")
	pflag.IntVar(&baud, "baud", baud, "serial bridge baud rate")
	pflag.Float64Var(&brightness, "brightness", brightness, "initial brightness")
	pflag.StringVar(&pattern, "pattern", pattern, "pattern to show: solid, random, random-solid, off (gradient and section need a profile)")
	pflag.StringVar(&color, "color", color, "color for the solid pattern")
}

func main() {
	pflag.Parse()

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var strips []*strip
	defer func() {
		for _, s := range strips {
			s.Close() // Ignore error
		}
	}()
	for _, sc := range cfg.Strips {
		s, err := openStrip(sc)
		if err != nil {
			return fmt.Errorf("failed to open strip %q: %w", sc.Name, err)
		}
		strips = append(strips, s)
		slog.Debug("opened strip", "name", s.name, "pixels", sc.Pixels)
	}

	rail, err := newPowerRail(firstPi(strips), cfg.Power)
	if err != nil {
		return err
	}
	if err := rail.on(); err != nil {
		return err
	}

	var errg errgroup.Group
	for _, s := range strips {
		s := s
		errg.Go(s.apply)
	}
	if err := errg.Wait(); err != nil {
		return err
	}

	if hold {
		slog.Info("strips lit, waiting for interrupt")
		<-ctx.Done()
		for _, s := range strips {
			s.blank()
		}
	}

	if !anyLit(strips) {
		if err := rail.off(); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig() (*Config, error) {
	f, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) && !pflag.CommandLine.Changed("config") {
			return flagConfig()
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	return ParseConfig(f)
}

// flagConfig builds a one-strip configuration from the flags, for quick
// checks without a profile file.
func flagConfig() (*Config, error) {
	sc := StripConfig{Name: "strip0", Pixels: pixels}
	if device != "" {
		sc.Device = &device
		sc.Baud = baud
	} else {
		sc.Pin = &pin
	}
	if brightness >= 0 {
		sc.Brightness = &brightness
	}
	switch pattern {
	case "solid":
		var c HexColor
		if err := c.UnmarshalText([]byte(color)); err != nil {
			return nil, fmt.Errorf("bad color %q: %w", color, err)
		}
		sc.Solid = &SolidConfig{Color: c}
	case "random":
		sc.Random = &RandomConfig{}
	case "random-solid":
		sc.Random = &RandomConfig{Solid: true}
	case "off":
		sc.Off = true
	default:
		return nil, fmt.Errorf("unknown pattern %q", pattern)
	}
	return &Config{Strips: []StripConfig{sc}}, nil
}

func anyLit(strips []*strip) bool {
	for _, s := range strips {
		if s.lit() {
			return true
		}
	}
	return false
}
