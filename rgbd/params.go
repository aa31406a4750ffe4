package rgbd

import (
	"fmt"
	"time"
)

// Direction selects which modality gets resampled onto the other one's pixel grid.
type Direction string

const (
	RegistrationNone Direction = "none"
	// DepthOverColor overlays color samples on the depth grid: color output takes the depth geometry.
	DepthOverColor Direction = "depth_over_color"
	// ColorOverDepth overlays depth samples on the color grid: depth output takes the color geometry.
	ColorOverDepth Direction = "color_over_depth"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", RegistrationNone:
		return RegistrationNone, nil
	case DepthOverColor, ColorOverDepth:
		return Direction(s), nil
	}
	return "", fmt.Errorf("%w: unknown registration direction %q", ErrInvalidParams, s)
}

// Warmup is the first-light policy applied before a session reports Streaming.
type Warmup string

const (
	// WarmupRequire fails construction when a stream stays silent past the startup timeout.
	WarmupRequire Warmup = "require"
	// WarmupGrace waits at most the startup timeout and then streams anyway.
	WarmupGrace Warmup = "grace"
	// WarmupSkip does not wait, readers observe NoData until the first frame lands.
	WarmupSkip Warmup = "skip"
)

func ParseWarmup(s string) (Warmup, error) {
	switch Warmup(s) {
	case "", WarmupRequire:
		return WarmupRequire, nil
	case WarmupGrace, WarmupSkip:
		return Warmup(s), nil
	}
	return "", fmt.Errorf("%w: unknown warmup policy %q", ErrInvalidParams, s)
}

const DefaultStartupTimeout = 5 * time.Second

type StreamParams struct {
	Width    int
	Height   int
	FPS      int
	Disabled bool
}

func (s StreamParams) validate(m Modality) error {
	if s.Disabled {
		return nil
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %s resolution %dx%d", ErrInvalidParams, m, s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("%w: %s frame rate %d", ErrInvalidParams, m, s.FPS)
	}
	return nil
}

// Params is the immutable configuration snapshot of one session.
type Params struct {
	DeviceID       string
	Depth          StreamParams
	Color          StreamParams
	NearMode       bool
	Registration   Direction
	Mirroring      bool
	Warmup         Warmup
	StartupTimeout time.Duration
	// SkewTolerance bounds the depth/color timestamp distance considered in sync.
	// Zero means one frame period of the slower stream.
	SkewTolerance time.Duration
}

func (p Params) WithDefaults() Params {
	if p.Registration == "" {
		p.Registration = RegistrationNone
	}
	if p.Warmup == "" {
		p.Warmup = WarmupRequire
	}
	if p.StartupTimeout <= 0 {
		p.StartupTimeout = DefaultStartupTimeout
	}
	if p.SkewTolerance <= 0 {
		p.SkewTolerance = p.framePeriod()
	}
	return p
}

func (p Params) framePeriod() time.Duration {
	fps := 0
	for _, s := range []StreamParams{p.Depth, p.Color} {
		if s.Disabled || s.FPS <= 0 {
			continue
		}
		if fps == 0 || s.FPS < fps {
			fps = s.FPS
		}
	}
	if fps == 0 {
		return 0
	}
	return time.Second / time.Duration(fps)
}

func (p Params) Validate() error {
	if p.Depth.Disabled && p.Color.Disabled {
		return fmt.Errorf("%w: both streams disabled", ErrInvalidParams)
	}
	if err := p.Depth.validate(Depth); err != nil {
		return err
	}
	if err := p.Color.validate(Color); err != nil {
		return err
	}
	if _, err := ParseDirection(string(p.Registration)); err != nil {
		return err
	}
	if _, err := ParseWarmup(string(p.Warmup)); err != nil {
		return err
	}
	if p.Registration != RegistrationNone && p.Registration != "" && (p.Depth.Disabled || p.Color.Disabled) {
		return fmt.Errorf("%w: registration needs both streams", ErrInvalidParams)
	}
	return nil
}
