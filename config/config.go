package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allape/gogger"
	"github.com/mUogoro/rgbd-grabber/envar"
	"github.com/mUogoro/rgbd-grabber/rgbd"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var l = gogger.New("config")

const DefaultConfigPath = "rgbd.toml"

type GrabberType string

const (
	GrabberOpenNI2     GrabberType = "openni2"
	GrabberFreenect2   GrabberType = "freenect2"
	GrabberSoftKinetic GrabberType = "softkinetic"
	GrabberUVC         GrabberType = "uvc"
)

type SourceType string

const (
	// SourceSynthetic emulates the sensor family in software.
	SourceSynthetic SourceType = "synthetic"
	// SourceV4L2 reads a depth/color node pair, see Grabber.Ext.
	SourceV4L2 SourceType = "v4l2"
)

type Stream struct {
	Width    int  `toml:"width" yaml:"width"`
	Height   int  `toml:"height" yaml:"height"`
	FPS      int  `toml:"fps" yaml:"fps"`
	Disabled bool `toml:"disabled" yaml:"disabled"`
}

type Grabber struct {
	Type   GrabberType `toml:"type" yaml:"type"`
	Src    SourceType  `toml:"src" yaml:"src"`
	Device string      `toml:"device" yaml:"device"`

	Depth Stream `toml:"depth" yaml:"depth"`
	Color Stream `toml:"color" yaml:"color"`

	NearMode     bool   `toml:"near_mode" yaml:"near_mode"`
	Mirroring    bool   `toml:"mirroring" yaml:"mirroring"`
	Registration string `toml:"registration" yaml:"registration"`
	Warmup       string `toml:"warmup" yaml:"warmup"`

	StartupTimeoutMS int `toml:"startup_timeout_ms" yaml:"startup_timeout_ms"`
	// SkewToleranceMS of 0 means one frame period of the slower stream.
	SkewToleranceMS int `toml:"skew_tolerance_ms" yaml:"skew_tolerance_ms"`

	SetupCommands []SetupCommand `toml:"setup_commands" yaml:"setup_commands"`

	// Ext carries source specific settings
	// Example: depth:"/dev/video2" color:"/dev/video4" hfov:"58"
	Ext TagString `toml:"ext" yaml:"ext"`
}

func (g Grabber) Params() (rgbd.Params, error) {
	direction, err := rgbd.ParseDirection(g.Registration)
	if err != nil {
		return rgbd.Params{}, err
	}
	warmup, err := rgbd.ParseWarmup(g.Warmup)
	if err != nil {
		return rgbd.Params{}, err
	}

	p := rgbd.Params{
		DeviceID:       g.Device,
		Depth:          rgbd.StreamParams(g.Depth),
		Color:          rgbd.StreamParams(g.Color),
		NearMode:       g.NearMode,
		Registration:   direction,
		Mirroring:      g.Mirroring,
		Warmup:         warmup,
		StartupTimeout: time.Duration(g.StartupTimeoutMS) * time.Millisecond,
		SkewTolerance:  time.Duration(g.SkewToleranceMS) * time.Millisecond,
	}.WithDefaults()

	return p, p.Validate()
}

type Diagnostics struct {
	Addr string `toml:"addr" yaml:"addr"`
	Cors bool   `toml:"cors" yaml:"cors"`
	// TelemetryIntervalMS paces the websocket telemetry push.
	TelemetryIntervalMS int `toml:"telemetry_interval_ms" yaml:"telemetry_interval_ms"`
}

func (d Diagnostics) TelemetryInterval() time.Duration {
	return time.Duration(d.TelemetryIntervalMS) * time.Millisecond
}

type Preview struct {
	Path  string `toml:"path" yaml:"path"`
	Width int    `toml:"width" yaml:"width"`
}

type Config struct {
	Grabber     Grabber     `toml:"grabber" yaml:"grabber"`
	Diagnostics Diagnostics `toml:"diagnostics" yaml:"diagnostics"`
	Preview     Preview     `toml:"preview" yaml:"preview"`
}

func Default() Config {
	return Config{
		Grabber: Grabber{
			Type:             GrabberOpenNI2,
			Src:              SourceSynthetic,
			Depth:            Stream{Width: 640, Height: 480, FPS: 30},
			Color:            Stream{Width: 640, Height: 480, FPS: 30},
			Registration:     string(rgbd.RegistrationNone),
			Warmup:           string(rgbd.WarmupRequire),
			StartupTimeoutMS: int(rgbd.DefaultStartupTimeout / time.Millisecond),
		},
		Diagnostics: Diagnostics{
			Addr:                ":8089",
			TelemetryIntervalMS: 1000,
		},
		Preview: Preview{
			Path:  "preview.png",
			Width: 1280,
		},
	}
}

// Load reads a TOML file, or YAML when the extension says so, over the defaults.
func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = toml.Unmarshal(data, &config)
	}
	if err != nil {
		return config, fmt.Errorf("parse %s: %w", path, err)
	}

	return config, nil
}

// GetConfig loads the file named by the first argument, RGBD_CONFIG, or rgbd.toml.
func GetConfig() (Config, error) {
	configFile := envar.Getenv(envar.RgbdConfig, DefaultConfigPath)
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}

	l.Info().Println("reading config file:", configFile)

	config, err := Load(configFile)
	if err != nil {
		return config, err
	}

	config.Diagnostics.Addr = envar.Getenv(envar.RgbdDiagAddr, config.Diagnostics.Addr)

	l.Verbose().Printf("use config: %+v", config)

	return config, nil
}
