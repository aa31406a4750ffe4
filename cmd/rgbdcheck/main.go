package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/allape/gogger"
	"github.com/mUogoro/rgbd-grabber/config"
	"github.com/mUogoro/rgbd-grabber/factory"
	"github.com/mUogoro/rgbd-grabber/preview"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

var l = gogger.New("rgbdcheck")

type Report struct {
	ID           string        `json:"id"`
	Depth        rgbd.Geometry `json:"depth"`
	Color        rgbd.Geometry `json:"color"`
	Registration string        `json:"registration"`
	Stats        rgbd.Stats    `json:"stats"`
	SkewUS       int64         `json:"skew_us"`
	ToleranceUS  int64         `json:"tolerance_us"`
	InSync       bool          `json:"in_sync"`
	Preview      string        `json:"preview,omitempty"`
	FirstLightMS int64         `json:"first_light_ms"`
}

func main() {
	if err := run(); err != nil {
		l.Error().Println(err)
		os.Exit(1)
	}
}

// run opens the configured grabber, lets it settle for a second, then reports and writes a preview.
func run() error {
	conf, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}

	started := time.Now()
	grabber, err := factory.GrabberFromConfig(context.Background(), conf)
	if err != nil {
		return fmt.Errorf("grabber from config: %w", err)
	}
	defer func() {
		_ = grabber.Close()
	}()
	firstLight := time.Since(started)

	time.Sleep(time.Second)

	skew, _ := grabber.Skew()
	report := Report{
		ID:           grabber.ID(),
		Depth:        grabber.DepthGeometry(),
		Color:        grabber.ColorGeometry(),
		Registration: string(grabber.Direction()),
		Stats:        grabber.Stats(),
		SkewUS:       skew.Microseconds(),
		ToleranceUS:  grabber.SkewTolerance().Microseconds(),
		InSync:       grabber.InSync(),
		FirstLightMS: firstLight.Milliseconds(),
	}

	if conf.Preview.Path != "" {
		if err := preview.Save(conf.Preview.Path, grabber, conf.Preview.Width); err != nil {
			return fmt.Errorf("save preview: %w", err)
		}
		report.Preview = conf.Preview.Path
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
