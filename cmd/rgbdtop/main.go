package main

import (
	"context"
	"fmt"
	"os"

	"github.com/allape/gogger"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mUogoro/rgbd-grabber/config"
	"github.com/mUogoro/rgbd-grabber/factory"
)

var l = gogger.New("rgbdtop")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rgbdtop:", err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := config.GetConfig()
	if err != nil {
		return err
	}

	grabber, err := factory.GrabberFromConfig(context.Background(), conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := grabber.Close(); err != nil {
			l.Error().Println("close grabber:", err)
		}
	}()

	p := tea.NewProgram(
		NewModel(grabber, conf.Diagnostics.TelemetryInterval(), conf.Preview.Path),
		tea.WithAltScreen(),
	)

	_, err = p.Run()
	return err
}
