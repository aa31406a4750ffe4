package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allape/gogger"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/mUogoro/rgbd-grabber/config"
	"github.com/mUogoro/rgbd-grabber/diag"
	"github.com/mUogoro/rgbd-grabber/factory"
)

var l = gogger.New("main")

func main() {
	if err := run(); err != nil {
		l.Error().Println(err)
		os.Exit(1)
	}
}

func run() error {
	conf, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	grabber, err := factory.GrabberFromConfig(ctx, conf)
	if err != nil {
		return fmt.Errorf("grabber from config: %w", err)
	}
	defer func() {
		if err := grabber.Close(); err != nil {
			l.Error().Println("close grabber:", err)
		}
	}()

	server := diag.New(grabber, diag.Options{
		Addr:              conf.Diagnostics.Addr,
		Cors:              conf.Diagnostics.Cors,
		TelemetryInterval: conf.Diagnostics.TelemetryInterval(),
	})
	if conf.Diagnostics.Addr != "" {
		server.Start()
	}
	// shuts down before the grabber closes
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			l.Warn().Println("shutdown diagnostics:", err)
		}
	}()

	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		l.Warn().Println("notify systemd:", err)
	} else if sent {
		l.Verbose().Println("systemd notified")
	}

	l.Info().Printf("started grabber %s, %dx%d depth, %dx%d color",
		grabber.ID(), grabber.DepthWidth(), grabber.DepthHeight(), grabber.ColorWidth(), grabber.ColorHeight())

	<-ctx.Done()
	l.Info().Println("exiting")

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	return nil
}
