package factory

import (
	"context"
	"errors"
	"fmt"

	"github.com/allape/gogger"
	"github.com/mUogoro/rgbd-grabber/backend"
	"github.com/mUogoro/rgbd-grabber/config"
	"github.com/mUogoro/rgbd-grabber/device/synthetic"
	"github.com/mUogoro/rgbd-grabber/device/uvc"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

var l = gogger.New("factory")

// Driver resolves the device driver name a grabber config opens.
func Driver(conf config.Grabber) (string, error) {
	switch conf.Type {
	case config.GrabberOpenNI2, config.GrabberFreenect2, config.GrabberSoftKinetic:
		if conf.Src != config.SourceSynthetic {
			return "", fmt.Errorf("%s grabber has no %q source", conf.Type, conf.Src)
		}
		family, ok := synthetic.FamilyByName(string(conf.Type))
		if !ok {
			return "", fmt.Errorf("unknown grabber driver: %s", conf.Type)
		}
		return synthetic.DriverName(family), nil
	case config.GrabberUVC:
		if conf.Src != config.SourceV4L2 {
			return "", fmt.Errorf("%s grabber has no %q source", conf.Type, conf.Src)
		}
		options, err := UVCOptions(conf)
		if err != nil {
			return "", err
		}
		uvc.Register(uvc.DriverName, options)
		return uvc.DriverName, nil
	default:
		return "", fmt.Errorf("unknown grabber driver: %s", conf.Type)
	}
}

// UVCOptions reads the node pair from Ext
// Example: depth:"/dev/video2" color:"/dev/video4" fps:"30" hfov:"58" vfov:"45" baseline:"15"
func UVCOptions(conf config.Grabber) (uvc.Options, error) {
	options := uvc.Options{
		DepthPath: conf.Ext.Get("depth"),
		ColorPath: conf.Ext.Get("color"),
	}

	var err error
	if options.FPS, err = conf.Ext.GetInt("fps", conf.Depth.FPS); err != nil {
		return options, err
	}
	if options.DepthHFOV, err = conf.Ext.GetFloat("hfov", 0); err != nil {
		return options, err
	}
	if options.DepthVFOV, err = conf.Ext.GetFloat("vfov", 0); err != nil {
		return options, err
	}
	if options.ColorHFOV, err = conf.Ext.GetFloat("color_hfov", 0); err != nil {
		return options, err
	}
	if options.ColorVFOV, err = conf.Ext.GetFloat("color_vfov", 0); err != nil {
		return options, err
	}
	if options.Baseline, err = conf.Ext.GetFloat("baseline", 0); err != nil {
		return options, err
	}

	return options, nil
}

func RunSetupCommands(commands []config.SetupCommand) error {
	for _, command := range commands {
		setup, err := command.ToCommand()
		if err != nil {
			return err
		}
		if setup == nil {
			continue
		}
		l.Verbose().Println(setup.Path, setup.Args)
		output, err := setup.CombinedOutput()
		o := string(output)
		l.Verbose().Print("setup output:", o)
		if err != nil {
			return errors.New(o)
		}
	}
	return nil
}

// GrabberFromConfig runs the setup commands and opens a streaming session.
func GrabberFromConfig(ctx context.Context, conf config.Config) (*rgbd.Session, error) {
	p, err := conf.Grabber.Params()
	if err != nil {
		return nil, err
	}

	profile, err := backend.Lookup(string(conf.Grabber.Type))
	if err != nil {
		return nil, err
	}

	driver, err := Driver(conf.Grabber)
	if err != nil {
		return nil, err
	}

	err = RunSetupCommands(conf.Grabber.SetupCommands)
	if err != nil {
		return nil, err
	}

	l.Info().Printf("opening %s grabber via %s", conf.Grabber.Type, driver)

	return backend.Open(ctx, driver, profile, p)
}
