package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/allape/gogger"
	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/pixfmt"
	"github.com/mUogoro/rgbd-grabber/registration"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

var l = gogger.New("backend")

type Acquisition int

const (
	// Loop devices are drained by a goroutine blocking on a wait-for-any primitive.
	Loop Acquisition = iota
	// Callback devices push frames from their own delivery thread.
	Callback
)

func (a Acquisition) String() string {
	if a == Callback {
		return "callback"
	}
	return "loop"
}

// Negotiated is the outcome of matching session parameters against a device.
type Negotiated struct {
	Depth device.Mode
	Color device.Mode
	// ColorFormat is the layout readers get, raw frames are converted when it differs from Color.Format.
	ColorFormat rgbd.PixelFormat
}

// Profile is the vendor specific glue between a device family and a session.
type Profile interface {
	Name() string
	Acquisition() Acquisition
	Supports(direction rgbd.Direction) bool
	Negotiate(dev device.Device, p rgbd.Params) (Negotiated, error)
	// Configure applies device settings before the streams start.
	Configure(dev device.Device, p rgbd.Params) error
}

// Open runs a whole session bring-up: runtime, device, modes, streams, registration, producer.
// Every acquired resource is released when any step fails.
func Open(ctx context.Context, driver string, profile Profile, p rgbd.Params) (*rgbd.Session, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Registration != rgbd.RegistrationNone && !profile.Supports(p.Registration) {
		return nil, fmt.Errorf("%w: %s does not register %s", rgbd.ErrUnsupportedRegistration, profile.Name(), p.Registration)
	}

	h, err := device.OpenHandle(driver, p.DeviceID)
	if err != nil {
		return nil, err
	}

	spec, err := prepare(h, profile, p)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	l.Info().Printf("%s device %s via %s, %s acquisition", profile.Name(), h.Device().Info().ID, driver, profile.Acquisition())

	// the session owns the handle from here on, it closes it on failure too
	return rgbd.Open(ctx, spec)
}

func prepare(h *device.Handle, profile Profile, p rgbd.Params) (rgbd.Spec, error) {
	dev := h.Device()

	negotiated, err := profile.Negotiate(dev, p)
	if err != nil {
		return rgbd.Spec{}, err
	}
	if err := profile.Configure(dev, p); err != nil {
		return rgbd.Spec{}, err
	}

	var streams []rgbd.Modality
	if !p.Depth.Disabled {
		if err := h.StartStream(rgbd.Depth, negotiated.Depth); err != nil {
			return rgbd.Spec{}, err
		}
		streams = append(streams, rgbd.Depth)
	}
	if !p.Color.Disabled {
		if err := h.StartStream(rgbd.Color, negotiated.Color); err != nil {
			return rgbd.Spec{}, err
		}
		streams = append(streams, rgbd.Color)
	}

	spec := rgbd.Spec{
		Params:        p,
		TimestampUnit: time.Microsecond,
		Device:        h,
	}

	var depthIn, colorIn rgbd.Intrinsics
	if !p.Depth.Disabled {
		if depthIn, err = dev.Intrinsics(rgbd.Depth); err != nil {
			return rgbd.Spec{}, err
		}
		spec.Depth = rgbd.Geometry{
			Width:    negotiated.Depth.Width,
			Height:   negotiated.Depth.Height,
			Channels: 1,
			Format:   rgbd.Depth1MM,
			HFOV:     depthIn.HFOV(),
			VFOV:     depthIn.VFOV(),
		}
	}
	if !p.Color.Disabled {
		if colorIn, err = dev.Intrinsics(rgbd.Color); err != nil {
			return rgbd.Spec{}, err
		}
		format := negotiated.ColorFormat
		if format == "" {
			format = negotiated.Color.Format
		}
		spec.Color = rgbd.Geometry{
			Width:    negotiated.Color.Width,
			Height:   negotiated.Color.Height,
			Channels: format.Channels(),
			Format:   format,
			HFOV:     colorIn.HFOV(),
			VFOV:     colorIn.VFOV(),
		}
		if format != negotiated.Color.Format {
			if format != rgbd.RGB24 {
				return rgbd.Spec{}, fmt.Errorf("%w: color output %s", rgbd.ErrUnsupportedMode, format)
			}
			if spec.ConvertColor, err = pixfmt.ToRGB(negotiated.Color.Format); err != nil {
				return rgbd.Spec{}, err
			}
		}
	}

	if p.Registration != rgbd.RegistrationNone {
		extrinsics, err := dev.Extrinsics()
		if err != nil {
			return rgbd.Spec{}, err
		}
		spec.Registrar, err = registration.New(p.Registration, registration.Calibration{
			Depth:      depthIn,
			Color:      colorIn,
			Extrinsics: extrinsics,
		})
		if err != nil {
			return rgbd.Spec{}, err
		}
	}

	switch profile.Acquisition() {
	case Loop:
		poller, ok := dev.(device.Poller)
		if !ok {
			return rgbd.Spec{}, fmt.Errorf("%s device cannot be polled", profile.Name())
		}
		spec.Producer = rgbd.NewLoopProducer(poller, streams...)
	case Callback:
		notifier, ok := dev.(device.Notifier)
		if !ok {
			return rgbd.Spec{}, fmt.Errorf("%s device has no frame listener", profile.Name())
		}
		spec.Producer = rgbd.NewCallbackProducer(notifier)
	}

	return spec, nil
}

// exactMode requests (w, h, fps) of a stream in format, "" for any format.
func exactMode(dev device.Device, m rgbd.Modality, s rgbd.StreamParams, format rgbd.PixelFormat) (device.Mode, error) {
	if s.Disabled {
		return device.Mode{}, nil
	}
	mode, err := device.FindMode(dev.SupportedModes(m), device.Mode{
		Width:  s.Width,
		Height: s.Height,
		FPS:    s.FPS,
		Format: format,
	})
	if err != nil {
		return device.Mode{}, fmt.Errorf("%s: %w", m, err)
	}
	return mode, nil
}

func setMirroring(profile string, dev device.Device, enabled bool) error {
	setter, ok := dev.(device.MirroringSetter)
	if !ok {
		if enabled {
			l.Warn().Println(profile, "device cannot mirror, mirroring ignored")
		}
		return nil
	}
	return setter.SetMirroring(enabled)
}

func setNearMode(profile string, dev device.Device, enabled bool) error {
	if !enabled {
		return nil
	}
	setter, ok := dev.(device.NearModeSetter)
	if !ok {
		return fmt.Errorf("%w: %s has no near mode", rgbd.ErrUnsupportedMode, profile)
	}
	return setter.SetNearMode(true)
}
