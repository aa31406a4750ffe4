package backend

import (
	"fmt"
	"sort"

	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

var profiles = map[string]Profile{
	"openni2":     OpenNI2{},
	"freenect2":   Freenect2{},
	"softkinetic": SoftKinetic{},
	"uvc":         UVC{},
}

func Lookup(name string) (Profile, error) {
	profile, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown grabber profile: %s", name)
	}
	return profile, nil
}

func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenNI2 drives PrimeSense style sensors: exact mode match, hardware sync,
// color on the depth grid is not available.
type OpenNI2 struct{}

func (OpenNI2) Name() string             { return "openni2" }
func (OpenNI2) Acquisition() Acquisition { return Loop }

func (OpenNI2) Supports(direction rgbd.Direction) bool {
	return direction == rgbd.ColorOverDepth
}

func (OpenNI2) Negotiate(dev device.Device, p rgbd.Params) (Negotiated, error) {
	depth, err := exactMode(dev, rgbd.Depth, p.Depth, rgbd.Depth1MM)
	if err != nil {
		return Negotiated{}, err
	}
	color, err := exactMode(dev, rgbd.Color, p.Color, rgbd.RGB24)
	if err != nil {
		return Negotiated{}, err
	}
	return Negotiated{Depth: depth, Color: color, ColorFormat: rgbd.RGB24}, nil
}

func (o OpenNI2) Configure(dev device.Device, p rgbd.Params) error {
	if !p.Depth.Disabled && !p.Color.Disabled {
		if setter, ok := dev.(device.SyncSetter); ok {
			if err := setter.SetSync(true); err != nil {
				return err
			}
		}
	}
	// mirroring defaults to on in the SDK
	if err := setMirroring(o.Name(), dev, p.Mirroring); err != nil {
		return err
	}
	return setNearMode(o.Name(), dev, p.NearMode)
}

// Freenect2 drives Kinect v2 sensors: fixed resolutions, BGRX color,
// color can only be brought onto the depth grid.
type Freenect2 struct{}

var (
	freenect2Depth = device.Mode{Width: 512, Height: 424, FPS: 30, Format: rgbd.Depth1MM}
	freenect2Color = device.Mode{Width: 1920, Height: 1080, FPS: 30, Format: rgbd.BGRX32}
)

func (Freenect2) Name() string             { return "freenect2" }
func (Freenect2) Acquisition() Acquisition { return Callback }

func (Freenect2) Supports(direction rgbd.Direction) bool {
	return direction == rgbd.DepthOverColor
}

func (f Freenect2) Negotiate(dev device.Device, p rgbd.Params) (Negotiated, error) {
	fixed := func(m rgbd.Modality, s rgbd.StreamParams, mode device.Mode) {
		if !s.Disabled && (s.Width != mode.Width || s.Height != mode.Height || s.FPS != mode.FPS) {
			l.Warn().Printf("%s %s is fixed to %s, requested %dx%d@%d", f.Name(), m, mode, s.Width, s.Height, s.FPS)
		}
	}
	fixed(rgbd.Depth, p.Depth, freenect2Depth)
	fixed(rgbd.Color, p.Color, freenect2Color)

	return Negotiated{Depth: freenect2Depth, Color: freenect2Color, ColorFormat: rgbd.BGRX32}, nil
}

func (f Freenect2) Configure(dev device.Device, p rgbd.Params) error {
	if p.NearMode {
		l.Warn().Println(f.Name(), "has no near mode, ignored")
	}
	if p.Mirroring {
		return setMirroring(f.Name(), dev, true)
	}
	return nil
}

// SoftKinetic drives DepthSense sensors: QVGA depth only, VGA RGB or QVGA YUYV color,
// no registration.
type SoftKinetic struct{}

func (SoftKinetic) Name() string             { return "softkinetic" }
func (SoftKinetic) Acquisition() Acquisition { return Callback }

func (SoftKinetic) Supports(rgbd.Direction) bool {
	return false
}

func (s SoftKinetic) Negotiate(dev device.Device, p rgbd.Params) (Negotiated, error) {
	if !p.Depth.Disabled && (p.Depth.Width != 320 || p.Depth.Height != 240) {
		return Negotiated{}, fmt.Errorf("%w: %s depth is 320x240 only", rgbd.ErrUnsupportedMode, s.Name())
	}
	depth, err := exactMode(dev, rgbd.Depth, p.Depth, rgbd.Depth1MM)
	if err != nil {
		return Negotiated{}, err
	}
	color, err := exactMode(dev, rgbd.Color, p.Color, "")
	if err != nil {
		return Negotiated{}, err
	}
	return Negotiated{Depth: depth, Color: color, ColorFormat: rgbd.RGB24}, nil
}

func (s SoftKinetic) Configure(dev device.Device, p rgbd.Params) error {
	if p.Mirroring {
		if err := setMirroring(s.Name(), dev, true); err != nil {
			return err
		}
	}
	// near mode maps to the close range depth mode
	return setNearMode(s.Name(), dev, p.NearMode)
}

// UVC drives a depth camera exposed as a pair of V4L2 nodes.
type UVC struct{}

func (UVC) Name() string             { return "uvc" }
func (UVC) Acquisition() Acquisition { return Loop }

func (UVC) Supports(rgbd.Direction) bool {
	return false
}

func (UVC) Negotiate(dev device.Device, p rgbd.Params) (Negotiated, error) {
	depth, err := exactMode(dev, rgbd.Depth, p.Depth, rgbd.Depth1MM)
	if err != nil {
		return Negotiated{}, err
	}
	color, err := exactMode(dev, rgbd.Color, p.Color, "")
	if err != nil {
		return Negotiated{}, err
	}
	return Negotiated{Depth: depth, Color: color, ColorFormat: rgbd.RGB24}, nil
}

func (u UVC) Configure(dev device.Device, p rgbd.Params) error {
	if p.NearMode {
		l.Warn().Println(u.Name(), "has no near mode, ignored")
	}
	return setMirroring(u.Name(), dev, p.Mirroring)
}
