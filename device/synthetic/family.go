package synthetic

import (
	"github.com/golang/geo/r3"
	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

// Family describes the sensor a synthetic device pretends to be.
type Family struct {
	Name   string
	Vendor string
	Model  string

	DepthModes []device.Mode
	ColorModes []device.Mode

	// degrees, for the reference mode of each modality
	DepthHFOV, DepthVFOV float64
	ColorHFOV, ColorVFOV float64

	// depth to color camera offset in millimeters
	Baseline float64
	NearMode bool
}

func modeTable(format rgbd.PixelFormat, fps []int, sizes ...[2]int) []device.Mode {
	var out []device.Mode
	for _, size := range sizes {
		for _, f := range fps {
			out = append(out, device.Mode{Width: size[0], Height: size[1], FPS: f, Format: format})
		}
	}
	return out
}

var (
	OpenNI2 = Family{
		Name:       "openni2",
		Vendor:     "PrimeSense",
		Model:      "Carmine 1.09",
		DepthModes: modeTable(rgbd.Depth1MM, []int{30, 60}, [2]int{320, 240}, [2]int{640, 480}),
		ColorModes: modeTable(rgbd.RGB24, []int{30}, [2]int{320, 240}, [2]int{640, 480}),
		DepthHFOV:  58.5,
		DepthVFOV:  45.6,
		ColorHFOV:  62,
		ColorVFOV:  48.6,
		Baseline:   25,
		NearMode:   true,
	}

	Freenect2 = Family{
		Name:       "freenect2",
		Vendor:     "Microsoft",
		Model:      "Kinect v2",
		DepthModes: modeTable(rgbd.Depth1MM, []int{30}, [2]int{512, 424}),
		ColorModes: modeTable(rgbd.BGRX32, []int{30}, [2]int{1920, 1080}),
		DepthHFOV:  70.6,
		DepthVFOV:  60,
		ColorHFOV:  84.1,
		ColorVFOV:  53.8,
		Baseline:   52,
	}

	SoftKinetic = Family{
		Name:       "softkinetic",
		Vendor:     "SoftKinetic",
		Model:      "DepthSense 325",
		DepthModes: modeTable(rgbd.Depth1MM, []int{25, 30, 60}, [2]int{320, 240}),
		ColorModes: append(
			modeTable(rgbd.RGB24, []int{25, 30}, [2]int{640, 480}),
			modeTable(rgbd.YUYV, []int{25, 30}, [2]int{320, 240})...,
		),
		DepthHFOV: 74,
		DepthVFOV: 58,
		ColorHFOV: 63.2,
		ColorVFOV: 49.3,
		Baseline:  26,
		NearMode:  true,
	}

	Families = []Family{OpenNI2, Freenect2, SoftKinetic}
)

func (f Family) intrinsics(m rgbd.Modality, mode device.Mode) rgbd.Intrinsics {
	hfov, vfov := f.DepthHFOV, f.DepthVFOV
	if m == rgbd.Color {
		hfov, vfov = f.ColorHFOV, f.ColorVFOV
	}
	return rgbd.IntrinsicsFromFOV(mode.Width, mode.Height, hfov, vfov)
}

func (f Family) extrinsics() rgbd.Extrinsics {
	e := rgbd.IdentityExtrinsics()
	e.Translation = r3.Vector{X: -f.Baseline}
	return e
}

func (f Family) modes(m rgbd.Modality) []device.Mode {
	if m == rgbd.Depth {
		return f.DepthModes
	}
	return f.ColorModes
}
