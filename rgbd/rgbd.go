package rgbd

import (
	"math"

	"github.com/golang/geo/r3"
)

type Modality int

const (
	Depth Modality = iota
	Color
)

func (m Modality) String() string {
	switch m {
	case Depth:
		return "depth"
	case Color:
		return "color"
	}
	return "unknown"
}

// Timestamp is a device clock value. It is only an ordering key, 0 means no frame yet.
type Timestamp uint64

const NoData Timestamp = 0

type PixelFormat string

const (
	Depth1MM PixelFormat = "depth_1mm"
	RGB24    PixelFormat = "rgb24"
	BGRX32   PixelFormat = "bgrx32"
	YUYV     PixelFormat = "yuyv"
)

// Channels returns the number of samples per pixel.
// YUYV packs 2 bytes per pixel.
func (f PixelFormat) Channels() int {
	switch f {
	case Depth1MM:
		return 1
	case RGB24:
		return 3
	case BGRX32:
		return 4
	case YUYV:
		return 2
	}
	return 0
}

type Geometry struct {
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	Channels int         `json:"channels"`
	Format   PixelFormat `json:"format"`
	HFOV     float64     `json:"hfov"` // degrees
	VFOV     float64     `json:"vfov"` // degrees
}

func (g Geometry) Pixels() int {
	return g.Width * g.Height
}

// Samples is the number of elements a frame of this geometry occupies.
func (g Geometry) Samples() int {
	return g.Width * g.Height * g.Channels
}

// Intrinsics of a pinhole camera with Brown-Conrady distortion.
type Intrinsics struct {
	Width  int
	Height int
	Fx     float64
	Fy     float64
	Cx     float64
	Cy     float64
	K1     float64
	K2     float64
	K3     float64
	P1     float64
	P2     float64
}

func fov(size int, focal float64) float64 {
	if focal <= 0 {
		return 0
	}
	return 2 * math.Atan(float64(size)/(2*focal)) * 180 / math.Pi
}

// IntrinsicsFromFOV builds a distortion free pinhole centered on the image.
func IntrinsicsFromFOV(width, height int, hfov, vfov float64) Intrinsics {
	return Intrinsics{
		Width:  width,
		Height: height,
		Fx:     float64(width) / (2 * math.Tan(hfov*math.Pi/360)),
		Fy:     float64(height) / (2 * math.Tan(vfov*math.Pi/360)),
		Cx:     float64(width) / 2,
		Cy:     float64(height) / 2,
	}
}

func (in Intrinsics) HFOV() float64 {
	return fov(in.Width, in.Fx)
}

func (in Intrinsics) VFOV() float64 {
	return fov(in.Height, in.Fy)
}

// Distort maps normalized undistorted coordinates to normalized distorted ones.
func (in Intrinsics) Distort(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	radial := 1 + in.K1*r2 + in.K2*r2*r2 + in.K3*r2*r2*r2
	dx := 2*in.P1*x*y + in.P2*(r2+2*x*x)
	dy := in.P1*(r2+2*y*y) + 2*in.P2*x*y
	return x*radial + dx, y*radial + dy
}

// Undistort inverts Distort with a fixed number of fixed-point iterations.
func (in Intrinsics) Undistort(xd, yd float64) (float64, float64) {
	x, y := xd, yd
	for i := 0; i < 5; i++ {
		r2 := x*x + y*y
		radial := 1 + in.K1*r2 + in.K2*r2*r2 + in.K3*r2*r2*r2
		dx := 2*in.P1*x*y + in.P2*(r2+2*x*x)
		dy := in.P1*(r2+2*y*y) + 2*in.P2*x*y
		x = (xd - dx) / radial
		y = (yd - dy) / radial
	}
	return x, y
}

// Extrinsics is the rigid transform from the depth camera frame to the color camera frame.
// Translation is expressed in millimeters, like depth samples.
type Extrinsics struct {
	Rotation    [9]float64 // row major
	Translation r3.Vector
}

func IdentityExtrinsics() Extrinsics {
	return Extrinsics{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

func (e Extrinsics) Apply(p r3.Vector) r3.Vector {
	r := e.Rotation
	return r3.Vector{
		X: r[0]*p.X + r[1]*p.Y + r[2]*p.Z,
		Y: r[3]*p.X + r[4]*p.Y + r[5]*p.Z,
		Z: r[6]*p.X + r[7]*p.Y + r[8]*p.Z,
	}.Add(e.Translation)
}
