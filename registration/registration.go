package registration

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

// Calibration is what a device reports about its two cameras.
type Calibration struct {
	Depth      rgbd.Intrinsics
	Color      rgbd.Intrinsics
	Extrinsics rgbd.Extrinsics
}

func (c Calibration) CheckValid() error {
	for _, in := range []rgbd.Intrinsics{c.Depth, c.Color} {
		if in.Width <= 0 || in.Height <= 0 {
			return fmt.Errorf("%w: calibration size %dx%d", rgbd.ErrInvalidParams, in.Width, in.Height)
		}
		if in.Fx <= 0 || in.Fy <= 0 {
			return fmt.Errorf("%w: calibration focal length %fx%f", rgbd.ErrInvalidParams, in.Fx, in.Fy)
		}
	}
	return nil
}

// Registrar maps depth pixels into the color camera. It is read only after New
// and safe to share between readers.
type Registrar struct {
	direction   rgbd.Direction
	calibration Calibration
	// unit depth ray of every depth pixel, undistorted
	rays []r3.Vector
}

func New(direction rgbd.Direction, calibration Calibration) (*Registrar, error) {
	if direction != rgbd.DepthOverColor && direction != rgbd.ColorOverDepth {
		return nil, fmt.Errorf("%w: %s", rgbd.ErrUnsupportedRegistration, direction)
	}
	if err := calibration.CheckValid(); err != nil {
		return nil, err
	}

	d := calibration.Depth
	rays := make([]r3.Vector, d.Width*d.Height)
	for v := 0; v < d.Height; v++ {
		for u := 0; u < d.Width; u++ {
			x, y := d.Undistort((float64(u)-d.Cx)/d.Fx, (float64(v)-d.Cy)/d.Fy)
			rays[v*d.Width+u] = r3.Vector{X: x, Y: y, Z: 1}
		}
	}

	return &Registrar{
		direction:   direction,
		calibration: calibration,
		rays:        rays,
	}, nil
}

func (r *Registrar) Direction() rgbd.Direction {
	return r.direction
}

func (r *Registrar) Geometry(depth, color rgbd.Geometry) (rgbd.Geometry, rgbd.Geometry) {
	switch r.direction {
	case rgbd.DepthOverColor:
		color.Width, color.Height = depth.Width, depth.Height
		color.HFOV, color.VFOV = depth.HFOV, depth.VFOV
	case rgbd.ColorOverDepth:
		depth.Width, depth.Height = color.Width, color.Height
		depth.HFOV, depth.VFOV = color.HFOV, color.VFOV
	}
	return depth, color
}

// project returns the color pixel index hit by depth pixel i at distance z,
// and the distance along the color camera axis.
func (r *Registrar) project(i int, z uint16) (int, float64, bool) {
	c := r.calibration.Color
	p := r.calibration.Extrinsics.Apply(r.rays[i].Mul(float64(z)))
	if p.Z <= 0 {
		return 0, 0, false
	}

	x, y := c.Distort(p.X/p.Z, p.Y/p.Z)
	u := int(math.Round(c.Fx*x + c.Cx))
	v := int(math.Round(c.Fy*y + c.Cy))
	if u < 0 || v < 0 || u >= c.Width || v >= c.Height {
		return 0, 0, false
	}
	return v*c.Width + u, p.Z, true
}

// AlignColor samples color for every depth pixel. Pixels without valid depth,
// or falling outside the color image, are black.
func (r *Registrar) AlignColor(depth []uint16, color []byte, dst []byte) error {
	if len(depth) != len(r.rays) {
		return fmt.Errorf("%w: depth has %d samples, want %d", rgbd.ErrShortBuffer, len(depth), len(r.rays))
	}
	colorPixels := r.calibration.Color.Width * r.calibration.Color.Height
	channels := len(color) / colorPixels
	if channels == 0 {
		return fmt.Errorf("%w: color has %d samples for %d pixels", rgbd.ErrShortBuffer, len(color), colorPixels)
	}
	if len(dst) < len(depth)*channels {
		return rgbd.ErrShortBuffer
	}

	for i, z := range depth {
		out := dst[i*channels : (i+1)*channels]
		if z == 0 {
			clear(out)
			continue
		}
		j, _, ok := r.project(i, z)
		if !ok {
			clear(out)
			continue
		}
		copy(out, color[j*channels:(j+1)*channels])
	}
	return nil
}

// AlignDepth splats depth samples on the color grid. When several samples land
// on the same color pixel the nearest one wins, unreached pixels are 0.
func (r *Registrar) AlignDepth(depth []uint16, dst []uint16) error {
	if len(depth) != len(r.rays) {
		return fmt.Errorf("%w: depth has %d samples, want %d", rgbd.ErrShortBuffer, len(depth), len(r.rays))
	}
	colorPixels := r.calibration.Color.Width * r.calibration.Color.Height
	if len(dst) < colorPixels {
		return rgbd.ErrShortBuffer
	}

	dst = dst[:colorPixels]
	clear(dst)
	for i, z := range depth {
		if z == 0 {
			continue
		}
		j, zc, ok := r.project(i, z)
		if !ok || zc > math.MaxUint16 {
			continue
		}
		zz := uint16(math.Round(zc))
		if zz == 0 {
			continue
		}
		if dst[j] == 0 || zz < dst[j] {
			dst[j] = zz
		}
	}
	return nil
}
