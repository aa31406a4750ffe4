package registration

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/mUogoro/rgbd-grabber/rgbd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pinhole(w, h int, f float64) rgbd.Intrinsics {
	return rgbd.Intrinsics{Width: w, Height: h, Fx: f, Fy: f, Cx: float64(w) / 2, Cy: float64(h) / 2}
}

func gradient(w, h, ch int) []byte {
	data := make([]byte, w*h*ch)
	for i := range data {
		data[i] = byte(i / ch)
	}
	return data
}

func flat(n int, z uint16) []uint16 {
	data := make([]uint16, n)
	for i := range data {
		data[i] = z
	}
	return data
}

func TestIdentityReproducesColor(t *testing.T) {
	in := pinhole(32, 24, 30)
	r, err := New(rgbd.DepthOverColor, Calibration{Depth: in, Color: in, Extrinsics: rgbd.IdentityExtrinsics()})
	require.NoError(t, err)

	color := gradient(32, 24, 3)
	dst := make([]byte, len(color))
	require.NoError(t, r.AlignColor(flat(32*24, 1000), color, dst))
	assert.Equal(t, color, dst)
}

func TestInvalidDepthIsBlack(t *testing.T) {
	in := pinhole(4, 4, 4)
	r, err := New(rgbd.DepthOverColor, Calibration{Depth: in, Color: in, Extrinsics: rgbd.IdentityExtrinsics()})
	require.NoError(t, err)

	depth := flat(16, 500)
	depth[5] = 0
	color := make([]byte, 16*3)
	for i := range color {
		color[i] = 200
	}
	dst := make([]byte, len(color))
	require.NoError(t, r.AlignColor(depth, color, dst))

	assert.Equal(t, []byte{0, 0, 0}, dst[15:18])
	assert.Equal(t, []byte{200, 200, 200}, dst[12:15])
}

func TestScaledColorCamera(t *testing.T) {
	depth := pinhole(32, 24, 30)
	color := pinhole(64, 48, 60)
	r, err := New(rgbd.DepthOverColor, Calibration{Depth: depth, Color: color, Extrinsics: rgbd.IdentityExtrinsics()})
	require.NoError(t, err)

	colorData := gradient(64, 48, 4)
	dst := make([]byte, 32*24*4)
	require.NoError(t, r.AlignColor(flat(32*24, 1000), colorData, dst))

	// depth pixel (u, v) sees color pixel (2u, 2v)
	u, v := 5, 7
	expected := byte((2*v)*64 + 2*u)
	assert.Equal(t, expected, dst[(v*32+u)*4])
}

func TestTranslationShiftsPixels(t *testing.T) {
	in := pinhole(40, 10, 100)
	ext := rgbd.IdentityExtrinsics()
	ext.Translation = r3.Vector{X: 50}
	r, err := New(rgbd.DepthOverColor, Calibration{Depth: in, Color: in, Extrinsics: ext})
	require.NoError(t, err)

	color := gradient(40, 10, 1)
	dst := make([]byte, len(color))
	require.NoError(t, r.AlignColor(flat(400, 1000), color, dst))

	// 100px focal * 50mm / 1000mm = 5px to the right
	assert.Equal(t, color[5*40+15], dst[5*40+10])
	// the last columns fall off the color image
	assert.Equal(t, byte(0), dst[5*40+39])
}

func TestAlignDepthKeepsNearest(t *testing.T) {
	in := pinhole(8, 8, 8)
	r, err := New(rgbd.ColorOverDepth, Calibration{Depth: in, Color: in, Extrinsics: rgbd.IdentityExtrinsics()})
	require.NoError(t, err)

	depth := flat(64, 1200)
	depth[9] = 0
	dst := make([]uint16, 64)
	require.NoError(t, r.AlignDepth(depth, dst))

	assert.Equal(t, uint16(1200), dst[0])
	assert.Equal(t, uint16(0), dst[9])
}

func TestGeometry(t *testing.T) {
	depth := rgbd.Geometry{Width: 512, Height: 424, Channels: 1, HFOV: 70, VFOV: 60}
	color := rgbd.Geometry{Width: 1920, Height: 1080, Channels: 4, HFOV: 84, VFOV: 53}
	in := pinhole(8, 8, 8)

	r, err := New(rgbd.DepthOverColor, Calibration{Depth: in, Color: in, Extrinsics: rgbd.IdentityExtrinsics()})
	require.NoError(t, err)
	d, c := r.Geometry(depth, color)
	assert.Equal(t, depth, d)
	assert.Equal(t, 512, c.Width)
	assert.Equal(t, 424, c.Height)
	assert.Equal(t, 4, c.Channels)
	assert.Equal(t, 70.0, c.HFOV)

	r, err = New(rgbd.ColorOverDepth, Calibration{Depth: in, Color: in, Extrinsics: rgbd.IdentityExtrinsics()})
	require.NoError(t, err)
	d, c = r.Geometry(depth, color)
	assert.Equal(t, color, c)
	assert.Equal(t, 1920, d.Width)
	assert.Equal(t, 1, d.Channels)
	assert.Equal(t, 53.0, d.VFOV)
}

func TestNewRejects(t *testing.T) {
	in := pinhole(8, 8, 8)
	_, err := New(rgbd.RegistrationNone, Calibration{Depth: in, Color: in})
	assert.ErrorIs(t, err, rgbd.ErrUnsupportedRegistration)

	_, err = New(rgbd.DepthOverColor, Calibration{Depth: in})
	assert.ErrorIs(t, err, rgbd.ErrInvalidParams)
}

func TestShortBuffers(t *testing.T) {
	in := pinhole(4, 4, 4)
	r, err := New(rgbd.DepthOverColor, Calibration{Depth: in, Color: in, Extrinsics: rgbd.IdentityExtrinsics()})
	require.NoError(t, err)

	assert.ErrorIs(t, r.AlignColor(flat(3, 1), make([]byte, 48), make([]byte, 48)), rgbd.ErrShortBuffer)
	assert.ErrorIs(t, r.AlignColor(flat(16, 1), make([]byte, 48), make([]byte, 47)), rgbd.ErrShortBuffer)
	assert.ErrorIs(t, r.AlignDepth(flat(16, 1), make([]uint16, 15)), rgbd.ErrShortBuffer)
}
