package backend

import (
	"context"
	"testing"
	"time"

	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/device/synthetic"
	"github.com/mUogoro/rgbd-grabber/rgbd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// registerSynthetic installs a driver whose frames only come from Inject.
func registerSynthetic(t *testing.T, family synthetic.Family) (string, func() *synthetic.Context) {
	t.Helper()
	name := "test/" + t.Name()
	var last *synthetic.Context
	device.Register(name, func() (device.Context, error) {
		last = synthetic.NewContext(family, synthetic.Options{})
		return last, nil
	})
	return name, func() *synthetic.Context {
		return last
	}
}

func params(dw, dh, cw, ch, fps int) rgbd.Params {
	return rgbd.Params{
		Depth:          rgbd.StreamParams{Width: dw, Height: dh, FPS: fps},
		Color:          rgbd.StreamParams{Width: cw, Height: ch, FPS: fps},
		Warmup:         rgbd.WarmupSkip,
		StartupTimeout: 100 * time.Millisecond,
	}
}

func fill16(n int, v uint16) []uint16 {
	data := make([]uint16, n)
	for i := range data {
		data[i] = v
	}
	return data
}

func fill8(n int, v byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = v
	}
	return data
}

func TestLookup(t *testing.T) {
	for _, name := range Profiles() {
		profile, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, profile.Name())
	}
	_, err := Lookup("kinect-azure")
	assert.Error(t, err)
}

func TestOpenNI2Session(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.OpenNI2)

	s, err := Open(context.Background(), driver, OpenNI2{}, params(320, 240, 640, 480, 30))
	require.NoError(t, err)

	assert.Equal(t, 320, s.DepthWidth())
	assert.Equal(t, 640, s.ColorWidth())
	assert.Equal(t, 3, s.ColorChannels())
	assert.InDelta(t, synthetic.OpenNI2.DepthHFOV, s.DepthHFOV(), 1e-9)
	assert.InDelta(t, synthetic.OpenNI2.ColorVFOV, s.ColorVFOV(), 1e-9)

	dev := runtime().Device("")
	_, mirror, synced := dev.Settings()
	assert.False(t, mirror)
	assert.True(t, synced)

	require.NoError(t, dev.Inject(rgbd.RawFrame{Modality: rgbd.Depth, Timestamp: 100, Depth: fill16(320*240, 900)}))
	require.NoError(t, dev.Inject(rgbd.RawFrame{Modality: rgbd.Color, Timestamp: 110, Color: fill8(640*480*3, 50)}))

	depth := make([]uint16, 320*240)
	color := make([]byte, 640*480*3)
	assert.Eventually(t, func() bool {
		dts, cts, err := s.CopyDepthAndColor(depth, color)
		return err == nil && dts == 100 && cts == 110
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint16(900), depth[0])
	assert.Equal(t, byte(50), color[0])

	skew, ok := s.Skew()
	assert.True(t, ok)
	assert.Equal(t, 10*time.Microsecond, skew)

	require.NoError(t, s.Close())
	assert.True(t, runtime().Closed())
	assert.Equal(t, 0, device.References(driver))
}

func TestOpenNI2RegistersDepthOnColorGrid(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.OpenNI2)

	p := params(320, 240, 640, 480, 30)
	p.Registration = rgbd.ColorOverDepth
	s, err := Open(context.Background(), driver, OpenNI2{}, p)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, s.ColorWidth(), s.DepthWidth())
	assert.Equal(t, s.ColorHeight(), s.DepthHeight())
	assert.Equal(t, s.ColorHFOV(), s.DepthHFOV())

	require.NoError(t, runtime().Device("").Inject(rgbd.RawFrame{Modality: rgbd.Depth, Timestamp: 5, Depth: fill16(320*240, 1500)}))

	dst := make([]uint16, 640*480)
	assert.Eventually(t, func() bool {
		ts, err := s.CopyDepth(dst)
		return err == nil && ts == 5
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint16(1500), dst[240*640+320])
}

func TestOpenNI2RejectsColorOnDepthGrid(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.OpenNI2)

	p := params(320, 240, 640, 480, 30)
	p.Registration = rgbd.DepthOverColor
	_, err := Open(context.Background(), driver, OpenNI2{}, p)
	assert.ErrorIs(t, err, rgbd.ErrUnsupportedRegistration)
	assert.Nil(t, runtime(), "runtime never initialized")
}

func TestOpenNI2RejectsUnknownMode(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.OpenNI2)

	_, err := Open(context.Background(), driver, OpenNI2{}, params(320, 240, 640, 480, 45))
	assert.ErrorIs(t, err, rgbd.ErrUnsupportedMode)
	assert.True(t, runtime().Closed())
	assert.Equal(t, 0, device.References(driver))
}

func TestFreenect2Session(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.Freenect2)

	p := params(512, 424, 1920, 1080, 30)
	p.Registration = rgbd.DepthOverColor
	s, err := Open(context.Background(), driver, Freenect2{}, p)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 512, s.ColorWidth())
	assert.Equal(t, 424, s.ColorHeight())
	assert.Equal(t, 4, s.ColorChannels())
	assert.Equal(t, s.DepthHFOV(), s.ColorHFOV())

	dev := runtime().Device("")
	dst := make([]byte, 512*424*4)

	// callback delivery publishes synchronously
	require.NoError(t, dev.Inject(rgbd.RawFrame{Modality: rgbd.Color, Timestamp: 20, Color: fill8(1920*1080*4, 80)}))
	ts, err := s.CopyColor(dst)
	require.NoError(t, err)
	assert.Equal(t, rgbd.NoData, ts, "no depth yet")

	require.NoError(t, dev.Inject(rgbd.RawFrame{Modality: rgbd.Depth, Timestamp: 21, Depth: fill16(512*424, 2000)}))
	ts, err = s.CopyColor(dst)
	require.NoError(t, err)
	assert.Equal(t, rgbd.Timestamp(21), ts)
	assert.Equal(t, byte(80), dst[(212*512+256)*4])
}

func TestFreenect2FixedModes(t *testing.T) {
	driver, _ := registerSynthetic(t, synthetic.Freenect2)

	s, err := Open(context.Background(), driver, Freenect2{}, params(640, 480, 640, 480, 30))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 512, s.DepthWidth())
	assert.Equal(t, 1920, s.ColorWidth())
}

func TestSoftKineticConvertsYUYV(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.SoftKinetic)

	p := params(320, 240, 320, 240, 30)
	p.NearMode = true
	s, err := Open(context.Background(), driver, SoftKinetic{}, p)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.ColorChannels())
	assert.Equal(t, rgbd.RGB24, s.ColorGeometry().Format)

	dev := runtime().Device("")
	near, _, _ := dev.Settings()
	assert.True(t, near)

	yuyv := make([]byte, 320*240*2)
	for i := 0; i < len(yuyv); i += 2 {
		yuyv[i], yuyv[i+1] = 16, 128
	}
	require.NoError(t, dev.Inject(rgbd.RawFrame{Modality: rgbd.Color, Timestamp: 3, Color: yuyv}))

	dst := make([]byte, 320*240*3)
	ts, err := s.CopyColor(dst)
	require.NoError(t, err)
	assert.Equal(t, rgbd.Timestamp(3), ts)
	assert.Equal(t, []byte{16, 16, 16}, dst[:3])
}

func TestSoftKineticRejects(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.SoftKinetic)

	_, err := Open(context.Background(), driver, SoftKinetic{}, params(640, 480, 640, 480, 30))
	assert.ErrorIs(t, err, rgbd.ErrUnsupportedMode)
	assert.True(t, runtime().Closed())

	p := params(320, 240, 640, 480, 30)
	p.Registration = rgbd.DepthOverColor
	_, err = Open(context.Background(), driver, SoftKinetic{}, p)
	assert.ErrorIs(t, err, rgbd.ErrUnsupportedRegistration)
}

func TestDepthOnlySession(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.SoftKinetic)

	p := params(320, 240, 0, 0, 30)
	p.Color.Disabled = true
	s, err := Open(context.Background(), driver, SoftKinetic{}, p)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.CopyColor(make([]byte, 10))
	assert.ErrorIs(t, err, rgbd.ErrStreamDisabled)

	_, ok := runtime().Device("").Mode(rgbd.Color)
	assert.False(t, ok)
}

func TestWarmupTimesOutWithoutFrames(t *testing.T) {
	driver, runtime := registerSynthetic(t, synthetic.OpenNI2)

	p := params(320, 240, 640, 480, 30)
	p.Warmup = rgbd.WarmupRequire
	_, err := Open(context.Background(), driver, OpenNI2{}, p)
	assert.ErrorIs(t, err, rgbd.ErrNotReady)
	assert.True(t, runtime().Closed())
	assert.Equal(t, 0, device.References(driver))
}

func TestGeneratedStreamsReachFirstLight(t *testing.T) {
	p := params(320, 240, 640, 480, 30)
	p.Warmup = rgbd.WarmupRequire
	p.StartupTimeout = 2 * time.Second

	s, err := Open(context.Background(), synthetic.DriverName(synthetic.OpenNI2), OpenNI2{}, p)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, rgbd.Streaming, s.State())
	ts, err := s.CopyDepth(make([]uint16, 320*240))
	require.NoError(t, err)
	assert.NotEqual(t, rgbd.NoData, ts)
}

func TestSharedRuntime(t *testing.T) {
	driver := "test/" + t.Name()
	device.Register(driver, func() (device.Context, error) {
		return synthetic.NewContext(synthetic.Freenect2, synthetic.Options{Devices: 2}), nil
	})

	p := params(512, 424, 1920, 1080, 30)
	p.DeviceID = "freenect2-0"
	first, err := Open(context.Background(), driver, Freenect2{}, p)
	require.NoError(t, err)

	p.DeviceID = "freenect2-1"
	second, err := Open(context.Background(), driver, Freenect2{}, p)
	require.NoError(t, err)
	assert.Equal(t, 2, device.References(driver))

	require.NoError(t, first.Close())
	assert.Equal(t, 1, device.References(driver))
	require.NoError(t, second.Close())
	assert.Equal(t, 0, device.References(driver))
}
