package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mUogoro/rgbd-grabber/rgbd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGrabber struct {
	state rgbd.State
	dts   rgbd.Timestamp
	cts   rgbd.Timestamp
}

var (
	depthGeometry = rgbd.Geometry{Width: 8, Height: 6, Channels: 1, Format: rgbd.Depth1MM, HFOV: 58, VFOV: 45}
	colorGeometry = rgbd.Geometry{Width: 8, Height: 6, Channels: 3, Format: rgbd.RGB24, HFOV: 62, VFOV: 48}
)

func (f *fakeGrabber) ID() string                   { return "session-1" }
func (f *fakeGrabber) State() rgbd.State            { return f.state }
func (f *fakeGrabber) DepthGeometry() rgbd.Geometry { return depthGeometry }
func (f *fakeGrabber) ColorGeometry() rgbd.Geometry { return colorGeometry }
func (f *fakeGrabber) InSync() bool                 { return true }
func (f *fakeGrabber) SkewTolerance() time.Duration { return 33 * time.Millisecond }

func (f *fakeGrabber) Params() rgbd.Params {
	return rgbd.Params{Registration: rgbd.DepthOverColor, Mirroring: true}
}

func (f *fakeGrabber) Stats() rgbd.Stats {
	return rgbd.Stats{
		ID:    f.ID(),
		State: f.state.String(),
		Depth: rgbd.SlotStats{Published: 3, Last: f.dts},
		Color: rgbd.SlotStats{Published: 2, Dropped: 1, Last: f.cts},
	}
}

func (f *fakeGrabber) Skew() (time.Duration, bool) {
	return time.Duration(f.cts-f.dts) * time.Microsecond, true
}

func newServer(t *testing.T, g Grabber) *httptest.Server {
	t.Helper()
	s := New(g, Options{Cors: true, TelemetryInterval: 10 * time.Millisecond})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		ts.Close()
	})
	return ts
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.NewDecoder(res.Body).Decode(v))
}

func TestState(t *testing.T) {
	ts := newServer(t, &fakeGrabber{state: rgbd.Streaming})

	var body map[string]string
	getJSON(t, ts.URL+"/api/state", &body)
	assert.Equal(t, "session-1", body["id"])
	assert.Equal(t, "streaming", body["state"])
}

func TestGeometry(t *testing.T) {
	ts := newServer(t, &fakeGrabber{state: rgbd.Streaming})

	var body struct {
		Depth        rgbd.Geometry `json:"depth"`
		Color        rgbd.Geometry `json:"color"`
		Registration string        `json:"registration"`
		Mirroring    bool          `json:"mirroring"`
	}
	getJSON(t, ts.URL+"/api/geometry", &body)
	assert.Equal(t, depthGeometry, body.Depth)
	assert.Equal(t, colorGeometry, body.Color)
	assert.Equal(t, "depth_over_color", body.Registration)
	assert.True(t, body.Mirroring)
}

func TestStats(t *testing.T) {
	ts := newServer(t, &fakeGrabber{state: rgbd.Streaming, dts: 100, cts: 150})

	var body struct {
		Stats           rgbd.Stats `json:"stats"`
		Telemetry       Telemetry  `json:"telemetry"`
		SkewToleranceUS int64      `json:"skew_tolerance_us"`
	}
	getJSON(t, ts.URL+"/api/stats", &body)
	assert.Equal(t, uint64(1), body.Stats.Color.Dropped)
	assert.Equal(t, int64(50), body.Telemetry.SkewUS)
	assert.True(t, body.Telemetry.HasSkew)
	assert.Equal(t, int64(33000), body.SkewToleranceUS)
}

func TestDrivers(t *testing.T) {
	ts := newServer(t, &fakeGrabber{state: rgbd.Streaming})

	var body struct {
		Drivers  []string `json:"drivers"`
		Profiles []string `json:"profiles"`
	}
	getJSON(t, ts.URL+"/api/drivers", &body)
	assert.Contains(t, body.Profiles, "openni2")
	assert.Contains(t, body.Profiles, "uvc")
}

func TestCors(t *testing.T) {
	ts := newServer(t, &fakeGrabber{state: rgbd.Streaming})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/state", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestTelemetry(t *testing.T) {
	ts := newServer(t, &fakeGrabber{state: rgbd.Streaming, dts: 10, cts: 30})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/telemetry"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		var telemetry Telemetry
		require.NoError(t, conn.ReadJSON(&telemetry))
		assert.Equal(t, "streaming", telemetry.State)
		assert.Equal(t, int64(20), telemetry.SkewUS)
		assert.Equal(t, rgbd.Timestamp(10), telemetry.Depth.Last)
	}
}

func TestIndex(t *testing.T) {
	ts := newServer(t, &fakeGrabber{state: rgbd.Streaming})

	res, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
}
