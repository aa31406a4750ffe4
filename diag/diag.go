package diag

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mUogoro/rgbd-grabber/backend"
	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

var l = gogger.New("diag")

// Grabber is what the diagnostics endpoints read from a session.
type Grabber interface {
	ID() string
	DepthGeometry() rgbd.Geometry
	ColorGeometry() rgbd.Geometry
	Skew() (time.Duration, bool)
	State() rgbd.State
	Stats() rgbd.Stats
	Params() rgbd.Params
	InSync() bool
	SkewTolerance() time.Duration
}

type Options struct {
	Addr              string
	Cors              bool
	TelemetryInterval time.Duration
}

type Telemetry struct {
	Time    time.Time      `json:"time"`
	State   string         `json:"state"`
	Depth   rgbd.SlotStats `json:"depth"`
	Color   rgbd.SlotStats `json:"color"`
	SkewUS  int64          `json:"skew_us"`
	HasSkew bool           `json:"has_skew"`
	InSync  bool           `json:"in_sync"`
}

func TelemetryOf(g Grabber) Telemetry {
	stats := g.Stats()
	skew, ok := g.Skew()
	return Telemetry{
		Time:    time.Now(),
		State:   stats.State,
		Depth:   stats.Depth,
		Color:   stats.Color,
		SkewUS:  skew.Microseconds(),
		HasSkew: ok,
		InSync:  g.InSync(),
	}
}

type Server struct {
	grabber  Grabber
	options  Options
	engine   *gin.Engine
	upgrader websocket.Upgrader
	server   *http.Server
	done     chan struct{}
	stop     sync.Once
}

func New(g Grabber, options Options) *Server {
	if options.TelemetryInterval <= 0 {
		options.TelemetryInterval = time.Second
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		grabber: g,
		options: options,
		engine:  gin.New(),
		done:    make(chan struct{}),
	}

	s.engine.Use(gin.Recovery(), func(c *gin.Context) {
		c.Next()
		l.Verbose().Println(c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	})

	if options.Cors {
		config := cors.DefaultConfig()
		config.AllowAllOrigins = true
		s.engine.Use(cors.New(config))
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}

	api := s.engine.Group("/api")
	api.GET("/state", s.state)
	api.GET("/geometry", s.geometry)
	api.GET("/stats", s.stats)
	api.GET("/drivers", s.drivers)

	s.engine.GET("/ws/telemetry", s.telemetry)
	s.engine.GET("/", s.index)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) state(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"id":    s.grabber.ID(),
		"state": s.grabber.State().String(),
	})
}

func (s *Server) geometry(c *gin.Context) {
	p := s.grabber.Params()
	c.JSON(http.StatusOK, gin.H{
		"depth":        s.grabber.DepthGeometry(),
		"color":        s.grabber.ColorGeometry(),
		"registration": p.Registration,
		"mirroring":    p.Mirroring,
		"near_mode":    p.NearMode,
	})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":             s.grabber.Stats(),
		"telemetry":         TelemetryOf(s.grabber),
		"skew_tolerance_us": s.grabber.SkewTolerance().Microseconds(),
	})
}

func (s *Server) drivers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"drivers":  device.Drivers(),
		"profiles": backend.Profiles(),
	})
}

func (s *Server) telemetry(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Warn().Println("upgrade:", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	l.Info().Println("telemetry client connected:", c.Request.RemoteAddr)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.options.TelemetryInterval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(TelemetryOf(s.grabber)); err != nil {
			l.Verbose().Println("telemetry client gone:", err)
			return
		}
		select {
		case <-closed:
			return
		case <-s.done:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"))
			return
		case <-ticker.C:
		}
	}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:    s.options.Addr,
		Handler: s.engine,
	}

	go func() {
		l.Info().Println("diagnostics listening on", s.options.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Println("diagnostics server:", err)
		}
	}()
}

// Shutdown ends telemetry streams and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop.Do(func() {
		close(s.done)
	})
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
