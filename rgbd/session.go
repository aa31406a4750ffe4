package rgbd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/google/uuid"
)

var l = gogger.New("rgbd")

type State int

const (
	Unopened State = iota
	Configuring
	Streaming
	Stopping
	Closed
)

func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Configuring:
		return "configuring"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Grabber is the capability set every backend exposes.
type Grabber interface {
	io.Closer

	DepthWidth() int
	DepthHeight() int
	DepthHFOV() float64
	DepthVFOV() float64
	ColorWidth() int
	ColorHeight() int
	ColorHFOV() float64
	ColorVFOV() float64
	ColorChannels() int

	CopyDepth(dst []uint16) (Timestamp, error)
	CopyColor(dst []byte) (Timestamp, error)
	CopyDepthAndColor(depth []uint16, color []byte) (Timestamp, Timestamp, error)
}

// Spec is what a backend hands over once the device is open and its streams started.
type Spec struct {
	Params Params
	// Depth is the native depth geometry, Color the color layout after ConvertColor.
	Depth Geometry
	Color Geometry

	Producer     Producer
	Registrar    Registrar
	ConvertColor ColorConverter
	// TimestampUnit is the duration of one device clock tick, used for skew reporting.
	TimestampUnit time.Duration
	// Device is closed after the producer has stopped.
	Device io.Closer
}

type Stats struct {
	ID    string    `json:"id"`
	State string    `json:"state"`
	Depth SlotStats `json:"depth"`
	Color SlotStats `json:"color"`
}

// Session is the grabber facade. It composes one producer, the two latest-frame
// slots and an optional registrar, and drives the session lifecycle.
type Session struct {
	id     string
	params Params

	stateLocker sync.Locker
	state       State

	depthGeometry Geometry
	colorGeometry Geometry
	unit          time.Duration

	depth     *Slot[uint16]
	color     *Slot[uint8]
	producer  Producer
	registrar Registrar
	device    io.Closer

	closeOnce sync.Once
	closeErr  error
}

// Open starts the producer and waits for first light according to the warmup policy.
// On any failure every resource in spec is released before returning.
func Open(ctx context.Context, spec Spec) (*Session, error) {
	params := spec.Params.WithDefaults()

	s := &Session{
		id:          uuid.NewString(),
		params:      params,
		stateLocker: &sync.Mutex{},
		state:       Unopened,
		producer:    spec.Producer,
		registrar:   spec.Registrar,
		device:      spec.Device,
		unit:        spec.TimestampUnit,
	}
	if s.unit <= 0 {
		s.unit = time.Microsecond
	}

	s.setState(Configuring)

	if err := s.configure(spec); err != nil {
		s.teardown(false)
		return nil, err
	}

	pub := &publisher{
		depth:        s.depth,
		color:        s.color,
		convertColor: spec.ConvertColor,
		colorPixels:  spec.Color.Pixels(),
	}
	if err := s.producer.Start(pub.publish); err != nil {
		s.teardown(false)
		return nil, fmt.Errorf("start producer: %w", err)
	}

	if err := s.warmup(ctx); err != nil {
		s.teardown(true)
		return nil, err
	}

	s.setState(Streaming)
	l.Info().Printf("session %s streaming: depth %dx%d, color %dx%dx%d, registration %s",
		s.id,
		s.depthGeometry.Width, s.depthGeometry.Height,
		s.colorGeometry.Width, s.colorGeometry.Height, s.colorGeometry.Channels,
		s.params.Registration,
	)

	return s, nil
}

func (s *Session) configure(spec Spec) error {
	if err := s.params.Validate(); err != nil {
		return err
	}
	if s.producer == nil {
		return errors.New("no producer")
	}

	depth, color := spec.Depth, spec.Color
	if !s.params.Depth.Disabled && depth.Samples() == 0 {
		return fmt.Errorf("%w: empty depth geometry", ErrInvalidParams)
	}
	if !s.params.Color.Disabled && color.Samples() == 0 {
		return fmt.Errorf("%w: empty color geometry", ErrInvalidParams)
	}

	switch s.params.Registration {
	case RegistrationNone:
		s.registrar = nil
	default:
		if s.registrar == nil || s.registrar.Direction() != s.params.Registration {
			return fmt.Errorf("%w: %s", ErrUnsupportedRegistration, s.params.Registration)
		}
	}

	s.depthGeometry, s.colorGeometry = depth, color
	if s.registrar != nil {
		s.depthGeometry, s.colorGeometry = s.registrar.Geometry(depth, color)
	}

	if !s.params.Depth.Disabled {
		s.depth = NewSlot[uint16](Depth, depth.Samples())
	}
	if !s.params.Color.Disabled {
		s.color = NewSlot[uint8](Color, color.Samples())
	}

	return nil
}

func (s *Session) warmup(ctx context.Context) error {
	if s.params.Warmup == WarmupSkip {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, s.params.StartupTimeout)
	defer cancel()

	var err error
	if s.depth != nil {
		err = s.depth.WaitReady(wctx)
	}
	if err == nil && s.color != nil {
		err = s.color.WaitReady(wctx)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		if s.params.Warmup == WarmupGrace {
			l.Warn().Println("no first light after", s.params.StartupTimeout, "streaming anyway")
			return nil
		}
		return fmt.Errorf("%w (%s)", ErrNotReady, s.params.StartupTimeout)
	}
	return err
}

// teardown runs the Stopping -> Closed half of the lifecycle in its fixed order.
func (s *Session) teardown(producerStarted bool) error {
	s.setState(Stopping)

	var errs []error
	if producerStarted {
		if err := s.producer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop producer: %w", err))
		}
	}
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release device: %w", err))
		}
	}
	if c, ok := s.registrar.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release registration: %w", err))
		}
	}
	if s.depth != nil {
		s.depth.Close()
	}
	if s.color != nil {
		s.color.Close()
	}

	s.setState(Closed)
	return errors.Join(errs...)
}

// Close stops the producer, waits for it, then releases the device and the
// registration state. Reads after Close report ErrClosed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.teardown(true)
		l.Info().Println("session", s.id, "closed")
	})
	return s.closeErr
}

func (s *Session) setState(state State) {
	s.stateLocker.Lock()
	defer s.stateLocker.Unlock()
	l.Verbose().Println("session", s.id, s.state, "->", state)
	s.state = state
}

func (s *Session) State() State {
	s.stateLocker.Lock()
	defer s.stateLocker.Unlock()
	return s.state
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Params() Params {
	return s.params
}

func (s *Session) DepthGeometry() Geometry {
	return s.depthGeometry
}

func (s *Session) ColorGeometry() Geometry {
	return s.colorGeometry
}

func (s *Session) DepthWidth() int      { return s.depthGeometry.Width }
func (s *Session) DepthHeight() int     { return s.depthGeometry.Height }
func (s *Session) DepthHFOV() float64   { return s.depthGeometry.HFOV }
func (s *Session) DepthVFOV() float64   { return s.depthGeometry.VFOV }
func (s *Session) ColorWidth() int      { return s.colorGeometry.Width }
func (s *Session) ColorHeight() int     { return s.colorGeometry.Height }
func (s *Session) ColorHFOV() float64   { return s.colorGeometry.HFOV }
func (s *Session) ColorVFOV() float64   { return s.colorGeometry.VFOV }
func (s *Session) ColorChannels() int   { return s.colorGeometry.Channels }
func (s *Session) Registered() bool     { return s.registrar != nil }
func (s *Session) Direction() Direction { return s.params.Registration }

func (s *Session) registersColor() bool {
	return s.registrar != nil && s.registrar.Direction() == DepthOverColor
}

func (s *Session) registersDepth() bool {
	return s.registrar != nil && s.registrar.Direction() == ColorOverDepth
}

// CopyDepth copies the latest depth frame into dst. NoData with a nil error
// means no frame has arrived yet.
func (s *Session) CopyDepth(dst []uint16) (Timestamp, error) {
	if s.depth == nil {
		return NoData, ErrStreamDisabled
	}

	s.depth.locker.RLock()
	defer s.depth.locker.RUnlock()

	return s.copyDepthLocked(dst)
}

// CopyColor copies the latest color frame, aligned on the depth grid when the
// session registers depth over color.
func (s *Session) CopyColor(dst []byte) (Timestamp, error) {
	if s.color == nil {
		return NoData, ErrStreamDisabled
	}

	// lock order is always depth then color
	if s.registersColor() {
		s.depth.locker.RLock()
		defer s.depth.locker.RUnlock()
	}
	s.color.locker.RLock()
	defer s.color.locker.RUnlock()

	return s.copyColorLocked(dst)
}

// CopyDepthAndColor copies both frames while holding both slots, so neither
// frame can be replaced between the two copies.
func (s *Session) CopyDepthAndColor(depth []uint16, color []byte) (Timestamp, Timestamp, error) {
	if s.depth == nil || s.color == nil {
		return NoData, NoData, ErrStreamDisabled
	}

	s.depth.locker.RLock()
	defer s.depth.locker.RUnlock()
	s.color.locker.RLock()
	defer s.color.locker.RUnlock()

	dts, err := s.copyDepthLocked(depth)
	if err != nil {
		return NoData, NoData, err
	}
	cts, err := s.copyColorLocked(color)
	if err != nil {
		return dts, NoData, err
	}
	return dts, cts, nil
}

func (s *Session) copyDepthLocked(dst []uint16) (Timestamp, error) {
	if !s.registersDepth() {
		return s.depth.copyLocked(dst)
	}

	frame, err := s.depth.current()
	if err != nil || frame == nil {
		return NoData, err
	}
	n := s.depthGeometry.Samples()
	if len(dst) < n {
		return NoData, ErrShortBuffer
	}
	if err := s.registrar.AlignDepth(frame.Data, dst[:n]); err != nil {
		return NoData, err
	}
	return frame.Timestamp, nil
}

func (s *Session) copyColorLocked(dst []byte) (Timestamp, error) {
	if !s.registersColor() {
		return s.color.copyLocked(dst)
	}

	depth, err := s.depth.current()
	if err != nil {
		return NoData, err
	}
	color, err := s.color.current()
	if err != nil {
		return NoData, err
	}
	// never align against absent depth
	if depth == nil || color == nil {
		return NoData, nil
	}
	n := s.colorGeometry.Samples()
	if len(dst) < n {
		return NoData, ErrShortBuffer
	}
	if err := s.registrar.AlignColor(depth.Data, color.Data, dst[:n]); err != nil {
		return NoData, err
	}
	// the aligned frame lives on the depth grid, it carries the depth time
	return depth.Timestamp, nil
}

func (s *Session) Stats() Stats {
	st := Stats{
		ID:    s.id,
		State: s.State().String(),
	}
	if s.depth != nil {
		st.Depth = s.depth.Stats()
	}
	if s.color != nil {
		st.Color = s.color.Stats()
	}
	return st
}

// Skew is the distance between the latest depth and color timestamps.
// ok is false while either stream has not delivered a frame.
func (s *Session) Skew() (skew time.Duration, ok bool) {
	if s.depth == nil || s.color == nil {
		return 0, false
	}
	dts, cts := s.depth.Timestamp(), s.color.Timestamp()
	if dts == NoData || cts == NoData {
		return 0, false
	}
	diff := dts - cts
	if cts > dts {
		diff = cts - dts
	}
	return time.Duration(diff) * s.unit, true
}

// InSync reports whether the current skew is within the configured tolerance.
func (s *Session) InSync() bool {
	skew, ok := s.Skew()
	return ok && skew <= s.params.SkewTolerance
}

func (s *Session) SkewTolerance() time.Duration {
	return s.params.SkewTolerance
}
