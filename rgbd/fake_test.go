package rgbd

import (
	"errors"
	"sync"
	"time"
)

// tickPoller serves alternating depth and color frames at a fixed period.
// Every sample of a frame carries the low bits of its timestamp.
type tickPoller struct {
	period time.Duration
	depth  Geometry
	color  Geometry

	locker sync.Locker
	n      int
	ts     Timestamp
	failN  int
	// staleN wakeups report ErrInterrupted, as a poller does after an earlier Stop.
	staleN int

	interrupt chan struct{}
}

func newTickPoller(period time.Duration, depth, color Geometry) *tickPoller {
	return &tickPoller{
		period:    period,
		depth:     depth,
		color:     color,
		locker:    &sync.Mutex{},
		interrupt: make(chan struct{}, 1),
	}
}

func (p *tickPoller) WaitForAnyStream(streams []Modality) (Modality, error) {
	select {
	case <-time.After(p.period):
	case <-p.interrupt:
		return 0, ErrInterrupted
	}

	p.locker.Lock()
	defer p.locker.Unlock()

	if p.failN > 0 {
		p.failN--
		return 0, errors.New("device hiccup")
	}
	if p.staleN > 0 {
		p.staleN--
		return 0, ErrInterrupted
	}

	m := streams[p.n%len(streams)]
	p.n++
	return m, nil
}

func (p *tickPoller) ReadFrame(m Modality) (RawFrame, error) {
	p.locker.Lock()
	p.ts++
	ts := p.ts
	p.locker.Unlock()

	frame := RawFrame{Modality: m, Timestamp: ts}
	switch m {
	case Depth:
		frame.Depth = make([]uint16, p.depth.Samples())
		for i := range frame.Depth {
			frame.Depth[i] = uint16(ts)
		}
	case Color:
		frame.Color = make([]byte, p.color.Samples())
		for i := range frame.Color {
			frame.Color[i] = byte(ts)
		}
	}
	return frame, nil
}

func (p *tickPoller) Interrupt() {
	select {
	case p.interrupt <- struct{}{}:
	default:
	}
}

// manualProducer publishes only when the test says so.
type manualProducer struct {
	locker  sync.Locker
	publish PublishFunc
	stopped bool
	onStop  func()
	onStart func(PublishFunc)
}

func newManualProducer() *manualProducer {
	return &manualProducer{locker: &sync.Mutex{}}
}

func (p *manualProducer) Start(publish PublishFunc) error {
	p.locker.Lock()
	p.publish = publish
	p.locker.Unlock()
	if p.onStart != nil {
		p.onStart(publish)
	}
	return nil
}

func (p *manualProducer) Stop() error {
	p.locker.Lock()
	p.stopped = true
	p.publish = nil
	p.locker.Unlock()
	if p.onStop != nil {
		p.onStop()
	}
	return nil
}

func (p *manualProducer) push(frame RawFrame) error {
	p.locker.Lock()
	publish := p.publish
	p.locker.Unlock()
	if publish == nil {
		return errors.New("producer stopped")
	}
	return publish(frame)
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// indexRegistrar maps pixels by index, enough to observe which grid an output lives on.
type indexRegistrar struct {
	direction Direction
	onClose   func()
}

func (r *indexRegistrar) Direction() Direction {
	return r.direction
}

func (r *indexRegistrar) Geometry(depth, color Geometry) (Geometry, Geometry) {
	switch r.direction {
	case DepthOverColor:
		color.Width, color.Height = depth.Width, depth.Height
		color.HFOV, color.VFOV = depth.HFOV, depth.VFOV
	case ColorOverDepth:
		depth.Width, depth.Height = color.Width, color.Height
		depth.HFOV, depth.VFOV = color.HFOV, color.VFOV
	}
	return depth, color
}

func (r *indexRegistrar) AlignColor(depth []uint16, color []byte, dst []byte) error {
	ch := len(dst) / len(depth)
	pixels := len(color) / ch
	for i, z := range depth {
		for c := 0; c < ch; c++ {
			if z == 0 {
				dst[i*ch+c] = 0
				continue
			}
			dst[i*ch+c] = color[(i%pixels)*ch+c]
		}
	}
	return nil
}

func (r *indexRegistrar) AlignDepth(depth []uint16, dst []uint16) error {
	for i := range dst {
		dst[i] = depth[i%len(depth)]
	}
	return nil
}

func (r *indexRegistrar) Close() error {
	if r.onClose != nil {
		r.onClose()
	}
	return nil
}

var (
	qvgaDepth = Geometry{Width: 320, Height: 240, Channels: 1, Format: Depth1MM, HFOV: 57, VFOV: 43}
	vgaColor  = Geometry{Width: 640, Height: 480, Channels: 3, Format: RGB24, HFOV: 62, VFOV: 48}
)

func testParams(warmup Warmup) Params {
	return Params{
		Depth:          StreamParams{Width: 320, Height: 240, FPS: 30},
		Color:          StreamParams{Width: 640, Height: 480, FPS: 30},
		Warmup:         warmup,
		StartupTimeout: 200 * time.Millisecond,
	}
}

func depthFrame(ts Timestamp, g Geometry, v uint16) RawFrame {
	data := make([]uint16, g.Samples())
	for i := range data {
		data[i] = v
	}
	return RawFrame{Modality: Depth, Timestamp: ts, Width: g.Width, Height: g.Height, Format: g.Format, Depth: data}
}

func colorFrame(ts Timestamp, g Geometry, v byte) RawFrame {
	data := make([]byte, g.Samples())
	for i := range data {
		data[i] = v
	}
	return RawFrame{Modality: Color, Timestamp: ts, Width: g.Width, Height: g.Height, Format: g.Format, Color: data}
}
