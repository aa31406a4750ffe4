package uvc

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/blackjack/webcam"
	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/rgbd"
	"github.com/pkg/errors"
)

var l = gogger.New("device.uvc")

const DriverName = "uvc"

func fourcc(code string) webcam.PixelFormat {
	return webcam.PixelFormat(uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24)
}

var (
	formatZ16  = fourcc("Z16 ")
	formatYUYV = fourcc("YUYV")
)

// Options describes a depth camera exposed as two V4L2 nodes.
type Options struct {
	DepthPath string
	ColorPath string
	FPS       int
	DepthHFOV float64
	DepthVFOV float64
	ColorHFOV float64
	ColorVFOV float64
	// Baseline is the depth to color camera offset in millimeters.
	Baseline float64
}

func (o Options) withDefaults() Options {
	if o.DepthPath == "" {
		o.DepthPath = "/dev/video0"
	}
	if o.ColorPath == "" {
		o.ColorPath = "/dev/video2"
	}
	if o.FPS == 0 {
		o.FPS = 30
	}
	if o.DepthHFOV == 0 {
		o.DepthHFOV, o.DepthVFOV = 58, 45
	}
	if o.ColorHFOV == 0 {
		o.ColorHFOV, o.ColorVFOV = 69, 42
	}
	return o
}

// Register makes the node pair available as a device driver.
func Register(name string, options Options) {
	options = options.withDefaults()
	device.Register(name, func() (device.Context, error) {
		return &Context{options: options}, nil
	})
}

type Context struct {
	options Options
}

func (c *Context) Enumerate() ([]device.Info, error) {
	return []device.Info{c.info()}, nil
}

func (c *Context) info() device.Info {
	return device.Info{
		ID:     c.options.DepthPath,
		Driver: DriverName,
		Vendor: "V4L2",
		Name:   c.options.DepthPath + "+" + c.options.ColorPath,
	}
}

func (c *Context) Open(id string) (device.Device, error) {
	if id != "" && id != c.options.DepthPath {
		return nil, fmt.Errorf("%w: %s", rgbd.ErrNoDevice, id)
	}

	depth, err := webcam.Open(c.options.DepthPath)
	if err != nil {
		return nil, errors.Wrapf(rgbd.ErrNoDevice, "open depth node %s: %v", c.options.DepthPath, err)
	}
	color, err := webcam.Open(c.options.ColorPath)
	if err != nil {
		_ = depth.Close()
		return nil, errors.Wrapf(rgbd.ErrNoDevice, "open color node %s: %v", c.options.ColorPath, err)
	}

	return &Device{
		info:    c.info(),
		options: c.options,
		locker:  &sync.Mutex{},
		nodes: map[rgbd.Modality]*node{
			rgbd.Depth: {cam: depth, format: formatZ16},
			rgbd.Color: {cam: color, format: formatYUYV},
		},
		pending:   map[rgbd.Modality]rgbd.RawFrame{},
		ready:     make(chan rgbd.Modality, 2),
		interrupt: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

func (c *Context) Close() error {
	return nil
}

type node struct {
	cam     *webcam.Webcam
	format  webcam.PixelFormat
	mode    device.Mode
	started bool
	stop    chan struct{}
	stopped chan struct{}
}

// Device reads each node on its own goroutine and exposes them through a
// single wait-for-any primitive.
type Device struct {
	info    device.Info
	options Options
	start   time.Time

	locker  sync.Locker
	nodes   map[rgbd.Modality]*node
	pending map[rgbd.Modality]rgbd.RawFrame
	closed  bool

	ready     chan rgbd.Modality
	interrupt chan struct{}
	done      chan struct{}
}

func (d *Device) Info() device.Info {
	return d.info
}

func (d *Device) SupportedModes(m rgbd.Modality) []device.Mode {
	n, ok := d.nodes[m]
	if !ok {
		return nil
	}

	format := rgbd.Depth1MM
	if m == rgbd.Color {
		format = rgbd.YUYV
	}

	var modes []device.Mode
	for _, size := range n.cam.GetSupportedFrameSizes(n.format) {
		modes = append(modes, device.Mode{
			Width:  int(size.MaxWidth),
			Height: int(size.MaxHeight),
			FPS:    d.options.FPS,
			Format: format,
		})
	}
	return modes
}

func (d *Device) StartStream(m rgbd.Modality, mode device.Mode) error {
	d.locker.Lock()
	defer d.locker.Unlock()

	n, ok := d.nodes[m]
	if !ok || d.closed {
		return rgbd.ErrClosed
	}
	if n.started {
		return fmt.Errorf("%s stream already started", m)
	}

	_, w, h, err := n.cam.SetImageFormat(n.format, uint32(mode.Width), uint32(mode.Height))
	if err != nil {
		return errors.Wrapf(err, "set %s format", m)
	}
	if int(w) != mode.Width || int(h) != mode.Height {
		return fmt.Errorf("%w: %s node gave %dx%d", rgbd.ErrUnsupportedMode, m, w, h)
	}
	if err := n.cam.StartStreaming(); err != nil {
		return errors.Wrapf(err, "start %s streaming", m)
	}

	if d.start.IsZero() {
		d.start = time.Now()
	}
	n.mode = mode
	n.started = true
	n.stop = make(chan struct{})
	n.stopped = make(chan struct{})
	go d.read(m, n)

	return nil
}

func (d *Device) read(m rgbd.Modality, n *node) {
	defer close(n.stopped)

	for {
		select {
		case <-n.stop:
			return
		default:
		}

		err := n.cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			l.Verbose().Println(m, "node timeout")
			continue
		default:
			l.Warn().Println("wait for", m, "frame:", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		buf, err := n.cam.ReadFrame()
		if err != nil {
			l.Warn().Println("read", m, "frame:", err)
			continue
		}
		if len(buf) == 0 {
			continue
		}

		frame := rgbd.RawFrame{
			Modality:  m,
			Timestamp: rgbd.Timestamp(time.Since(d.start).Microseconds()) + 1,
			Width:     n.mode.Width,
			Height:    n.mode.Height,
			Format:    n.mode.Format,
		}
		if m == rgbd.Depth {
			frame.Depth = make([]uint16, len(buf)/2)
			for i := range frame.Depth {
				frame.Depth[i] = binary.LittleEndian.Uint16(buf[i*2:])
			}
		} else {
			frame.Color = append([]byte(nil), buf...)
		}

		d.locker.Lock()
		_, waiting := d.pending[m]
		d.pending[m] = frame
		d.locker.Unlock()

		if !waiting {
			select {
			case d.ready <- m:
			default:
			}
		}
	}
}

func (d *Device) StopStream(m rgbd.Modality) error {
	d.locker.Lock()
	n, ok := d.nodes[m]
	if !ok || !n.started {
		d.locker.Unlock()
		return nil
	}
	n.started = false
	delete(d.pending, m)
	d.locker.Unlock()

	close(n.stop)
	<-n.stopped
	return errors.Wrapf(n.cam.StopStreaming(), "stop %s streaming", m)
}

func (d *Device) WaitForAnyStream(streams []rgbd.Modality) (rgbd.Modality, error) {
	for {
		select {
		case m := <-d.ready:
			for _, s := range streams {
				if s == m {
					return m, nil
				}
			}
		case <-d.interrupt:
			return 0, rgbd.ErrInterrupted
		case <-d.done:
			return 0, rgbd.ErrClosed
		}
	}
}

func (d *Device) ReadFrame(m rgbd.Modality) (rgbd.RawFrame, error) {
	d.locker.Lock()
	defer d.locker.Unlock()

	frame, ok := d.pending[m]
	if !ok {
		return rgbd.RawFrame{}, fmt.Errorf("%w: %s", rgbd.ErrNoFrame, m)
	}
	delete(d.pending, m)
	return frame, nil
}

func (d *Device) Interrupt() {
	select {
	case d.interrupt <- struct{}{}:
	default:
	}
}

func (d *Device) Intrinsics(m rgbd.Modality) (rgbd.Intrinsics, error) {
	d.locker.Lock()
	n, ok := d.nodes[m]
	started := ok && n.started
	d.locker.Unlock()
	if !started {
		return rgbd.Intrinsics{}, fmt.Errorf("%s stream not started", m)
	}

	hfov, vfov := d.options.DepthHFOV, d.options.DepthVFOV
	if m == rgbd.Color {
		hfov, vfov = d.options.ColorHFOV, d.options.ColorVFOV
	}
	return rgbd.IntrinsicsFromFOV(n.mode.Width, n.mode.Height, hfov, vfov), nil
}

func (d *Device) Extrinsics() (rgbd.Extrinsics, error) {
	e := rgbd.IdentityExtrinsics()
	e.Translation.X = -d.options.Baseline
	return e, nil
}

func (d *Device) Close() error {
	d.locker.Lock()
	if d.closed {
		d.locker.Unlock()
		return nil
	}
	d.closed = true
	d.locker.Unlock()

	var first error
	for _, m := range []rgbd.Modality{rgbd.Color, rgbd.Depth} {
		if err := d.StopStream(m); err != nil && first == nil {
			first = err
		}
		if err := d.nodes[m].cam.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s node", m)
		}
	}
	close(d.done)
	return first
}
