package synthetic

import (
	"fmt"
	"sync"
	"time"

	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

type stream struct {
	mode    device.Mode
	stop    chan struct{}
	stopped chan struct{}
}

// Device serves frames either to a poller or to an installed listener.
type Device struct {
	info     device.Info
	family   Family
	generate bool
	start    time.Time

	locker   sync.Locker
	streams  map[rgbd.Modality]*stream
	pending  map[rgbd.Modality]rgbd.RawFrame
	flagged  map[rgbd.Modality]bool
	nearMode bool
	mirror   bool
	synced   bool
	closed   bool

	// held while a listener runs, so SetListener waits for in-flight deliveries
	deliverLocker sync.Locker
	listener      device.Listener

	ready     chan rgbd.Modality
	interrupt chan struct{}
	done      chan struct{}
}

func newDevice(info device.Info, family Family, generate bool) *Device {
	return &Device{
		info:          info,
		family:        family,
		generate:      generate,
		start:         time.Now(),
		locker:        &sync.Mutex{},
		streams:       map[rgbd.Modality]*stream{},
		pending:       map[rgbd.Modality]rgbd.RawFrame{},
		flagged:       map[rgbd.Modality]bool{},
		deliverLocker: &sync.Mutex{},
		ready:         make(chan rgbd.Modality, 2),
		interrupt:     make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

func (d *Device) Info() device.Info {
	return d.info
}

func (d *Device) Family() Family {
	return d.family
}

func (d *Device) SupportedModes(m rgbd.Modality) []device.Mode {
	return d.family.modes(m)
}

func (d *Device) StartStream(m rgbd.Modality, mode device.Mode) error {
	mode, err := device.FindMode(d.family.modes(m), mode)
	if err != nil {
		return err
	}

	d.locker.Lock()
	defer d.locker.Unlock()

	if d.closed {
		return rgbd.ErrClosed
	}
	if _, ok := d.streams[m]; ok {
		return fmt.Errorf("%s stream already started", m)
	}

	s := &stream{
		mode:    mode,
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	d.streams[m] = s

	if d.generate {
		go d.pattern(m, s)
	} else {
		close(s.stopped)
	}

	l.Verbose().Println(d.info.ID, "started", m, mode)
	return nil
}

func (d *Device) StopStream(m rgbd.Modality) error {
	d.locker.Lock()
	s, ok := d.streams[m]
	delete(d.streams, m)
	delete(d.pending, m)
	d.locker.Unlock()

	if !ok {
		return nil
	}
	close(s.stop)
	<-s.stopped

	l.Verbose().Println(d.info.ID, "stopped", m)
	return nil
}

func (d *Device) Mode(m rgbd.Modality) (device.Mode, bool) {
	d.locker.Lock()
	defer d.locker.Unlock()
	s, ok := d.streams[m]
	if !ok {
		return device.Mode{}, false
	}
	return s.mode, true
}

func (d *Device) Intrinsics(m rgbd.Modality) (rgbd.Intrinsics, error) {
	mode, ok := d.Mode(m)
	if !ok {
		return rgbd.Intrinsics{}, fmt.Errorf("%s stream not started", m)
	}
	return d.family.intrinsics(m, mode), nil
}

func (d *Device) Extrinsics() (rgbd.Extrinsics, error) {
	return d.family.extrinsics(), nil
}

func (d *Device) SetNearMode(enabled bool) error {
	if enabled && !d.family.NearMode {
		return fmt.Errorf("%w: %s has no near mode", rgbd.ErrUnsupportedMode, d.family.Name)
	}
	d.locker.Lock()
	d.nearMode = enabled
	d.locker.Unlock()
	return nil
}

func (d *Device) SetMirroring(enabled bool) error {
	d.locker.Lock()
	d.mirror = enabled
	d.locker.Unlock()
	return nil
}

func (d *Device) SetSync(enabled bool) error {
	d.locker.Lock()
	d.synced = enabled
	d.locker.Unlock()
	return nil
}

// Settings reports near mode, mirroring and sync.
func (d *Device) Settings() (nearMode, mirroring, synced bool) {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.nearMode, d.mirror, d.synced
}

// Now is the device clock, microseconds since open. It never returns rgbd.NoData.
func (d *Device) Now() rgbd.Timestamp {
	return rgbd.Timestamp(time.Since(d.start).Microseconds()) + 1
}

// Inject delivers a frame as if the sensor produced it. A zero timestamp is
// replaced by the device clock.
func (d *Device) Inject(frame rgbd.RawFrame) error {
	d.locker.Lock()
	s, ok := d.streams[frame.Modality]
	closed := d.closed
	d.locker.Unlock()

	if closed {
		return rgbd.ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", rgbd.ErrStreamDisabled, frame.Modality)
	}
	if err := checkFrame(frame, s.mode); err != nil {
		return err
	}
	if frame.Timestamp == rgbd.NoData {
		frame.Timestamp = d.Now()
	}
	frame.Width, frame.Height, frame.Format = s.mode.Width, s.mode.Height, s.mode.Format

	if d.deliver(frame) {
		return nil
	}

	d.locker.Lock()
	d.pending[frame.Modality] = frame
	signal := !d.flagged[frame.Modality]
	d.flagged[frame.Modality] = true
	d.locker.Unlock()

	if signal {
		select {
		case d.ready <- frame.Modality:
		default:
		}
	}
	return nil
}

func checkFrame(frame rgbd.RawFrame, mode device.Mode) error {
	pixels := mode.Width * mode.Height
	switch frame.Modality {
	case rgbd.Depth:
		if len(frame.Depth) != pixels {
			return fmt.Errorf("%w: depth frame has %d samples, mode %s", rgbd.ErrShortBuffer, len(frame.Depth), mode)
		}
	case rgbd.Color:
		if len(frame.Color) != pixels*mode.Format.Channels() {
			return fmt.Errorf("%w: color frame has %d bytes, mode %s", rgbd.ErrShortBuffer, len(frame.Color), mode)
		}
	}
	return nil
}

func (d *Device) deliver(frame rgbd.RawFrame) bool {
	d.deliverLocker.Lock()
	defer d.deliverLocker.Unlock()

	if d.listener == nil {
		return false
	}
	d.listener(frame)
	return true
}

func (d *Device) SetListener(listener device.Listener) {
	d.deliverLocker.Lock()
	d.listener = listener
	d.deliverLocker.Unlock()
}

func (d *Device) WaitForAnyStream(streams []rgbd.Modality) (rgbd.Modality, error) {
	for {
		select {
		case m := <-d.ready:
			if d.isClosed() {
				return 0, rgbd.ErrClosed
			}
			for _, s := range streams {
				if s == m {
					return m, nil
				}
			}
			d.locker.Lock()
			d.flagged[m] = false
			delete(d.pending, m)
			d.locker.Unlock()
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

	d.flagged[m] = false
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

func (d *Device) isClosed() bool {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.closed
}

func (d *Device) Close() error {
	d.locker.Lock()
	if d.closed {
		d.locker.Unlock()
		return nil
	}
	d.closed = true
	var modalities []rgbd.Modality
	for m := range d.streams {
		modalities = append(modalities, m)
	}
	d.locker.Unlock()

	for _, m := range modalities {
		_ = d.StopStream(m)
	}
	close(d.done)

	l.Verbose().Println(d.info.ID, "closed")
	return nil
}
