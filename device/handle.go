package device

import (
	"sync"

	"github.com/mUogoro/rgbd-grabber/rgbd"
	"github.com/pkg/errors"
)

// Handle owns an opened device together with its runtime reference and started streams.
// Close releases everything in reverse acquisition order.
type Handle struct {
	locker  sync.Locker
	driver  string
	device  Device
	release func() error
	started []rgbd.Modality
	closed  bool
}

func OpenHandle(driver, id string) (*Handle, error) {
	ctx, release, err := Acquire(driver)
	if err != nil {
		return nil, err
	}

	dev, err := ctx.Open(id)
	if err != nil {
		_ = release()
		return nil, errors.Wrapf(err, "open %s device %q", driver, id)
	}

	l.Verbose().Println("opened", driver, "device", dev.Info().ID)

	return &Handle{
		locker:  &sync.Mutex{},
		driver:  driver,
		device:  dev,
		release: release,
	}, nil
}

func (h *Handle) Driver() string {
	return h.driver
}

func (h *Handle) Device() Device {
	return h.device
}

func (h *Handle) StartStream(m rgbd.Modality, mode Mode) error {
	h.locker.Lock()
	defer h.locker.Unlock()

	if h.closed {
		return rgbd.ErrClosed
	}
	if err := h.device.StartStream(m, mode); err != nil {
		return errors.Wrapf(err, "start %s stream %s", m, mode)
	}
	h.started = append(h.started, m)
	return nil
}

func (h *Handle) Close() error {
	h.locker.Lock()
	defer h.locker.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var first error
	keep := func(err error) {
		if err == nil {
			return
		}
		if first == nil {
			first = err
			return
		}
		l.Warn().Println("close", h.driver, "device:", err)
	}

	for i := len(h.started) - 1; i >= 0; i-- {
		keep(errors.Wrapf(h.device.StopStream(h.started[i]), "stop %s stream", h.started[i]))
	}
	h.started = nil

	keep(errors.Wrap(h.device.Close(), "close device"))
	keep(errors.Wrap(h.release(), "release runtime"))

	return first
}
