package synthetic

import (
	"fmt"
	"sync"

	"github.com/allape/gogger"
	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

var l = gogger.New("device.synthetic")

func init() {
	for _, f := range Families {
		family := f
		device.Register(DriverName(family), func() (device.Context, error) {
			return NewContext(family, Options{Generate: true}), nil
		})
	}
}

func DriverName(f Family) string {
	return "synthetic/" + f.Name
}

func FamilyByName(name string) (Family, bool) {
	for _, f := range Families {
		if f.Name == name {
			return f, true
		}
	}
	return Family{}, false
}

type Options struct {
	// Devices is the number of devices Enumerate reports, at least one.
	Devices int
	// Generate streams a moving test pattern at the mode frame rate,
	// otherwise frames only come from Inject.
	Generate bool
}

// Context emulates a vendor SDK runtime.
type Context struct {
	family  Family
	options Options

	locker  sync.Locker
	devices map[string]*Device
	last    *Device
	closed  bool
}

func NewContext(family Family, options Options) *Context {
	if options.Devices <= 0 {
		options.Devices = 1
	}
	return &Context{
		family:  family,
		options: options,
		locker:  &sync.Mutex{},
		devices: map[string]*Device{},
	}
}

func (c *Context) Enumerate() ([]device.Info, error) {
	c.locker.Lock()
	defer c.locker.Unlock()

	if c.closed {
		return nil, rgbd.ErrClosed
	}

	infos := make([]device.Info, c.options.Devices)
	for i := range infos {
		infos[i] = c.info(i)
	}
	return infos, nil
}

func (c *Context) info(i int) device.Info {
	return device.Info{
		ID:     fmt.Sprintf("%s-%d", c.family.Name, i),
		Driver: DriverName(c.family),
		Vendor: c.family.Vendor,
		Name:   c.family.Model,
		Serial: fmt.Sprintf("SYN%06d", i),
	}
}

func (c *Context) Open(id string) (device.Device, error) {
	c.locker.Lock()
	defer c.locker.Unlock()

	if c.closed {
		return nil, rgbd.ErrClosed
	}

	if id == "" {
		id = c.info(0).ID
	}

	for i := 0; i < c.options.Devices; i++ {
		info := c.info(i)
		if info.ID != id {
			continue
		}
		if d, ok := c.devices[id]; ok && !d.isClosed() {
			return nil, fmt.Errorf("device %s is busy", id)
		}
		d := newDevice(info, c.family, c.options.Generate)
		c.devices[id] = d
		c.last = d
		return d, nil
	}

	return nil, fmt.Errorf("%w: %s", rgbd.ErrNoDevice, id)
}

// Device returns the device opened with id, the most recently opened one when id is empty.
func (c *Context) Device(id string) *Device {
	c.locker.Lock()
	defer c.locker.Unlock()
	if id == "" {
		return c.last
	}
	return c.devices[id]
}

func (c *Context) Closed() bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.closed
}

func (c *Context) Close() error {
	c.locker.Lock()
	defer c.locker.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for _, d := range c.devices {
		_ = d.Close()
	}
	return nil
}
