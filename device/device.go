package device

import (
	"fmt"

	"github.com/mUogoro/rgbd-grabber/rgbd"
)

// acquisition primitives live in rgbd so producers do not depend on drivers
type (
	RawFrame    = rgbd.RawFrame
	Poller      = rgbd.Poller
	Notifier    = rgbd.Notifier
	Listener    = rgbd.Listener
	Interrupter = rgbd.Interrupter
)

type Info struct {
	ID     string `json:"id"`
	Driver string `json:"driver"`
	Vendor string `json:"vendor"`
	Name   string `json:"name"`
	Serial string `json:"serial"`
}

type Mode struct {
	Width  int
	Height int
	FPS    int
	Format rgbd.PixelFormat
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%d/%s", m.Width, m.Height, m.FPS, m.Format)
}

// Context is the process wide runtime of one vendor SDK.
type Context interface {
	Enumerate() ([]Info, error)
	// Open opens the device with the given id, the first one when id is empty.
	Open(id string) (Device, error)
	Close() error
}

type Device interface {
	Info() Info
	SupportedModes(m rgbd.Modality) []Mode
	StartStream(m rgbd.Modality, mode Mode) error
	StopStream(m rgbd.Modality) error
	Intrinsics(m rgbd.Modality) (rgbd.Intrinsics, error)
	// Extrinsics maps points from the depth camera to the color camera.
	Extrinsics() (rgbd.Extrinsics, error)
	Close() error
}

type NearModeSetter interface {
	SetNearMode(enabled bool) error
}

type MirroringSetter interface {
	SetMirroring(enabled bool) error
}

// SyncSetter toggles hardware depth/color frame synchronization.
type SyncSetter interface {
	SetSync(enabled bool) error
}

// FindMode returns the supported mode equal to want. An empty want.Format matches any format,
// the first match in modes order wins.
func FindMode(modes []Mode, want Mode) (Mode, error) {
	for _, mode := range modes {
		if mode.Width != want.Width || mode.Height != want.Height || mode.FPS != want.FPS {
			continue
		}
		if want.Format != "" && mode.Format != want.Format {
			continue
		}
		return mode, nil
	}
	return Mode{}, fmt.Errorf("%w: %s", rgbd.ErrUnsupportedMode, want)
}
