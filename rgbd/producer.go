package rgbd

import (
	"fmt"
)

// RawFrame is a frame as delivered by the device. Its buffers are only valid
// until the next read on the same stream, publishers copy them out.
type RawFrame struct {
	Modality  Modality
	Timestamp Timestamp
	Format    PixelFormat
	Width     int
	Height    int
	Depth     []uint16
	Color     []byte
}

// Poller is the blocking multi-stream wait primitive of loop driven devices.
type Poller interface {
	// WaitForAnyStream blocks until one of streams has a frame ready.
	WaitForAnyStream(streams []Modality) (Modality, error)
	ReadFrame(m Modality) (RawFrame, error)
}

// Interrupter is implemented by pollers whose wait can be woken up early.
type Interrupter interface {
	Interrupt()
}

// Listener runs on a thread owned by the device SDK.
type Listener func(frame RawFrame)

// Notifier is implemented by callback driven devices.
type Notifier interface {
	// SetListener installs l, nil detaches it. Once SetListener returns the
	// previous listener is not invoked anymore.
	SetListener(l Listener)
}

type PublishFunc func(frame RawFrame) error

// Producer pulls frames out of a device and hands them to a PublishFunc.
type Producer interface {
	Start(publish PublishFunc) error
	// Stop returns once the producer's execution context will not publish anymore.
	Stop() error
}

// ColorConverter turns a raw color frame into the session color layout in dst.
type ColorConverter func(dst []byte, frame RawFrame) error

type publisher struct {
	depth        *Slot[uint16]
	color        *Slot[uint8]
	convertColor ColorConverter
	// colorPixels is the pixel count a converted color frame must carry.
	colorPixels int
}

func (p *publisher) publish(frame RawFrame) error {
	switch frame.Modality {
	case Depth:
		if p.depth == nil {
			return ErrStreamDisabled
		}
		if len(frame.Depth) != p.depth.Samples() {
			return fmt.Errorf("%w: depth frame has %d samples, want %d", ErrFrameSize, len(frame.Depth), p.depth.Samples())
		}
		f := p.depth.Acquire()
		copy(f.Data, frame.Depth)
		f.Timestamp = frame.Timestamp
		p.depth.Publish(f)
	case Color:
		if p.color == nil {
			return ErrStreamDisabled
		}
		if p.convertColor != nil {
			if pixels := frame.Width * frame.Height; pixels != p.colorPixels {
				return fmt.Errorf("%w: color frame is %dx%d, want %d pixels", ErrFrameSize, frame.Width, frame.Height, p.colorPixels)
			}
		} else if len(frame.Color) != p.color.Samples() {
			return fmt.Errorf("%w: color frame has %d bytes, want %d", ErrFrameSize, len(frame.Color), p.color.Samples())
		}

		f := p.color.Acquire()
		if p.convertColor != nil {
			if err := p.convertColor(f.Data, frame); err != nil {
				p.color.Release(f)
				return err
			}
		} else {
			copy(f.Data, frame.Color)
		}
		f.Timestamp = frame.Timestamp
		p.color.Publish(f)
	default:
		return fmt.Errorf("unknown modality %d", frame.Modality)
	}
	return nil
}
