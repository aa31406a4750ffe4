package synthetic

import (
	"errors"
	"time"

	"github.com/mUogoro/rgbd-grabber/rgbd"
)

const (
	patternNear = 500
	patternFar  = 4500
)

// DepthPattern renders a slanted plane with a box sliding across it. tick moves the box.
func DepthPattern(width, height, tick int) []uint16 {
	data := make([]uint16, width*height)
	boxSize := width / 4
	boxX := tick % (width - boxSize + 1)
	boxY := (height - boxSize) / 2

	for y := 0; y < height; y++ {
		plane := uint16(patternNear + (patternFar-patternNear)*y/height)
		for x := 0; x < width; x++ {
			z := plane
			if x >= boxX && x < boxX+boxSize && y >= boxY && y < boxY+boxSize {
				z = patternNear
			}
			// a missing measurement band on the left edge, like a real sensor
			if x < width/32 {
				z = 0
			}
			data[y*width+x] = z
		}
	}
	return data
}

// ColorPattern renders moving color bars in the given layout.
func ColorPattern(width, height, tick int, format rgbd.PixelFormat) []byte {
	channels := format.Channels()
	data := make([]byte, width*height*channels)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			bar := ((x + tick) * 8 / width) % 8
			r, g, b := byte(0), byte(0), byte(0)
			if bar&1 != 0 {
				b = 255
			}
			if bar&2 != 0 {
				g = 255
			}
			if bar&4 != 0 {
				r = 255
			}
			shade := byte(255 * y / height)

			i := (y*width + x) * channels
			switch format {
			case rgbd.RGB24:
				data[i], data[i+1], data[i+2] = r^shade/4, g, b
			case rgbd.BGRX32:
				data[i], data[i+1], data[i+2], data[i+3] = b, g, r^shade/4, 0xff
			case rgbd.YUYV:
				// luma only, neutral chroma
				data[i] = byte((int(r)*77 + int(g)*150 + int(b)*29) >> 8)
				data[i+1] = 128
			}
		}
	}
	return data
}

func (d *Device) pattern(m rgbd.Modality, s *stream) {
	defer close(s.stopped)

	ticker := time.NewTicker(time.Second / time.Duration(s.mode.FPS))
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		frame := rgbd.RawFrame{Modality: m}
		switch m {
		case rgbd.Depth:
			frame.Depth = DepthPattern(s.mode.Width, s.mode.Height, tick)
		case rgbd.Color:
			frame.Color = ColorPattern(s.mode.Width, s.mode.Height, tick, s.mode.Format)
		}

		if err := d.Inject(frame); err != nil {
			if errors.Is(err, rgbd.ErrStreamDisabled) || errors.Is(err, rgbd.ErrClosed) {
				return
			}
			l.Warn().Println(d.info.ID, "pattern", m, err)
		}
	}
}
