package pixfmt

import (
	"fmt"
	"image/color"

	"github.com/mUogoro/rgbd-grabber/rgbd"
)

// YUYVToRGB converts packed 4:2:2 YUYV into RGB24. dst needs 3 bytes per pixel.
func YUYVToRGB(dst, src []byte, width, height int) error {
	pixels := width * height
	if width%2 != 0 {
		return fmt.Errorf("yuyv width %d is odd", width)
	}
	if len(src) < pixels*2 || len(dst) < pixels*3 {
		return rgbd.ErrShortBuffer
	}

	for i, o := 0, 0; i < pixels*2; i, o = i+4, o+6 {
		y0, u, y1, v := src[i], src[i+1], src[i+2], src[i+3]
		dst[o], dst[o+1], dst[o+2] = color.YCbCrToRGB(y0, u, v)
		dst[o+3], dst[o+4], dst[o+5] = color.YCbCrToRGB(y1, u, v)
	}
	return nil
}

// BGRXToRGB drops the padding byte and swaps red and blue.
func BGRXToRGB(dst, src []byte, width, height int) error {
	pixels := width * height
	if len(src) < pixels*4 || len(dst) < pixels*3 {
		return rgbd.ErrShortBuffer
	}
	for i := 0; i < pixels; i++ {
		dst[i*3], dst[i*3+1], dst[i*3+2] = src[i*4+2], src[i*4+1], src[i*4]
	}
	return nil
}

// ToRGB returns a converter producing RGB24 session frames out of raw frames in format.
// RGB24 sources need no conversion and yield nil.
func ToRGB(format rgbd.PixelFormat) (rgbd.ColorConverter, error) {
	switch format {
	case rgbd.RGB24:
		return nil, nil
	case rgbd.YUYV:
		return func(dst []byte, frame rgbd.RawFrame) error {
			return YUYVToRGB(dst, frame.Color, frame.Width, frame.Height)
		}, nil
	case rgbd.BGRX32:
		return func(dst []byte, frame rgbd.RawFrame) error {
			return BGRXToRGB(dst, frame.Color, frame.Width, frame.Height)
		}, nil
	}
	return nil, fmt.Errorf("%w: no rgb conversion from %s", rgbd.ErrUnsupportedMode, format)
}
