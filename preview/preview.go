package preview

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/allape/gogger"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/mUogoro/rgbd-grabber/pixfmt"
	"github.com/mUogoro/rgbd-grabber/rgbd"
	"golang.org/x/image/font/gofont/goregular"
)

var l = gogger.New("preview")

var (
	fontOnce sync.Once
	font     *truetype.Font
	fontErr  error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		font, fontErr = truetype.Parse(goregular.TTF)
	})
	return font, fontErr
}

var (
	Background = color.RGBA{R: 24, G: 24, B: 24, A: 255}
	Foreground = color.RGBA{R: 230, G: 230, B: 230, A: 255}
)

// Placeholder draws text in the middle of a plain image, used when a stream has nothing to show.
func Placeholder(width, height int, backgroundColor, textColor color.Color, text string, timestamp bool) (image.Image, error) {
	dc := gg.NewContext(width, height)
	dc.SetColor(backgroundColor)
	dc.DrawRectangle(0, 0, float64(width), float64(height))
	dc.Fill()

	f, err := loadFont()
	if err != nil {
		return nil, err
	}

	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: float64(height) / 8}))
	dc.SetColor(textColor)
	dc.DrawStringAnchored(text, float64(width/2), float64(height/2), 0.5, 0.5)

	if timestamp {
		dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: float64(height) / 24}))
		dc.DrawStringAnchored(time.Now().Format(time.DateTime), float64(width)-10, float64(height)-10, 1, 0)
	}

	return dc.Image(), nil
}

// DepthRange bounds the false color ramp, in millimeters.
type DepthRange struct {
	Near uint16
	Far  uint16
}

var DefaultDepthRange = DepthRange{Near: 400, Far: 4500}

// ramp maps 0..1 onto blue, cyan, green, yellow, red.
func ramp(t float64) color.RGBA {
	clamp := func(v float64) uint8 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 255
		}
		return uint8(v * 255)
	}
	return color.RGBA{
		R: clamp(1.5 - abs(4*t-3)),
		G: clamp(1.5 - abs(4*t-2)),
		B: clamp(1.5 - abs(4*t-1)),
		A: 255,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// DepthImage renders millimeter depth in false color, invalid samples stay black.
func DepthImage(depth []uint16, g rgbd.Geometry, r DepthRange) (*image.RGBA, error) {
	if len(depth) < g.Pixels() {
		return nil, rgbd.ErrShortBuffer
	}
	if r.Far <= r.Near {
		r = DefaultDepthRange
	}

	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	span := float64(r.Far - r.Near)
	for i, z := range depth[:g.Pixels()] {
		c := color.RGBA{A: 255}
		if z != 0 {
			c = ramp(float64(int(z)-int(r.Near)) / span)
		}
		o := i * 4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

// ColorImage wraps a color frame as an image, converting non RGB layouts.
func ColorImage(data []byte, g rgbd.Geometry) (*image.RGBA, error) {
	var convert func(dst, src []byte, width, height int) error
	switch g.Format {
	case rgbd.RGB24:
	case rgbd.BGRX32:
		convert = pixfmt.BGRXToRGB
	case rgbd.YUYV:
		convert = pixfmt.YUYVToRGB
	default:
		return nil, fmt.Errorf("%w: cannot preview %s", rgbd.ErrUnsupportedMode, g.Format)
	}
	if convert != nil {
		rgb := make([]byte, g.Pixels()*3)
		if err := convert(rgb, data, g.Width, g.Height); err != nil {
			return nil, err
		}
		data = rgb
	}
	if len(data) < g.Pixels()*3 {
		return nil, rgbd.ErrShortBuffer
	}

	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	for i := 0; i < g.Pixels(); i++ {
		img.Pix[i*4] = data[i*3]
		img.Pix[i*4+1] = data[i*3+1]
		img.Pix[i*4+2] = data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

// Source is the part of a grabber a contact sheet reads.
type Source interface {
	DepthGeometry() rgbd.Geometry
	ColorGeometry() rgbd.Geometry
	CopyDepth(dst []uint16) (rgbd.Timestamp, error)
	CopyColor(dst []byte) (rgbd.Timestamp, error)
	Skew() (time.Duration, bool)
}

// Sheet renders depth and color side by side, each tile width/2 wide, with captions.
func Sheet(src Source, width int, r DepthRange) (image.Image, error) {
	if width <= 0 {
		width = 1280
	}
	tileW := width / 2
	tileH := tileW * 3 / 4
	captionH := tileH / 10

	f, err := loadFont()
	if err != nil {
		return nil, err
	}

	depth, depthCaption, err := depthTile(src, tileW, tileH, r)
	if err != nil {
		return nil, err
	}
	rgb, colorCaption, err := colorTile(src, tileW, tileH)
	if err != nil {
		return nil, err
	}

	dc := gg.NewContext(tileW*2, tileH+captionH)
	dc.SetColor(Background)
	dc.Clear()
	dc.DrawImage(depth, 0, 0)
	dc.DrawImage(rgb, tileW, 0)

	dc.SetFontFace(truetype.NewFace(f, &truetype.Options{Size: float64(captionH) / 2}))
	dc.SetColor(Foreground)
	y := float64(tileH) + float64(captionH)/2
	dc.DrawStringAnchored(depthCaption, float64(tileW)/2, y, 0.5, 0.5)
	dc.DrawStringAnchored(colorCaption, float64(tileW)*1.5, y, 0.5, 0.5)

	if skew, ok := src.Skew(); ok {
		dc.DrawStringAnchored(fmt.Sprintf("skew %s", skew), float64(tileW), float64(captionH)/2, 0.5, 0.5)
	}

	return dc.Image(), nil
}

func depthTile(src Source, w, h int, r DepthRange) (image.Image, string, error) {
	g := src.DepthGeometry()
	if g.Pixels() == 0 {
		img, err := Placeholder(w, h, Background, Foreground, "NO DEPTH", false)
		return img, "depth disabled", err
	}

	buf := make([]uint16, g.Samples())
	ts, err := src.CopyDepth(buf)
	if err != nil {
		return nil, "", err
	}
	if ts == rgbd.NoData {
		img, err := Placeholder(w, h, Background, Foreground, "WAITING", true)
		return img, "depth no data", err
	}

	img, err := DepthImage(buf, g, r)
	if err != nil {
		return nil, "", err
	}
	return fit(img, w, h), fmt.Sprintf("depth %dx%d @ %d", g.Width, g.Height, ts), nil
}

func colorTile(src Source, w, h int) (image.Image, string, error) {
	g := src.ColorGeometry()
	if g.Pixels() == 0 {
		img, err := Placeholder(w, h, Background, Foreground, "NO COLOR", false)
		return img, "color disabled", err
	}

	buf := make([]byte, g.Samples())
	ts, err := src.CopyColor(buf)
	if err != nil {
		return nil, "", err
	}
	if ts == rgbd.NoData {
		img, err := Placeholder(w, h, Background, Foreground, "WAITING", true)
		return img, "color no data", err
	}

	img, err := ColorImage(buf, g)
	if err != nil {
		return nil, "", err
	}
	return fit(img, w, h), fmt.Sprintf("color %dx%d %s @ %d", g.Width, g.Height, g.Format, ts), nil
}

// fit scales img into a w x h tile, keeping its aspect ratio.
func fit(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	scale := min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))

	dc := gg.NewContext(w, h)
	dc.SetColor(Background)
	dc.Clear()
	dc.Translate((float64(w)-float64(b.Dx())*scale)/2, (float64(h)-float64(b.Dy())*scale)/2)
	dc.Scale(scale, scale)
	dc.DrawImage(img, 0, 0)
	return dc.Image()
}

// Save writes a contact sheet of src as PNG.
func Save(path string, src Source, width int) error {
	img, err := Sheet(src, width, DefaultDepthRange)
	if err != nil {
		return err
	}
	l.Verbose().Println("writing preview", path)
	return gg.SavePNG(path, img)
}
