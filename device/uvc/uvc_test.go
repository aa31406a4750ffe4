package uvc

import (
	"errors"
	"testing"

	"github.com/mUogoro/rgbd-grabber/device"
	"github.com/mUogoro/rgbd-grabber/rgbd"
)

func TestFourcc(t *testing.T) {
	if formatYUYV != 0x56595559 {
		t.Fatalf("Expected %x, got %x", 0x56595559, formatYUYV)
	}
	if formatZ16 != 0x2036315a {
		t.Fatalf("Expected %x, got %x", 0x2036315a, formatZ16)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{ColorPath: "/dev/video4"}.withDefaults()
	if o.DepthPath != "/dev/video0" {
		t.Fatalf("Expected /dev/video0, got %s", o.DepthPath)
	}
	if o.ColorPath != "/dev/video4" {
		t.Fatalf("Expected /dev/video4, got %s", o.ColorPath)
	}
	if o.FPS != 30 {
		t.Fatalf("Expected 30, got %d", o.FPS)
	}
}

func TestOpenMissingNode(t *testing.T) {
	Register("test/uvc", Options{DepthPath: "/dev/nonexistent-depth", ColorPath: "/dev/nonexistent-color"})

	ctx, release, err := device.Acquire("test/uvc")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	infos, err := ctx.Enumerate()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != "/dev/nonexistent-depth" {
		t.Fatalf("Expected one device, got %v", infos)
	}

	_, err = ctx.Open("")
	if !errors.Is(err, rgbd.ErrNoDevice) {
		t.Fatalf("Expected %v, got %v", rgbd.ErrNoDevice, err)
	}

	_, err = ctx.Open("/dev/other")
	if !errors.Is(err, rgbd.ErrNoDevice) {
		t.Fatalf("Expected %v, got %v", rgbd.ErrNoDevice, err)
	}
}
