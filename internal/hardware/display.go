package hardware

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"

	"handheld-hal/internal/logger"
)

const (
	fbioBlank        = 0x4611 // FBIOBLANK
	fbBlankPowerdown = 4      // FB_BLANK_POWERDOWN
)

// Framebuffer drives a 16bpp RGB565 fbdev panel and its sysfs backlight.
type Framebuffer struct {
	file          *os.File
	width         int
	height        int
	backlight     string
	maxBrightness int
	logger        *logger.Logger
}

func OpenFramebuffer(device string, width, height int, backlight string, l *logger.Logger) (*Framebuffer, error) {
	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open framebuffer %s: %w", device, err)
	}

	fb := &Framebuffer{
		file:      f,
		width:     width,
		height:    height,
		backlight: backlight,
		logger:    l.WithTag("display"),
	}

	if backlight != "" {
		max, err := readSysfsInt(filepath.Join(backlight, "max_brightness"))
		if err != nil {
			fb.logger.Warnf("Backlight unavailable, brightness control disabled: %v", err)
			fb.backlight = ""
		} else {
			fb.maxBrightness = max
		}
	}

	return fb, nil
}

func (f *Framebuffer) Size() (int, int) {
	return f.width, f.height
}

// Blit writes a w*h block of RGB565 pixels with its top-left corner at x,y.
func (f *Framebuffer) Blit(x, y, w, h int, pixels []uint16) error {
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > f.width || y+h > f.height {
		return fmt.Errorf("blit %dx%d+%d+%d outside %dx%d panel", w, h, x, y, f.width, f.height)
	}
	if len(pixels) < w*h {
		return fmt.Errorf("blit needs %d pixels, got %d", w*h, len(pixels))
	}

	row := make([]byte, w*2)
	stride := int64(f.width * 2)
	for r := 0; r < h; r++ {
		src := pixels[r*w : (r+1)*w]
		for i, px := range src {
			binary.LittleEndian.PutUint16(row[i*2:], px)
		}
		off := int64(y+r)*stride + int64(x*2)
		if _, err := f.file.WriteAt(row, off); err != nil {
			return fmt.Errorf("framebuffer write failed: %w", err)
		}
	}
	return nil
}

// SetBrightness maps a 0..255 level onto the backlight range.
func (f *Framebuffer) SetBrightness(level uint8) {
	if f.backlight == "" {
		return
	}
	value := int(level) * f.maxBrightness / 255
	if err := writeSysfs(filepath.Join(f.backlight, "brightness"), strconv.Itoa(value)); err != nil {
		f.logger.Warnf("Failed to set brightness: %v", err)
	}
}

func (f *Framebuffer) PowerOff() error {
	if err := unix.IoctlSetInt(int(f.file.Fd()), fbioBlank, fbBlankPowerdown); err != nil {
		return fmt.Errorf("FBIOBLANK failed: %w", err)
	}
	f.logger.Infof("Display powered down")
	return nil
}

func (f *Framebuffer) Close() error {
	return f.file.Close()
}
