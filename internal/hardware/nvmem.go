package hardware

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"handheld-hal/internal/logger"
)

// NVMemWord is a 32-bit little-endian word inside an nvmem cell that keeps
// its content while the always-on power domain is supplied. Reads that find
// no backing storage return Default.
type NVMemWord struct {
	path    string
	offset  int64
	Default uint32
	logger  *logger.Logger
}

func NewNVMemWord(path string, offset int64, def uint32, l *logger.Logger) *NVMemWord {
	return &NVMemWord{
		path:    path,
		offset:  offset,
		Default: def,
		logger:  l.WithTag("nvmem"),
	}
}

func (w *NVMemWord) Load() uint32 {
	v, err := w.read()
	if err != nil {
		w.logger.Debugf("Register read failed, using default %#08x: %v", w.Default, err)
		return w.Default
	}
	return v
}

func (w *NVMemWord) read() (uint32, error) {
	fd, err := unix.Open(w.path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer unix.Close(fd)

	var buf [4]byte
	n, err := unix.Pread(fd, buf[:], w.offset)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", w.path, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short read from %s: %d bytes", w.path, n)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// Store writes the word. Failures are logged; the register has no way to
// report them to its callers.
func (w *NVMemWord) Store(v uint32) {
	if err := w.write(v); err != nil {
		w.logger.Errorf("Register write %#08x failed: %v", v, err)
	}
}

func (w *NVMemWord) write(v uint32) error {
	fd, err := unix.Open(w.path, unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", w.path, err)
	}
	defer unix.Close(fd)

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	written, err := unix.Pwrite(fd, buf[:], w.offset)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	if written != len(buf) {
		return fmt.Errorf("short write to %s: %d bytes", w.path, written)
	}
	return nil
}
