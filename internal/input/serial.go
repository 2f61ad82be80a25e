package input

import (
	"fmt"
	"io"

	"github.com/tarm/serial"

	"handheld-hal/internal/logger"
	"handheld-hal/internal/types"
)

// keyMap binds console keys to buttons: arrows or i/j/k/l for the d-pad,
// a/s for A/B, z/x for start/select, p for power.
var keyMap = map[byte]types.ButtonMask{
	'a': types.BtnA,
	's': types.BtnB,
	'z': types.BtnStart,
	'x': types.BtnSelect,
	'j': types.BtnLeft,
	'i': types.BtnUp,
	'k': types.BtnDown,
	'l': types.BtnRight,
	'p': types.BtnPower,
}

var arrowMap = map[byte]types.ButtonMask{
	'A': types.BtnUp,
	'B': types.BtnDown,
	'C': types.BtnRight,
	'D': types.BtnLeft,
}

// ansiDecoder turns a console byte stream into button presses. Escape
// state carries over between cycles.
type ansiDecoder struct {
	escaped int
}

func (d *ansiDecoder) feed(c byte) types.ButtonMask {
	switch {
	case d.escaped == 0 && c == 0x1b:
		d.escaped = 1
	case d.escaped == 1 && c == '[':
		d.escaped = 2
	case d.escaped == 2:
		d.escaped = 0
		return arrowMap[c]
	default:
		d.escaped = 0
		return keyMap[c]
	}
	return 0
}

// SerialSource reads key presses from a console. A key counts as held for
// the cycle in which it arrived.
type SerialSource struct {
	bytes   chan byte
	decoder ansiDecoder
	logger  *logger.Logger
}

// OpenSerial opens a console port with tarm/serial.
func OpenSerial(device string, baud int) (io.ReadCloser, error) {
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}
	return port, nil
}

// NewSerialSource starts pumping r in the background. The pump stops when
// r returns an error.
func NewSerialSource(r io.Reader, l *logger.Logger) *SerialSource {
	s := &SerialSource{
		bytes:  make(chan byte, 256),
		logger: l.WithTag("serial"),
	}
	s.logger.Infof("Using serial port for input: arrows or ijkl for d-pad, a/s for A/B, z/x for start/select, p for power")
	go s.pump(r)
	return s
}

func (s *SerialSource) pump(r io.Reader) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, c := range buf[:n] {
			s.bytes <- c
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Warnf("Serial read failed: %v", err)
			}
			return
		}
	}
}

// Read drains what arrived since the previous cycle without blocking.
func (s *SerialSource) Read() (types.ButtonMask, error) {
	var mask types.ButtonMask
	for {
		select {
		case c := <-s.bytes:
			mask |= s.decoder.feed(c)
		default:
			return mask, nil
		}
	}
}
