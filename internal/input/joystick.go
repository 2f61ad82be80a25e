package input

import (
	"handheld-hal/internal/hardware"
	"handheld-hal/internal/types"
)

// AxisReader samples the two analog axes.
type AxisReader interface {
	ReadAxes() (upDown, leftRight int, err error)
}

// SysfsAxes reads the axes from an IIO ADC.
type SysfsAxes struct {
	Device           string
	UpDownChannel    int
	LeftRightChannel int
}

func (a SysfsAxes) ReadAxes() (int, int, error) {
	ud, err := hardware.ReadAdcValue(a.Device, a.UpDownChannel)
	if err != nil {
		return 0, 0, err
	}
	lr, err := hardware.ReadAdcValue(a.Device, a.LeftRightChannel)
	if err != nil {
		return 0, 0, err
	}
	return ud, lr, nil
}

// axisDeadband is how far from the calibrated center a deflection counts.
const axisDeadband = 0x100

// axisCal tracks the extremes seen so far; the center is their midpoint.
type axisCal struct {
	center, max, min int
}

func newAxisCal() axisCal {
	return axisCal{center: 2048, max: 0, min: 4096}
}

func (c *axisCal) update(v int) {
	if v > c.max {
		c.max = v
		c.center = (c.max + c.min) / 2
	}
	if v < c.min {
		c.min = v
		c.center = (c.max + c.min) / 2
	}
}

// direction returns +1, -1 or 0.
func (c *axisCal) direction(v int) int {
	switch {
	case v > c.center+axisDeadband:
		return 1
	case v < c.center-axisDeadband:
		return -1
	}
	return 0
}

// JoystickSource replaces the d-pad of a button source with an analog stick.
type JoystickSource struct {
	buttons         Source
	axes            AxisReader
	InvertUpDown    bool
	InvertLeftRight bool
	ud, lr          axisCal
}

func NewJoystickSource(buttons Source, axes AxisReader) *JoystickSource {
	return &JoystickSource{
		buttons: buttons,
		axes:    axes,
		ud:      newAxisCal(),
		lr:      newAxisCal(),
	}
}

func (s *JoystickSource) Read() (types.ButtonMask, error) {
	mask, err := s.buttons.Read()
	if err != nil {
		return 0, err
	}
	mask &^= types.BtnDpad

	ud, lr, err := s.axes.ReadAxes()
	if err != nil {
		return 0, err
	}
	s.ud.update(ud)
	s.lr.update(lr)

	dy := s.ud.direction(ud)
	if s.InvertUpDown {
		dy = -dy
	}
	dx := s.lr.direction(lr)
	if s.InvertLeftRight {
		dx = -dx
	}

	switch dy {
	case 1:
		mask |= types.BtnUp
	case -1:
		mask |= types.BtnDown
	}
	switch dx {
	case 1:
		mask |= types.BtnRight
	case -1:
		mask |= types.BtnLeft
	}
	return mask, nil
}

// PowerPressed forwards to the wrapped source when it can read the raw line.
func (s *JoystickSource) PowerPressed() (bool, error) {
	if p, ok := s.buttons.(interface{ PowerPressed() (bool, error) }); ok {
		return p.PowerPressed()
	}
	mask, err := s.buttons.Read()
	return mask&types.BtnPower != 0, err
}
