package input

import (
	"fmt"

	"handheld-hal/internal/hardware"
	"handheld-hal/internal/types"
)

// LineReader reads a named line at its logical level (true = active).
type LineReader interface {
	Read(name string) (bool, error)
}

const powerLineName = "btn-power"

var gpioButtons = []types.ButtonMask{
	types.BtnRight, types.BtnLeft, types.BtnUp, types.BtnDown,
	types.BtnStart, types.BtnSelect, types.BtnA, types.BtnB,
}

func buttonLineName(b types.ButtonMask) string {
	return "btn-" + b.String()
}

// RequestGPIOLines requests every button line and the power line.
func RequestGPIOLines(g *hardware.GPIO) error {
	for _, b := range gpioButtons {
		m, ok := hardware.ButtonMappings[b]
		if !ok {
			return fmt.Errorf("no line mapping for button %s", b)
		}
		if err := g.RequestInput(buttonLineName(b), m, hardware.PullUp); err != nil {
			return err
		}
	}
	return g.RequestInput(powerLineName, hardware.PowerLine, hardware.PullDown)
}

// GPIOSource maps one line per logical button.
type GPIOSource struct {
	lines LineReader
}

func NewGPIOSource(lines LineReader) *GPIOSource {
	return &GPIOSource{lines: lines}
}

func (s *GPIOSource) Read() (types.ButtonMask, error) {
	var mask types.ButtonMask
	for _, b := range gpioButtons {
		active, err := s.lines.Read(buttonLineName(b))
		if err != nil {
			return 0, err
		}
		if active {
			mask |= b
		}
	}
	power, err := s.PowerPressed()
	if err != nil {
		return 0, err
	}
	if power {
		mask |= types.BtnPower
	}
	return mask, nil
}

// PowerPressed reads the raw power line, bypassing the debounce.
func (s *GPIOSource) PowerPressed() (bool, error) {
	return s.lines.Read(powerLineName)
}
