package input

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"handheld-hal/internal/hardware"
	"handheld-hal/internal/types"
)

// PeriphSource reads the buttons through the periph.io host drivers, for
// boards without a GPIO character device.
type PeriphSource struct {
	buttons map[types.ButtonMask]gpio.PinIn
	power   gpio.PinIn
}

// OpenPeriphSource initializes the host drivers and configures the pins
// named in hardware.PeriphButtonPins.
func OpenPeriphSource() (*PeriphSource, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	buttons := make(map[types.ButtonMask]gpio.PinIn, len(hardware.PeriphButtonPins))
	for b, name := range hardware.PeriphButtonPins {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("unknown pin %s for button %s", name, b)
		}
		buttons[b] = p
	}
	power := gpioreg.ByName(hardware.PeriphPowerPin)
	if power == nil {
		return nil, fmt.Errorf("unknown power pin %s", hardware.PeriphPowerPin)
	}
	return newPeriphSource(buttons, power)
}

func newPeriphSource(buttons map[types.ButtonMask]gpio.PinIn, power gpio.PinIn) (*PeriphSource, error) {
	for b, p := range buttons {
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("failed to configure %s for %s: %w", p, b, err)
		}
	}
	if err := power.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure power pin %s: %w", power, err)
	}
	return &PeriphSource{buttons: buttons, power: power}, nil
}

// Read treats a low button pin as pressed and a high power pin as pressed.
func (s *PeriphSource) Read() (types.ButtonMask, error) {
	var mask types.ButtonMask
	for b, p := range s.buttons {
		if p.Read() == gpio.Low {
			mask |= b
		}
	}
	if s.power.Read() == gpio.High {
		mask |= types.BtnPower
	}
	return mask, nil
}

func (s *PeriphSource) PowerPressed() (bool, error) {
	return s.power.Read() == gpio.High, nil
}
