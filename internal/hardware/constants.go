package hardware

import "handheld-hal/internal/types"

const (
	// Logical screen, centered on the physical panel.
	ScreenWidth  = 80
	ScreenHeight = 64

	DefaultPanelWidth  = 240
	DefaultPanelHeight = 320

	DefaultFramebuffer  = "/dev/fb0"
	DefaultBacklight    = "/sys/class/backlight/backlight"
	DefaultRegisterPath = "/sys/bus/nvmem/devices/rtc-store0/nvmem"
	DefaultWakeupPath   = "/sys/devices/platform/gpio-keys/power/wakeup"
	DefaultSerialDevice = "/dev/ttyS0"
	DefaultAdcDevice    = "iio:device0"

	// ADC channels for the analog stick variant.
	AdcUpDownChannel    = 4
	AdcLeftRightChannel = 5

	Consumer = "handheld-hal"
)

// LineMapping locates a GPIO line. ActiveLow lines read as pressed when
// pulled to ground.
type LineMapping struct {
	Chip      int
	Line      int
	ActiveLow bool
}

// ButtonMappings maps every logical button except power to its line.
// Pressing a button pulls the line low.
var ButtonMappings = map[types.ButtonMask]LineMapping{
	types.BtnRight:  {0, 12, true},
	types.BtnLeft:   {1, 7, true},
	types.BtnUp:     {1, 2, true},
	types.BtnDown:   {1, 3, true},
	types.BtnB:      {0, 27, true},
	types.BtnA:      {0, 18, true},
	types.BtnSelect: {0, 14, true},
	types.BtnStart:  {0, 13, true},
}

// PowerLine is the power button; it is active high with a pull-down and
// doubles as the wake source.
var PowerLine = LineMapping{1, 0, false}

// AmpEnableLine switches the speaker amplifier.
var AmpEnableLine = LineMapping{0, 17, false}

// PeriphButtonPins names the same buttons for the periph.io host drivers.
var PeriphButtonPins = map[types.ButtonMask]string{
	types.BtnRight:  "GPIO12",
	types.BtnLeft:   "GPIO39",
	types.BtnUp:     "GPIO34",
	types.BtnDown:   "GPIO35",
	types.BtnB:      "GPIO27",
	types.BtnA:      "GPIO18",
	types.BtnSelect: "GPIO14",
	types.BtnStart:  "GPIO13",
}

const PeriphPowerPin = "GPIO32"
