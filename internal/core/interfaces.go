package core

import (
	"handheld-hal/internal/hardware"
	"handheld-hal/internal/settings"
	"handheld-hal/internal/types"
)

// Display is the physical panel. Blit takes a w*h block of RGB565 pixels.
type Display interface {
	Size() (int, int)
	Blit(x, y, w, h int, pixels []uint16) error
	SetBrightness(level uint8)
	PowerOff() error
}

// Storage opens non-volatile key-value namespaces.
type Storage interface {
	OpenNamespace(name string) (settings.KV, error)
}

// AppStore knows which application image is running.
type AppStore interface {
	CurrentApp() (int, bool, error)
	AppName(id int) (string, error)
}

type Platform interface {
	ArmWakeOnLine(line hardware.LineMapping, level int) error
	EnterLowPower() error
	Restart() error
}

// Publisher receives HAL state for outside observers.
type Publisher interface {
	PublishState(state types.InitState) error
	PublishButtons(mask types.ButtonMask) error
}
