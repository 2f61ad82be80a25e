package core

import (
	"fmt"

	"handheld-hal/internal/messaging"
)

// Callbacks returns the redis command handlers of the system.
func (s *System) Callbacks() messaging.Callbacks {
	return messaging.Callbacks{
		VolumeCallback:     s.handleVolumeRequest,
		BrightnessCallback: s.handleBrightnessRequest,
		PowerCallback:      s.handlePowerRequest,
		AppCallback:        s.handleAppRequest,
	}
}

func (s *System) handleVolumeRequest(v uint8) error {
	s.logger.Infof("Handling volume request: %d", v)
	if s.store() == nil {
		return ErrNotReady
	}
	s.SetVolume(v)
	return nil
}

func (s *System) handleBrightnessRequest(b uint8) error {
	s.logger.Infof("Handling brightness request: %d", b)
	if s.store() == nil {
		return ErrNotReady
	}
	s.SetBrightness(b)
	return nil
}

func (s *System) handlePowerRequest(action string) error {
	s.logger.Infof("Handling power request: %s", action)
	switch action {
	case "off":
		go func() {
			if err := s.PowerDown(); err != nil {
				s.logger.Errorf("Power down failed: %v", err)
			}
		}()
		return nil
	case "chooser":
		return s.ExitToChooser()
	default:
		return fmt.Errorf("invalid power action: %s", action)
	}
}

func (s *System) handleAppRequest(id int) error {
	s.logger.Infof("Handling app request: %d", id)
	if id < 0 || id > 255 {
		return fmt.Errorf("invalid app id: %d", id)
	}
	s.SetNewApp(id)
	return s.BootIntoNewApp()
}
