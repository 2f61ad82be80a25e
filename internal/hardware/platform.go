package hardware

import (
	"fmt"

	"golang.org/x/sys/unix"

	"handheld-hal/internal/logger"
)

// Platform is the Linux power control: wake arming through the input
// device's sysfs wakeup attribute, and power-off/restart through reboot(2).
type Platform struct {
	wakeupPath string
	logger     *logger.Logger
}

func NewPlatform(wakeupPath string, l *logger.Logger) *Platform {
	return &Platform{
		wakeupPath: wakeupPath,
		logger:     l.WithTag("platform"),
	}
}

// ArmWakeOnLine enables the power key as a wake source. The PMIC only
// supports waking on the line's active level.
func (p *Platform) ArmWakeOnLine(line LineMapping, level int) error {
	if level != 1 {
		return fmt.Errorf("unsupported wake level %d", level)
	}
	if err := writeSysfs(p.wakeupPath, "enabled"); err != nil {
		return err
	}
	p.logger.Infof("Armed wake on chip %d line %d", line.Chip, line.Line)
	return nil
}

// EnterLowPower powers the SoC off. On success it does not return.
func (p *Platform) EnterLowPower() error {
	p.logger.Infof("Entering low power")
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF); err != nil {
		return fmt.Errorf("power off failed: %w", err)
	}
	return nil
}

// Restart reboots while keeping the always-on domain, and with it the
// boot handoff register, supplied.
func (p *Platform) Restart() error {
	p.logger.Infof("Restarting into loader")
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("restart failed: %w", err)
	}
	return nil
}
