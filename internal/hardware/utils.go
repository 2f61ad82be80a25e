package hardware

import (
	"fmt"
	"os"
	"strings"
)

func ReadAdcValue(device string, channel int) (int, error) {
	path := fmt.Sprintf("/sys/bus/iio/devices/%s/in_voltage%d_raw", device, channel)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return -1, fmt.Errorf("ADC sysfs not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return -1, fmt.Errorf("failed reading %s: %w", path, err)
	}

	var value int
	_, err = fmt.Sscanf(string(data), "%d", &value)
	if err != nil {
		return -1, fmt.Errorf("failed parsing ADC value: %w", err)
	}

	return value, nil
}

// writeSysfs writes a single value to a sysfs attribute.
func writeSysfs(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed writing %s: %w", path, err)
	}
	return nil
}

func readSysfsInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed reading %s: %w", path, err)
	}
	var value int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &value); err != nil {
		return 0, fmt.Errorf("failed parsing %s: %w", path, err)
	}
	return value, nil
}
