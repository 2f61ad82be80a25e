package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"handheld-hal/internal/logger"
)

type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// GPIO owns the requested character-device lines, keyed by name.
type GPIO struct {
	logger *logger.Logger
	chips  map[int]*gpiocdev.Chip
	lines  map[string]*gpiocdev.Line
	mu     sync.RWMutex
}

func NewGPIO(l *logger.Logger) *GPIO {
	return &GPIO{
		logger: l.WithTag("gpio"),
		chips:  make(map[int]*gpiocdev.Chip),
		lines:  make(map[string]*gpiocdev.Line),
	}
}

func (g *GPIO) chip(n int) (*gpiocdev.Chip, error) {
	if chip, ok := g.chips[n]; ok {
		return chip, nil
	}
	chip, err := gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", n))
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %d: %w", n, err)
	}
	g.chips[n] = chip
	return chip, nil
}

// RequestInput requests a line as input. Reads report the logical level,
// so an active-low button reads 1 while pressed.
func (g *GPIO) RequestInput(name string, m LineMapping, pull Pull) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	chip, err := g.chip(m.Chip)
	if err != nil {
		return err
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer(Consumer)}
	switch pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if m.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := chip.RequestLine(m.Line, opts...)
	if err != nil {
		return fmt.Errorf("failed to request GPIO line %d for %s: %w", m.Line, name, err)
	}
	g.lines[name] = line
	g.logger.Debugf("Configured DI %s: chip=%d, line=%d, activeLow=%v", name, m.Chip, m.Line, m.ActiveLow)
	return nil
}

func (g *GPIO) RequestOutput(name string, m LineMapping, initial bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	chip, err := g.chip(m.Chip)
	if err != nil {
		return err
	}

	val := 0
	if initial {
		val = 1
	}
	line, err := chip.RequestLine(m.Line,
		gpiocdev.AsOutput(val),
		gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return fmt.Errorf("failed to request GPIO line %d for %s: %w", m.Line, name, err)
	}
	g.lines[name] = line
	g.logger.Debugf("Configured DO %s: chip=%d, line=%d", name, m.Chip, m.Line)
	return nil
}

// Read returns true when the named line is at its active level.
func (g *GPIO) Read(name string) (bool, error) {
	g.mu.RLock()
	line, ok := g.lines[name]
	g.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("unknown GPIO line: %s", name)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return v == 1, nil
}

func (g *GPIO) Write(name string, value bool) error {
	g.mu.RLock()
	line, ok := g.lines[name]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown GPIO line: %s", name)
	}

	val := 0
	if value {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set DO %s=%v: %w", name, value, err)
	}
	g.logger.Debugf("Set DO %s=%v", name, value)
	return nil
}

func (g *GPIO) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for name, line := range g.lines {
		line.Close()
		g.logger.Debugf("Closed GPIO line for %s", name)
	}
	for id, chip := range g.chips {
		chip.Close()
		g.logger.Debugf("Closed GPIO chip %d", id)
	}
	g.lines = make(map[string]*gpiocdev.Line)
	g.chips = make(map[int]*gpiocdev.Chip)
}
