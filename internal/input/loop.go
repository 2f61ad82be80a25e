// Package input samples the raw button lines at a fixed cadence and
// publishes a debounced button snapshot.
package input

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"handheld-hal/internal/logger"
	"handheld-hal/internal/types"
)

// Source produces the raw logical button state. It reports BtnPower while
// the power line is active and never reports BtnPowerLong.
type Source interface {
	Read() (types.ButtonMask, error)
}

// Flusher is advanced every Config.FlushEvery cycles.
type Flusher interface {
	MaybeFlush()
}

type Config struct {
	Interval   time.Duration
	LongPress  time.Duration
	FlushEvery int
}

func DefaultConfig() Config {
	return Config{
		Interval:   100 * time.Millisecond,
		LongPress:  1500 * time.Millisecond,
		FlushEvery: 6,
	}
}

type PowerState int

const (
	PowerIdle PowerState = iota
	PowerPressed
	PowerPressedLong
)

func (s PowerState) String() string {
	switch s {
	case PowerPressed:
		return "pressed"
	case PowerPressedLong:
		return "pressed-long"
	default:
		return "idle"
	}
}

// Loop owns the acquisition task. Only the task writes the snapshot; any
// number of readers may call Current concurrently.
type Loop struct {
	src     Source
	flusher Flusher
	cfg     Config
	logger  *logger.Logger
	now     func() time.Time

	current atomic.Uint32

	mu       sync.Mutex
	onChange func(types.ButtonMask)

	// Touched only by the acquisition task.
	startupGuard bool
	power        PowerState
	pressedAt    time.Time
	cycles       int
	lastErr      string
}

func NewLoop(src Source, flusher Flusher, cfg Config, l *logger.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Loop{
		src:          src,
		flusher:      flusher,
		cfg:          cfg,
		logger:       l.WithTag("input"),
		now:          time.Now,
		startupGuard: true,
	}
}

// OnChange registers fn to be called from the acquisition task whenever
// a newly published snapshot differs from the previous one. fn runs on the
// sampling path and must not block.
func (lp *Loop) OnChange(fn func(types.ButtonMask)) {
	lp.mu.Lock()
	lp.onChange = fn
	lp.mu.Unlock()
}

// Current returns the most recently published snapshot.
func (lp *Loop) Current() types.ButtonMask {
	return types.ButtonMask(lp.current.Load())
}

// Run samples until ctx is cancelled.
func (lp *Loop) Run(ctx context.Context) {
	lp.logger.Infof("Input acquisition started (interval %v)", lp.cfg.Interval)
	ticker := time.NewTicker(lp.cfg.Interval)
	defer ticker.Stop()

	for {
		lp.Step()
		select {
		case <-ctx.Done():
			lp.logger.Infof("Input acquisition stopped")
			return
		case <-ticker.C:
		}
	}
}

// Step runs one acquisition cycle.
func (lp *Loop) Step() {
	raw, err := lp.src.Read()
	if err != nil {
		if msg := err.Error(); msg != lp.lastErr {
			lp.logger.Warnf("Input read failed: %v", err)
			lp.lastErr = msg
		}
	} else {
		lp.lastErr = ""
		lp.publish(lp.debounce(raw))
	}

	lp.cycles++
	if lp.cfg.FlushEvery > 0 && lp.cycles >= lp.cfg.FlushEvery {
		lp.cycles = 0
		if lp.flusher != nil {
			lp.flusher.MaybeFlush()
		}
	}
}

// debounce applies the power button sub-machine. A power line that is
// already active when sampling starts is ignored until it has been seen
// released once.
func (lp *Loop) debounce(raw types.ButtonMask) types.ButtonMask {
	mask := raw &^ (types.BtnPower | types.BtnPowerLong)

	if raw&types.BtnPower == 0 {
		lp.startupGuard = false
		lp.power = PowerIdle
		lp.pressedAt = time.Time{}
		return mask
	}
	if lp.startupGuard {
		return mask
	}

	now := lp.now()
	if lp.power == PowerIdle {
		lp.power = PowerPressed
		lp.pressedAt = now
	}
	mask |= types.BtnPower
	if now.Sub(lp.pressedAt) >= lp.cfg.LongPress {
		lp.power = PowerPressedLong
		mask |= types.BtnPowerLong
	}
	return mask
}

func (lp *Loop) publish(mask types.ButtonMask) {
	old := types.ButtonMask(lp.current.Swap(uint32(mask)))
	if old == mask {
		return
	}
	lp.logger.Debugf("Buttons: %s", mask)

	lp.mu.Lock()
	fn := lp.onChange
	lp.mu.Unlock()
	if fn != nil {
		fn(mask)
	}
}

// WaitUntilReleased blocks until none of the bits in mask are set in the
// published snapshot. It has no timeout: a stuck button hangs the caller.
func (lp *Loop) WaitUntilReleased(mask types.ButtonMask) {
	for lp.Current()&mask != 0 {
		time.Sleep(lp.cfg.Interval)
	}
}
