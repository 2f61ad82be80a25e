// Package powerdown runs the shutdown sequence: fade animation, optional
// lock marker, audio off, display off, then platform low power.
package powerdown

import (
	"errors"
	"fmt"
	"time"

	"handheld-hal/internal/hardware"
	"handheld-hal/internal/logger"
)

var ErrSleepReturned = errors.New("platform returned from low power entry")

type Stage int

const (
	StageStart Stage = iota
	StageAnimate
	StagePersistLock
	StageMute
	StageDisplayOff
	StagePlatformSleep
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageAnimate:
		return "animate"
	case StagePersistLock:
		return "persist-lock"
	case StageMute:
		return "mute"
	case StageDisplayOff:
		return "display-off"
	case StagePlatformSleep:
		return "platform-sleep"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type Config struct {
	FrameDelay    time.Duration
	ReleasePoll   time.Duration
	ReleaseSettle time.Duration
	LockTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		FrameDelay:    10 * time.Millisecond,
		ReleasePoll:   50 * time.Millisecond,
		ReleaseSettle: 200 * time.Millisecond,
		LockTimeout:   100 * time.Millisecond,
	}
}

type Display interface {
	Size() (int, int)
	Blit(x, y, w, h int, pixels []uint16) error
	PowerOff() error
}

// DisplayLock is held while the animation owns the display. *sync.Mutex
// satisfies it.
type DisplayLock interface {
	TryLock() bool
	Unlock()
}

type LockFlag interface {
	KeyLock() bool
}

type LockMarker interface {
	SetLockMarker()
}

type Audio interface {
	Mute(on bool) error
}

type PowerLine interface {
	PowerPressed() (bool, error)
}

type Platform interface {
	ArmWakeOnLine(line hardware.LineMapping, level int) error
	EnterLowPower() error
}

// Deps are the collaborators of a Sequencer. Display, Frame and DisplayLock
// may be nil.
type Deps struct {
	Display     Display
	DisplayLock DisplayLock
	// Frame returns a reusable logical framebuffer, or nil.
	Frame    func() []uint16
	Flag     LockFlag
	Register LockMarker
	Audio    Audio
	Power    PowerLine
	Platform Platform
	WakeLine hardware.LineMapping
}

type Sequencer struct {
	deps          Deps
	cfg           Config
	width, height int
	logger        *logger.Logger
	onStage       func(Stage)
	sleep         func(time.Duration)
}

// New creates a sequencer that animates a width x height logical screen
// centered on the display.
func New(deps Deps, width, height int, cfg Config, l *logger.Logger) *Sequencer {
	return &Sequencer{
		deps:   deps,
		cfg:    cfg,
		width:  width,
		height: height,
		logger: l.WithTag("powerdown"),
		sleep:  time.Sleep,
	}
}

// OnStage registers a callback invoked as each stage begins.
func (s *Sequencer) OnStage(fn func(Stage)) {
	s.onStage = fn
}

func (s *Sequencer) enter(st Stage) {
	s.logger.Debugf("Stage %s", st)
	if s.onStage != nil {
		s.onStage(st)
	}
}

// Run executes the sequence. It only returns if the platform fails to
// enter low power, with ErrSleepReturned wrapping the cause.
func (s *Sequencer) Run() error {
	s.enter(StageStart)

	s.enter(StageAnimate)
	s.animate()

	if s.deps.Flag != nil && s.deps.Flag.KeyLock() {
		s.enter(StagePersistLock)
		s.deps.Register.SetLockMarker()
	}

	s.enter(StageMute)
	if s.deps.Audio != nil {
		if err := s.deps.Audio.Mute(true); err != nil {
			s.logger.Warnf("Failed to mute audio: %v", err)
		}
	}

	s.enter(StageDisplayOff)
	if s.deps.Display != nil {
		if err := s.deps.Display.PowerOff(); err != nil {
			s.logger.Warnf("Failed to power off display: %v", err)
		}
	}

	s.enter(StagePlatformSleep)
	s.waitPowerReleased()
	s.sleep(s.cfg.ReleaseSettle)

	if err := s.deps.Platform.ArmWakeOnLine(s.deps.WakeLine, 1); err != nil {
		s.logger.Errorf("Failed to arm wake source: %v", err)
	}
	err := s.deps.Platform.EnterLowPower()
	if err == nil {
		return ErrSleepReturned
	}
	return fmt.Errorf("%w: %v", ErrSleepReturned, err)
}

func (s *Sequencer) lockDisplay() bool {
	if s.deps.DisplayLock == nil {
		return false
	}
	deadline := time.Now().Add(s.cfg.LockTimeout)
	for {
		if s.deps.DisplayLock.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			s.logger.Warnf("Display busy, animating anyway")
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Sequencer) animate() {
	if s.deps.Display == nil {
		s.logger.Warnf("No display, skipping animation")
		return
	}

	var fb []uint16
	if s.deps.Frame != nil {
		fb = s.deps.Frame()
	}
	if len(fb) < s.width*s.height {
		fb = make([]uint16, s.width*s.height)
	}

	if s.lockDisplay() {
		defer s.deps.DisplayLock.Unlock()
	}

	pw, ph := s.deps.Display.Size()
	xoff, yoff := (pw-s.width)/2, (ph-s.height)/2
	for step := 1; step < s.height/2; step++ {
		DrawFrame(fb, s.width, s.height, step)
		if err := s.deps.Display.Blit(xoff, yoff, s.width, s.height, fb); err != nil {
			s.logger.Warnf("Animation blit failed, skipping: %v", err)
			return
		}
		s.sleep(s.cfg.FrameDelay)
	}
}

// DrawFrame clears fb and fills rows step..height-step with a gray that
// brightens as step grows.
func DrawFrame(fb []uint16, width, height, step int) {
	for i := range fb[:width*height] {
		fb[i] = 0
	}
	if step <= 0 || step > height/2 {
		return
	}
	g := uint8(step*4 + 8)
	col := RGB565(g, g, g)
	for y := step; y <= height-step && y < height; y++ {
		row := fb[y*width : (y+1)*width]
		for x := range row {
			row[x] = col
		}
	}
}

// RGB565 packs an 8-bit-per-channel color.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

func (s *Sequencer) waitPowerReleased() {
	if s.deps.Power == nil {
		return
	}
	for {
		pressed, err := s.deps.Power.PowerPressed()
		if err != nil {
			s.logger.Warnf("Failed to read power line: %v", err)
			return
		}
		if !pressed {
			return
		}
		s.sleep(s.cfg.ReleasePoll)
	}
}
