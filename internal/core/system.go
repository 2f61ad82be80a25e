package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"handheld-hal/internal/audio"
	"handheld-hal/internal/bootreg"
	"handheld-hal/internal/fsm"
	"handheld-hal/internal/hardware"
	"handheld-hal/internal/input"
	"handheld-hal/internal/logger"
	"handheld-hal/internal/powerdown"
	"handheld-hal/internal/settings"
	"handheld-hal/internal/types"
)

var ErrNotReady = errors.New("hal not initialized")

const (
	halNamespace     = "hal"
	factoryNamespace = "factoryapp"
)

// Deps are the collaborators a System drives. Every field except Platform
// may be nil; a nil Register keeps the boot register in memory.
type Deps struct {
	Display Display
	Source  input.Source
	// PowerLine reads the raw power button. Defaults to Source when it
	// provides PowerPressed, else to the published snapshot.
	PowerLine powerdown.PowerLine
	Sink      audio.Sink
	Amp       audio.OutputStage
	Register  bootreg.Word
	Storage   Storage
	Apps      AppStore
	Platform  Platform
	Publisher Publisher
}

type Config struct {
	Input     input.Config
	Powerdown powerdown.Config
}

func DefaultConfig() Config {
	return Config{
		Input:     input.DefaultConfig(),
		Powerdown: powerdown.DefaultConfig(),
	}
}

type System struct {
	deps   Deps
	cfg    Config
	logger *logger.Logger

	mu       sync.Mutex
	state    types.InitState
	hwDone   bool
	sdkDone  bool
	settings *settings.Store
	appKV    settings.KV
	ctx      context.Context

	initMu    sync.Mutex
	displayMu sync.Mutex
	machine   stateMachine
	register  *bootreg.Register
	audio     *audio.Pipeline
	input     *input.Loop
	// buttons holds the newest unpublished snapshot.
	buttons   chan types.ButtonMask
}

func NewSystem(deps Deps, cfg Config, l *logger.Logger) *System {
	s := &System{
		deps:    deps,
		cfg:     cfg,
		logger:  l.WithTag("hal"),
		state:   types.StateUninit,
		buttons: make(chan types.ButtonMask, 1),
	}
	if deps.Register == nil {
		deps.Register = bootreg.NewMemoryWord()
		s.deps.Register = deps.Register
	}
	s.register = bootreg.New(deps.Register)
	if deps.Sink != nil {
		s.audio = audio.New(deps.Sink, deps.Amp, s, l)
	}
	if deps.Source != nil {
		s.input = input.NewLoop(deps.Source, s, cfg.Input, l)
		s.input.OnChange(s.buttonsChanged)
	}
	return s
}

// Start brings up the lifecycle machine. ctx bounds the input loop.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if err := s.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start lifecycle: %w", err)
	}
	return nil
}

func (s *System) State() types.InitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Init runs hardware and SDK initialization.
func (s *System) Init() error {
	if err := s.InitHardware(); err != nil {
		return err
	}
	return s.InitSDK()
}

// InitHardware clears the panel and enables the amplifier. Repeated calls
// are no-ops.
func (s *System) InitHardware() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.machine == nil {
		return ErrNotReady
	}
	s.mu.Lock()
	done := s.hwDone
	s.mu.Unlock()
	if done {
		return nil
	}

	s.clearDisplay()
	if s.deps.Amp != nil {
		if err := s.deps.Amp.SetEnabled(true); err != nil {
			s.logger.Warnf("Failed to enable amplifier: %v", err)
		}
	}

	s.mu.Lock()
	s.hwDone = true
	s.mu.Unlock()
	s.logger.Infof("Hardware initialized")
	return s.sendEvent(fsm.EvHardwareInitDone)
}

// InitSDK loads settings, opens the app namespace and starts input
// acquisition. Repeated calls are no-ops.
func (s *System) InitSDK() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.machine == nil {
		return ErrNotReady
	}
	s.mu.Lock()
	done, ctx := s.sdkDone, s.ctx
	s.mu.Unlock()
	if done {
		return nil
	}

	store := settings.New(s.openNamespace(halNamespace), s.applyBrightness, s.logger)
	appKV := s.openNamespace(s.appNamespace())

	s.mu.Lock()
	s.settings = store
	s.appKV = appKV
	s.sdkDone = true
	s.mu.Unlock()

	if s.input != nil {
		if s.deps.Publisher != nil {
			go s.publishButtons(ctx)
		}
		go s.input.Run(ctx)
	}
	s.logger.Infof("SDK initialized")
	return s.sendEvent(fsm.EvSdkInitDone)
}

func (s *System) openNamespace(name string) settings.KV {
	if s.deps.Storage == nil {
		return nil
	}
	kv, err := s.deps.Storage.OpenNamespace(name)
	if err != nil {
		s.logger.Warnf("Failed to open namespace %s: %v", name, err)
		return nil
	}
	return kv
}

func (s *System) appNamespace() string {
	if s.deps.Apps == nil {
		return factoryNamespace
	}
	id, ok, err := s.deps.Apps.CurrentApp()
	if err != nil {
		s.logger.Warnf("Failed to get current app: %v", err)
		return factoryNamespace
	}
	if !ok {
		return factoryNamespace
	}
	name, err := s.deps.Apps.AppName(id)
	if err != nil || name == "" {
		s.logger.Warnf("No name for app %d, using %s: %v", id, factoryNamespace, err)
		return factoryNamespace
	}
	return name
}

func (s *System) store() *settings.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// AppStore returns the settings namespace of the running app, or nil when
// none could be opened.
func (s *System) AppStore() settings.KV {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appKV
}

// MaybeFlush persists changed settings. The input loop calls it.
func (s *System) MaybeFlush() {
	if st := s.store(); st != nil {
		st.MaybeFlush()
	}
}

func (s *System) SetVolume(v uint8) {
	st := s.store()
	if st == nil {
		s.logger.Warnf("SetVolume before SDK init ignored")
		return
	}
	st.SetVolume(v)
}

func (s *System) Volume() uint8 {
	if st := s.store(); st != nil {
		return st.Volume()
	}
	return settings.DefaultVolume
}

func (s *System) SetBrightness(b uint8) {
	st := s.store()
	if st == nil {
		s.logger.Warnf("SetBrightness before SDK init ignored")
		return
	}
	st.SetBrightness(b)
}

func (s *System) Brightness() uint8 {
	if st := s.store(); st != nil {
		return st.Brightness()
	}
	return settings.DefaultBrightness
}

func (s *System) applyBrightness(b uint8) {
	if s.deps.Display != nil {
		s.deps.Display.SetBrightness(b)
	}
}

func (s *System) KeyLock() bool {
	if st := s.store(); st != nil {
		return st.KeyLock()
	}
	return false
}

func (s *System) SetKeyLock(on bool) error {
	st := s.store()
	if st == nil {
		return ErrNotReady
	}
	return st.SetKeyLock(on)
}

// Keys returns the last published button snapshot.
func (s *System) Keys() types.ButtonMask {
	if s.input == nil {
		return 0
	}
	return s.input.Current()
}

// WaitKeysReleased blocks until every key held at call time is released.
func (s *System) WaitKeysReleased() {
	s.WaitUntilReleased(s.Keys())
}

func (s *System) WaitUntilReleased(mask types.ButtonMask) {
	if s.input == nil {
		return
	}
	s.input.WaitUntilReleased(mask)
}

// buttonsChanged hands mask to publishButtons without blocking the input
// loop. A snapshot not yet published is replaced by the newer one.
func (s *System) buttonsChanged(mask types.ButtonMask) {
	if s.deps.Publisher == nil {
		return
	}
	for {
		select {
		case s.buttons <- mask:
			return
		default:
		}
		select {
		case <-s.buttons:
		default:
		}
	}
}

func (s *System) publishButtons(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case mask := <-s.buttons:
			if err := s.deps.Publisher.PublishButtons(mask); err != nil {
				s.logger.Warnf("Failed to publish buttons: %v", err)
			}
		}
	}
}

func (s *System) SoundStart(rate, bufferSize int) error {
	if s.audio == nil {
		return ErrNotReady
	}
	return s.audio.Start(rate, bufferSize)
}

func (s *System) SoundMute(on bool) error {
	if s.audio == nil {
		if s.deps.Amp != nil {
			return s.deps.Amp.SetEnabled(!on)
		}
		return nil
	}
	return s.audio.Mute(on)
}

func (s *System) SoundStop() error {
	if s.audio == nil {
		return nil
	}
	return s.audio.Stop()
}

// SoundPush blocks until the sink has taken every sample.
func (s *System) SoundPush(samples []byte) error {
	if s.audio == nil {
		return ErrNotReady
	}
	return s.audio.Push(samples)
}

func (s *System) panelOffset() (int, int) {
	pw, ph := s.deps.Display.Size()
	return (pw - hardware.ScreenWidth) / 2, (ph - hardware.ScreenHeight) / 2
}

func (s *System) clearDisplay() {
	if s.deps.Display == nil {
		return
	}
	s.displayMu.Lock()
	defer s.displayMu.Unlock()

	pw, ph := s.deps.Display.Size()
	row := make([]uint16, pw)
	for y := 0; y < ph; y++ {
		if err := s.deps.Display.Blit(0, y, pw, 1, row); err != nil {
			s.logger.Warnf("Failed to clear display: %v", err)
			return
		}
	}
}

// SendFB shows a full logical frame of ScreenWidth x ScreenHeight pixels.
func (s *System) SendFB(fb []uint16) error {
	if s.deps.Display == nil {
		return ErrNotReady
	}
	if len(fb) < hardware.ScreenWidth*hardware.ScreenHeight {
		return fmt.Errorf("frame has %d pixels, need %d", len(fb), hardware.ScreenWidth*hardware.ScreenHeight)
	}
	s.displayMu.Lock()
	defer s.displayMu.Unlock()

	x, y := s.panelOffset()
	return s.deps.Display.Blit(x, y, hardware.ScreenWidth, hardware.ScreenHeight, fb)
}

// SendFBPartial shows a w x h block at (x, y) of the logical screen.
// Empty or out-of-bounds rectangles are ignored.
func (s *System) SendFBPartial(fb []uint16, x, y, w, h int) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	if x < 0 || x+w > hardware.ScreenWidth || y < 0 || y+h > hardware.ScreenHeight {
		return nil
	}
	if s.deps.Display == nil {
		return ErrNotReady
	}
	if len(fb) < w*h {
		return fmt.Errorf("block has %d pixels, need %d", len(fb), w*h)
	}
	s.displayMu.Lock()
	defer s.displayMu.Unlock()

	xo, yo := s.panelOffset()
	return s.deps.Display.Blit(x+xo, y+yo, w, h, fb)
}

// RGB565 packs a framebuffer color.
func RGB565(r, g, b uint8) uint16 {
	return powerdown.RGB565(r, g, b)
}

// PowerDown runs the shutdown sequence. It only returns when the platform
// fails to enter low power.
func (s *System) PowerDown() error {
	if err := s.sendEvent(fsm.EvPowerDown); err != nil {
		s.logger.Warnf("Lifecycle rejected power-down: %v", err)
	}

	deps := powerdown.Deps{
		Display:     s.deps.Display,
		DisplayLock: &s.displayMu,
		Register:    s.register,
		Power:       s.powerLine(),
		Platform:    s.deps.Platform,
		WakeLine:    hardware.PowerLine,
	}
	if st := s.store(); st != nil {
		deps.Flag = st
	}
	if s.audio != nil {
		deps.Audio = s.audio
	} else if s.deps.Amp != nil {
		deps.Audio = ampMuter{s.deps.Amp}
	}

	seq := powerdown.New(deps, hardware.ScreenWidth, hardware.ScreenHeight, s.cfg.Powerdown, s.logger)
	return seq.Run()
}

func (s *System) powerLine() powerdown.PowerLine {
	if s.deps.PowerLine != nil {
		return s.deps.PowerLine
	}
	if pl, ok := s.deps.Source.(powerdown.PowerLine); ok {
		return pl
	}
	if s.input != nil {
		return snapshotPowerLine{s.input}
	}
	return nil
}

type snapshotPowerLine struct {
	loop *input.Loop
}

func (p snapshotPowerLine) PowerPressed() (bool, error) {
	return p.loop.Current().Has(types.BtnPower), nil
}

type ampMuter struct {
	amp audio.OutputStage
}

func (m ampMuter) Mute(on bool) error {
	return m.amp.SetEnabled(!on)
}

// SetNewApp sets the app to boot on the next restart; -1 clears it.
func (s *System) SetNewApp(id int) {
	s.register.SetPendingApp(id)
}

func (s *System) NewApp() int {
	return s.register.PendingApp()
}

func (s *System) SetRTCReg(v uint32) {
	s.register.SetRaw(v)
}

func (s *System) RTCReg() uint32 {
	return s.register.Raw()
}

// RTCBootupValue is the register as it read at startup.
func (s *System) RTCBootupValue() uint32 {
	return s.register.BootupValue()
}

// BootIntoNewApp restarts the device with the register preserved.
func (s *System) BootIntoNewApp() error {
	s.MaybeFlush()
	s.logger.Infof("Restarting into app %d", s.register.PendingApp())
	if err := s.deps.Platform.Restart(); err != nil {
		return fmt.Errorf("failed to restart: %w", err)
	}
	return nil
}

func (s *System) ExitToChooser() error {
	s.register.SetPendingApp(bootreg.NoPendingApp)
	return s.BootIntoNewApp()
}

// This hardware has no fuel gauge or charger detection.
func (s *System) BatteryMillivolts() int           { return 3600 }
func (s *System) BatteryPercent() int              { return 100 }
func (s *System) ChargeStatus() types.ChargeStatus { return types.ChargeNoCharger }
func (s *System) HardwareVersion() int             { return -1 }
