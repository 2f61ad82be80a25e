// Package settings caches the user settings persisted in non-volatile
// storage and writes them back only when they changed.
package settings

import (
	"sync"

	"handheld-hal/internal/logger"
)

const (
	VolumeKey = "vol"
	// BrightnessKey keeps the name the setting had when it was called contrast.
	BrightnessKey = "con"
	KeyLockKey    = "kl"

	DefaultVolume     uint8 = 128
	DefaultBrightness uint8 = 100
)

// KV is a namespace of the non-volatile store. GetU8 reports a missing key
// with ok=false and a nil error. Sets are staged until Commit.
type KV interface {
	GetU8(key string) (value uint8, ok bool, err error)
	SetU8(key string, value uint8) error
	Commit() error
}

type Vars struct {
	Volume     uint8
	Brightness uint8
}

// Store holds the live settings and a snapshot of what was last persisted.
type Store struct {
	mu     sync.Mutex
	live   Vars
	saved  Vars
	kv     KV
	apply  func(uint8)
	logger *logger.Logger
}

// New loads the settings from kv. A nil kv means the store could not be
// opened; the settings then live in memory only. apply is called with every
// new brightness and may be nil.
func New(kv KV, apply func(uint8), l *logger.Logger) *Store {
	s := &Store{
		kv:     kv,
		apply:  apply,
		logger: l.WithTag("settings"),
	}

	if kv == nil {
		s.logger.Warnf("Settings store unavailable, using in-memory defaults")
		s.Init(nil, nil)
		s.saved = s.live
		return s
	}

	s.Init(s.load(VolumeKey), s.load(BrightnessKey))
	return s
}

func (s *Store) load(key string) *uint8 {
	v, ok, err := s.kv.GetU8(key)
	if err != nil {
		s.logger.Warnf("Failed to read %s, using default: %v", key, err)
		return nil
	}
	if !ok {
		s.logger.Debugf("No stored %s, using default", key)
		return nil
	}
	return &v
}

// Init seeds the live and persisted copies. A nil value takes the default
// and leaves that field of the snapshot mismatched, so the next flush
// persists the default.
func (s *Store) Init(volume, brightness *uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.live = Vars{Volume: DefaultVolume, Brightness: DefaultBrightness}
	s.saved = Vars{Volume: ^DefaultVolume, Brightness: ^DefaultBrightness}
	if volume != nil {
		s.live.Volume = *volume
		s.saved.Volume = *volume
	}
	if brightness != nil {
		s.live.Brightness = *brightness
		s.saved.Brightness = *brightness
	}
}

func (s *Store) SetVolume(v uint8) {
	s.mu.Lock()
	s.live.Volume = v
	s.mu.Unlock()
}

func (s *Store) Volume() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.Volume
}

// SetBrightness records b and applies it to the display under the same
// lock, so the panel always shows the live value. apply must not call back
// into the Store.
func (s *Store) SetBrightness(b uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Brightness = b
	if s.apply != nil {
		s.apply(b)
	}
}

func (s *Store) Brightness() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.Brightness
}

// Vars returns a copy of the live settings.
func (s *Store) Vars() Vars {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// MaybeFlush persists the fields that changed since the last flush and
// commits once. With nothing changed it touches the store not at all.
// Store errors are logged and not retried.
//
// The change is claimed by moving the snapshot under the lock before
// writing, so concurrent callers write each change once.
func (s *Store) MaybeFlush() {
	s.mu.Lock()
	live, saved := s.live, s.saved
	s.saved = live
	s.mu.Unlock()

	if live == saved || s.kv == nil {
		return
	}

	if live.Volume != saved.Volume {
		if err := s.kv.SetU8(VolumeKey, live.Volume); err != nil {
			s.logger.Warnf("Failed to store %s: %v", VolumeKey, err)
		}
	}
	if live.Brightness != saved.Brightness {
		if err := s.kv.SetU8(BrightnessKey, live.Brightness); err != nil {
			s.logger.Warnf("Failed to store %s: %v", BrightnessKey, err)
		}
	}
	if err := s.kv.Commit(); err != nil {
		s.logger.Warnf("Failed to commit settings: %v", err)
		return
	}
	s.logger.Debugf("Flushed settings: volume=%d brightness=%d", live.Volume, live.Brightness)
}

// KeyLock reports whether input should be locked at the next wake.
func (s *Store) KeyLock() bool {
	if s.kv == nil {
		return false
	}
	v, ok, err := s.kv.GetU8(KeyLockKey)
	if err != nil {
		s.logger.Warnf("Failed to read %s: %v", KeyLockKey, err)
		return false
	}
	return ok && v != 0
}

// SetKeyLock persists the lock flag immediately.
func (s *Store) SetKeyLock(on bool) error {
	if s.kv == nil {
		return nil
	}
	var v uint8
	if on {
		v = 1
	}
	if err := s.kv.SetU8(KeyLockKey, v); err != nil {
		return err
	}
	return s.kv.Commit()
}
