package settings

import (
	"errors"
	"sync"
	"testing"
	"time"

	"handheld-hal/internal/logger"
)

// countingKV is an in-memory KV that records every call.
type countingKV struct {
	data    map[string]uint8
	staged  map[string]uint8
	sets    []string
	commits int
	getErr  error
	setErr  error
}

func newCountingKV() *countingKV {
	return &countingKV{
		data:   make(map[string]uint8),
		staged: make(map[string]uint8),
	}
}

func (k *countingKV) GetU8(key string) (uint8, bool, error) {
	if k.getErr != nil {
		return 0, false, k.getErr
	}
	v, ok := k.data[key]
	return v, ok, nil
}

func (k *countingKV) SetU8(key string, v uint8) error {
	k.sets = append(k.sets, key)
	if k.setErr != nil {
		return k.setErr
	}
	k.staged[key] = v
	return nil
}

func (k *countingKV) Commit() error {
	k.commits++
	for key, v := range k.staged {
		k.data[key] = v
	}
	k.staged = make(map[string]uint8)
	return nil
}

func testLogger() *logger.Logger {
	return logger.NewLogger(nil, logger.LogLevelError)
}

func TestDefaultsPersistedOnFirstFlush(t *testing.T) {
	kv := newCountingKV()
	s := New(kv, nil, testLogger())

	if s.Volume() != 128 || s.Brightness() != 100 {
		t.Fatalf("defaults = %d/%d, want 128/100", s.Volume(), s.Brightness())
	}

	s.MaybeFlush()
	if len(kv.sets) != 2 {
		t.Errorf("first flush sets = %v, want vol and con", kv.sets)
	}
	if kv.commits != 1 {
		t.Errorf("first flush commits = %d, want 1", kv.commits)
	}
	if kv.data[VolumeKey] != 128 || kv.data[BrightnessKey] != 100 {
		t.Errorf("persisted = %v", kv.data)
	}

	s.MaybeFlush()
	if len(kv.sets) != 2 || kv.commits != 1 {
		t.Errorf("second flush wrote: sets=%v commits=%d", kv.sets, kv.commits)
	}
}

func TestLoadedValuesAreClean(t *testing.T) {
	kv := newCountingKV()
	kv.data[VolumeKey] = 42
	kv.data[BrightnessKey] = 200
	s := New(kv, nil, testLogger())

	if s.Volume() != 42 || s.Brightness() != 200 {
		t.Fatalf("loaded = %d/%d, want 42/200", s.Volume(), s.Brightness())
	}
	s.MaybeFlush()
	if len(kv.sets) != 0 || kv.commits != 0 {
		t.Errorf("clean flush wrote: sets=%v commits=%d", kv.sets, kv.commits)
	}
}

func TestOnlyChangedFieldsWritten(t *testing.T) {
	kv := newCountingKV()
	kv.data[VolumeKey] = 10
	kv.data[BrightnessKey] = 20
	s := New(kv, nil, testLogger())

	s.SetVolume(11)
	s.MaybeFlush()

	if len(kv.sets) != 1 || kv.sets[0] != VolumeKey {
		t.Errorf("sets = %v, want [vol]", kv.sets)
	}
	if kv.commits != 1 {
		t.Errorf("commits = %d, want 1", kv.commits)
	}
}

func TestLastValuesWin(t *testing.T) {
	kv := newCountingKV()
	s := New(kv, nil, testLogger())
	s.MaybeFlush()

	for _, v := range []uint8{1, 250, 77} {
		s.SetVolume(v)
	}
	for _, b := range []uint8{5, 9} {
		s.SetBrightness(b)
	}
	s.MaybeFlush()
	s.MaybeFlush()

	if kv.data[VolumeKey] != 77 || kv.data[BrightnessKey] != 9 {
		t.Errorf("persisted = %v, want vol=77 con=9", kv.data)
	}
	if kv.commits != 2 {
		t.Errorf("commits = %d, want 2", kv.commits)
	}
}

func TestChangeAndRevertStillClean(t *testing.T) {
	kv := newCountingKV()
	kv.data[VolumeKey] = 50
	kv.data[BrightnessKey] = 60
	s := New(kv, nil, testLogger())

	s.SetVolume(51)
	s.SetVolume(50)
	s.MaybeFlush()
	if kv.commits != 0 {
		t.Errorf("commits = %d, want 0", kv.commits)
	}
}

func TestBrightnessApplied(t *testing.T) {
	var applied []uint8
	s := New(newCountingKV(), func(b uint8) { applied = append(applied, b) }, testLogger())

	s.SetBrightness(33)
	if len(applied) != 1 || applied[0] != 33 {
		t.Errorf("applied = %v, want [33]", applied)
	}
	if s.Brightness() != 33 {
		t.Errorf("Brightness() = %d, want 33", s.Brightness())
	}
}

func TestNoStoreFallsBackToDefaults(t *testing.T) {
	s := New(nil, nil, testLogger())
	if s.Volume() != DefaultVolume || s.Brightness() != DefaultBrightness {
		t.Errorf("defaults = %d/%d", s.Volume(), s.Brightness())
	}
	s.SetVolume(3)
	s.MaybeFlush()
	if s.KeyLock() {
		t.Error("KeyLock() = true without a store")
	}
}

func TestReadErrorUsesDefault(t *testing.T) {
	kv := newCountingKV()
	kv.getErr = errors.New("flash gone")
	s := New(kv, nil, testLogger())
	if s.Volume() != DefaultVolume {
		t.Errorf("Volume() = %d, want default", s.Volume())
	}
}

func TestWriteErrorNotRetried(t *testing.T) {
	kv := newCountingKV()
	kv.setErr = errors.New("write failed")
	s := New(kv, nil, testLogger())

	s.MaybeFlush()
	n := len(kv.sets)
	s.MaybeFlush()
	if len(kv.sets) != n {
		t.Errorf("failed write retried: %v", kv.sets)
	}
}

func TestKeyLock(t *testing.T) {
	kv := newCountingKV()
	s := New(kv, nil, testLogger())
	if s.KeyLock() {
		t.Fatal("KeyLock() = true with no key stored")
	}
	if err := s.SetKeyLock(true); err != nil {
		t.Fatalf("SetKeyLock: %v", err)
	}
	if !s.KeyLock() {
		t.Error("KeyLock() = false after SetKeyLock(true)")
	}
}

// blockingKV holds the first SetU8 until release is closed.
type blockingKV struct {
	mu      sync.Mutex
	sets    []string
	commits int
	entered chan struct{}
	release chan struct{}
	blocked bool
}

func (k *blockingKV) GetU8(key string) (uint8, bool, error) {
	switch key {
	case VolumeKey:
		return DefaultVolume, true, nil
	case BrightnessKey:
		return DefaultBrightness, true, nil
	}
	return 0, false, nil
}

func (k *blockingKV) SetU8(key string, v uint8) error {
	k.mu.Lock()
	k.sets = append(k.sets, key)
	first := !k.blocked
	k.blocked = true
	k.mu.Unlock()
	if first {
		close(k.entered)
		<-k.release
	}
	return nil
}

func (k *blockingKV) Commit() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.commits++
	return nil
}

func TestConcurrentFlushWritesOnce(t *testing.T) {
	kv := &blockingKV{entered: make(chan struct{}), release: make(chan struct{})}
	s := New(kv, nil, testLogger())
	s.SetVolume(11)

	done := make(chan struct{})
	go func() {
		s.MaybeFlush()
		close(done)
	}()
	<-kv.entered

	s.MaybeFlush()
	close(kv.release)
	<-done

	kv.mu.Lock()
	defer kv.mu.Unlock()
	if len(kv.sets) != 1 || kv.sets[0] != VolumeKey || kv.commits != 1 {
		t.Errorf("sets = %v, commits = %d; want [vol], 1", kv.sets, kv.commits)
	}
}

func TestConcurrentBrightnessMatchesDisplay(t *testing.T) {
	var mu sync.Mutex
	var shown uint8
	s := New(newCountingKV(), func(b uint8) {
		mu.Lock()
		shown = b
		mu.Unlock()
		time.Sleep(time.Microsecond)
	}, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(b uint8) {
			defer wg.Done()
			s.SetBrightness(b)
		}(uint8(i))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if shown != s.Brightness() {
		t.Errorf("display shows %d, live brightness is %d", shown, s.Brightness())
	}
}
