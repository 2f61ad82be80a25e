package messaging

import (
	"context"
	"errors"
	"testing"

	"handheld-hal/internal/logger"
	"handheld-hal/internal/settings"

	"github.com/redis/go-redis/v9"
)

type fakeHashStore struct {
	hashes  map[string]map[string]string
	commits int
	getErr  error
	setErr  error
}

func newFakeHashStore() *fakeHashStore {
	return &fakeHashStore{hashes: make(map[string]map[string]string)}
}

func (f *fakeHashStore) HGet(ctx context.Context, key, field string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.hashes[key][field]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeHashStore) HSetAll(ctx context.Context, key string, fields map[string]string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.commits++
	if f.hashes[key] == nil {
		f.hashes[key] = make(map[string]string)
	}
	for k, v := range fields {
		f.hashes[key][k] = v
	}
	return nil
}

var _ settings.KV = (*Namespace)(nil)

func TestNamespaceMissingKeyIsAbsent(t *testing.T) {
	n := newNamespace(newFakeHashStore(), "nvs:hal")
	v, ok, err := n.GetU8("vol")
	if err != nil || ok || v != 0 {
		t.Errorf("GetU8() = %d, %v, %v; want absent", v, ok, err)
	}
}

func TestNamespaceStagesUntilCommit(t *testing.T) {
	store := newFakeHashStore()
	n := newNamespace(store, "nvs:hal")

	n.SetU8("vol", 200)
	n.SetU8("con", 50)
	if _, ok := store.hashes["nvs:hal"]["vol"]; ok {
		t.Fatal("set reached redis before commit")
	}
	if v, ok, _ := n.GetU8("vol"); !ok || v != 200 {
		t.Errorf("staged read = %d, %v", v, ok)
	}

	if err := n.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if store.commits != 1 {
		t.Errorf("commits = %d, want 1", store.commits)
	}
	if store.hashes["nvs:hal"]["vol"] != "200" || store.hashes["nvs:hal"]["con"] != "50" {
		t.Errorf("hash = %v", store.hashes["nvs:hal"])
	}

	n.Commit()
	if store.commits != 1 {
		t.Errorf("empty commit reached redis")
	}
}

func TestNamespaceCommitFailureKeepsStaged(t *testing.T) {
	store := newFakeHashStore()
	store.setErr = errors.New("READONLY")
	n := newNamespace(store, "nvs:hal")

	n.SetU8("kl", 1)
	if err := n.Commit(); err == nil {
		t.Fatal("commit error swallowed")
	}
	store.setErr = nil
	n.Commit()
	if store.hashes["nvs:hal"]["kl"] != "1" {
		t.Errorf("staged value lost after failed commit")
	}
}

func TestNamespaceBadValue(t *testing.T) {
	store := newFakeHashStore()
	store.hashes["nvs:hal"] = map[string]string{"vol": "loud"}
	n := newNamespace(store, "nvs:hal")
	if _, _, err := n.GetU8("vol"); err == nil {
		t.Error("expected parse error")
	}
}

func TestNamespaceReadError(t *testing.T) {
	store := newFakeHashStore()
	store.getErr = errors.New("connection refused")
	n := newNamespace(store, "nvs:hal")
	if _, _, err := n.GetU8("vol"); err == nil {
		t.Error("read error swallowed")
	}
}

func TestNamespaceWithSettingsStore(t *testing.T) {
	store := newFakeHashStore()
	n := newNamespace(store, "nvs:hal")
	s := settings.New(n, nil, logger.NewLogger(nil, logger.LogLevelError))

	if s.Volume() != settings.DefaultVolume {
		t.Errorf("volume = %d", s.Volume())
	}
	s.MaybeFlush()
	if store.hashes["nvs:hal"]["vol"] != "128" || store.hashes["nvs:hal"]["con"] != "100" {
		t.Errorf("defaults not persisted: %v", store.hashes["nvs:hal"])
	}
}

func newTestClient(cb Callbacks) *RedisClient {
	return NewRedisClient("127.0.0.1", 6379, logger.NewLogger(nil, logger.LogLevelError), cb)
}

func TestCommandHandlers(t *testing.T) {
	var volume, brightness uint8
	var power string
	app := -2
	r := newTestClient(Callbacks{
		VolumeCallback:     func(v uint8) error { volume = v; return nil },
		BrightnessCallback: func(v uint8) error { brightness = v; return nil },
		PowerCallback:      func(s string) error { power = s; return nil },
		AppCallback:        func(id int) error { app = id; return nil },
	})
	defer r.client.Close()

	if err := r.handleVolumeCommand("200"); err != nil || volume != 200 {
		t.Errorf("volume = %d, %v", volume, err)
	}
	if err := r.handleBrightnessCommand("7"); err != nil || brightness != 7 {
		t.Errorf("brightness = %d, %v", brightness, err)
	}
	if err := r.handlePowerCommand("chooser"); err != nil || power != "chooser" {
		t.Errorf("power = %q, %v", power, err)
	}
	if err := r.handleAppCommand("3"); err != nil || app != 3 {
		t.Errorf("app = %d, %v", app, err)
	}
}

func TestCommandHandlersRejectInvalid(t *testing.T) {
	called := false
	r := newTestClient(Callbacks{
		VolumeCallback: func(uint8) error { called = true; return nil },
		PowerCallback:  func(string) error { called = true; return nil },
		AppCallback:    func(int) error { called = true; return nil },
	})
	defer r.client.Close()

	for _, err := range []error{
		r.handleVolumeCommand("256"),
		r.handleVolumeCommand("-1"),
		r.handlePowerCommand("reboot"),
		r.handleAppCommand("x"),
	} {
		if err == nil {
			t.Error("invalid command accepted")
		}
	}
	if called {
		t.Error("callback invoked for invalid command")
	}
}

func TestCommandHandlersWithoutCallbacks(t *testing.T) {
	r := newTestClient(Callbacks{})
	defer r.client.Close()
	if err := r.handlePowerCommand("off"); err != nil {
		t.Errorf("handlePowerCommand() = %v", err)
	}
}
