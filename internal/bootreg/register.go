// Package bootreg multiplexes cross-boot signaling onto the single
// persistent hardware word that survives the device's power-down mode.
//
// Encodings, selected by the top byte:
//
//	0x00000000  no pending request; the loader shows the chooser
//	0xA5....id  boot application id next
//	0xA6xxxxxx  input locked at next wake; the low 24 bits are preserved
//
// Any other value is opaque and is left untouched unless overwritten.
package bootreg

import (
	"sync"
	"sync/atomic"
)

const (
	TagPendingApp uint32 = 0xA5
	TagLock       uint32 = 0xA6

	tagShift    = 24
	tagMask     = 0xFF000000
	payloadMask = 0x00FFFFFF

	// NoPendingApp is returned by PendingApp when no request is stored.
	NoPendingApp = -1

	// Unset is what the word reads as after the always-on domain lost
	// power. It is distinct from the all-zero "no request" encoding.
	Unset uint32 = 0xFFFFFFFF
)

// Word is the raw persistent register.
type Word interface {
	Load() uint32
	Store(uint32)
}

// Register is the only component allowed to touch the raw word.
type Register struct {
	word   Word
	bootup uint32
	mu     sync.Mutex
}

// New wraps w and records its value at construction as the boot-up value.
func New(w Word) *Register {
	return &Register{
		word:   w,
		bootup: w.Load(),
	}
}

// SetPendingApp requests that the loader boot id next. Ids outside 0..255
// clear any pending request.
func (r *Register) SetPendingApp(id int) {
	if id < 0 || id > 255 {
		r.word.Store(0)
		return
	}
	r.word.Store(TagPendingApp<<tagShift | uint32(id))
}

// PendingApp returns the requested application id, or NoPendingApp.
func (r *Register) PendingApp() int {
	v := r.word.Load()
	if v&tagMask != TagPendingApp<<tagShift {
		return NoPendingApp
	}
	return int(v & 0xFF)
}

// SetLockMarker replaces the tag byte with the lock tag and keeps the
// payload bits.
func (r *Register) SetLockMarker() {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.word.Load()
	r.word.Store(v&payloadMask | TagLock<<tagShift)
}

// Locked reports whether the lock marker is present.
func (r *Register) Locked() bool {
	return r.word.Load()&tagMask == TagLock<<tagShift
}

func (r *Register) SetRaw(v uint32) {
	r.word.Store(v)
}

func (r *Register) Raw() uint32 {
	return r.word.Load()
}

// BootupValue is the word as it was when the register was opened, for
// boot-cause diagnostics.
func (r *Register) BootupValue() uint32 {
	return r.bootup
}

// MemoryWord is a Word held in process memory. It starts out Unset.
type MemoryWord struct {
	v atomic.Uint32
}

func NewMemoryWord() *MemoryWord {
	w := &MemoryWord{}
	w.v.Store(Unset)
	return w
}

func (w *MemoryWord) Load() uint32   { return w.v.Load() }
func (w *MemoryWord) Store(v uint32) { w.v.Store(v) }
