package powerdown

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"handheld-hal/internal/hardware"
	"handheld-hal/internal/logger"
)

// recorder collects the collaborator calls of one run in order.
type recorder struct {
	calls []string
}

func (r *recorder) add(c string) { r.calls = append(r.calls, c) }

func (r *recorder) joined() string { return strings.Join(r.calls, ",") }

type fakeDisplay struct {
	rec        *recorder
	w, h       int
	frames     [][]uint16
	origins    [][2]int
	blitErr    error
	poweredOff bool
}

func (d *fakeDisplay) Size() (int, int) { return d.w, d.h }

func (d *fakeDisplay) Blit(x, y, w, h int, pixels []uint16) error {
	if d.blitErr != nil {
		return d.blitErr
	}
	d.frames = append(d.frames, append([]uint16(nil), pixels[:w*h]...))
	d.origins = append(d.origins, [2]int{x, y})
	return nil
}

func (d *fakeDisplay) PowerOff() error {
	d.rec.add("display-off")
	d.poweredOff = true
	return nil
}

type fakeFlag bool

func (f fakeFlag) KeyLock() bool { return bool(f) }

type fakeRegister struct{ rec *recorder }

func (r fakeRegister) SetLockMarker() { r.rec.add("lock") }

type fakeAudio struct{ rec *recorder }

func (a fakeAudio) Mute(on bool) error {
	if on {
		a.rec.add("mute")
	}
	return nil
}

// scriptedPower reports pressed for the first n reads.
type scriptedPower struct {
	rec   *recorder
	n     int
	reads int
}

func (p *scriptedPower) PowerPressed() (bool, error) {
	p.reads++
	return p.reads <= p.n, nil
}

type fakePlatform struct {
	rec   *recorder
	line  hardware.LineMapping
	level int
	err   error
}

func (p *fakePlatform) ArmWakeOnLine(line hardware.LineMapping, level int) error {
	p.rec.add("arm")
	p.line, p.level = line, level
	return nil
}

func (p *fakePlatform) EnterLowPower() error {
	p.rec.add("sleep")
	return p.err
}

type harness struct {
	rec      *recorder
	display  *fakeDisplay
	power    *scriptedPower
	platform *fakePlatform
	sleeps   []time.Duration
	seq      *Sequencer
}

func newHarness(locked bool) *harness {
	rec := &recorder{}
	h := &harness{
		rec:      rec,
		display:  &fakeDisplay{rec: rec, w: 240, h: 320},
		power:    &scriptedPower{rec: rec},
		platform: &fakePlatform{rec: rec},
	}
	deps := Deps{
		Display:  h.display,
		Flag:     fakeFlag(locked),
		Register: fakeRegister{rec: rec},
		Audio:    fakeAudio{rec: rec},
		Power:    h.power,
		Platform: h.platform,
		WakeLine: hardware.PowerLine,
	}
	h.seq = New(deps, hardware.ScreenWidth, hardware.ScreenHeight, DefaultConfig(), logger.NewLogger(nil, logger.LogLevelError))
	h.seq.sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }
	return h
}

func TestRunOrder(t *testing.T) {
	h := newHarness(true)
	var stages []Stage
	h.seq.OnStage(func(s Stage) { stages = append(stages, s) })

	err := h.seq.Run()
	if !errors.Is(err, ErrSleepReturned) {
		t.Fatalf("Run() = %v, want ErrSleepReturned", err)
	}

	if got, want := h.rec.joined(), "lock,mute,display-off,arm,sleep"; got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
	want := []Stage{StageStart, StageAnimate, StagePersistLock, StageMute, StageDisplayOff, StagePlatformSleep}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, stages[i], want[i])
		}
	}
	if h.platform.line != hardware.PowerLine || h.platform.level != 1 {
		t.Errorf("armed %+v level %d", h.platform.line, h.platform.level)
	}
}

func TestRunWithoutLock(t *testing.T) {
	h := newHarness(false)
	h.seq.Run()
	if got, want := h.rec.joined(), "mute,display-off,arm,sleep"; got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
}

func TestAnimationFrames(t *testing.T) {
	h := newHarness(false)
	h.seq.Run()

	want := hardware.ScreenHeight/2 - 1
	if len(h.display.frames) != want {
		t.Fatalf("frames = %d, want %d", len(h.display.frames), want)
	}
	for _, o := range h.display.origins {
		if o != [2]int{80, 128} {
			t.Fatalf("blit origin = %v, want [80 128]", o)
		}
	}

	frameDelays := 0
	for _, d := range h.sleeps {
		if d == DefaultConfig().FrameDelay {
			frameDelays++
		}
	}
	if frameDelays != want {
		t.Errorf("frame delays = %d, want %d", frameDelays, want)
	}

	first := h.display.frames[0]
	w := hardware.ScreenWidth
	if first[0] != 0 {
		t.Errorf("row 0 = %#x, want black", first[0])
	}
	if got, want := first[1*w], RGB565(12, 12, 12); got != want {
		t.Errorf("row 1 = %#x, want %#x", got, want)
	}
	if got := first[(hardware.ScreenHeight-1)*w+w-1]; got != RGB565(12, 12, 12) {
		t.Errorf("last row = %#x", got)
	}
}

func TestDrawFrameBrightensAndShrinks(t *testing.T) {
	w, ht := 8, 10
	fb := make([]uint16, w*ht)
	for i := range fb {
		fb[i] = 0xFFFF
	}
	DrawFrame(fb, w, ht, 3)

	col := RGB565(20, 20, 20)
	for y := 0; y < ht; y++ {
		want := uint16(0)
		if y >= 3 && y <= 7 {
			want = col
		}
		for x := 0; x < w; x++ {
			if fb[y*w+x] != want {
				t.Fatalf("pixel (%d,%d) = %#x, want %#x", x, y, fb[y*w+x], want)
			}
		}
	}
}

func TestRGB565(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    uint16
	}{
		{0, 0, 0, 0x0000},
		{255, 255, 255, 0xFFFF},
		{255, 0, 0, 0xF800},
		{0, 255, 0, 0x07E0},
		{0, 0, 255, 0x001F},
	}
	for _, tt := range tests {
		if got := RGB565(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("RGB565(%d,%d,%d) = %#04x, want %#04x", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}

func TestMissingDisplaySkipsAnimation(t *testing.T) {
	h := newHarness(true)
	h.seq.deps.Display = nil
	h.seq.Run()
	if got, want := h.rec.joined(), "lock,mute,arm,sleep"; got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
}

func TestBlitFailureStillShutsDown(t *testing.T) {
	h := newHarness(false)
	h.display.blitErr = errors.New("spi timeout")
	h.seq.Run()
	if got, want := h.rec.joined(), "mute,display-off,arm,sleep"; got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
}

func TestReusesFrame(t *testing.T) {
	h := newHarness(false)
	shared := make([]uint16, hardware.ScreenWidth*hardware.ScreenHeight)
	h.seq.deps.Frame = func() []uint16 { return shared }
	h.seq.Run()
	last := RGB565(uint8((hardware.ScreenHeight/2-1)*4+8), uint8((hardware.ScreenHeight/2-1)*4+8), uint8((hardware.ScreenHeight/2-1)*4+8))
	if shared[(hardware.ScreenHeight/2)*hardware.ScreenWidth] != last {
		t.Error("shared frame was not drawn into")
	}
}

func TestWaitsForPowerRelease(t *testing.T) {
	h := newHarness(false)
	h.power.n = 3
	h.seq.Run()

	if h.power.reads != 4 {
		t.Errorf("power reads = %d, want 4", h.power.reads)
	}
	cfg := DefaultConfig()
	var polls int
	for _, d := range h.sleeps {
		if d == cfg.ReleasePoll {
			polls++
		}
	}
	if polls != 3 {
		t.Errorf("release polls = %d, want 3", polls)
	}
	if h.sleeps[len(h.sleeps)-1] != cfg.ReleaseSettle {
		t.Errorf("last delay = %v, want settle %v", h.sleeps[len(h.sleeps)-1], cfg.ReleaseSettle)
	}
}

func TestDisplayLockHeldDuringAnimation(t *testing.T) {
	h := newHarness(false)
	var mu sync.Mutex
	h.seq.deps.DisplayLock = &mu

	var heldDuringBlit bool
	h.seq.OnStage(func(s Stage) {
		if s == StageMute {
			heldDuringBlit = !mu.TryLock()
			if !heldDuringBlit {
				mu.Unlock()
			}
		}
	})
	h.seq.Run()

	if heldDuringBlit {
		t.Error("display lock still held after animation")
	}
	if !mu.TryLock() {
		t.Error("display lock leaked")
	}
}

func TestBusyDisplayLockTimesOut(t *testing.T) {
	h := newHarness(false)
	var mu sync.Mutex
	mu.Lock()
	h.seq.deps.DisplayLock = &mu
	h.seq.cfg.LockTimeout = 5 * time.Millisecond

	h.seq.Run()
	if len(h.display.frames) != hardware.ScreenHeight/2-1 {
		t.Errorf("frames = %d with busy lock", len(h.display.frames))
	}
}

func TestPlatformError(t *testing.T) {
	h := newHarness(false)
	h.platform.err = errors.New("EPERM")
	err := h.seq.Run()
	if !errors.Is(err, ErrSleepReturned) || !strings.Contains(err.Error(), "EPERM") {
		t.Errorf("Run() = %v", err)
	}
}
