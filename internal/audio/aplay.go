package audio

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// AplaySink streams frames into an aplay child process. Writes block on
// the pipe while aplay's ring buffer is full.
type AplaySink struct {
	device string
	mu     sync.Mutex
	cmd    *exec.Cmd
	pipe   io.WriteCloser
}

func NewAplaySink(device string) *AplaySink {
	return &AplaySink{device: device}
}

func (s *AplaySink) Open(rate, chunkBytes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("already streaming")
	}

	period := chunkBytes / FrameBytes
	cmd := exec.Command("aplay", "-q", "-D", s.device,
		"-t", "raw", "-f", "U16_LE", "-c", "2", "-r", strconv.Itoa(rate),
		"--period-size", strconv.Itoa(period),
		"--buffer-size", strconv.Itoa(period*BufferCount))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start aplay: %w", err)
	}

	s.cmd = cmd
	s.pipe = stdin
	return nil
}

func (s *AplaySink) Write(p []byte) error {
	s.mu.Lock()
	pipe := s.pipe
	s.mu.Unlock()

	if pipe == nil {
		return fmt.Errorf("stream closed")
	}
	_, err := pipe.Write(p)
	return err
}

func (s *AplaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipe != nil {
		s.pipe.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.cmd = nil
	s.pipe = nil
	return nil
}

// LineWriter drives a named output line.
type LineWriter interface {
	Write(name string, value bool) error
}

// AmpStage switches the speaker amplifier through its enable line and
// waits for it to settle.
type AmpStage struct {
	lines  LineWriter
	name   string
	settle time.Duration
}

func NewAmpStage(lines LineWriter, name string) *AmpStage {
	return &AmpStage{lines: lines, name: name, settle: 20 * time.Millisecond}
}

func (a *AmpStage) SetEnabled(on bool) error {
	if err := a.lines.Write(a.name, on); err != nil {
		return err
	}
	time.Sleep(a.settle)
	return nil
}
