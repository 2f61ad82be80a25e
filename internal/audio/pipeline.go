// Package audio scales unsigned 8-bit samples by the volume setting and
// streams them to a fixed-rate sink.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"handheld-hal/internal/logger"
)

const (
	// ChunkSamples bounds the samples converted per sink write.
	ChunkSamples = 32
	// BufferCount is the number of sink buffers the configured size is split into.
	BufferCount = 4
	// FrameBytes is one stereo sink word.
	FrameBytes = 4
)

var ErrNotRunning = errors.New("audio pipeline not running")

// Sink accepts stereo frames at a fixed rate. Write blocks until the sink
// has room for all of p.
type Sink interface {
	Open(rate, chunkBytes int) error
	Write(p []byte) error
	Close() error
}

// OutputStage switches the analog output without touching the sink.
type OutputStage interface {
	SetEnabled(on bool) error
}

type VolumeSource interface {
	Volume() uint8
}

type Pipeline struct {
	sink    Sink
	stage   OutputStage
	volume  VolumeSource
	logger  *logger.Logger
	mu      sync.Mutex
	running bool

	// pushMu guards buf and keeps the chunks of one Push contiguous.
	pushMu sync.Mutex
	buf    [ChunkSamples * FrameBytes]byte
}

func New(sink Sink, stage OutputStage, volume VolumeSource, l *logger.Logger) *Pipeline {
	return &Pipeline{
		sink:   sink,
		stage:  stage,
		volume: volume,
		logger: l.WithTag("audio"),
	}
}

// Start opens the sink at rate with bufferSize bytes split over
// BufferCount buffers.
func (p *Pipeline) Start(rate, bufferSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	if err := p.sink.Open(rate, bufferSize/BufferCount); err != nil {
		return fmt.Errorf("failed to open audio sink: %w", err)
	}
	p.running = true
	p.logger.Infof("Sound started: %d Hz, %d byte buffer", rate, bufferSize)
	return nil
}

func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Mute disables or enables the output stage; the sink stays configured.
func (p *Pipeline) Mute(on bool) error {
	if p.stage == nil {
		return nil
	}
	return p.stage.SetEnabled(!on)
}

func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false
	if err := p.sink.Close(); err != nil {
		return fmt.Errorf("failed to close audio sink: %w", err)
	}
	p.logger.Infof("Sound stopped")
	return nil
}

// Scale applies volume to one sample centered at 128: the offset is scaled
// and shifted down before re-centering, then clamped.
func Scale(sample, volume uint8) uint8 {
	s := (int(sample) - 128) * int(volume)
	s = (s >> 8) + 128
	if s > 255 {
		s = 255
	}
	if s < 0 {
		s = 0
	}
	return uint8(s)
}

// frame duplicates s into the high byte of both 16-bit channel slots.
func frame(s uint8) uint32 {
	return uint32(s)<<8 | uint32(s)<<24
}

// Push streams samples to the sink in chunks of ChunkSamples. It blocks
// for as long as the sink is full and never drops samples. Concurrent
// calls are serialized.
func (p *Pipeline) Push(samples []byte) error {
	if !p.Running() {
		return ErrNotRunning
	}

	p.pushMu.Lock()
	defer p.pushMu.Unlock()

	vol := p.volume.Volume()
	for i := 0; i < len(samples); {
		n := len(samples) - i
		if n > ChunkSamples {
			n = ChunkSamples
		}
		for j := 0; j < n; j++ {
			binary.LittleEndian.PutUint32(p.buf[j*FrameBytes:], frame(Scale(samples[i+j], vol)))
		}
		if err := p.sink.Write(p.buf[:n*FrameBytes]); err != nil {
			return fmt.Errorf("audio sink write failed: %w", err)
		}
		i += n
	}
	return nil
}
