// Package vad segments a microphone stream into one spoken phrase using
// frame energy.
package vad

import (
	"math"
	"time"
)

type State int

const (
	Waiting State = iota
	Speaking
	Done
	TimedOut
)

type Config struct {
	SampleRate int
	FrameSize  int
	// Threshold is the RMS level above which a frame counts as speech.
	Threshold float64
	// Hangover is how much trailing silence ends a phrase.
	Hangover time.Duration
	// StartTimeout is how long to wait for speech to begin.
	StartTimeout time.Duration
	// PhraseLimit caps a phrase once speech has begun.
	PhraseLimit time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		FrameSize:    320, // 20ms
		Threshold:    0.015,
		Hangover:     600 * time.Millisecond,
		StartTimeout: 5 * time.Second,
		PhraseLimit:  6 * time.Second,
	}
}

// Detector consumes fixed-size frames and reports when a phrase is complete.
type Detector struct {
	frameDur time.Duration
	cfg      Config

	state   State
	waited  time.Duration
	spoken  time.Duration
	silence time.Duration
	out     []float32
}

func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = def.FrameSize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Hangover <= 0 {
		cfg.Hangover = def.Hangover
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = def.StartTimeout
	}
	if cfg.PhraseLimit <= 0 {
		cfg.PhraseLimit = def.PhraseLimit
	}

	return &Detector{
		cfg:      cfg,
		frameDur: time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate),
		out:      make([]float32, 0, cfg.SampleRate*3),
	}
}

func (d *Detector) Config() Config { return d.cfg }

// Push feeds one frame and returns the new state. Frames pushed after
// Done or TimedOut are ignored.
func (d *Detector) Push(frame []float32) State {
	if d.state == Done || d.state == TimedOut {
		return d.state
	}

	loud := RMS(frame) > d.cfg.Threshold

	if d.state == Waiting {
		if !loud {
			d.waited += d.frameDur
			if d.waited >= d.cfg.StartTimeout {
				d.state = TimedOut
			}
			return d.state
		}
		d.state = Speaking
	}

	d.out = append(d.out, frame...)
	d.spoken += d.frameDur

	if loud {
		d.silence = 0
	} else {
		d.silence += d.frameDur
	}

	if d.silence >= d.cfg.Hangover || d.spoken >= d.cfg.PhraseLimit {
		d.state = Done
	}
	return d.state
}

func (d *Detector) State() State { return d.state }

// Samples returns the phrase captured so far.
func (d *Detector) Samples() []float32 { return d.out }

func RMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
