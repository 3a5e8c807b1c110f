package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"mirror/internal/audio/vad"
)

// ErrNoSpeech is returned when nobody started talking before the start
// timeout.
var ErrNoSpeech = errors.New("no speech before timeout")

// Recorder captures one phrase at a time from the default input device.
type Recorder struct {
	cfg vad.Config

	mu sync.Mutex
}

func NewRecorder(cfg vad.Config) *Recorder {
	return &Recorder{cfg: vad.New(cfg).Config()}
}

func (r *Recorder) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	return nil
}

func (r *Recorder) Close() {
	_ = portaudio.Terminate()
}

// Record blocks until one phrase has been spoken, the start timeout
// elapses (ErrNoSpeech) or ctx is cancelled.
func (r *Recorder) Record(ctx context.Context) ([]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	det := vad.New(r.cfg)
	buf := make([]float32, r.cfg.FrameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.cfg.SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	defer stream.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read stream: %w", err)
		}

		switch det.Push(buf) {
		case vad.TimedOut:
			return nil, ErrNoSpeech
		case vad.Done:
			return det.Samples(), nil
		}
	}
}

// SampleRate of the recorded phrases.
func (r *Recorder) SampleRate() int {
	return r.cfg.SampleRate
}
