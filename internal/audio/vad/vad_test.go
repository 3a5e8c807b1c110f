package vad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func frame(level float32) []float32 {
	f := make([]float32, 320)
	for i := range f {
		f[i] = level
	}
	return f
}

func push(d *Detector, level float32, n int) State {
	var st State
	for i := 0; i < n; i++ {
		st = d.Push(frame(level))
	}
	return st
}

func TestDetector_TimesOutWithoutSpeech(t *testing.T) {
	d := New(Config{StartTimeout: time.Second})

	require.Equal(t, Waiting, push(d, 0, 49))
	require.Equal(t, TimedOut, push(d, 0, 1))
	require.Empty(t, d.Samples())
	require.Equal(t, TimedOut, d.Push(frame(0.5)))
}

func TestDetector_EndsOnTrailingSilence(t *testing.T) {
	d := New(Config{Hangover: 100 * time.Millisecond})

	require.Equal(t, Waiting, push(d, 0, 10))
	require.Equal(t, Speaking, push(d, 0.2, 20))
	require.Equal(t, Speaking, push(d, 0, 4))
	require.Equal(t, Done, push(d, 0, 1))
	require.Len(t, d.Samples(), 25*320)
}

func TestDetector_SpeechResetsSilence(t *testing.T) {
	d := New(Config{Hangover: 100 * time.Millisecond})

	push(d, 0.2, 5)
	push(d, 0, 4)
	require.Equal(t, Speaking, push(d, 0.2, 1))
	require.Equal(t, Speaking, push(d, 0, 4))
}

func TestDetector_PhraseLimit(t *testing.T) {
	d := New(Config{PhraseLimit: time.Second})

	require.Equal(t, Speaking, push(d, 0.3, 49))
	require.Equal(t, Done, push(d, 0.3, 1))
	require.Len(t, d.Samples(), 50*320)
}

func TestDefaults(t *testing.T) {
	cfg := New(Config{}).Config()
	require.Equal(t, DefaultConfig(), cfg)
	require.InDelta(t, 0.5, RMS(frame(0.5)), 1e-6)
	require.Zero(t, RMS(nil))
}
