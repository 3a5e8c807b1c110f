package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mirror/internal/mood"
)

type recordingSynth struct {
	mu      sync.Mutex
	spoken  []string
	err     error
	busy    atomic.Int32
	overlap atomic.Bool
}

func (s *recordingSynth) Speak(_ context.Context, text string) error {
	if s.busy.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.busy.Add(-1)
	time.Sleep(2 * time.Millisecond)

	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	return s.err
}

type recordingDucker struct{ events []string }

func (d *recordingDucker) Duck(context.Context) error {
	d.events = append(d.events, "duck")
	return errors.New("pactl missing")
}

func (d *recordingDucker) Restore(context.Context) error {
	d.events = append(d.events, "restore")
	return nil
}

type subtitles struct{ lines []string }

func (s *subtitles) PublishSubtitle(text string) { s.lines = append(s.lines, text) }

func TestSay_RecordsAndPublishes(t *testing.T) {
	synth := &recordingSynth{}
	moods := mood.NewRegister()
	duck := &recordingDucker{}
	subs := &subtitles{}
	v := New(synth, moods, duck, subs)

	v.Say(context.Background(), "  You look happy today!  ")

	require.Equal(t, []string{"You look happy today!"}, synth.spoken)
	require.Equal(t, "You look happy today!", moods.Response())
	require.Equal(t, []string{"You look happy today!"}, subs.lines)
	require.Equal(t, []string{"duck", "restore"}, duck.events)
}

func TestSay_SwallowsSynthErrors(t *testing.T) {
	synth := &recordingSynth{err: errors.New("no audio device")}
	moods := mood.NewRegister()
	v := New(synth, moods, nil, nil)

	v.Say(context.Background(), "hello")
	require.Equal(t, "hello", moods.Response())

	v.Say(context.Background(), "   ")
	require.Len(t, synth.spoken, 1)
}

func TestSay_Serialised(t *testing.T) {
	synth := &recordingSynth{}
	v := New(synth, mood.NewRegister(), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Say(context.Background(), "line")
		}()
	}
	wg.Wait()

	require.Len(t, synth.spoken, 8)
	require.False(t, synth.overlap.Load())
}
