package sensing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mirror/internal/mood"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCamera struct {
	mu    sync.Mutex
	calls int
	// failAfter makes every call past the first n fail; 0 means never.
	failAfter int
}

func (c *fakeCamera) Frame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failAfter > 0 && c.calls > c.failAfter {
		return nil, errors.New("device unplugged")
	}
	return []byte("frame"), nil
}

type scriptedClassifier struct {
	labels []string
	errs   []error
	i      int
}

func (s *scriptedClassifier) Classify(context.Context, []byte) (string, error) {
	i := s.i
	s.i++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i >= len(s.labels) {
		return s.labels[len(s.labels)-1], nil
	}
	return s.labels[i], nil
}

type echoGenerator struct {
	emotions []string
	down     bool
}

func (g *echoGenerator) Generate(_ context.Context, _ string, emotion string) (string, bool) {
	g.emotions = append(g.emotions, emotion)
	if g.down {
		return "I'm having a dumb moment. Try again.", false
	}
	return "reaction to " + emotion, true
}

type recordingSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSpeaker) Say(_ context.Context, text string) {
	s.mu.Lock()
	s.lines = append(s.lines, text)
	s.mu.Unlock()
}

func (s *recordingSpeaker) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

type recordingPublisher struct{ labels []string }

func (p *recordingPublisher) PublishEmotion(label string) { p.labels = append(p.labels, label) }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	loop  *Loop
	moods *mood.Register
	gen   *echoGenerator
	spk   *recordingSpeaker
	pub   *recordingPublisher
	clock *fakeClock
}

func newHarness(cam Camera, cls Classifier) *harness {
	h := &harness{
		moods: mood.NewRegister(),
		gen:   &echoGenerator{},
		spk:   &recordingSpeaker{},
		pub:   &recordingPublisher{},
		clock: &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	h.loop = New(cam, cls, h.moods, h.gen, h.spk, h.pub, Config{
		Cooldown: 30 * time.Second,
		Now:      h.clock.Now,
	})
	return h
}

func TestStep_ReactsToFirstChange(t *testing.T) {
	h := newHarness(&fakeCamera{}, &scriptedClassifier{labels: []string{"happy"}})

	require.NoError(t, h.loop.Step(context.Background()))
	require.Equal(t, "happy", h.moods.Emotion())
	require.Equal(t, []string{"reaction to happy"}, h.spk.Lines())
	require.Equal(t, []string{"happy"}, h.gen.emotions)
	require.Equal(t, []string{"happy"}, h.pub.labels)
}

func TestStep_NoReactionWhenGenerationFails(t *testing.T) {
	h := newHarness(&fakeCamera{}, &scriptedClassifier{labels: []string{"sad"}})
	h.gen.down = true

	require.NoError(t, h.loop.Step(context.Background()))
	require.Equal(t, "sad", h.moods.Emotion())
	require.Equal(t, []string{"sad"}, h.pub.labels)
	require.Equal(t, []string{"sad"}, h.gen.emotions)
	require.Empty(t, h.spk.Lines())
}

func TestStep_SameLabelIsQuiet(t *testing.T) {
	h := newHarness(&fakeCamera{}, &scriptedClassifier{labels: []string{"neutral", "neutral"}})

	require.NoError(t, h.loop.Step(context.Background()))
	require.NoError(t, h.loop.Step(context.Background()))
	require.Empty(t, h.spk.Lines())
	require.Equal(t, "neutral", h.moods.Emotion())
}

func TestStep_CooldownDebounces(t *testing.T) {
	h := newHarness(&fakeCamera{}, &scriptedClassifier{labels: []string{"happy", "sad", "sad", "angry"}})
	ctx := context.Background()

	require.NoError(t, h.loop.Step(ctx))
	require.Equal(t, []string{"reaction to happy"}, h.spk.Lines())

	h.clock.Advance(10 * time.Second)
	require.NoError(t, h.loop.Step(ctx))
	require.Equal(t, "happy", h.moods.Emotion(), "change inside cooldown is not recorded")
	require.Len(t, h.spk.Lines(), 1)

	// Exactly one cooldown later is still inside it.
	h.clock.Advance(20 * time.Second)
	require.NoError(t, h.loop.Step(ctx))
	require.Len(t, h.spk.Lines(), 1)

	h.clock.Advance(time.Second)
	require.NoError(t, h.loop.Step(ctx))
	require.Equal(t, "angry", h.moods.Emotion())
	require.Equal(t, []string{"reaction to happy", "reaction to angry"}, h.spk.Lines())
}

func TestStep_InferenceFailureSkipsCycle(t *testing.T) {
	h := newHarness(&fakeCamera{}, &scriptedClassifier{
		labels: []string{"", "sad"},
		errs:   []error{errors.New("no face")},
	})

	require.NoError(t, h.loop.Step(context.Background()))
	require.Empty(t, h.spk.Lines())
	require.Equal(t, mood.DefaultEmotion, h.moods.Emotion())

	require.NoError(t, h.loop.Step(context.Background()))
	require.Equal(t, "sad", h.moods.Emotion())
}

func TestRun_StopsOnAcquisitionFailure(t *testing.T) {
	cam := &fakeCamera{failAfter: 3}
	h := newHarness(cam, &scriptedClassifier{labels: []string{"neutral"}})

	err := h.loop.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "device unplugged")
	require.Equal(t, 4, cam.calls)
}

func TestRun_CancelIsClean(t *testing.T) {
	h := newHarness(&fakeCamera{}, &scriptedClassifier{labels: []string{"neutral"}})
	h.loop.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sensing loop did not stop")
	}
}

func TestDetect_RecordsWithoutSpeaking(t *testing.T) {
	h := newHarness(&fakeCamera{}, &scriptedClassifier{labels: []string{"fear", "fear"}})

	label, err := h.loop.Detect(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fear", label)
	require.Equal(t, "fear", h.moods.Emotion())
	require.Empty(t, h.spk.Lines())

	// The detected label is the baseline, so seeing it again is not a change.
	require.NoError(t, h.loop.Step(context.Background()))
	require.Empty(t, h.spk.Lines())
}

func TestDetect_AcquisitionFailure(t *testing.T) {
	h := newHarness(&fakeCamera{failAfter: 1, calls: 1}, &scriptedClassifier{labels: []string{"happy"}})

	_, err := h.loop.Detect(context.Background())
	require.Error(t, err)
	require.Equal(t, mood.DefaultEmotion, h.moods.Emotion())
}
