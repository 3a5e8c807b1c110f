package dialogue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mirror/internal/assistant"
	"mirror/internal/history"
	"mirror/internal/mood"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedListener struct {
	mu    sync.Mutex
	lines []string
}

func (l *scriptedListener) Listen(context.Context) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) == 0 {
		return ""
	}
	next := l.lines[0]
	l.lines = l.lines[1:]
	return next
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

type fakeWeather struct{}

func (fakeWeather) ResolveCity(context.Context) string { return "Porto" }
func (fakeWeather) Lookup(context.Context, string) string { return "clear, 21°C" }

type fakeGenerator struct {
	reply string
	down  bool
}

func (g fakeGenerator) Generate(context.Context, string, string) (string, bool) {
	return g.reply, !g.down
}

type fakeSnapshotter struct {
	path string
	err  error
}

func (s fakeSnapshotter) Capture(context.Context) (string, error) { return s.path, s.err }

type chanPresenter struct {
	release chan struct{}
	shown   chan history.Entry
}

func (p *chanPresenter) Present(ctx context.Context, e history.Entry) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.shown <- e
	return nil
}

type env struct {
	session  *Session
	listener *scriptedListener
	speaker  *recordingSpeaker
	store    *history.Store
	core     *assistant.Core
	now      time.Time
}

func newEnv(t *testing.T, reply string, snap assistant.Snapshotter, p Presenter) *env {
	t.Helper()
	return newEnvWith(t, fakeGenerator{reply: reply}, snap, p)
}

func newEnvWith(t *testing.T, gen assistant.Generator, snap assistant.Snapshotter, p Presenter) *env {
	t.Helper()
	e := &env{
		listener: &scriptedListener{},
		speaker:  &recordingSpeaker{},
		now:      time.Date(2026, 6, 1, 8, 30, 0, 0, time.Local),
	}
	clock := func() time.Time { return e.now }

	st, err := history.Open(filepath.Join(t.TempDir(), "outfits.db"), history.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	e.store = st

	e.core = assistant.New(st, fakeWeather{}, gen, snap, mood.NewRegister(), assistant.Config{Now: clock})
	e.session = New(e.listener, e.speaker, e.core, p)
	return e
}

func (e *env) say(lines ...string) {
	e.listener.mu.Lock()
	e.listener.lines = append(e.listener.lines, lines...)
	e.listener.mu.Unlock()
}

func (e *env) count(t *testing.T) int {
	t.Helper()
	entries, err := e.store.Recent(context.Background(), 100)
	require.NoError(t, err)
	return len(entries)
}

func TestStep_ByeTerminates(t *testing.T) {
	e := newEnv(t, "", nil, nil)
	e.say("Bye mirror, see you, what should I wear")

	out, err := e.session.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, Outcome{Continue: false, Toggle: ToggleNone}, out)
	require.Equal(t, []string{LineFarewell}, e.speaker.Lines())
}

func TestStep_EmptyUtteranceIsNoop(t *testing.T) {
	e := newEnv(t, "", nil, nil)

	out, err := e.session.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, Outcome{Continue: true}, out)
	require.Empty(t, e.speaker.Lines())
}

func TestStep_PauseIgnoreResume(t *testing.T) {
	e := newEnv(t, "chatty reply", nil, nil)
	ctx := context.Background()
	e.say("shut up", "what's the weather outfit", "okay resume please", "hello")

	out, err := e.session.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, Outcome{Continue: true, Toggle: TogglePause}, out)
	require.True(t, e.session.Paused())

	out, err = e.session.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, Outcome{Continue: true}, out)
	require.True(t, e.session.Paused())

	out, err = e.session.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, Outcome{Continue: true, Toggle: ToggleResume}, out)
	require.False(t, e.session.Paused())

	_, err = e.session.Step(ctx)
	require.NoError(t, err)

	require.Equal(t, []string{LinePause, LineResume, "chatty reply"}, e.speaker.Lines())
}

func TestStep_SaveOutfitInteractive(t *testing.T) {
	e := newEnv(t, "", fakeSnapshotter{path: "outfits/outfit_20260601_083000.jpg"}, nil)
	e.say("This is my outfit", "Denim Day")

	out, err := e.session.Step(context.Background())
	require.NoError(t, err)
	require.True(t, out.Continue)

	last, err := e.store.Last(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Denim Day", last.Name)
	require.Equal(t, "outfits/outfit_20260601_083000.jpg", last.ImagePath)
	require.Equal(t, 1, e.count(t))

	require.Equal(t, []string{
		LineSaveStart,
		LineNamePrompt,
		"Saved your outfit as Denim Day.",
	}, e.speaker.Lines())
}

func TestStep_SaveOutfitNameDropsTrailingPunctuation(t *testing.T) {
	e := newEnv(t, "Denim day", fakeSnapshotter{path: "outfits/x.jpg"}, nil)
	e.say("save my outfit", "Denim day.")

	_, err := e.session.Step(context.Background())
	require.NoError(t, err)

	last, err := e.store.Last(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Denim day", last.Name)
	require.Equal(t, "Saved your outfit as Denim day.", e.speaker.Lines()[2])

	e.say("suggest outfit")
	_, err = e.session.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, LineRepeated, e.speaker.Lines()[3])
	require.Equal(t, 1, e.count(t))
}

func TestStep_SaveOutfitPunctuationOnlyNameIsNotSaved(t *testing.T) {
	e := newEnv(t, "", fakeSnapshotter{path: "outfits/x.jpg"}, nil)
	e.say("save my outfit", " ... ")

	_, err := e.session.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, e.count(t))
	require.Equal(t, []string{LineSaveStart, LineNamePrompt, LineNotSaved}, e.speaker.Lines())
}

func TestStep_SaveOutfitWithoutName(t *testing.T) {
	e := newEnv(t, "", fakeSnapshotter{path: "outfits/x.jpg"}, nil)
	e.say("save my outfit")

	out, err := e.session.Step(context.Background())
	require.NoError(t, err)
	require.True(t, out.Continue)
	require.Equal(t, 0, e.count(t))
	require.Equal(t, []string{LineSaveStart, LineNamePrompt, LineNotSaved}, e.speaker.Lines())
}

func TestStep_SaveOutfitCaptureFails(t *testing.T) {
	e := newEnv(t, "", fakeSnapshotter{err: errors.New("camera busy")}, nil)
	e.say("save my outfit", "never consumed")

	out, err := e.session.Step(context.Background())
	require.NoError(t, err)
	require.True(t, out.Continue)
	require.Equal(t, []string{LineSaveStart, LineCaptureFailed}, e.speaker.Lines())
	require.Equal(t, []string{"never consumed"}, e.listener.lines)
}

func TestStep_SuggestRefusesRecentRepeat(t *testing.T) {
	e := newEnv(t, "Red hoodie and joggers", nil, nil)
	ctx := context.Background()

	now := e.now
	e.now = now.Add(-2 * 24 * time.Hour)
	_, err := e.store.Append(ctx, history.Entry{Name: "red HOODIE and joggers"})
	require.NoError(t, err)
	e.now = now

	e.say("what should i wear, what's the weather")
	out, err := e.session.Step(ctx)
	require.NoError(t, err)
	require.True(t, out.Continue)
	require.Equal(t, []string{LineRepeated}, e.speaker.Lines())
	require.Equal(t, 1, e.count(t))
}

func TestStep_SuggestSpeaksAndStores(t *testing.T) {
	e := newEnv(t, "Linen shirt, it's sunny", nil, nil)
	e.say("suggest outfit")

	_, err := e.session.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Linen shirt, it's sunny"}, e.speaker.Lines())
	require.Equal(t, 1, e.count(t))
}

func TestStep_SuggestFallbackIsSpokenNotStored(t *testing.T) {
	fallback := "I'm having a dumb moment. Try again."
	e := newEnvWith(t, fakeGenerator{reply: fallback, down: true}, nil, nil)
	ctx := context.Background()
	e.say("suggest outfit", "what should i wear")

	for range 2 {
		out, err := e.session.Step(ctx)
		require.NoError(t, err)
		require.True(t, out.Continue)
	}
	require.Equal(t, []string{fallback, fallback}, e.speaker.Lines())
	require.Equal(t, 0, e.count(t))
}

func TestStep_WeatherAndHistory(t *testing.T) {
	e := newEnv(t, "", nil, nil)
	ctx := context.Background()
	e.say("weather please", "what did i wear")

	_, err := e.session.Step(ctx)
	require.NoError(t, err)
	_, err = e.session.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"The weather in Porto is clear, 21°C.", LineNoHistory}, e.speaker.Lines())

	_, err = e.store.Append(ctx, history.Entry{Name: "green parka"})
	require.NoError(t, err)
	e.say("show me past outfits")
	_, err = e.session.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, "Your recent outfits: 2026-06-01: green parka.", e.speaker.Lines()[2])
}

type brokenAssistant struct{ Assistant }

func (brokenAssistant) History(context.Context) ([]history.Entry, error) {
	return nil, errors.Join(ErrPersistence, errors.New("database is locked"))
}

func TestStep_PersistenceFailureApologises(t *testing.T) {
	l := &scriptedListener{lines: []string{"past outfits"}}
	spk := &recordingSpeaker{}
	s := New(l, spk, brokenAssistant{}, nil)

	out, err := s.Step(context.Background())
	require.ErrorIs(t, err, ErrPersistence)
	require.True(t, out.Continue)
	require.Equal(t, []string{LineApology}, spk.Lines())
}

func TestStep_ShowLastDoesNotBlock(t *testing.T) {
	p := &chanPresenter{release: make(chan struct{}), shown: make(chan history.Entry, 1)}
	e := newEnv(t, "", nil, p)
	ctx := context.Background()

	_, err := e.store.Append(ctx, history.Entry{Name: "denim day", ImagePath: "outfits/d.jpg"})
	require.NoError(t, err)

	e.say("show my outfit")
	out, err := e.session.Step(ctx)
	require.NoError(t, err)
	require.True(t, out.Continue)
	require.Equal(t, []string{LineShowingLast}, e.speaker.Lines())

	// The presentation is still parked on release; the step already returned.
	close(p.release)
	select {
	case shown := <-p.shown:
		require.Equal(t, "denim day", shown.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("presentation never ran")
	}
	e.session.Wait()
}

func TestRun_StopsOnFarewell(t *testing.T) {
	e := newEnv(t, "sure thing", nil, nil)
	e.say("", "hi there", "good night")

	require.NoError(t, e.session.Run(context.Background()))
	require.Equal(t, []string{"sure thing", LineFarewell}, e.speaker.Lines())
}

func TestRun_StopsOnCancel(t *testing.T) {
	e := newEnv(t, "", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, e.session.Run(ctx))
	require.Empty(t, e.speaker.Lines())
}
