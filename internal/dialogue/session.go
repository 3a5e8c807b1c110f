package dialogue

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mirror/internal/assistant"
	"mirror/internal/history"
	"mirror/internal/nlu"
)

// ErrPersistence is returned by Step when the outfit history could not be
// read or written. The session has already apologised and stays active.
var ErrPersistence = assistant.ErrPersistence

const (
	LineResume        = "I knew you'd come back. What now?"
	LinePause         = "Fine! I'm muting myself. Say 'resume' if you miss me."
	LineFarewell      = "Sleep well, drama queen."
	LineSaveStart     = "Hold still, I'm taking a picture of your outfit."
	LineCaptureFailed = "I couldn't take the picture. Try again later."
	LineNamePrompt    = "What should I call this outfit?"
	LineNotSaved      = "No name, no save. Outfit not saved."
	LineNoHistory     = "You haven't saved any outfits yet. Fresh start!"
	LineShowingLast   = "Pulling up your last outfit."
	LineRepeated      = "You just wore that this week. Let's pick something else."
	LineApology       = "Sorry, I couldn't reach your outfit history. Try again in a bit."
)

// presentTimeout bounds a detached show-last-outfit presentation.
const presentTimeout = 30 * time.Second

type Listener interface {
	// Listen blocks for one utterance and returns "" on timeout or
	// unintelligible audio.
	Listen(ctx context.Context) string
}

type Speaker interface {
	Say(ctx context.Context, text string)
}

type Assistant interface {
	SuggestOutfit(ctx context.Context) (assistant.Suggestion, error)
	WeatherInfo(ctx context.Context) assistant.WeatherReport
	Capture(ctx context.Context) (string, error)
	SaveNamed(ctx context.Context, name, imageRef string) (history.Entry, error)
	History(ctx context.Context) ([]history.Entry, error)
	LastOutfit(ctx context.Context) (history.Entry, error)
	Chat(ctx context.Context, utterance string) string
}

type Presenter interface {
	Present(ctx context.Context, e history.Entry) error
}

type Toggle int

const (
	ToggleNone Toggle = iota
	TogglePause
	ToggleResume
)

func (t Toggle) String() string {
	switch t {
	case TogglePause:
		return "pause"
	case ToggleResume:
		return "resume"
	default:
		return "none"
	}
}

// Outcome is the result of one step. Once Continue is false the session
// is over.
type Outcome struct {
	Continue bool
	Toggle   Toggle
}

// Session is the voice dialogue state machine.
type Session struct {
	listener  Listener
	speaker   Speaker
	assistant Assistant
	presenter Presenter

	paused atomic.Bool
	bg     sync.WaitGroup
}

func New(l Listener, s Speaker, a Assistant, p Presenter) *Session {
	return &Session{listener: l, speaker: s, assistant: a, presenter: p}
}

// Paused may be read from any goroutine.
func (s *Session) Paused() bool {
	return s.paused.Load()
}

// Run steps the session until it terminates or ctx is cancelled.
// Persistence errors are logged; the session keeps going.
func (s *Session) Run(ctx context.Context) error {
	log.Info("Dialogue started")
	defer log.Info("Dialogue stopped")

	for ctx.Err() == nil {
		out, err := s.Step(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error("Dialogue step failed", "err", err)
		}
		if !out.Continue {
			return nil
		}
	}
	return nil
}

// Step captures one utterance and acts on it.
func (s *Session) Step(ctx context.Context) (Outcome, error) {
	text := strings.ToLower(strings.TrimSpace(s.listener.Listen(ctx)))
	if text == "" {
		return Outcome{Continue: true}, nil
	}

	intent := nlu.Route(text, s.paused.Load())
	log.Info("Routed utterance", "text", text, "intent", intent)

	return s.dispatch(ctx, intent, text)
}

func (s *Session) dispatch(ctx context.Context, intent nlu.Intent, text string) (Outcome, error) {
	keep := Outcome{Continue: true}

	switch intent {
	case nlu.Ignored:
		return keep, nil

	case nlu.Resume:
		s.say(ctx, LineResume)
		s.paused.Store(false)
		return Outcome{Continue: true, Toggle: ToggleResume}, nil

	case nlu.Pause:
		s.say(ctx, LinePause)
		s.paused.Store(true)
		return Outcome{Continue: true, Toggle: TogglePause}, nil

	case nlu.Terminate:
		s.say(ctx, LineFarewell)
		return Outcome{Continue: false}, nil

	case nlu.SaveOutfitInteractive:
		return keep, s.apologiseOn(ctx, s.saveOutfit(ctx))

	case nlu.ShowHistorySummary:
		return keep, s.apologiseOn(ctx, s.showHistory(ctx))

	case nlu.ShowLastOutfitAsync:
		s.showLastAsync(ctx)
		s.say(ctx, LineShowingLast)
		return keep, nil

	case nlu.SuggestOutfit:
		return keep, s.apologiseOn(ctx, s.suggest(ctx))

	case nlu.ReportWeather:
		s.say(ctx, s.assistant.WeatherInfo(ctx).Sentence())
		return keep, nil

	default:
		s.say(ctx, s.assistant.Chat(ctx, text))
		return keep, nil
	}
}

type saveState int

const (
	awaitingCapture saveState = iota
	awaitingName
)

// saveOutfit runs the two-state save exchange: take a snapshot, then
// listen once more for the name.
func (s *Session) saveOutfit(ctx context.Context) error {
	var image string
	state := awaitingCapture

	for {
		switch state {
		case awaitingCapture:
			s.say(ctx, LineSaveStart)
			path, err := s.assistant.Capture(ctx)
			if err != nil {
				log.Warn("Outfit capture failed", "err", err)
				s.say(ctx, LineCaptureFailed)
				return nil
			}
			image = path
			s.say(ctx, LineNamePrompt)
			state = awaitingName

		case awaitingName:
			name := strings.TrimRight(strings.TrimSpace(s.listener.Listen(ctx)), ".,!? ")
			if name == "" {
				s.say(ctx, LineNotSaved)
				return nil
			}
			e, err := s.assistant.SaveNamed(ctx, name, image)
			if err != nil {
				return fmt.Errorf("save outfit: %w", err)
			}
			s.say(ctx, fmt.Sprintf("Saved your outfit as %s.", e.Name))
			return nil
		}
	}
}

func (s *Session) showHistory(ctx context.Context) error {
	entries, err := s.assistant.History(ctx)
	if err != nil {
		return fmt.Errorf("show history: %w", err)
	}
	if len(entries) == 0 {
		s.say(ctx, LineNoHistory)
		return nil
	}
	s.say(ctx, "Your recent outfits: "+strings.Join(history.Summary(entries), "; ")+".")
	return nil
}

func (s *Session) suggest(ctx context.Context) error {
	sg, err := s.assistant.SuggestOutfit(ctx)
	if err != nil {
		return fmt.Errorf("suggest outfit: %w", err)
	}
	if sg.Repeated {
		s.say(ctx, LineRepeated)
		return nil
	}
	s.say(ctx, sg.Text)
	return nil
}

// showLastAsync presents the latest outfit in the background. The session
// never waits for it and never hears about its result.
func (s *Session) showLastAsync(ctx context.Context) {
	if s.presenter == nil {
		log.Warn("No presenter configured")
		return
	}

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), presentTimeout)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer cancel()

		e, err := s.assistant.LastOutfit(bgCtx)
		if err != nil {
			log.Warn("Nothing to present", "err", err)
			return
		}
		if err := s.presenter.Present(bgCtx, e); err != nil {
			log.Warn("Outfit presentation failed", "id", e.ID, "err", err)
		}
	}()
}

// Wait blocks until background presentations have finished.
func (s *Session) Wait() {
	s.bg.Wait()
}

func (s *Session) apologiseOn(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) {
		s.say(ctx, LineApology)
	}
	return err
}

func (s *Session) say(ctx context.Context, text string) {
	s.speaker.Say(ctx, text)
}
