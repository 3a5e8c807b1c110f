package assistant

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"mirror/internal/history"
	"mirror/internal/mood"
)

var (
	// ErrPersistence wraps any failed read or write on the outfit history.
	ErrPersistence  = errors.New("outfit history unavailable")
	ErrCapture      = errors.New("snapshot capture failed")
	ErrEmptyHistory = errors.New("outfit history is empty")
	ErrNoImage      = errors.New("outfit has no image")
)

const (
	DefaultDedupWindow = 7 * 24 * time.Hour
	DefaultSummarySize = 5
)

type Store interface {
	Append(ctx context.Context, e history.Entry) (history.Entry, error)
	Recent(ctx context.Context, n int) ([]history.Entry, error)
	Last(ctx context.Context) (history.Entry, error)
	IsRecentlyUsed(ctx context.Context, name string, window time.Duration) (bool, error)
}

// Weather never fails: both calls substitute fallbacks.
type Weather interface {
	ResolveCity(ctx context.Context) string
	Lookup(ctx context.Context, city string) string
}

type Generator interface {
	// Generate reports ok=false when reply is a fallback line rather
	// than generated text.
	Generate(ctx context.Context, prompt, emotion string) (reply string, ok bool)
}

type Snapshotter interface {
	Capture(ctx context.Context) (string, error)
}

type Config struct {
	DedupWindow time.Duration
	SummarySize int
	Now         func() time.Time
}

// Core implements the operations shared by the voice dialogue and the
// REST front end.
type Core struct {
	store   Store
	weather Weather
	gen     Generator
	snap    Snapshotter
	moods   *mood.Register

	window      time.Duration
	summarySize int
	now         func() time.Time
}

func New(store Store, weather Weather, gen Generator, snap Snapshotter, moods *mood.Register, cfg Config) *Core {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.SummarySize <= 0 {
		cfg.SummarySize = DefaultSummarySize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Core{
		store:       store,
		weather:     weather,
		gen:         gen,
		snap:        snap,
		moods:       moods,
		window:      cfg.DedupWindow,
		summarySize: cfg.SummarySize,
		now:         cfg.Now,
	}
}

type Suggestion struct {
	Text    string
	City    string
	Weather string
	Emotion string
	// Repeated is set when Text names an outfit worn within the dedup
	// window; nothing was stored in that case.
	Repeated bool
	// Fallback is set when generation failed and Text is the fallback
	// line; nothing was checked or stored.
	Fallback bool
	Entry    history.Entry
	At       time.Time
}

// SuggestOutfit asks for an outfit matching the current mood and weather
// and records it unless it was worn recently.
func (c *Core) SuggestOutfit(ctx context.Context) (Suggestion, error) {
	city := c.weather.ResolveCity(ctx)
	conditions := c.weather.Lookup(ctx, city)
	emotion := c.moods.Emotion()

	s := Suggestion{City: city, Weather: conditions, Emotion: emotion, At: c.now()}
	var ok bool
	s.Text, ok = c.gen.Generate(ctx, suggestionPrompt(emotion, city, conditions), emotion)
	if !ok {
		s.Fallback = true
		return s, nil
	}

	used, err := c.store.IsRecentlyUsed(ctx, s.Text, c.window)
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if used {
		log.Info("Suggestion worn recently, not stored", "suggestion", s.Text)
		s.Repeated = true
		return s, nil
	}

	s.Entry, err = c.store.Append(ctx, history.Entry{
		Name:    s.Text,
		Weather: conditions,
		Emotion: emotion,
	})
	if err != nil {
		return s, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return s, nil
}

func suggestionPrompt(emotion, city, conditions string) string {
	return fmt.Sprintf(
		"You are a smart fashion assistant. The user is feeling %s. "+
			"The weather in %s is %s. "+
			"Suggest a stylish outfit that fits their mood and the current weather. Be fun!",
		emotion, city, conditions)
}

type WeatherReport struct {
	City       string
	Conditions string
	At         time.Time
}

func (r WeatherReport) Sentence() string {
	return fmt.Sprintf("The weather in %s is %s.", r.City, r.Conditions)
}

func (c *Core) WeatherInfo(ctx context.Context) WeatherReport {
	city := c.weather.ResolveCity(ctx)
	return WeatherReport{City: city, Conditions: c.weather.Lookup(ctx, city), At: c.now()}
}

// Capture takes an outfit snapshot and returns its path.
func (c *Core) Capture(ctx context.Context) (string, error) {
	if c.snap == nil {
		return "", fmt.Errorf("%w: no camera", ErrCapture)
	}
	path, err := c.snap.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCapture, err)
	}
	if path == "" {
		return "", ErrCapture
	}
	return path, nil
}

// SaveNamed appends an outfit with an already captured image. An empty
// name gets a generated label.
func (c *Core) SaveNamed(ctx context.Context, name, imageRef string) (history.Entry, error) {
	e, err := c.store.Append(ctx, history.Entry{
		Name:      strings.TrimSpace(name),
		ImagePath: imageRef,
		Emotion:   c.moods.Emotion(),
	})
	if err != nil {
		return history.Entry{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	log.Info("Outfit saved", "id", e.ID, "name", e.Name, "image", e.ImagePath)
	return e, nil
}

// SaveOutfit captures a snapshot and stores it under name in one call.
func (c *Core) SaveOutfit(ctx context.Context, name string) (history.Entry, error) {
	path, err := c.Capture(ctx)
	if err != nil {
		return history.Entry{}, err
	}
	return c.SaveNamed(ctx, name, path)
}

// History returns the configured number of most recent entries.
func (c *Core) History(ctx context.Context) ([]history.Entry, error) {
	entries, err := c.store.Recent(ctx, c.summarySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return entries, nil
}

// LastOutfit returns the most recent entry, which must carry an image.
func (c *Core) LastOutfit(ctx context.Context) (history.Entry, error) {
	e, err := c.store.Last(ctx)
	if errors.Is(err, history.ErrNotFound) {
		return history.Entry{}, ErrEmptyHistory
	}
	if err != nil {
		return history.Entry{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if e.ImagePath == "" {
		return e, ErrNoImage
	}
	return e, nil
}

// Chat replies to free-form text in the current mood.
func (c *Core) Chat(ctx context.Context, utterance string) string {
	reply, _ := c.gen.Generate(ctx, utterance, c.moods.Emotion())
	return reply
}

// Emotion is the current mood estimate.
func (c *Core) Emotion() string {
	return c.moods.Emotion()
}
