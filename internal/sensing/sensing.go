package sensing

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	"mirror/internal/mood"
)

const (
	DefaultCooldown = 30 * time.Second
	DefaultInterval = 500 * time.Millisecond
)

type Camera interface {
	Frame(ctx context.Context) ([]byte, error)
}

type Classifier interface {
	Classify(ctx context.Context, frame []byte) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt, emotion string) (reply string, ok bool)
}

type Speaker interface {
	Say(ctx context.Context, text string)
}

// Publisher receives every emotion change the loop reacts to.
type Publisher interface {
	PublishEmotion(label string)
}

type Config struct {
	Cooldown time.Duration
	Interval time.Duration
	Now      func() time.Time
}

// Loop watches the camera and reacts aloud when the user's mood changes.
// It is driven by a single goroutine; its own state is not shared.
type Loop struct {
	cam   Camera
	cls   Classifier
	moods *mood.Register
	gen   Generator
	spk   Speaker
	pub   Publisher

	cooldown time.Duration
	interval time.Duration
	now      func() time.Time

	lastEmotion string
	lastSpoken  time.Time
}

func New(cam Camera, cls Classifier, moods *mood.Register, gen Generator, spk Speaker, pub Publisher, cfg Config) *Loop {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{
		cam:         cam,
		cls:         cls,
		moods:       moods,
		gen:         gen,
		spk:         spk,
		pub:         pub,
		cooldown:    cfg.Cooldown,
		interval:    cfg.Interval,
		now:         cfg.Now,
		lastEmotion: moods.Emotion(),
	}
}

// Run senses until the camera fails or ctx is cancelled. Cancellation is
// not an error.
func (l *Loop) Run(ctx context.Context) error {
	log.Info("Sensing loop started", "cooldown", l.cooldown, "interval", l.interval)
	defer log.Info("Sensing loop stopped")

	for {
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := sleepWithContext(ctx, l.interval); err != nil {
			return nil
		}
	}
}

// Step runs one acquire/infer/react cycle. Only an acquisition failure is
// returned; inference failures skip the cycle.
func (l *Loop) Step(ctx context.Context) error {
	frame, err := l.cam.Frame(ctx)
	if err != nil {
		return fmt.Errorf("sensing: acquire frame: %w", err)
	}

	label, err := l.cls.Classify(ctx, frame)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("Emotion inference failed", "err", err)
		}
		return nil
	}

	if label == l.lastEmotion {
		return nil
	}
	now := l.now()
	if now.Sub(l.lastSpoken) <= l.cooldown {
		log.Debug("Emotion change within cooldown", "from", l.lastEmotion, "to", label)
		return nil
	}

	log.Info("Emotion changed", "from", l.lastEmotion, "to", label)
	l.lastEmotion = label
	l.lastSpoken = now
	l.moods.SetEmotion(label)
	if l.pub != nil {
		l.pub.PublishEmotion(label)
	}

	reply, ok := l.gen.Generate(ctx, reactionPrompt(label), label)
	if !ok {
		log.Debug("No reaction generated", "emotion", label)
		return nil
	}
	l.spk.Say(ctx, reply)
	return nil
}

// Detect classifies a single frame and records the result without
// speaking. It is used once at startup for the greeting.
func (l *Loop) Detect(ctx context.Context) (string, error) {
	frame, err := l.cam.Frame(ctx)
	if err != nil {
		return "", fmt.Errorf("detect: acquire frame: %w", err)
	}
	label, err := l.cls.Classify(ctx, frame)
	if err != nil {
		return "", fmt.Errorf("detect: %w", err)
	}

	l.lastEmotion = label
	l.moods.SetEmotion(label)
	if l.pub != nil {
		l.pub.PublishEmotion(label)
	}
	return label, nil
}

func reactionPrompt(label string) string {
	return fmt.Sprintf("You just noticed your friend in the mirror now looks %s. React to it in one short line.", label)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
