package voice

import (
	"context"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"mirror/internal/mood"
)

const restoreTimeout = 3 * time.Second

type Synth interface {
	Speak(ctx context.Context, text string) error
}

type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

type SubtitlePublisher interface {
	PublishSubtitle(text string)
}

// Voice is the mirror's single mouth. The sensing loop and the dialogue
// both speak through it, one utterance at a time.
type Voice struct {
	synth Synth
	moods *mood.Register
	duck  Ducker
	subs  SubtitlePublisher

	mu sync.Mutex
}

// New builds a Voice; duck and subs may be nil.
func New(synth Synth, moods *mood.Register, duck Ducker, subs SubtitlePublisher) *Voice {
	return &Voice{synth: synth, moods: moods, duck: duck, subs: subs}
}

// Say records text as the latest response and speaks it. Failures are
// logged and swallowed.
func (v *Voice) Say(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.moods.SetResponse(text)
	if v.subs != nil {
		v.subs.PublishSubtitle(text)
	}
	log.Info("Mirror says", "text", text)

	if v.duck != nil {
		if err := v.duck.Duck(ctx); err != nil {
			log.Debug("Ducking failed", "err", err)
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
			defer cancel()
			if err := v.duck.Restore(rctx); err != nil {
				log.Debug("Restoring volume failed", "err", err)
			}
		}()
	}

	if err := v.synth.Speak(ctx, text); err != nil {
		log.Warn("Speech synthesis failed", "err", err)
	}
}
