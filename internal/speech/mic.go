package speech

import (
	"context"
	log "log/slog"
)

type Recorder interface {
	Record(ctx context.Context) ([]float32, error)
}

type Cue interface {
	Play(ctx context.Context) error
}

// MicListener records one phrase from the microphone and transcribes it.
type MicListener struct {
	rec Recorder
	stt Transcriber
	cue Cue
}

// NewMicListener builds a listener; cue may be nil.
func NewMicListener(rec Recorder, stt Transcriber, cue Cue) *MicListener {
	return &MicListener{rec: rec, stt: stt, cue: cue}
}

func (m *MicListener) Listen(ctx context.Context) string {
	if m.cue != nil {
		if err := m.cue.Play(ctx); err != nil {
			log.Debug("Listening cue failed", "err", err)
		}
	}

	log.Debug("Listening")
	pcm, err := m.rec.Record(ctx)
	if err != nil {
		log.Debug("Nothing recorded", "err", err)
		return ""
	}
	if len(pcm) == 0 {
		return ""
	}

	raw, err := m.stt.Transcribe(ctx, pcm)
	if err != nil {
		log.Warn("Transcription failed", "err", err)
		return ""
	}

	text := Clean(raw)
	if text == "" {
		log.Debug("Unintelligible audio", "raw", raw)
		return ""
	}
	log.Info("Heard", "text", text)
	return text
}
