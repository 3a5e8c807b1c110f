package mood

import (
	"strings"
	"sync"
)

const DefaultEmotion = "neutral"

// Labels is the closed set of emotions the classifier may report.
var Labels = []string{"happy", "sad", "angry", "neutral", "surprise", "fear", "disgust"}

var aliases = map[string]string{
	"surprised": "surprise",
	"scared":    "fear",
	"afraid":    "fear",
	"disgusted": "disgust",
	"calm":      "neutral",
}

// Normalize maps a raw classifier label onto Labels.
func Normalize(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Trim(s, ".,!\"'")
	if a, ok := aliases[s]; ok {
		s = a
	}
	for _, l := range Labels {
		if s == l {
			return l, true
		}
	}
	return "", false
}

// Register holds the last emotion estimate and the last spoken response.
// Each field is read and written whole under its own lock; there is no
// ordering between a write from one goroutine and a read from another.
type Register struct {
	emotionMu sync.RWMutex
	emotion   string

	responseMu sync.RWMutex
	response   string
}

func NewRegister() *Register {
	return &Register{emotion: DefaultEmotion}
}

func (r *Register) SetEmotion(label string) {
	r.emotionMu.Lock()
	r.emotion = label
	r.emotionMu.Unlock()
}

func (r *Register) Emotion() string {
	r.emotionMu.RLock()
	defer r.emotionMu.RUnlock()
	return r.emotion
}

func (r *Register) SetResponse(text string) {
	r.responseMu.Lock()
	r.response = text
	r.responseMu.Unlock()
}

func (r *Register) Response() string {
	r.responseMu.RLock()
	defer r.responseMu.RUnlock()
	return r.response
}
