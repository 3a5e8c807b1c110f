// Package speech turns audio into utterance text for the dialogue.
// Every listener returns "" when nothing intelligible was heard.
package speech

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32) (string, error)
}

type Listener interface {
	Listen(ctx context.Context) string
}

// whisper marks non-speech with tags like [BLANK_AUDIO] or (wind blowing).
var nonSpeechRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// Clean strips non-speech annotations and returns "" when nothing but
// punctuation is left.
func Clean(text string) string {
	text = nonSpeechRe.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(text), " ")

	hasWord := strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
	if !hasWord {
		return ""
	}
	return text
}
