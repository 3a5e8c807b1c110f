package nlu

import "strings"

type Intent int

const (
	FreeformChat Intent = iota
	Resume
	Ignored
	Pause
	Terminate
	SaveOutfitInteractive
	ShowHistorySummary
	ShowLastOutfitAsync
	SuggestOutfit
	ReportWeather
)

var intentNames = map[Intent]string{
	FreeformChat:          "freeform_chat",
	Resume:                "resume",
	Ignored:               "ignored",
	Pause:                 "pause",
	Terminate:             "terminate",
	SaveOutfitInteractive: "save_outfit",
	ShowHistorySummary:    "show_history",
	ShowLastOutfitAsync:   "show_last_outfit",
	SuggestOutfit:         "suggest_outfit",
	ReportWeather:         "report_weather",
}

func (i Intent) String() string {
	if s, ok := intentNames[i]; ok {
		return s
	}
	return "unknown"
}

type rule struct {
	intent  Intent
	phrases []string
}

var resumePhrases = []string{"resume", "start talking", "wake up"}

// rules is evaluated top to bottom and the first match wins. Several phrase
// sets overlap ("past outfits" contains "outfit"), so the order matters.
var rules = []rule{
	{Pause, []string{"stop talking", "shut up"}},
	{Terminate, []string{"bye", "goodnight", "good night", "see you"}},
	{SaveOutfitInteractive, []string{"this is my outfit", "save my outfit"}},
	{ShowHistorySummary, []string{"what did i wear", "past outfits"}},
	{ShowLastOutfitAsync, []string{"show my outfit", "show last outfit"}},
	{SuggestOutfit, []string{"what should i wear", "suggest outfit", "fit to wear", "outfit"}},
	{ReportWeather, []string{"weather"}},
}

// Route classifies a lowercased utterance. While paused only a resume
// phrase is recognised; everything else is Ignored.
func Route(utterance string, paused bool) Intent {
	if paused {
		if containsAny(utterance, resumePhrases) {
			return Resume
		}
		return Ignored
	}

	for _, r := range rules {
		if containsAny(utterance, r.phrases) {
			return r.intent
		}
	}

	return FreeformChat
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
