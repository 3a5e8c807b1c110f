package nlu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoute_Table(t *testing.T) {
	cases := []struct {
		text   string
		paused bool
		want   Intent
	}{
		{"resume please", true, Resume},
		{"what's the weather", true, Ignored},
		{"suggest outfit", true, Ignored},
		{"ok shut up", false, Pause},
		{"stop talking for a bit", false, Pause},
		{"goodnight mirror", false, Terminate},
		{"see you later", false, Terminate},
		{"this is my outfit", false, SaveOutfitInteractive},
		{"save my outfit please", false, SaveOutfitInteractive},
		{"what did i wear last week", false, ShowHistorySummary},
		{"list my past outfits", false, ShowHistorySummary},
		{"show my outfit", false, ShowLastOutfitAsync},
		{"show last outfit", false, ShowLastOutfitAsync},
		{"what should i wear today", false, SuggestOutfit},
		{"give me an outfit", false, SuggestOutfit},
		{"how's the weather", false, ReportWeather},
		{"tell me a joke", false, FreeformChat},
		{"resume", false, FreeformChat},
	}

	for _, tc := range cases {
		got := Route(tc.text, tc.paused)
		require.Equal(t, tc.want, got, "route(%q, paused=%v) = %s", tc.text, tc.paused, got)
	}
}

func TestRoute_FarewellWinsOverLaterPhrases(t *testing.T) {
	for _, text := range []string{
		"bye, suggest outfit first",
		"what's the weather? see you",
		"this is my outfit, goodnight",
		"show my outfit then bye",
	} {
		require.Equal(t, Terminate, Route(text, false), text)
	}
}

func TestRoute_PauseDominatesWhilePaused(t *testing.T) {
	for _, text := range []string{
		"what should i wear",
		"weather",
		"bye",
		"this is my outfit",
		"",
	} {
		require.Equal(t, Ignored, Route(text, true), text)
	}
}

func TestRoute_SuggestionBeatsWeather(t *testing.T) {
	require.Equal(t, SuggestOutfit, Route("what should i wear, what's the weather", false))
}

func TestRoute_HistoryBeatsBareOutfit(t *testing.T) {
	require.Equal(t, ShowHistorySummary, Route("past outfits", false))
	require.Equal(t, ShowLastOutfitAsync, Route("show last outfit", false))
}

func TestIntent_String(t *testing.T) {
	require.Equal(t, "suggest_outfit", SuggestOutfit.String())
	require.Equal(t, "unknown", Intent(99).String())
}
