package pulse

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 52429 /  80% / -5.81 dB
	Properties:
		application.name = "mirror"
Sink Input #43
	Volume: mono: 26214 /  40% / -23.88 dB
	Properties:
		application.name = "Spotify"
`

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	require.Equal(t, []streamInfo{
		{ID: 41, Volume: 100, AppName: "Firefox"},
		{ID: 42, Volume: 80, AppName: "mirror"},
		{ID: 43, Volume: 40, AppName: "Spotify"},
	}, got)

	require.Nil(t, parseSinkInputs(""))
}

type fakePactl struct {
	list string
	sets []string
	err  error
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if args[0] == "list" {
		return []byte(f.list), nil
	}
	f.sets = append(f.sets, strings.Join(args[1:], " "))
	return nil, nil
}

func TestDuckAndRestore(t *testing.T) {
	fp := &fakePactl{list: sinkInputs}
	d := NewDucker(Config{SelfNames: []string{"mirror"}, Factor: 0.3, MinVolume: 15, Run: fp.run})
	ctx := context.Background()

	require.NoError(t, d.Duck(ctx))
	require.ElementsMatch(t, []string{"41 30%", "43 15%"}, fp.sets)

	fp.sets = nil
	require.NoError(t, d.Duck(ctx), "second duck is a no-op")
	require.Empty(t, fp.sets)

	fp.list = strings.NewReplacer("100%", "30%", " 40%", " 15%").Replace(sinkInputs)
	require.NoError(t, d.Restore(ctx))
	require.ElementsMatch(t, []string{"41 100%", "43 40%"}, fp.sets)

	fp.sets = nil
	require.NoError(t, d.Restore(ctx))
	require.Empty(t, fp.sets)
}

func TestDuck_PactlMissing(t *testing.T) {
	d := NewDucker(Config{Run: (&fakePactl{err: errors.New("exec: not found")}).run})
	require.Error(t, d.Duck(context.Background()))
	require.NoError(t, d.Restore(context.Background()))
}
