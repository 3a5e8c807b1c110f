// Package opus registers an Ogg/Opus decoder with audioconv. It needs
// libopusfile; import it for side effects only where cgo is available.
package opus

import (
	"errors"
	"io"

	popus "github.com/pekim/opus"

	"mirror/pkg/audioconv"
)

const opusRate = 48000

func init() {
	audioconv.Register(audioconv.Format{
		Name:   "opus",
		Exts:   []string{".opus", ".ogg", ".oga"},
		Magic:  "OggS",
		Decode: decode,
	})
}

func decode(r io.ReadSeeker) (audioconv.Audio, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return audioconv.Audio{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		pcm []float32
		buf = make([]int16, opusRate*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, audioconv.Int16ToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return audioconv.Audio{}, err
		}
	}
	if len(pcm) == 0 {
		return audioconv.Audio{}, errors.New("empty opus stream")
	}

	return audioconv.Audio{Samples: pcm, SampleRate: opusRate, Channels: ch}, nil
}
