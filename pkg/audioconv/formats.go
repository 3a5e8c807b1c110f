package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

func init() {
	Register(Format{Name: "wav", Exts: []string{".wav"}, Magic: "RIFF", Decode: decodeWAV})
	Register(Format{Name: "mp3", Exts: []string{".mp3"}, Decode: decodeMP3})
	Register(Format{Name: "vorbis", Exts: []string{".ogg", ".oga"}, Magic: "OggS", Decode: decodeVorbis})
}

func decodeWAV(r io.ReadSeeker) (Audio, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Audio{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return Audio{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return Audio{}, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	a := Audio{Samples: IntToFloat32(pb.Data, bd), Channels: 1, SampleRate: 44100}
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			a.Channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			a.SampleRate = pb.Format.SampleRate
		}
	}
	return a, nil
}

// decodeMP3 always yields stereo 16-bit samples.
func decodeMP3(r io.ReadSeeker) (Audio, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Audio{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return Audio{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return Audio{}, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return Audio{Samples: Int16ToFloat32(ints), SampleRate: sr, Channels: 2}, nil
}

func decodeVorbis(r io.ReadSeeker) (Audio, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return Audio{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return Audio{}, errors.New("invalid ogg/vorbis stream")
	}
	return Audio{Samples: pcm, SampleRate: format.SampleRate, Channels: format.Channels}, nil
}
