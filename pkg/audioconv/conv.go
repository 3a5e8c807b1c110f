// Package audioconv decodes audio files into 16 kHz mono float32 PCM, the
// input whisper expects.
package audioconv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

const TargetRate = 16000

// Audio is decoded, interleaved PCM in [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Format decodes one container/codec.
type Format struct {
	Name   string
	Exts   []string
	Magic  string
	Decode func(r io.ReadSeeker) (Audio, error)
}

var (
	formatsMu sync.RWMutex
	formats   []Format
)

// Register adds a format. Later registrations are tried after earlier ones
// for the same extension or magic.
func Register(f Format) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	formats = append(formats, f)
}

// Supported reports whether some registered format claims the extension.
func Supported(path string) bool {
	return len(candidates(strings.ToLower(filepath.Ext(path)), "")) > 0
}

type Options struct {
	MaxSamples int
}

func ConvertFileToPCM16k(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Convert(ctx, f, strings.ToLower(filepath.Ext(path)), opt)
}

// Convert decodes r with the first format that accepts it. ext may be
// empty, in which case the magic bytes decide.
func Convert(ctx context.Context, r io.ReadSeeker, ext string, opt Options) ([]float32, error) {
	magic := make([]byte, 4)
	n, _ := io.ReadFull(r, magic)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}

	cands := candidates(ext, string(magic[:n]))
	if len(cands) == 0 {
		return nil, fmt.Errorf("unsupported format: %q", ext)
	}

	var errs []error
	for _, f := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek: %w", err)
		}

		a, err := f.Decode(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		return Normalize(a, opt), nil
	}
	return nil, errors.Join(errs...)
}

func candidates(ext, magic string) []Format {
	formatsMu.RLock()
	defer formatsMu.RUnlock()

	var out []Format
	for _, f := range formats {
		if ext != "" && slices.Contains(f.Exts, ext) {
			out = append(out, f)
		}
	}
	if len(out) > 0 || magic == "" {
		return out
	}
	for _, f := range formats {
		if f.Magic != "" && f.Magic == magic {
			out = append(out, f)
		}
	}
	return out
}

// Normalize downmixes to mono, resamples to TargetRate and truncates.
func Normalize(a Audio, opt Options) []float32 {
	x := a.Samples
	if a.Channels > 1 {
		x = downmixInterleaved(x, a.Channels)
	}
	if a.SampleRate > 0 && a.SampleRate != TargetRate {
		x = resampleLinear(x, a.SampleRate, TargetRate)
	}
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}

func IntToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func Int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
