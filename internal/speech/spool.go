package speech

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DecodeFunc turns an audio file into 16 kHz mono PCM.
type DecodeFunc func(ctx context.Context, path string) ([]float32, error)

type SpoolConfig struct {
	Dir string
	// Accept filters candidate files by name.
	Accept func(path string) bool
	// Wait bounds one Listen call, like the microphone start timeout.
	Wait time.Duration
	Poll time.Duration
}

// DirListener consumes audio files dropped into a directory, oldest first.
// Each file is removed once read, whether or not it decoded.
type DirListener struct {
	cfg    SpoolConfig
	decode DecodeFunc
	stt    Transcriber
}

func NewDirListener(cfg SpoolConfig, decode DecodeFunc, stt Transcriber) (*DirListener, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool dir: %w", err)
	}
	if cfg.Accept == nil {
		cfg.Accept = func(string) bool { return true }
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 5 * time.Second
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 200 * time.Millisecond
	}
	return &DirListener{cfg: cfg, decode: decode, stt: stt}, nil
}

func (d *DirListener) Listen(ctx context.Context) string {
	deadline := time.NewTimer(d.cfg.Wait)
	defer deadline.Stop()
	tick := time.NewTicker(d.cfg.Poll)
	defer tick.Stop()

	for {
		path, err := d.oldest()
		if err != nil {
			log.Warn("Spool scan failed", "dir", d.cfg.Dir, "err", err)
		}
		if path != "" {
			return d.consume(ctx, path)
		}

		select {
		case <-ctx.Done():
			return ""
		case <-deadline.C:
			return ""
		case <-tick.C:
		}
	}
}

func (d *DirListener) consume(ctx context.Context, path string) string {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to remove spooled file", "path", path, "err", err)
		}
	}()

	pcm, err := d.decode(ctx, path)
	if err != nil {
		log.Warn("Failed to decode spooled file", "path", path, "err", err)
		return ""
	}

	raw, err := d.stt.Transcribe(ctx, pcm)
	if err != nil {
		log.Warn("Transcription failed", "path", path, "err", err)
		return ""
	}

	text := Clean(raw)
	log.Info("Heard from spool", "path", filepath.Base(path), "text", text)
	return text
}

func (d *DirListener) oldest() (string, error) {
	entries, err := os.ReadDir(d.cfg.Dir)
	if err != nil {
		return "", err
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var cands []candidate
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(d.cfg.Dir, e.Name())
		if !d.cfg.Accept(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, candidate{path: path, mod: info.ModTime()})
	}
	if len(cands) == 0 {
		return "", nil
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].mod.Equal(cands[j].mod) {
			return cands[i].path < cands[j].path
		}
		return cands[i].mod.Before(cands[j].mod)
	})
	return cands[0].path, nil
}
