package vision

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"time"
)

type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// Snapshotter stores camera frames as outfit photos.
type Snapshotter struct {
	src FrameSource
	dir string
	now func() time.Time
}

func NewSnapshotter(src FrameSource, dir string, now func() time.Time) *Snapshotter {
	if now == nil {
		now = time.Now
	}
	return &Snapshotter{src: src, dir: dir, now: now}
}

// Capture writes one frame to dir/outfit_YYYYMMDD_HHMMSS.jpg and returns
// the path.
func (s *Snapshotter) Capture(ctx context.Context) (string, error) {
	frame, err := s.src.Frame(ctx)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("capture: mkdir: %w", err)
	}

	name := "outfit_" + s.now().Format("20060102_150405") + ".jpg"
	path := filepath.Join(s.dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, frame, 0o644); err != nil {
		return "", fmt.Errorf("capture: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("capture: rename: %w", err)
	}

	log.Info("Snapshot saved", "path", path, "bytes", len(frame))
	return path, nil
}
