package display

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"os/exec"

	"mirror/internal/history"
)

// Opener shows outfit images with the desktop's default viewer when no
// display bus is configured.
type Opener struct {
	Command string
}

func NewOpener() *Opener {
	return &Opener{Command: "xdg-open"}
}

func (o *Opener) Present(ctx context.Context, e history.Entry) error {
	if _, err := os.Stat(e.ImagePath); err != nil {
		return fmt.Errorf("present outfit %d: %w", e.ID, err)
	}

	cmd := exec.CommandContext(ctx, o.Command, e.ImagePath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", o.Command, e.ImagePath, err, out)
	}

	log.Info("Showing outfit", "id", e.ID, "name", e.Name, "image", e.ImagePath)
	return nil
}
