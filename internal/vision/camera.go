package vision

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Camera grabs single JPEG frames from a V4L2 device through ffmpeg.
type Camera struct {
	Device string
	Binary string

	mu sync.Mutex
}

func NewCamera(device string) *Camera {
	return &Camera{Device: device, Binary: "ffmpeg"}
}

// Frame returns one encoded JPEG frame. Calls are serialised: the device
// can only be opened by one reader at a time.
func (c *Camera) Frame(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := exec.CommandContext(ctx, c.Binary,
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2", "-i", c.Device,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("camera %s: %w: %s", c.Device, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("camera %s: empty frame", c.Device)
	}
	return stdout.Bytes(), nil
}
