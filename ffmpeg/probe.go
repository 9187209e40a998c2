package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"quranvideo/apperr"
)

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober reads container metadata with ffprobe.
type Prober struct {
	bin string
}

func NewProber(bin string) *Prober {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{bin: bin}
}

// Duration returns the container duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	if strings.TrimSpace(path) == "" {
		return 0, apperr.Upstream("ffprobe", errors.New("empty path"))
	}

	cmd := exec.CommandContext(ctx, p.bin, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return 0, apperr.Upstream("ffprobe "+path, err)
	}

	var out probeOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return 0, apperr.Upstream("ffprobe "+path, fmt.Errorf("parse: %w", err))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || d <= 0 {
		return 0, apperr.Upstream("ffprobe "+path, fmt.Errorf("no usable duration %q", out.Format.Duration))
	}
	return d, nil
}
