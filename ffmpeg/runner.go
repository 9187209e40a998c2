package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"quranvideo/apperr"
	"quranvideo/config"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// stderrTail bounds how much encoder output is quoted in errors.
const stderrTail = 2048

type Runner struct {
	cfg       *config.Config
	extraArgs []string
	log       logrus.FieldLogger
}

func NewRunner(cfg *config.Config, log logrus.FieldLogger) (*Runner, error) {
	if _, err := exec.LookPath(cfg.FFBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found or not in PATH: %s", cfg.FFBin)
	}

	extra, err := SplitCommand(cfg.FFExtraArgs)
	if err != nil {
		return nil, err
	}
	if err := SanitizeArgs(extra); err != nil {
		return nil, fmt.Errorf("FF_EXTRA_ARGS: %w", err)
	}

	return &Runner{cfg: cfg, extraArgs: extra, log: log}, nil
}

// Compose runs the encoder for c. onProgress receives pipeline percentages
// in the 50..99 band as the encoder reports them. A failed run leaves no
// output file behind.
func (r *Runner) Compose(ctx context.Context, c Composition, onProgress func(percent int)) error {
	if err := r.checkResources(); err != nil {
		return apperr.Composition(fmt.Errorf("insufficient system resources: %w", err))
	}

	args, err := c.Args(r.extraArgs)
	if err != nil {
		return apperr.Composition(err)
	}

	cmd := exec.CommandContext(ctx, r.cfg.FFBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperr.Composition(err)
	}

	r.log.WithFields(logrus.Fields{
		"output":   c.Output,
		"inputs":   1 + len(c.Audio) + len(c.Overlays),
		"duration": c.Duration,
	}).Debugf("executing %s %s", r.cfg.FFBin, strings.Join(args, " "))

	if err := cmd.Start(); err != nil {
		return apperr.Composition(fmt.Errorf("start ffmpeg: %w", err))
	}
	readProgress(stdout, c.Duration, onProgress)
	err = cmd.Wait()

	if err != nil {
		os.Remove(c.Output)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return apperr.Composition(fmt.Errorf("ffmpeg execution failed: %w: %s", err, tail(stderr.String())))
	}
	return nil
}

// readProgress consumes the key=value stream of -progress pipe:1.
func readProgress(r io.Reader, total float64, onProgress func(int)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || onProgress == nil {
			continue
		}
		// out_time_ms is in microseconds as well.
		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}
		if total <= 0 {
			onProgress(MapProgress(0, false))
			continue
		}
		// Early blocks report N/A before the first frame is encoded.
		us, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(us) {
			continue
		}
		onProgress(MapProgress(us/1e6/total, true))
	}
	io.Copy(io.Discard, r)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return s
}

// checkResources verifies the host has headroom to start an encode.
func (r *Runner) checkResources() error {
	if r.cfg.ThrottleCPU > 0 {
		p, err := cpu.Percent(time.Second, false)
		if err != nil {
			r.log.WithError(err).Warn("could not get CPU usage")
		} else if len(p) > 0 && p[0] > (100.0-r.cfg.ThrottleCPU) {
			return fmt.Errorf("not enough idle CPU. Current usage: %.2f%%, Idle threshold: %.2f%%", p[0], r.cfg.ThrottleCPU)
		}
	}

	if r.cfg.ThrottleFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			r.log.WithError(err).Warn("could not get memory usage")
		} else if vm.Available < uint64(r.cfg.ThrottleFreeMem) {
			return fmt.Errorf("not enough free memory. Available: %d, Required: %d", vm.Available, r.cfg.ThrottleFreeMem)
		}
	}

	if r.cfg.ThrottleFreeDisk > 0 {
		d, err := disk.Usage(r.cfg.OutputRoot)
		if err != nil {
			r.log.WithError(err).Warnf("could not get disk usage for %s", r.cfg.OutputRoot)
		} else if d.Free < uint64(r.cfg.ThrottleFreeDisk) {
			return fmt.Errorf("not enough free disk space. Available: %d, Required: %d", d.Free, r.cfg.ThrottleFreeDisk)
		}
	}
	return nil
}
