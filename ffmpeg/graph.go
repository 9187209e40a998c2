package ffmpeg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Overlay is a subtitle image shown during [Start, End) seconds.
type Overlay struct {
	Path  string
	Start float64
	End   float64
}

// Composition is everything the encoder needs for one video: a background
// looped to length, the verse recitations back to back, and one overlay
// per verse.
type Composition struct {
	Background string
	Audio      []string
	Overlays   []Overlay
	Width      int
	Height     int
	Duration   float64
	Output     string
}

func (c Composition) validate() error {
	switch {
	case c.Background == "":
		return errors.New("no background input")
	case len(c.Audio) == 0:
		return errors.New("no audio inputs")
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("invalid canvas %dx%d", c.Width, c.Height)
	case c.Duration <= 0:
		return fmt.Errorf("invalid duration %v", c.Duration)
	case c.Output == "":
		return errors.New("no output path")
	}
	return nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FilterGraph builds the filter_complex description. Input 0 is the
// background, inputs 1..N the audio clips, N+1..N+M the overlays. Overlays are
// applied as a strict chain, each consuming the previous composite.
func (c Composition) FilterGraph() (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}

	var filters []string

	var audio strings.Builder
	for i := range c.Audio {
		fmt.Fprintf(&audio, "[%d:a]", 1+i)
	}
	fmt.Fprintf(&audio, "concat=n=%d:v=0:a=1[maina]", len(c.Audio))
	filters = append(filters, audio.String())

	filters = append(filters, fmt.Sprintf(
		"[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,trim=duration=%s,setpts=PTS-STARTPTS[bg]",
		c.Width, c.Height, c.Width, c.Height, seconds(c.Duration)))

	if len(c.Overlays) == 0 {
		filters = append(filters, "[bg]null[outv]")
		return strings.Join(filters, ";"), nil
	}

	imageBase := 1 + len(c.Audio)
	current := "[bg]"
	for i, o := range c.Overlays {
		next := fmt.Sprintf("[v%d]", i)
		if i == len(c.Overlays)-1 {
			next = "[outv]"
		}
		filters = append(filters, fmt.Sprintf("%s[%d:v]overlay=0:0:enable='gte(t,%s)*lt(t,%s)'%s",
			current, imageBase+i, seconds(o.Start), seconds(o.End), next))
		current = next
	}
	return strings.Join(filters, ";"), nil
}

// Args returns the full encoder argument list, output path last.
func (c Composition) Args(extra []string) ([]string, error) {
	graph, err := c.FilterGraph()
	if err != nil {
		return nil, err
	}

	args := []string{"-y", "-hide_banner", "-stream_loop", "-1", "-i", c.Background}
	for _, a := range c.Audio {
		args = append(args, "-i", a)
	}
	for _, o := range c.Overlays {
		args = append(args, "-i", o.Path)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "[outv]",
		"-map", "[maina]",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-shortest",
	)
	args = append(args, extra...)
	args = append(args, "-progress", "pipe:1", "-nostats", c.Output)
	return args, nil
}

// MapProgress maps the encoder's completion fraction onto the 50..99 band
// of the pipeline. When no fraction is known it reports the midpoint.
func MapProgress(fraction float64, known bool) int {
	if !known {
		return 75
	}
	if fraction < 0 {
		fraction = 0
	}
	p := 50 + int(fraction*50)
	if p > 99 {
		p = 99
	}
	return p
}
