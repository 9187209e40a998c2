// Package subtitle draws the per-verse overlay: a transparent canvas the size
// of the output video with the source text stacked above its translation.
package subtitle

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	marginRatio    = 0.05
	gapRatio       = 0.05
	sourceLineGap  = 1.5
	transLineGap   = 1.2
	sourceStroke   = 4
	transStroke    = 3
	shrinkStep     = 0.9
	maxShrinkSteps = 12
)

// Options describes the canvas and the two text styles.
type Options struct {
	Width           int
	Height          int
	SourceFont      string
	TranslationFont string
	SourceSize      float64
	TranslationSize float64
}

// Renderer caches parsed fonts across verses. Safe for concurrent use.
type Renderer struct {
	log logrus.FieldLogger

	mu    sync.Mutex
	fonts map[string]*truetype.Font
}

func NewRenderer(log logrus.FieldLogger) *Renderer {
	return &Renderer{log: log, fonts: make(map[string]*truetype.Font)}
}

// Render writes a PNG of exactly opts.Width x opts.Height to outputPath.
func (r *Renderer) Render(sourceText, translationText, outputPath string, opts Options) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid canvas %dx%d", opts.Width, opts.Height)
	}
	sourceFont, err := r.font(opts.SourceFont)
	if err != nil {
		return err
	}
	transFont, err := r.font(opts.TranslationFont)
	if err != nil {
		return err
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	w, h := float64(opts.Width), float64(opts.Height)
	maxWidth := w - 2*w*marginRatio
	gap := h * gapRatio

	var src, tr block
	scale := 1.0
	for step := 0; ; step++ {
		src = layout(dc, sourceFont, opts.SourceSize*scale, sourceLineGap, sourceStroke, sourceText, maxWidth)
		tr = layout(dc, transFont, opts.TranslationSize*scale, transLineGap, transStroke, translationText, maxWidth)
		if contentHeight(src, tr, gap) <= h || step == maxShrinkSteps {
			break
		}
		scale *= shrinkStep
	}

	y := (h - contentHeight(src, tr, gap)) / 2
	y = src.draw(dc, w/2, y)
	if len(src.lines) > 0 && len(tr.lines) > 0 {
		y += gap
	}
	tr.draw(dc, w/2, y)

	if err := dc.SavePNG(outputPath); err != nil {
		return fmt.Errorf("save subtitle %s: %w", outputPath, err)
	}
	return nil
}

// font parses and caches the font at path. A missing or unreadable file
// degrades to the built-in Go Regular face with a warning.
func (r *Renderer) font(path string) (*truetype.Font, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.fonts[path]; ok {
		return f, nil
	}
	f, err := loadFont(path)
	if err != nil {
		r.log.WithField("font", path).WithError(err).Warn("font unavailable, using fallback face")
		if f, err = truetype.Parse(goregular.TTF); err != nil {
			return nil, fmt.Errorf("parse fallback font: %w", err)
		}
	}
	r.fonts[path] = f
	return f, nil
}

func loadFont(path string) (*truetype.Font, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("no font configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return truetype.Parse(data)
}

type block struct {
	face       font.Face
	lines      []string
	lineHeight float64
	stroke     int
}

func layout(dc *gg.Context, f *truetype.Font, size, lineGap float64, stroke int, text string, maxWidth float64) block {
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
	dc.SetFontFace(face)
	measure := func(s string) float64 {
		w, _ := dc.MeasureString(s)
		return w
	}
	return block{
		face:       face,
		lines:      Wrap(measure, text, maxWidth-2*float64(stroke)),
		lineHeight: size * lineGap,
		stroke:     stroke,
	}
}

func (b block) height() float64 {
	return float64(len(b.lines)) * b.lineHeight
}

func contentHeight(src, tr block, gap float64) float64 {
	total := src.height() + tr.height()
	if len(src.lines) > 0 && len(tr.lines) > 0 {
		total += gap
	}
	return total
}

// draw paints every line centred on cx, outline first then fill, starting at
// top y. It returns the y just below the block.
func (b block) draw(dc *gg.Context, cx, y float64) float64 {
	dc.SetFontFace(b.face)
	for _, line := range b.lines {
		cy := y + b.lineHeight/2
		dc.SetRGB(0, 0, 0)
		for dy := -b.stroke; dy <= b.stroke; dy++ {
			for dx := -b.stroke; dx <= b.stroke; dx++ {
				if dx*dx+dy*dy > b.stroke*b.stroke {
					continue
				}
				dc.DrawStringAnchored(line, cx+float64(dx), cy+float64(dy), 0.5, 0.5)
			}
		}
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(line, cx, cy, 0.5, 0.5)
		y += b.lineHeight
	}
	return y
}

// Wrap breaks text greedily: the next word joins the current line while the
// measured line stays under maxWidth, otherwise it starts a new line. A word
// that is too wide on its own is split between runes.
func Wrap(measure func(string) float64, text string, maxWidth float64) []string {
	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		if measure(word) >= maxWidth {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			chunks := splitWord(measure, word, maxWidth)
			lines = append(lines, chunks[:len(chunks)-1]...)
			current = chunks[len(chunks)-1]
			continue
		}
		if current == "" {
			current = word
			continue
		}
		if candidate := current + " " + word; measure(candidate) < maxWidth {
			current = candidate
		} else {
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

func splitWord(measure func(string) float64, word string, maxWidth float64) []string {
	var chunks []string
	var chunk []rune
	for _, r := range word {
		if len(chunk) > 0 && measure(string(append(chunk, r))) >= maxWidth {
			chunks = append(chunks, string(chunk))
			chunk = chunk[:0]
		}
		chunk = append(chunk, r)
	}
	return append(chunks, string(chunk))
}
