package subtitle

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reelOptions() Options {
	return Options{
		Width:           720,
		Height:          1280,
		SourceFont:      "/nonexistent/Amiri-Regular.ttf",
		TranslationFont: "/nonexistent/arial.ttf",
		SourceSize:      720 * 0.06,
		TranslationSize: 720 * 0.04,
	}
}

func decode(t *testing.T, path string) image.Image {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestRenderDimensionsAndMargins(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := NewRenderer(log)
	dir := t.TempDir()

	texts := map[string][2]string{
		"short":   {"بِسْمِ اللَّهِ", "In the name of Allah"},
		"long":    {strings.Repeat("ٱلْحَمْدُ لِلَّهِ رَبِّ ٱلْعَٰلَمِينَ ", 20), strings.Repeat("All praise is due to Allah, Lord of the worlds. ", 25)},
		"no-gaps": {strings.Repeat("x", 400), strings.Repeat("y", 300)},
		"empty":   {"", ""},
	}
	opts := reelOptions()
	// Allow a pixel of antialiasing either side of the band.
	margin := int(float64(opts.Width)*marginRatio) - 1

	for name, pair := range texts {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(dir, name+".png")
			require.NoError(t, r.Render(pair[0], pair[1], out, opts))

			img := decode(t, out)
			assert.Equal(t, 720, img.Bounds().Dx())
			assert.Equal(t, 1280, img.Bounds().Dy())

			for y := 0; y < img.Bounds().Dy(); y++ {
				for x := 0; x < margin; x++ {
					_, _, _, a := img.At(x, y).RGBA()
					require.Zero(t, a, "left margin pixel (%d,%d) is painted", x, y)
					_, _, _, a = img.At(opts.Width-1-x, y).RGBA()
					require.Zero(t, a, "right margin pixel (%d,%d) is painted", opts.Width-1-x, y)
				}
			}
		})
	}
}

func TestRenderIsTransparentAndPainted(t *testing.T) {
	log, _ := test.NewNullLogger()
	out := filepath.Join(t.TempDir(), "sub_1.png")
	require.NoError(t, NewRenderer(log).Render("Alif Lam Mim", "Alif, Lam, Meem.", out, reelOptions()))

	img := decode(t, out)
	_, _, _, corner := img.At(0, 0).RGBA()
	assert.Zero(t, corner)

	painted := 0
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
				painted++
			}
		}
	}
	assert.Greater(t, painted, 0)
}

func TestRenderDeterministic(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := NewRenderer(log)
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")

	src := "إِيَّاكَ نَعْبُدُ وَإِيَّاكَ نَسْتَعِينُ"
	tr := "It is You we worship and You we ask for help."
	require.NoError(t, r.Render(src, tr, a, reelOptions()))
	require.NoError(t, NewRenderer(log).Render(src, tr, b, reelOptions()))

	da, err := os.ReadFile(a)
	require.NoError(t, err)
	db, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(da, db))
}

func TestMissingFontWarnsOnce(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := NewRenderer(log)
	dir := t.TempDir()

	opts := reelOptions()
	opts.TranslationFont = opts.SourceFont
	require.NoError(t, r.Render("a", "b", filepath.Join(dir, "1.png"), opts))
	require.NoError(t, r.Render("c", "d", filepath.Join(dir, "2.png"), opts))

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, opts.SourceFont, hook.LastEntry().Data["font"])
}

func TestRenderRejectsEmptyCanvas(t *testing.T) {
	log, _ := test.NewNullLogger()
	opts := reelOptions()
	opts.Width = 0
	assert.Error(t, NewRenderer(log).Render("a", "b", filepath.Join(t.TempDir(), "x.png"), opts))
}

func TestWrap(t *testing.T) {
	byLen := func(s string) float64 { return float64(len(s)) }

	t.Run("greedy fill", func(t *testing.T) {
		lines := Wrap(byLen, "aa bb cc dd ee", 6)
		assert.Equal(t, []string{"aa bb", "cc dd", "ee"}, lines)
	})

	t.Run("stays under limit", func(t *testing.T) {
		for _, line := range Wrap(byLen, "the quick brown fox jumps over the lazy dog", 10) {
			assert.Less(t, byLen(line), 10.0, line)
		}
	})

	t.Run("splits overlong words", func(t *testing.T) {
		lines := Wrap(byLen, "hi abcdefghij yo", 5)
		assert.Equal(t, []string{"hi", "abcd", "efgh", "ij", "yo"}, lines)
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, Wrap(byLen, "   ", 10))
	})
}
