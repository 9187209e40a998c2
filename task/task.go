package task

import (
	"path/filepath"
	"strings"

	"quranvideo/apperr"
	"quranvideo/quran"
)

type Status string

const (
	StatusStarted           Status = "started"
	StatusAlreadyProcessing Status = "already_processing"
	StatusCompleted         Status = "completed"
)

const (
	PlatformReel    = "reel"
	PlatformYouTube = "youtube"

	DefaultResolution = 720
	MinResolution     = 360
	MaxResolution     = 1080
)

// Request asks for one video of a verse range.
type Request struct {
	ID               string `json:"requestId"`
	Surah            int    `json:"surah"`
	AyahStart        int    `json:"ayahStart"`
	AyahEnd          int    `json:"ayahEnd"`
	ReciterID        string `json:"reciterId"`
	TranslationID    string `json:"translationId"`
	BackgroundSource string `json:"backgroundSource,omitempty"`
	Resolution       int    `json:"resolution,omitempty"`
	Platform         string `json:"platform,omitempty"`
}

// Result is what a caller of Generate gets back.
type Result struct {
	Status     Status `json:"status"`
	RequestID  string `json:"requestId"`
	OutputPath string `json:"-"`
}

func (r Request) Query() quran.Query {
	return quran.Query{
		Surah:         r.Surah,
		AyahStart:     r.AyahStart,
		AyahEnd:       r.AyahEnd,
		ReciterID:     r.ReciterID,
		TranslationID: r.TranslationID,
	}
}

// Validate fails fast on requests that could never render.
func (r Request) Validate() error {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return apperr.Input("request id is required")
	}
	// The id names the working directory and the output file.
	if id != r.ID || filepath.Base(id) != id || id == "." || id == ".." {
		return apperr.Input("invalid request id %q", r.ID)
	}
	if err := r.Query().Validate(); err != nil {
		return err
	}
	if r.Resolution != 0 && (r.Resolution < MinResolution || r.Resolution > MaxResolution) {
		return apperr.Input("resolution must be between %d and %d, got %d", MinResolution, MaxResolution, r.Resolution)
	}
	switch r.Platform {
	case "", PlatformReel, PlatformYouTube:
	default:
		return apperr.Input("platform must be %q or %q, got %q", PlatformReel, PlatformYouTube, r.Platform)
	}
	return nil
}

// Canvas returns the even output dimensions: reels are 9:16 portrait at the
// requested width, youtube is the requested width at 16:9 height ratio.
func (r Request) Canvas() (width, height int) {
	res := r.Resolution
	if res == 0 {
		res = DefaultResolution
	}
	width = res
	if r.Platform == PlatformYouTube {
		height = res * 9 / 16
	} else {
		height = res * 16 / 9
	}
	return width - width%2, height - height%2
}
