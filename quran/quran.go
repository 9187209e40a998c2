// Package quran resolves a verse range against the text/audio content
// provider and pairs each ayah's source text with its translation.
package quran

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"quranvideo/apperr"
)

const (
	MinSurah = 1
	MaxSurah = 114
)

// Verse is one ayah of the requested range. Duration and StartTime are
// filled in after the audio has been probed.
type Verse struct {
	Number          int
	SourceText      string
	TranslationText string
	AudioSource     string
	Duration        float64
	StartTime       float64
}

// Query selects an ayah range from a surah and the two editions to pair.
type Query struct {
	Surah         int
	AyahStart     int
	AyahEnd       int
	ReciterID     string
	TranslationID string
}

// Validate rejects ranges that can never produce a verse.
func (q Query) Validate() error {
	if q.Surah < MinSurah || q.Surah > MaxSurah {
		return apperr.Input("surah must be between %d and %d, got %d", MinSurah, MaxSurah, q.Surah)
	}
	if q.AyahStart < 1 {
		return apperr.Input("ayah_start must be at least 1, got %d", q.AyahStart)
	}
	if q.AyahStart > q.AyahEnd {
		return apperr.Input("ayah_start (%d) must not exceed ayah_end (%d)", q.AyahStart, q.AyahEnd)
	}
	if strings.TrimSpace(q.ReciterID) == "" {
		return apperr.Input("reciter_id is required")
	}
	if strings.TrimSpace(q.TranslationID) == "" {
		return apperr.Input("translation_id is required")
	}
	return nil
}

type editionsResponse struct {
	Code   int       `json:"code"`
	Status string    `json:"status"`
	Data   []edition `json:"data"`
}

type edition struct {
	Edition struct {
		Identifier string `json:"identifier"`
	} `json:"edition"`
	Ayahs []ayah `json:"ayahs"`
}

type ayah struct {
	NumberInSurah int    `json:"numberInSurah"`
	Text          string `json:"text"`
	Audio         string `json:"audio"`
}

// JSONGetter fetches a URL and decodes its JSON body into v.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

type Resolver struct {
	getter        JSONGetter
	apiBase       string
	audioFallback string
}

func NewResolver(getter JSONGetter, apiBase, audioFallback string) *Resolver {
	return &Resolver{
		getter:        getter,
		apiBase:       strings.TrimSuffix(apiBase, "/"),
		audioFallback: strings.TrimSuffix(audioFallback, "/"),
	}
}

// Resolve returns the verses of q in canonical order, one per ayah in range.
func (r *Resolver) Resolve(ctx context.Context, q Query) ([]Verse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/surah/%d/editions/%s,%s", r.apiBase, q.Surah, q.ReciterID, q.TranslationID)
	var resp editionsResponse
	if err := r.getter.GetJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 && resp.Code != 200 {
		return nil, apperr.Upstream("quran api", fmt.Errorf("status %d %s", resp.Code, resp.Status))
	}

	source := findEdition(resp.Data, q.ReciterID)
	if source == nil {
		return nil, apperr.NotFound("edition " + q.ReciterID)
	}
	translation := findEdition(resp.Data, q.TranslationID)
	if translation == nil {
		return nil, apperr.NotFound("edition " + q.TranslationID)
	}

	last := 0
	for _, a := range source.Ayahs {
		last = max(last, a.NumberInSurah)
	}
	if q.AyahEnd > last {
		return nil, apperr.Input("ayah range %d-%d exceeds the %d ayahs of surah %d", q.AyahStart, q.AyahEnd, last, q.Surah)
	}

	translated := make(map[int]string, len(translation.Ayahs))
	for _, a := range translation.Ayahs {
		translated[a.NumberInSurah] = a.Text
	}

	var verses []Verse
	for _, a := range source.Ayahs {
		if a.NumberInSurah < q.AyahStart || a.NumberInSurah > q.AyahEnd {
			continue
		}
		text, ok := translated[a.NumberInSurah]
		if !ok {
			return nil, apperr.NotFound(fmt.Sprintf("translation of ayah %d in %s", a.NumberInSurah, q.TranslationID))
		}
		audio := strings.TrimSpace(a.Audio)
		if audio == "" {
			audio = FallbackAudioURL(r.audioFallback, q.ReciterID, q.Surah, a.NumberInSurah)
		}
		verses = append(verses, Verse{
			Number:          a.NumberInSurah,
			SourceText:      a.Text,
			TranslationText: text,
			AudioSource:     audio,
		})
	}

	sort.Slice(verses, func(i, j int) bool { return verses[i].Number < verses[j].Number })
	for i, n := 0, q.AyahStart; n <= q.AyahEnd; i, n = i+1, n+1 {
		if i >= len(verses) || verses[i].Number != n {
			return nil, apperr.NotFound(fmt.Sprintf("ayah %d of surah %d in %s", n, q.Surah, q.ReciterID))
		}
	}
	return verses, nil
}

func findEdition(editions []edition, identifier string) *edition {
	for i := range editions {
		if editions[i].Edition.Identifier == identifier {
			return &editions[i]
		}
	}
	return nil
}

// FallbackAudioURL builds the per-ayah recitation URL used when the provider
// omits one, e.g. base/ar.alafasy/001002.mp3.
func FallbackAudioURL(base, reciterID string, surah, ayah int) string {
	return fmt.Sprintf("%s/%s/%03d%03d.mp3", base, reciterID, surah, ayah)
}
