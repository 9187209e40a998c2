// Package timeline lays verses end to end so each one's overlay window
// starts exactly where the previous one ends.
package timeline

import (
	"fmt"
	"math"

	"quranvideo/quran"
)

// Entry is the half-open window [Start, End) during which a verse is shown.
type Entry struct {
	Verse int
	Start float64
	End   float64
}

type Timeline []Entry

// Build stamps StartTime on every verse and returns the matching windows.
// Every verse must already carry a positive, finite Duration.
func Build(verses []quran.Verse) (Timeline, error) {
	tl := make(Timeline, 0, len(verses))
	var cursor float64
	for i := range verses {
		d := verses[i].Duration
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("ayah %d has invalid duration %v", verses[i].Number, d)
		}
		verses[i].StartTime = cursor
		end := cursor + d
		tl = append(tl, Entry{Verse: verses[i].Number, Start: cursor, End: end})
		cursor = end
	}
	return tl, nil
}

// Total is the end of the last window.
func (tl Timeline) Total() float64 {
	if len(tl) == 0 {
		return 0
	}
	return tl[len(tl)-1].End
}

// Validate checks the windows are contiguous from zero with no gaps or
// overlaps. The overlay chain relies on this: if two windows ever overlapped
// the later overlay would win.
func (tl Timeline) Validate() error {
	for i, e := range tl {
		if e.End <= e.Start {
			return fmt.Errorf("window %d is empty or inverted: [%v, %v)", i, e.Start, e.End)
		}
		if i == 0 {
			if e.Start != 0 {
				return fmt.Errorf("timeline starts at %v, want 0", e.Start)
			}
			continue
		}
		if prev := tl[i-1].End; e.Start != prev {
			return fmt.Errorf("window %d starts at %v but previous ends at %v", i, e.Start, prev)
		}
	}
	return nil
}
