// Package progress tracks the state of in-flight generations and lets
// consumers poll it until a terminal state appears.
package progress

import (
	"context"
	"time"
)

type Stage string

const (
	StageStarting        Stage = "starting"
	StageFetching        Stage = "fetching"
	StageDownloading     Stage = "downloading"
	StageProcessingAudio Stage = "processing_audio"
	StageRendering       Stage = "rendering"
	StageCompleted       Stage = "completed"
	StageFailed          Stage = "failed"
)

func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Record is the single progress entry of one request.
type Record struct {
	RequestID  string    `json:"requestId"`
	Stage      Stage     `json:"stage"`
	Percentage int       `json:"percentage"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (r Record) Terminal() bool { return r.Stage.Terminal() }

// Store is a keyed record store. Begin must be atomic with respect to
// concurrent Begin calls for the same id so that only one generation per id
// can be admitted.
type Store interface {
	// Begin creates a fresh starting record unless a non-terminal one
	// exists; it reports whether the caller was admitted.
	Begin(requestID string) bool
	Load(requestID string) (Record, bool)
	Save(rec Record)
	// DeleteTerminal removes the record only if it is still the terminal
	// record last updated at seen. A run admitted since then is left alone.
	DeleteTerminal(requestID string, seen time.Time) bool
}

// Poll samples the record of requestID every interval and emits each
// observed record. After emitting a terminal record it removes that record
// from the store, unless a new run replaced it meanwhile, and closes the
// channel. Cancelling ctx stops the loop without
// touching the record.
func Poll(ctx context.Context, store Store, requestID string, interval time.Duration) <-chan Record {
	out := make(chan Record)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			rec, ok := store.Load(requestID)
			if !ok {
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
			if rec.Terminal() {
				store.DeleteTerminal(requestID, rec.UpdatedAt)
				return
			}
		}
	}()
	return out
}
