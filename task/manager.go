package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quranvideo/apperr"
	"quranvideo/config"
	"quranvideo/ffmpeg"
	"quranvideo/notify"
	"quranvideo/progress"
	"quranvideo/quran"
	"quranvideo/subtitle"
	"quranvideo/timeline"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	sourceFontRatio      = 0.06
	translationFontRatio = 0.04
	notifyTimeout        = 30 * time.Second
)

type VerseResolver interface {
	Resolve(ctx context.Context, q quran.Query) ([]quran.Verse, error)
}

type AssetFetcher interface {
	Download(ctx context.Context, url, destination string) error
	Background(ctx context.Context, source, fallback, destination string) error
}

type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

type SubtitleRenderer interface {
	Render(sourceText, translationText, outputPath string, opts subtitle.Options) error
}

type Composer interface {
	Compose(ctx context.Context, c ffmpeg.Composition, onProgress func(percent int)) error
}

// Deps are the pipeline collaborators. Store and Subscriptions default to
// in-memory implementations, Sender to a noop.
type Deps struct {
	Resolver      VerseResolver
	Fetcher       AssetFetcher
	Prober        DurationProber
	Subtitles     SubtitleRenderer
	Composer      Composer
	Store         progress.Store
	Subscriptions notify.Subscriptions
	Sender        notify.Sender
}

// Manager runs generations: one per request id at a time, each in its own
// working directory.
type Manager struct {
	cfg  *config.Config
	log  logrus.FieldLogger
	deps Deps

	cleanupDelay time.Duration
	notifyWG     sync.WaitGroup
}

func NewManager(cfg *config.Config, log logrus.FieldLogger, deps Deps) (*Manager, error) {
	if deps.Resolver == nil || deps.Fetcher == nil || deps.Prober == nil || deps.Subtitles == nil || deps.Composer == nil {
		return nil, errors.New("task manager: missing pipeline dependency")
	}
	if deps.Store == nil {
		deps.Store = progress.NewMemoryStore()
	}
	if deps.Subscriptions == nil {
		deps.Subscriptions = notify.NewMemorySubscriptions()
	}
	if deps.Sender == nil {
		deps.Sender = notify.NewSender(&config.Config{})
	}
	for _, dir := range []string{cfg.TempRoot, cfg.OutputRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.File("mkdir", dir, err)
		}
	}
	return &Manager{
		cfg:          cfg,
		log:          log,
		deps:         deps,
		cleanupDelay: 500 * time.Millisecond,
	}, nil
}

// Generate runs the whole pipeline for req and blocks until the video is
// rendered. A request whose id is already in flight returns
// already_processing without side effects.
func (m *Manager) Generate(ctx context.Context, req Request) (Result, error) {
	admitted, err := m.admit(req)
	if err != nil {
		return Result{}, err
	}
	if !admitted {
		return Result{Status: StatusAlreadyProcessing, RequestID: req.ID}, nil
	}
	return m.run(ctx, req)
}

// GenerateAsync admits req and runs it in the background. The artifact is
// later collected through OutputPath.
func (m *Manager) GenerateAsync(req Request) (Result, error) {
	admitted, err := m.admit(req)
	if err != nil {
		return Result{}, err
	}
	if !admitted {
		return Result{Status: StatusAlreadyProcessing, RequestID: req.ID}, nil
	}
	go m.run(context.Background(), req)
	return Result{Status: StatusStarted, RequestID: req.ID}, nil
}

func (m *Manager) admit(req Request) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	if !m.deps.Store.Begin(req.ID) {
		m.log.WithField("request_id", req.ID).Info("request already processing")
		return false, nil
	}
	return true, nil
}

// Poll streams the progress of requestID until it reaches a terminal state
// or ctx is done.
func (m *Manager) Poll(ctx context.Context, requestID string) <-chan progress.Record {
	return progress.Poll(ctx, m.deps.Store, requestID, m.cfg.PollInterval)
}

// Subscribe registers a push endpoint notified once requestID completes.
func (m *Manager) Subscribe(requestID string, sub notify.Subscription) {
	m.deps.Subscriptions.Put(requestID, sub)
}

// OutputPath returns the rendered file of requestID if it exists.
func (m *Manager) OutputPath(requestID string) (string, error) {
	filename := outputName(requestID)
	if filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid request id")
	}
	fullPath := filepath.Join(m.cfg.OutputRoot, filename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found")
	}
	return fullPath, nil
}

func outputName(requestID string) string {
	return "video_" + requestID + ".mp4"
}

func (m *Manager) workDir(requestID string) string {
	return filepath.Join(m.cfg.TempRoot, requestID)
}

// run is the single top-level handler: every stage failure is recorded on
// the progress record, then the working directory is cleaned up.
func (m *Manager) run(ctx context.Context, req Request) (Result, error) {
	log := m.log.WithField("request_id", req.ID)
	tr := &tracker{store: m.deps.Store, requestID: req.ID}
	tr.publish(progress.StageStarting, 5)
	log.Info("generation started")

	start := time.Now()
	out, err := m.pipeline(ctx, req, tr, log)
	if err != nil {
		tr.fail(err)
		log.WithError(err).WithField("kind", apperr.KindOf(err)).Error("generation failed")
		if _, ok := m.deps.Subscriptions.Take(req.ID); ok {
			log.Debug("dropped push subscription of failed request")
		}
		removeAll(m.workDir(req.ID), m.cleanupDelay, log)
		return Result{}, err
	}
	removeAll(m.workDir(req.ID), m.cleanupDelay, log)

	tr.publish(progress.StageCompleted, 100)
	log.WithFields(logrus.Fields{
		"output":  out,
		"elapsed": time.Since(start).Round(time.Millisecond).String(),
	}).Info("generation completed")
	m.notifyCompleted(req.ID, log)

	return Result{Status: StatusCompleted, RequestID: req.ID, OutputPath: out}, nil
}

func (m *Manager) pipeline(ctx context.Context, req Request, tr *tracker, log logrus.FieldLogger) (string, error) {
	dir := m.workDir(req.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperr.File("mkdir", dir, err)
	}

	tr.publish(progress.StageFetching, 10)
	verses, err := m.deps.Resolver.Resolve(ctx, req.Query())
	if err != nil {
		return "", err
	}
	log.WithField("verses", len(verses)).Debug("verses resolved")

	tr.publish(progress.StageDownloading, 20)
	background := filepath.Join(dir, "background.mp4")
	if err := m.deps.Fetcher.Background(ctx, req.BackgroundSource, m.cfg.FallbackBackground, background); err != nil {
		return "", err
	}

	tr.publish(progress.StageProcessingAudio, 30)
	width, height := req.Canvas()
	opts := subtitle.Options{
		Width:           width,
		Height:          height,
		SourceFont:      m.cfg.FontSource,
		TranslationFont: m.cfg.FontTranslation,
		SourceSize:      float64(width) * sourceFontRatio,
		TranslationSize: float64(width) * translationFontRatio,
	}
	audio := make([]string, len(verses))
	images := make([]string, len(verses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.cfg.MaxConcurrency))
	var mu sync.Mutex
	done := 0
	for i := range verses {
		i := i
		g.Go(func() error {
			v := &verses[i]
			audio[i] = filepath.Join(dir, fmt.Sprintf("audio_%d.mp3", v.Number))
			images[i] = filepath.Join(dir, fmt.Sprintf("sub_%d.png", v.Number))
			if err := m.prepareVerse(gctx, v, audio[i], images[i], opts); err != nil {
				return fmt.Errorf("ayah %d: %w", v.Number, err)
			}
			mu.Lock()
			done++
			tr.publish(progress.StageProcessingAudio, 30+19*done/len(verses))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	tl, err := timeline.Build(verses)
	if err == nil {
		err = tl.Validate()
	}
	if err != nil {
		return "", apperr.Composition(err)
	}

	tr.publish(progress.StageRendering, 50)
	comp := ffmpeg.Composition{
		Background: background,
		Audio:      audio,
		Overlays:   make([]ffmpeg.Overlay, len(tl)),
		Width:      width,
		Height:     height,
		Duration:   tl.Total(),
		Output:     filepath.Join(m.cfg.OutputRoot, outputName(req.ID)),
	}
	for i, e := range tl {
		comp.Overlays[i] = ffmpeg.Overlay{Path: images[i], Start: e.Start, End: e.End}
	}

	rctx := ctx
	if m.cfg.FFTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, m.cfg.FFTimeout)
		defer cancel()
	}
	err = m.deps.Composer.Compose(rctx, comp, func(p int) {
		tr.publish(progress.StageRendering, p)
	})
	if err != nil {
		os.Remove(comp.Output)
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Composition(err)
		}
		return "", err
	}
	return comp.Output, nil
}

// prepareVerse downloads and probes the recitation, then draws the overlay.
func (m *Manager) prepareVerse(ctx context.Context, v *quran.Verse, audioPath, imagePath string, opts subtitle.Options) error {
	if err := m.deps.Fetcher.Download(ctx, v.AudioSource, audioPath); err != nil {
		return err
	}
	d, err := m.deps.Prober.Duration(ctx, audioPath)
	if err != nil {
		return err
	}
	v.Duration = d
	if err := m.deps.Subtitles.Render(v.SourceText, v.TranslationText, imagePath, opts); err != nil {
		return apperr.File("render", imagePath, err)
	}
	return nil
}

// notifyCompleted fires the completion push, if anyone subscribed, without
// blocking the caller. The subscription is consumed either way.
func (m *Manager) notifyCompleted(requestID string, log logrus.FieldLogger) {
	sub, ok := m.deps.Subscriptions.Take(requestID)
	if !ok {
		return
	}
	m.notifyWG.Add(1)
	go func() {
		defer m.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := m.deps.Sender.Send(ctx, sub, notify.CompletedPayload); err != nil {
			log.WithError(err).Warn("sending completion notification failed")
		}
	}()
}

// waitNotifications blocks until in-flight pushes have been attempted.
func (m *Manager) waitNotifications() {
	m.notifyWG.Wait()
}

// Start launches the background sweeper for unclaimed outputs.
func (m *Manager) Start(ctx context.Context) {
	m.log.WithField("lifetime", m.cfg.OutputLocalLifetime.String()).Info("task manager started")
	go m.cleanupLoop(ctx)
}

// cleanupLoop periodically removes old output files and stale records.
func (m *Manager) cleanupLoop(ctx context.Context) {
	interval := m.cfg.OutputLocalLifetime / 4
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("cleanup loop shutting down")
			return
		case <-ticker.C:
			m.sweep(time.Now().Add(-m.cfg.OutputLocalLifetime))
		}
	}
}

type expirer interface {
	Expire(cutoff time.Time) int
}

func (m *Manager) sweep(cutoff time.Time) {
	entries, err := os.ReadDir(m.cfg.OutputRoot)
	if err != nil {
		m.log.WithError(err).Warn("could not list output directory")
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(m.cfg.OutputRoot, e.Name())
		m.log.WithField("path", path).Info("cleaning up old output file")
		if err := os.Remove(path); err != nil {
			m.log.WithField("path", path).WithError(err).Warn("could not remove old output")
		}
	}
	if ex, ok := m.deps.Store.(expirer); ok {
		ex.Expire(cutoff)
	}
	if ex, ok := m.deps.Subscriptions.(expirer); ok {
		if n := ex.Expire(cutoff); n > 0 {
			m.log.WithField("count", n).Info("expired unused push subscriptions")
		}
	}
}

// tracker publishes progress for one run. Percentages never go backwards.
type tracker struct {
	store     progress.Store
	requestID string

	mu  sync.Mutex
	pct int
}

func (t *tracker) publish(stage progress.Stage, pct int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pct < t.pct {
		pct = t.pct
	}
	if pct > 100 {
		pct = 100
	}
	t.pct = pct
	t.store.Save(progress.Record{RequestID: t.requestID, Stage: stage, Percentage: pct, UpdatedAt: time.Now()})
}

func (t *tracker) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store.Save(progress.Record{
		RequestID:  t.requestID,
		Stage:      progress.StageFailed,
		Percentage: t.pct,
		Error:      err.Error(),
		UpdatedAt:  time.Now(),
	})
}
