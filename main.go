package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quranvideo/api"
	"quranvideo/config"
	"quranvideo/fetch"
	"quranvideo/ffmpeg"
	"quranvideo/notify"
	"quranvideo/quran"
	"quranvideo/subtitle"
	"quranvideo/task"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := config.NewLogger(cfg)
	gin.SetMode(gin.ReleaseMode)

	// 2. Pipeline collaborators
	fetcher := fetch.NewClient(cfg, log)
	runner, err := ffmpeg.NewRunner(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize ffmpeg runner: %v", err)
	}

	// 3. Task manager
	manager, err := task.NewManager(cfg, log, task.Deps{
		Resolver:  quran.NewResolver(fetcher, cfg.QuranAPIBase, cfg.AudioFallbackBase),
		Fetcher:   fetcher,
		Prober:    ffmpeg.NewProber(cfg.FFProbeBin),
		Subtitles: subtitle.NewRenderer(log),
		Composer:  runner,
		Sender:    notify.NewSender(cfg),
	})
	if err != nil {
		log.Fatalf("Failed to initialize task manager: %v", err)
	}

	// 4. Router and server
	router := api.SetupRouter(manager, cfg, log)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.Start(ctx)

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s", err)
		}
	}()

	<-ctx.Done()

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	log.Info("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Info("Server exiting")
}
