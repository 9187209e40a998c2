// quranvideo/config/config_test.go
package config_test

import (
	"testing"
	"time"

	"quranvideo/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		t.Setenv("QURANVIDEO_PORT", "")
		t.Setenv("QURANVIDEO_MAX_CONCURRENCY", "")
		t.Setenv("QURANVIDEO_RETRY_MAX", "")
		t.Setenv("QURANVIDEO_FF_TIMEOUT", "")
		t.Setenv("QURANVIDEO_MAX_DOWNLOAD_SIZE", "")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, "3000", cfg.Port)
		assert.Equal(t, 4, cfg.MaxConcurrency)
		assert.Equal(t, "ffmpeg", cfg.FFBin)
		assert.Equal(t, "ffprobe", cfg.FFProbeBin)
		assert.Equal(t, 30*time.Minute, cfg.FFTimeout)
		assert.Equal(t, 3, cfg.RetryMax)
		assert.Equal(t, time.Second, cfg.RetryBaseDelay)
		assert.Equal(t, 10*time.Second, cfg.RetryMaxDelay)
		assert.Equal(t, 2.0, cfg.RetryMultiplier)
		assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, int64(500*1024*1024), cfg.MaxDownloadSize)
		assert.Equal(t, "http://api.alquran.cloud/v1", cfg.QuranAPIBase)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Setenv("QURANVIDEO_PORT", "9999")
		t.Setenv("QURANVIDEO_MAX_CONCURRENCY", "1")
		t.Setenv("QURANVIDEO_RETRY_MAX", "5")
		t.Setenv("QURANVIDEO_RETRY_BASE_DELAY", "250ms")
		t.Setenv("QURANVIDEO_MAX_DOWNLOAD_SIZE", "50MB")
		t.Setenv("QURANVIDEO_AUTH_ENABLE", "true")
		t.Setenv("QURANVIDEO_AUTH_KEY", "newsecret")

		cfg, err := config.Load()
		require.NoError(t, err)

		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 1, cfg.MaxConcurrency)
		assert.Equal(t, 5, cfg.RetryMax)
		assert.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
		assert.Equal(t, int64(50*1024*1024), cfg.MaxDownloadSize)
		assert.True(t, cfg.AuthEnable)
		assert.Equal(t, "newsecret", cfg.AuthKey)
	})
}

func TestNewLogger(t *testing.T) {
	log := config.NewLogger(&config.Config{LogLevel: "debug", LogFormat: "text"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	log = config.NewLogger(&config.Config{LogLevel: "nonsense"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}
