// quranvideo/config/config.go
package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	FFBin               string        `mapstructure:"FF_BIN"`
	FFProbeBin          string        `mapstructure:"FFPROBE_BIN"`
	FFTimeout           time.Duration `mapstructure:"FF_TIMEOUT"`
	FFExtraArgs         string        `mapstructure:"FF_EXTRA_ARGS"`
	QuranAPIBase        string        `mapstructure:"QURAN_API_BASE"`
	AudioFallbackBase   string        `mapstructure:"AUDIO_FALLBACK_BASE"`
	DownloadTimeout     time.Duration `mapstructure:"DOWNLOAD_TIMEOUT"`
	MaxDownloadSize     int64         `mapstructure:"MAX_DOWNLOAD_SIZE"`
	RetryMax            int           `mapstructure:"RETRY_MAX"`
	RetryBaseDelay      time.Duration `mapstructure:"RETRY_BASE_DELAY"`
	RetryMaxDelay       time.Duration `mapstructure:"RETRY_MAX_DELAY"`
	RetryMultiplier     float64       `mapstructure:"RETRY_MULTIPLIER"`
	MaxConcurrency      int           `mapstructure:"MAX_CONCURRENCY"`
	TempRoot            string        `mapstructure:"TEMP_ROOT"`
	OutputRoot          string        `mapstructure:"OUTPUT_ROOT"`
	OutputLocalLifetime time.Duration `mapstructure:"OUTPUT_LOCAL_LIFETIME"`
	FallbackBackground  string        `mapstructure:"FALLBACK_BACKGROUND"`
	FontSource          string        `mapstructure:"FONT_SOURCE"`
	FontTranslation     string        `mapstructure:"FONT_TRANSLATION"`
	PollInterval        time.Duration `mapstructure:"POLL_INTERVAL"`
	ThrottleCPU         float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem     int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk    int64         `mapstructure:"THROTTLE_FREEDISK"`
	AuthEnable          bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey             string        `mapstructure:"AUTH_KEY"`
	Port                string        `mapstructure:"PORT"`
	VAPIDPublicKey      string        `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey     string        `mapstructure:"VAPID_PRIVATE_KEY"`
	VAPIDSubject        string        `mapstructure:"VAPID_SUBJECT"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	LogFormat           string        `mapstructure:"LOG_FORMAT"`
}

// stringToDurationHookFunc parses Go duration strings such as "12m3s".
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc parses human-readable sizes such as "200MB".
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		if err := size.UnmarshalText([]byte(data.(string))); err != nil {
			// Not a size string, let the weak decoder have a go.
			return data, nil
		}
		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("FF_TIMEOUT", "30m")
	vp.SetDefault("FF_EXTRA_ARGS", "-preset veryfast -movflags +faststart")
	vp.SetDefault("QURAN_API_BASE", "http://api.alquran.cloud/v1")
	vp.SetDefault("AUDIO_FALLBACK_BASE", "https://everyayah.com/data")
	vp.SetDefault("DOWNLOAD_TIMEOUT", "60s")
	vp.SetDefault("MAX_DOWNLOAD_SIZE", "500MB")
	vp.SetDefault("RETRY_MAX", 3)
	vp.SetDefault("RETRY_BASE_DELAY", "1s")
	vp.SetDefault("RETRY_MAX_DELAY", "10s")
	vp.SetDefault("RETRY_MULTIPLIER", 2.0)
	vp.SetDefault("MAX_CONCURRENCY", 4)
	vp.SetDefault("TEMP_ROOT", "temp")
	vp.SetDefault("OUTPUT_ROOT", "outputs")
	vp.SetDefault("OUTPUT_LOCAL_LIFETIME", "1h")
	vp.SetDefault("FALLBACK_BACKGROUND", "fallback video/default_background.mp4")
	vp.SetDefault("FONT_SOURCE", "fonts/Amiri-Regular.ttf")
	vp.SetDefault("FONT_TRANSLATION", "fonts/arial.ttf")
	vp.SetDefault("POLL_INTERVAL", "500ms")
	vp.SetDefault("THROTTLE_CPU", 10.0)
	vp.SetDefault("THROTTLE_FREEMEM", "200MB")
	vp.SetDefault("THROTTLE_FREEDISK", "500MB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "")
	vp.SetDefault("PORT", "3000")
	vp.SetDefault("VAPID_PUBLIC_KEY", "")
	vp.SetDefault("VAPID_PRIVATE_KEY", "")
	vp.SetDefault("VAPID_SUBJECT", "")
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("LOG_FORMAT", "json")

	vp.SetConfigName("quranvideo_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/quranvideo/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("QURANVIDEO")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
