package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadMap(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return load(envconfig.MapLookuper(env))
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := loadMap(t, map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc"})
	require.NoError(t, err)
	return cfg
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Run("missing TELEGRAM_BOT_TOKEN returns error", func(t *testing.T) {
		_, err := loadMap(t, map[string]string{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBotTokenRequired)
	})

	t.Run("token present succeeds", func(t *testing.T) {
		cfg, err := loadMap(t, map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc"})
		require.NoError(t, err)
		assert.Equal(t, "123:abc", cfg.TelegramBotToken)
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, 2*time.Minute, cfg.TelegramHTTPTimeout)
	assert.Equal(t, 30, cfg.TelegramPollTimeout)
	assert.Equal(t, "bot.lock", cfg.LockFile)
	assert.Equal(t, 0, cfg.HealthPort)
	assert.Empty(t, cfg.TempDir)
	assert.Equal(t, 6*time.Hour, cfg.StaleWorkdirAge)
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)

	assert.Equal(t, 5, cfg.ContentRatioW)
	assert.Equal(t, 7, cfg.ContentRatioH)
	assert.Equal(t, 9, cfg.CanvasRatioW)
	assert.Equal(t, 16, cfg.CanvasRatioH)
	assert.Equal(t, 1920, cfg.CanvasHeight)
	assert.Equal(t, 6, cfg.SidePaddingPct)
	assert.Equal(t, 25, cfg.TopPaddingPct)
	assert.Equal(t, 5, cfg.BottomPaddingPct)
	assert.Equal(t, "white", cfg.PadColor)

	assert.Equal(t, 50, cfg.CaptionMaxLineChars)
	assert.Equal(t, 396, cfg.CaptionBaseY)
	assert.Equal(t, 50, cfg.CaptionLineStep)
	assert.Equal(t, 13, cfg.CaptionMarginX)
	assert.Equal(t, 45, cfg.CaptionFontSize)
	assert.Equal(t, "#0F1419", cfg.CaptionFontColor)
	assert.Equal(t, 8, cfg.CaptionLineSpacing)

	assert.Equal(t, int64(50*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, 5*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, 30, cfg.DownloadSocketTimeout)
	assert.Equal(t, 5, cfg.DownloadRetries)
	assert.True(t, cfg.DownloadNoWatermark)

	assert.Equal(t, 5*time.Minute, cfg.StageTimeout)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, "yt-dlp", cfg.YtDLPPath)

	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := loadMap(t, map[string]string{
		"TELEGRAM_BOT_TOKEN":     "custom-token",
		"TEMP_DIR":               "/custom/temp",
		"HEALTH_PORT":            "8080",
		"CANVAS_HEIGHT":          "1280",
		"PAD_COLOR":              "black",
		"MAX_UPLOAD_BYTES":       "1048576",
		"DOWNLOAD_TIMEOUT":       "90s",
		"SHUTDOWN_DRAIN_TIMEOUT": "5s",
		"DOWNLOAD_NO_WATERMARK":  "false",
		"S3_BUCKET":              "my-bucket",
		"S3_REGION":              "us-east-1",
		"AWS_ACCESS_KEY_ID":      "access-key",
		"AWS_SECRET_ACCESS_KEY":  "secret-key",
		"LOG_FORMAT":             "json",
		"LOG_LEVEL":              "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, 8080, cfg.HealthPort)
	assert.Equal(t, 1280, cfg.CanvasHeight)
	assert.Equal(t, "black", cfg.PadColor)
	assert.Equal(t, int64(1048576), cfg.MaxUploadBytes)
	assert.Equal(t, 90*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 5*time.Second, cfg.DrainTimeout)
	assert.False(t, cfg.DownloadNoWatermark)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.S3Enabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric port", "HEALTH_PORT", "not-a-number"},
		{"bad duration", "STAGE_TIMEOUT", "soon"},
		{"port out of range", "HEALTH_PORT", "70000"},
		{"zero canvas ratio", "CANVAS_RATIO_H", "0"},
		{"long poll too long", "TELEGRAM_POLL_TIMEOUT_SEC", "90"},
		{"bad endpoint", "S3_ENDPOINT", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMap(t, map[string]string{
				"TELEGRAM_BOT_TOKEN": "123:abc",
				tt.key:               tt.val,
			})
			require.Error(t, err)
		})
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "TELEGRAM_BOT_TOKEN=from-file\nLOCK_FILE=file.lock\nLOG_LEVEL=warn\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0600))
	t.Chdir(dir)

	// Values from the environment win over the file.
	t.Setenv("LOG_LEVEL", "error")
	t.Cleanup(func() {
		os.Unsetenv("TELEGRAM_BOT_TOKEN")
		os.Unsetenv("LOCK_FILE")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.TelegramBotToken)
	assert.Equal(t, "file.lock", cfg.LockFile)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestLoad_MissingDotEnvIsIgnored(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.TelegramBotToken)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := validConfig(t)
	cfg.TelegramBotToken = "123456:secret-token"
	cfg.AWSAccessKeyID = "AKIAEXAMPLE"
	cfg.AWSSecretAccessKey = "aws-secret"
	cfg.TempDir = "/tmp/test"
	cfg.S3Bucket = "bucket"
	cfg.S3Region = "region"

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "1080x1920")
	assert.Contains(t, str, "bucket")
	assert.Contains(t, str, "region")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-token")
	assert.NotContains(t, str, "AKIAEXAMPLE")
	assert.NotContains(t, str, "aws-secret")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	var buf bytes.Buffer
	logger := cfg.newLogger(&buf)
	require.NotNil(t, logger)

	logger.Info("test message")
	logger.Debug("hidden")

	// Should have JSON structure
	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	var buf bytes.Buffer
	logger := cfg.newLogger(&buf)
	logger.Debug("visible")

	assert.Contains(t, buf.String(), "msg=visible")
	assert.NotNil(t, cfg.NewLogger())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig(t).Validate())
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.TelegramBotToken = ""
		assert.ErrorIs(t, cfg.Validate(), ErrBotTokenRequired)
	})

	t.Run("side padding fills the canvas", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.SidePaddingPct = 49
		assert.NoError(t, cfg.Validate())

		cfg.SidePaddingPct = 50
		assert.Error(t, cfg.Validate())
	})

	t.Run("vertical padding fills the canvas", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.TopPaddingPct = 60
		cfg.BottomPaddingPct = 40
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidLayout)
	})

	t.Run("zero upload limit", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.MaxUploadBytes = 0
		assert.Error(t, cfg.Validate())
	})
}
