// Package config provides configuration loading from environment variables
// and an optional .env file.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrBotTokenRequired is returned when TELEGRAM_BOT_TOKEN is not set.
	ErrBotTokenRequired = errors.New("config: TELEGRAM_BOT_TOKEN is required")
	// ErrInvalidLayout is returned when the padding percentages leave no room for content.
	ErrInvalidLayout = errors.New("config: padding leaves no room for content")
)

// Config holds all configuration for the application.
type Config struct {
	// Telegram settings
	TelegramBotToken    string        `env:"TELEGRAM_BOT_TOKEN, required" json:"-"` // Masked in JSON
	TelegramHTTPTimeout time.Duration `env:"TELEGRAM_HTTP_TIMEOUT, default=2m" json:"telegram_http_timeout" validate:"gt=0"`
	TelegramPollTimeout int           `env:"TELEGRAM_POLL_TIMEOUT_SEC, default=30" json:"telegram_poll_timeout_sec" validate:"min=0,max=50"`

	// Process settings
	LockFile        string        `env:"LOCK_FILE, default=bot.lock" json:"lock_file" validate:"required"`
	HealthPort      int           `env:"HEALTH_PORT, default=0" json:"health_port" validate:"min=0,max=65535"` // 0 disables the endpoint
	TempDir         string        `env:"TEMP_DIR" json:"temp_dir"`
	StaleWorkdirAge time.Duration `env:"STALE_WORKDIR_AGE, default=6h" json:"stale_workdir_age" validate:"gte=0"`
	DrainTimeout    time.Duration `env:"SHUTDOWN_DRAIN_TIMEOUT, default=30s" json:"shutdown_drain_timeout" validate:"gte=0"`

	// Layout settings
	ContentRatioW    int    `env:"CONTENT_RATIO_W, default=5" json:"content_ratio_w" validate:"min=1"`
	ContentRatioH    int    `env:"CONTENT_RATIO_H, default=7" json:"content_ratio_h" validate:"min=1"`
	CanvasRatioW     int    `env:"CANVAS_RATIO_W, default=9" json:"canvas_ratio_w" validate:"min=1"`
	CanvasRatioH     int    `env:"CANVAS_RATIO_H, default=16" json:"canvas_ratio_h" validate:"min=1"`
	CanvasHeight     int    `env:"CANVAS_HEIGHT, default=1920" json:"canvas_height" validate:"min=16,max=8192"`
	SidePaddingPct   int    `env:"SIDE_PADDING_PCT, default=6" json:"side_padding_pct" validate:"min=0,max=49"`
	TopPaddingPct    int    `env:"TOP_PADDING_PCT, default=25" json:"top_padding_pct" validate:"min=0,max=99"`
	BottomPaddingPct int    `env:"BOTTOM_PADDING_PCT, default=5" json:"bottom_padding_pct" validate:"min=0,max=99"`
	PadColor         string `env:"PAD_COLOR, default=white" json:"pad_color" validate:"required"`

	// Caption settings
	CaptionMaxLineChars int    `env:"CAPTION_MAX_LINE_CHARS, default=50" json:"caption_max_line_chars" validate:"min=1"`
	CaptionBaseY        int    `env:"CAPTION_BASE_Y, default=396" json:"caption_base_y" validate:"min=0"`
	CaptionLineStep     int    `env:"CAPTION_LINE_STEP, default=50" json:"caption_line_step" validate:"min=0"`
	CaptionMarginX      int    `env:"CAPTION_MARGIN_X, default=13" json:"caption_margin_x" validate:"min=0"`
	CaptionFontFile     string `env:"CAPTION_FONT_FILE, default=/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf" json:"caption_font_file"`
	CaptionFontSize     int    `env:"CAPTION_FONT_SIZE, default=45" json:"caption_font_size" validate:"min=1"`
	CaptionFontColor    string `env:"CAPTION_FONT_COLOR, default=#0F1419" json:"caption_font_color" validate:"required"`
	CaptionLineSpacing  int    `env:"CAPTION_LINE_SPACING, default=8" json:"caption_line_spacing" validate:"min=0"`

	// Delivery settings
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES, default=52428800" json:"max_upload_bytes" validate:"min=1"`

	// Download settings
	DownloadTimeout       time.Duration `env:"DOWNLOAD_TIMEOUT, default=5m" json:"download_timeout" validate:"gt=0"`
	DownloadSocketTimeout int           `env:"DOWNLOAD_SOCKET_TIMEOUT_SEC, default=30" json:"download_socket_timeout_sec" validate:"min=1"`
	DownloadRetries       int           `env:"DOWNLOAD_RETRIES, default=5" json:"download_retries" validate:"min=0"`
	DownloadNoWatermark   bool          `env:"DOWNLOAD_NO_WATERMARK, default=true" json:"download_no_watermark"`

	// External tools
	StageTimeout time.Duration `env:"STAGE_TIMEOUT, default=5m" json:"stage_timeout" validate:"gt=0"`
	FFmpegPath   string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath  string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	YtDLPPath    string        `env:"YTDLP_PATH, default=yt-dlp" json:"ytdlp_path"`

	// Optional S3 archive settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads an optional .env file from the working directory, then
// configuration from environment variables using go-envconfig.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}
	return load(envconfig.OsLookuper())
}

func load(lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "TELEGRAM_BOT_TOKEN") {
			return nil, ErrBotTokenRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return ErrBotTokenRequired
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if 2*c.SidePaddingPct >= 100 || c.TopPaddingPct+c.BottomPaddingPct >= 100 {
		return fmt.Errorf("%w: side=%d%% top=%d%% bottom=%d%%",
			ErrInvalidLayout, c.SidePaddingPct, c.TopPaddingPct, c.BottomPaddingPct)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stdout)
}

func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{TempDir: %s, LockFile: %s, HealthPort: %d, Canvas: %dx%d@%d:%d, Content: %d:%d, Padding: %d/%d/%d%%, MaxUploadBytes: %d, DownloadTimeout: %s, StageTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.TempDir,
		c.LockFile,
		c.HealthPort,
		c.CanvasRatioW*c.CanvasHeight/max(c.CanvasRatioH, 1), c.CanvasHeight, c.CanvasRatioW, c.CanvasRatioH,
		c.ContentRatioW, c.ContentRatioH,
		c.SidePaddingPct, c.TopPaddingPct, c.BottomPaddingPct,
		c.MaxUploadBytes,
		c.DownloadTimeout,
		c.StageTimeout,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
