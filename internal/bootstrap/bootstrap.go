// Package bootstrap provides dependency initialization for the bot.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/404FinnNotFound/TiktokBot123/internal/caption"
	"github.com/404FinnNotFound/TiktokBot123/internal/config"
	"github.com/404FinnNotFound/TiktokBot123/internal/download"
	"github.com/404FinnNotFound/TiktokBot123/internal/geometry"
	"github.com/404FinnNotFound/TiktokBot123/internal/media"
	"github.com/404FinnNotFound/TiktokBot123/internal/metadata"
	"github.com/404FinnNotFound/TiktokBot123/internal/pipeline"
	"github.com/404FinnNotFound/TiktokBot123/internal/server"
	"github.com/404FinnNotFound/TiktokBot123/internal/session"
	"github.com/404FinnNotFound/TiktokBot123/internal/storage"
	"github.com/404FinnNotFound/TiktokBot123/internal/telegram"
	"github.com/404FinnNotFound/TiktokBot123/internal/workflow"
)

// Dependencies holds all initialized dependencies for the bot process.
type Dependencies struct {
	Temp       *storage.TempManager
	Client     *telegram.Client
	Service    *workflow.Service
	Dispatcher *telegram.Dispatcher
	Health     *server.Handlers
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	temp, err := storage.NewTempManager(cfg.TempDir, logger)
	if err != nil {
		return nil, fmt.Errorf("create temp manager: %w", err)
	}

	// Telegram client; uploads of large videos need a generous HTTP timeout
	client, err := telegram.NewClient(cfg.TelegramBotToken,
		telegram.WithHTTPClient(&http.Client{Timeout: cfg.TelegramHTTPTimeout}),
		telegram.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	transform := pipeline.New(processor, temp,
		pipeline.WithConfig(PipelineConfig(cfg)),
		pipeline.WithTagSource(metadata.NewGenerator()),
		pipeline.WithLogger(logger),
	)

	pc := transform.Config()
	canvas := geometry.CanvasSize(pc.CanvasHeight, pc.CanvasRatioW, pc.CanvasRatioH)
	logger.Info("media pipeline configured",
		slog.String("canvas", canvas.String()),
		slog.String("content_ratio", fmt.Sprintf("%d:%d", pc.ContentRatioW, pc.ContentRatioH)),
		slog.String("pad_color", pc.PadColor),
		slog.Duration("stage_timeout", pc.StageTimeout),
	)

	downloader := download.New(DownloadOptions(cfg), logger)

	opts := []workflow.Option{
		workflow.WithMaxUploadBytes(cfg.MaxUploadBytes),
		workflow.WithLogger(logger),
	}
	archive, err := initArchive(cfg, logger)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		opts = append(opts, workflow.WithArchiver(archive))
	}

	svc := workflow.NewService(client, session.NewMemoryStore(), downloader, transform, temp, opts...)

	dispatcher := telegram.NewDispatcher(client, svc,
		telegram.WithPollTimeout(cfg.TelegramPollTimeout),
		telegram.WithDrainTimeout(cfg.DrainTimeout),
		telegram.WithDispatcherLogger(logger),
	)

	return &Dependencies{
		Temp:       temp,
		Client:     client,
		Service:    svc,
		Dispatcher: dispatcher,
		Health:     server.NewHandlers(svc, temp, logger),
	}, nil
}

// PipelineConfig maps the layout and caption settings onto a pipeline.Config.
func PipelineConfig(cfg *config.Config) pipeline.Config {
	style := caption.DefaultStyle()
	style.MaxLineChars = cfg.CaptionMaxLineChars
	style.BaseY = cfg.CaptionBaseY
	style.LineStep = cfg.CaptionLineStep
	style.MarginX = cfg.CaptionMarginX
	style.FontFile = cfg.CaptionFontFile
	style.FontSize = cfg.CaptionFontSize
	style.FontColor = cfg.CaptionFontColor
	style.LineSpacing = cfg.CaptionLineSpacing

	return pipeline.Config{
		ContentRatioW:    cfg.ContentRatioW,
		ContentRatioH:    cfg.ContentRatioH,
		CanvasRatioW:     cfg.CanvasRatioW,
		CanvasRatioH:     cfg.CanvasRatioH,
		CanvasHeight:     cfg.CanvasHeight,
		SidePaddingPct:   cfg.SidePaddingPct,
		TopPaddingPct:    cfg.TopPaddingPct,
		BottomPaddingPct: cfg.BottomPaddingPct,
		PadColor:         cfg.PadColor,
		Caption:          style,
		StageTimeout:     cfg.StageTimeout,
	}
}

// DownloadOptions maps the download settings onto download.Options.
func DownloadOptions(cfg *config.Config) download.Options {
	opts := download.DefaultOptions()
	opts.Binary = cfg.YtDLPPath
	opts.Timeout = cfg.DownloadTimeout
	opts.SocketTimeout = cfg.DownloadSocketTimeout
	opts.Retries = cfg.DownloadRetries
	opts.NoWatermark = cfg.DownloadNoWatermark
	return opts
}

// initArchive creates the optional S3 archive. It returns nil when S3 is not configured.
func initArchive(cfg *config.Config, logger *slog.Logger) (*storage.S3Archive, error) {
	if !cfg.S3Enabled() {
		logger.Info("delivery archive disabled")
		return nil, nil
	}

	archive, err := storage.NewS3Archive(storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 archive: %w", err)
	}
	logger.Info("delivery archive configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return archive, nil
}
