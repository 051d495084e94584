// Package pipeline turns a downloaded video into the file delivered to the
// user: crop to the content ratio, pad onto the canvas, rewrite container
// tags and optionally burn in a caption.
//
// Every stage writes a new file next to its input, deletes the input only
// when it succeeds, removes its own partial output when it fails and
// registers the surviving file with a storage.Tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/404FinnNotFound/TiktokBot123/internal/caption"
	"github.com/404FinnNotFound/TiktokBot123/internal/geometry"
	"github.com/404FinnNotFound/TiktokBot123/internal/media"
	"github.com/404FinnNotFound/TiktokBot123/internal/metadata"
	"github.com/404FinnNotFound/TiktokBot123/internal/storage"
)

// Static errors for pipeline stages.
var (
	// ErrProbeFailed is returned when the dimensions of an asset cannot be read.
	ErrProbeFailed = errors.New("probe failed")
	// ErrTransformFailed is returned when the media tool fails to produce a stage output.
	ErrTransformFailed = errors.New("transform failed")
)

// TagSource produces the tag set written by Retag.
type TagSource interface {
	Generate() metadata.TagSet
}

// Compile-time check that the metadata generator can feed Retag.
var _ TagSource = (*metadata.Generator)(nil)

// Config holds the geometry and styling of the Formatted variant.
type Config struct {
	// ContentRatioW and ContentRatioH are the aspect ratio the video is cropped to.
	ContentRatioW int
	ContentRatioH int
	// CanvasRatioW and CanvasRatioH are the aspect ratio of the output canvas.
	CanvasRatioW int
	CanvasRatioH int
	// CanvasHeight is the output height in pixels.
	CanvasHeight int
	// SidePaddingPct, TopPaddingPct and BottomPaddingPct are percentages of the canvas.
	SidePaddingPct   int
	TopPaddingPct    int
	BottomPaddingPct int
	// PadColor fills the padding.
	PadColor string
	// Caption styles the overlay text.
	Caption caption.Style
	// StageTimeout bounds every media tool invocation. Zero disables it.
	StageTimeout time.Duration
}

// DefaultConfig returns the stock white-format layout: 5:7 content on a
// 1080x1920 white canvas.
func DefaultConfig() Config {
	return Config{
		ContentRatioW:    5,
		ContentRatioH:    7,
		CanvasRatioW:     9,
		CanvasRatioH:     16,
		CanvasHeight:     1920,
		SidePaddingPct:   6,
		TopPaddingPct:    25,
		BottomPaddingPct: 5,
		PadColor:         "white",
		Caption:          caption.DefaultStyle(),
		StageTimeout:     5 * time.Minute,
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig replaces the default layout.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithTagSource replaces the default metadata generator.
func WithTagSource(src TagSource) Option {
	return func(p *Pipeline) {
		p.tags = src
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline runs the transform stages against a media.Processor.
type Pipeline struct {
	proc    media.Processor
	tracker storage.Tracker
	tags    TagSource
	cfg     Config
	logger  *slog.Logger
}

// New creates a Pipeline. tracker receives every stage output.
func New(proc media.Processor, tracker storage.Tracker, opts ...Option) *Pipeline {
	p := &Pipeline{
		proc:    proc,
		tracker: tracker,
		tags:    metadata.NewGenerator(),
		cfg:     DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the layout the pipeline renders with.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// DownloadOnly keeps the original framing and only rewrites the tags.
func (p *Pipeline) DownloadOnly(ctx context.Context, a Asset) (Asset, error) {
	if _, err := p.Probe(ctx, a); err != nil {
		return Asset{}, err
	}
	return p.Retag(ctx, a)
}

// Formatted crops, pads and retags the asset.
func (p *Pipeline) Formatted(ctx context.Context, a Asset) (Asset, error) {
	cropped, err := p.Crop(ctx, a)
	if err != nil {
		return Asset{}, err
	}
	bordered, err := p.Pad(ctx, cropped)
	if err != nil {
		return Asset{}, err
	}
	return p.Retag(ctx, bordered)
}

// Caption burns text into the asset unless text is the skip keyword, in
// which case the asset is returned unchanged.
func (p *Pipeline) Caption(ctx context.Context, a Asset, text string) (Asset, error) {
	if caption.IsSkip(text) {
		p.logger.Info("caption skipped",
			slog.Int64("user_id", a.Owner),
		)
		return a, nil
	}
	return p.Overlay(ctx, a, text)
}

// Probe returns the dimensions of the asset.
func (p *Pipeline) Probe(ctx context.Context, a Asset) (geometry.Dimensions, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	dims, err := p.proc.Probe(ctx, a.Path)
	if err != nil {
		return geometry.Dimensions{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	return dims, nil
}

// Crop cuts the largest centered region of the content ratio.
func (p *Pipeline) Crop(ctx context.Context, a Asset) (Asset, error) {
	dims, err := p.Probe(ctx, a)
	if err != nil {
		return Asset{}, err
	}
	rect, err := geometry.CropRect(dims, p.cfg.ContentRatioW, p.cfg.ContentRatioH)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	p.logger.Debug("cropping video",
		slog.Int64("user_id", a.Owner),
		slog.String("source", dims.String()),
		slog.Int("x", rect.X),
		slog.Int("y", rect.Y),
		slog.Int("width", rect.Width),
		slog.Int("height", rect.Height),
	)

	return p.transform(ctx, a, StageCropped, func(ctx context.Context, dst string) error {
		return p.proc.Crop(ctx, a.Path, dst, rect)
	})
}

// Pad scales the asset into the content box and pads it onto the canvas.
func (p *Pipeline) Pad(ctx context.Context, a Asset) (Asset, error) {
	canvas := geometry.CanvasSize(p.cfg.CanvasHeight, p.cfg.CanvasRatioW, p.cfg.CanvasRatioH)
	pad, content, err := geometry.PadLayout(canvas,
		p.cfg.ContentRatioW, p.cfg.ContentRatioH,
		p.cfg.SidePaddingPct, p.cfg.TopPaddingPct, p.cfg.BottomPaddingPct,
	)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: pad layout: %w", ErrTransformFailed, err)
	}

	p.logger.Debug("padding video",
		slog.Int64("user_id", a.Owner),
		slog.String("canvas", canvas.String()),
		slog.String("content", content.String()),
		slog.Int("left", pad.Left),
		slog.Int("top", pad.Top),
	)

	return p.transform(ctx, a, StageBordered, func(ctx context.Context, dst string) error {
		return p.proc.ScalePad(ctx, a.Path, dst, content, canvas, pad, p.cfg.PadColor)
	})
}

// Retag replaces the container tags with a generated set. When the
// existing tags cannot be read the asset is returned unchanged.
func (p *Pipeline) Retag(ctx context.Context, a Asset) (Asset, error) {
	if _, err := p.readTags(ctx, a.Path); err != nil {
		p.logger.Warn("could not read tags, keeping original metadata",
			slog.Int64("user_id", a.Owner),
			slog.String("path", a.Path),
			slog.String("error", err.Error()),
		)
		return a, nil
	}

	tags := p.tags.Generate()
	out, err := p.transform(ctx, a, StageRetagged, func(ctx context.Context, dst string) error {
		return p.proc.RewriteTags(ctx, a.Path, dst, tags)
	})
	if err != nil {
		return Asset{}, err
	}

	result, err := p.readTags(ctx, out.Path)
	if err != nil {
		p.logger.Warn("could not verify rewritten tags",
			slog.Int64("user_id", a.Owner),
			slog.String("path", out.Path),
			slog.String("error", err.Error()),
		)
		return out, nil
	}
	p.logger.Debug("tags rewritten",
		slog.Int64("user_id", a.Owner),
		slog.String("encoder", result.Format.Tags[metadata.KeyEncoder]),
		slog.String("creation_time", result.Format.Tags[metadata.KeyCreationTime]),
	)
	return out, nil
}

// Overlay wraps text and draws it above the content.
func (p *Pipeline) Overlay(ctx context.Context, a Asset, text string) (Asset, error) {
	dims, err := p.Probe(ctx, a)
	if err != nil {
		return Asset{}, err
	}
	overlay := caption.Layout(text, p.cfg.Caption, dims.Width, p.cfg.SidePaddingPct)

	p.logger.Debug("drawing caption",
		slog.Int64("user_id", a.Owner),
		slog.Int("lines", len(overlay.Lines)),
		slog.Int("x", overlay.X),
		slog.Int("y", overlay.Y),
	)

	return p.transform(ctx, a, StageCaptioned, func(ctx context.Context, dst string) error {
		return p.proc.DrawText(ctx, a.Path, dst, overlay.Filter())
	})
}

// transform runs one media tool invocation that turns in into a new file.
func (p *Pipeline) transform(ctx context.Context, in Asset, stage Stage, run func(ctx context.Context, dst string) error) (Asset, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	dst := in.outputPath(stage)
	start := time.Now()
	if err := run(ctx, dst); err != nil {
		p.removePartial(in.Owner, dst)
		return Asset{}, fmt.Errorf("%w: %s: %w", ErrTransformFailed, stage, err)
	}

	out := Asset{Path: dst, Owner: in.Owner, Stage: stage}
	p.tracker.Register(in.Owner, dst)
	p.removeInput(in)

	p.logger.Info("stage completed",
		slog.Int64("user_id", in.Owner),
		slog.String("stage", string(stage)),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (p *Pipeline) readTags(ctx context.Context, path string) (*media.ProbeResult, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	return p.proc.ReadTags(ctx, path)
}

func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.StageTimeout)
}

// removeInput deletes a consumed stage input. The tracker usually got there
// first, so a missing file is fine.
func (p *Pipeline) removeInput(in Asset) {
	if err := os.Remove(in.Path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove stage input",
			slog.Int64("user_id", in.Owner),
			slog.String("path", in.Path),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pipeline) removePartial(owner int64, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove partial output",
			slog.Int64("user_id", owner),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
