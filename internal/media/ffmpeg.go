package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/404FinnNotFound/TiktokBot123/internal/geometry"
	"github.com/404FinnNotFound/TiktokBot123/internal/metadata"
)

// Static errors for media operations.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when ffprobe reports no usable video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrEmptyFilter is returned when a drawtext filter is empty.
	ErrEmptyFilter = errors.New("empty filter expression")
)

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegProcessor(ffmpegPath, ffprobePath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// ProbeResult is the subset of ffprobe JSON output the bot reads.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes one stream of a container.
type ProbeStream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Tags      map[string]string `json:"tags"`
}

// ProbeFormat captures container-level metadata.
type ProbeFormat struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	Tags       map[string]string `json:"tags"`
}

// Probe returns the dimensions of the first video stream of path.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (geometry.Dimensions, error) {
	out, err := p.runFFprobe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)
	if err != nil {
		return geometry.Dimensions{}, err
	}

	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return geometry.Dimensions{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(result.Streams) == 0 {
		return geometry.Dimensions{}, ErrNoVideoStream
	}

	dims := geometry.Dimensions{Width: result.Streams[0].Width, Height: result.Streams[0].Height}
	if !dims.Valid() {
		return geometry.Dimensions{}, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, dims.Width, dims.Height)
	}
	return dims, nil
}

// ReadTags returns the full format and stream description of path.
func (p *FFmpegProcessor) ReadTags(ctx context.Context, path string) (*ProbeResult, error) {
	out, err := p.runFFprobe(ctx,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}

	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &result, nil
}

// Crop cuts rect out of every frame of src and writes dst.
func (p *FFmpegProcessor) Crop(ctx context.Context, src, dst string, rect geometry.Rect) error {
	if rect.Width <= 0 || rect.Height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, rect.Width, rect.Height)
	}

	filter := fmt.Sprintf("crop=%d:%d:%d:%d", rect.Width, rect.Height, rect.X, rect.Y)
	return p.runFilter(ctx, src, dst, filter)
}

// ScalePad scales src to content and pads it onto canvas.
func (p *FFmpegProcessor) ScalePad(ctx context.Context, src, dst string, content, canvas geometry.Dimensions, pad geometry.Padding, color string) error {
	if !content.Valid() || !canvas.Valid() {
		return fmt.Errorf("%w: content=%s, canvas=%s", ErrInvalidDimensions, content, canvas)
	}
	if color == "" {
		color = "white"
	}

	filter := strings.Join([]string{
		fmt.Sprintf("scale=%d:%d", content.Width, content.Height),
		fmt.Sprintf("pad=%d:%d:%d:%d:color=%s", canvas.Width, canvas.Height, pad.Left, pad.Top, color),
	}, ",")
	return p.runFilter(ctx, src, dst, filter)
}

// RewriteTags stream-copies src to dst replacing container tags.
func (p *FFmpegProcessor) RewriteTags(ctx context.Context, src, dst string, tags metadata.TagSet) error {
	args := []string{
		"-i", src,
		"-c", "copy", // No re-encode
	}
	args = append(args, tags.Args()...)
	args = append(args, "-y", dst)
	return p.runFFmpeg(ctx, args)
}

// DrawText applies a drawtext filter expression to src and writes dst.
func (p *FFmpegProcessor) DrawText(ctx context.Context, src, dst, filter string) error {
	if strings.TrimSpace(filter) == "" {
		return ErrEmptyFilter
	}
	return p.runFilter(ctx, src, dst, filter)
}

// runFilter re-encodes video through a single -vf chain, copying audio.
func (p *FFmpegProcessor) runFilter(ctx context.Context, src, dst, filter string) error {
	args := []string{
		"-i", src, // Input file
		"-vf", filter, // Video filter
		"-c:a", "copy", // Copy audio stream without re-encoding
		"-y", // Overwrite output file
		dst,
	}
	return p.runFFmpeg(ctx, args)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// runFFprobe executes ffprobe and returns its stdout.
func (p *FFmpegProcessor) runFFprobe(ctx context.Context, args ...string) ([]byte, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// ExitCode returns the ffmpeg exit status, or -1 when it did not exit normally.
func (e *FFmpegError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
