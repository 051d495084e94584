// Package download fetches TikTok videos with the yt-dlp command line tool.
package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Static errors for downloads.
var (
	// ErrDownloadFailed is returned when yt-dlp exits with an error or produces no file.
	ErrDownloadFailed = errors.New("download failed")
	// ErrTimedOut is returned when the download exceeds its deadline or yt-dlp reports a network timeout.
	ErrTimedOut = errors.New("download timed out")
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	defaultReferer   = "https://www.tiktok.com/"

	// noWatermarkFormat prefers formats TikTok does not mark as watermarked.
	noWatermarkFormat = "best[format_note!*=watermarked]/best"

	// printTemplate makes yt-dlp report the final file once post-processing is done.
	printTemplate = "after_move:%(id)s\t%(duration)s\t%(filepath)s"
)

// Options configures the yt-dlp invocation.
type Options struct {
	// Binary is the yt-dlp executable. Defaults to "yt-dlp".
	Binary string
	// Timeout bounds a whole download including post-processing.
	Timeout time.Duration
	// SocketTimeout is passed as --socket-timeout, in seconds.
	SocketTimeout int
	// Retries is used for --retries, --fragment-retries and --file-access-retries.
	Retries int
	// NoWatermark selects the non-watermarked format when TikTok offers one.
	NoWatermark bool
	// UserAgent and Referer are sent with every request.
	UserAgent string
	Referer   string
}

// DefaultOptions returns the stock downloader settings.
func DefaultOptions() Options {
	return Options{
		Binary:        "yt-dlp",
		Timeout:       5 * time.Minute,
		SocketTimeout: 30,
		Retries:       5,
		NoWatermark:   true,
		UserAgent:     defaultUserAgent,
		Referer:       defaultReferer,
	}
}

// Result describes a finished download.
type Result struct {
	// Path is the mp4 file inside the requested directory.
	Path string
	// ID is the TikTok video id.
	ID string
	// Duration is the reported length of the video, zero when unknown.
	Duration time.Duration
	// Size is the file size in bytes.
	Size int64
}

// YtDLP downloads videos by running yt-dlp.
type YtDLP struct {
	opts   Options
	logger *slog.Logger
}

// New creates a YtDLP downloader. Zero-valued options fall back to defaults.
func New(opts Options, logger *slog.Logger) *YtDLP {
	def := DefaultOptions()
	if opts.Binary == "" {
		opts.Binary = def.Binary
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.SocketTimeout <= 0 {
		opts.SocketTimeout = def.SocketTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = def.Retries
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Referer == "" {
		opts.Referer = def.Referer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YtDLP{opts: opts, logger: logger}
}

// Download fetches rawURL into dir and returns the resulting mp4 file.
// yt-dlp works in a scratch directory under dir that is always removed, so
// only the finished file is left behind.
func (y *YtDLP) Download(ctx context.Context, rawURL, dir string) (Result, error) {
	scratch, err := os.MkdirTemp(dir, "yt-dlp-")
	if err != nil {
		return Result{}, fmt.Errorf("%w: create scratch dir: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	dCtx, cancel := context.WithTimeout(ctx, y.opts.Timeout)
	defer cancel()

	args := y.args(rawURL, filepath.Join(scratch, "%(id)s.%(ext)s"))

	// #nosec G204 - binary is set by the application, the URL is validated upstream
	cmd := exec.CommandContext(dCtx, y.opts.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return Result{}, y.classify(ctx, dCtx, err, stderr.String())
	}

	res, err := parsePrinted(stdout.String())
	if err != nil || res.Path == "" {
		res.Path, err = onlyFile(scratch)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
		}
	}

	final := filepath.Join(dir, filepath.Base(res.Path))
	if err := os.Rename(res.Path, final); err != nil {
		return Result{}, fmt.Errorf("%w: move download: %w", ErrDownloadFailed, err)
	}
	res.Path = final

	info, err := os.Stat(final)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	res.Size = info.Size()

	y.logger.Info("video downloaded",
		slog.String("video_id", res.ID),
		slog.String("size", humanize.IBytes(uint64(res.Size))),
		slog.Duration("duration", res.Duration),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// args builds the yt-dlp argument vector.
func (y *YtDLP) args(rawURL, outTpl string) []string {
	format := "best"
	if y.opts.NoWatermark {
		format = noWatermarkFormat
	}
	retries := strconv.Itoa(y.opts.Retries)

	args := []string{
		"-f", format,
		"-o", outTpl,
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--socket-timeout", strconv.Itoa(y.opts.SocketTimeout),
		"--retries", retries,
		"--fragment-retries", retries,
		"--file-access-retries", retries,
		"--add-header", "User-Agent:" + y.opts.UserAgent,
		"--add-header", "Referer:" + y.opts.Referer,
		"--recode-video", "mp4",
		"--print", printTemplate,
	}
	return append(args, rawURL)
}

// classify maps a yt-dlp failure to ErrTimedOut or ErrDownloadFailed.
func (y *YtDLP) classify(parent, dCtx context.Context, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("download cancelled: %w", parent.Err())
	case errors.Is(dCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: after %s", ErrTimedOut, y.opts.Timeout)
	case strings.Contains(strings.ToLower(stderr), "timed out"):
		return fmt.Errorf("%w: %s", ErrTimedOut, stderr)
	default:
		return fmt.Errorf("%w: %w: %s", ErrDownloadFailed, err, stderr)
	}
}

// parsePrinted reads the last "id\tduration\tpath" line written by --print.
func parsePrinted(out string) (Result, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return Result{}, errors.New("yt-dlp printed nothing")
	}

	fields := strings.SplitN(last, "\t", 3)
	if len(fields) != 3 {
		return Result{}, fmt.Errorf("unexpected yt-dlp output: %q", last)
	}

	res := Result{ID: fields[0], Path: fields[2]}
	if secs, err := strconv.ParseFloat(fields[1], 64); err == nil {
		res.Duration = time.Duration(secs * float64(time.Second))
	}
	return res, nil
}

// onlyFile returns the single regular file in dir.
func onlyFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read scratch dir: %w", err)
	}
	var found string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if found != "" {
			return "", fmt.Errorf("multiple files found in %s", dir)
		}
		found = filepath.Join(dir, e.Name())
	}
	if found == "" {
		return "", fmt.Errorf("no file found in %s", dir)
	}
	return found, nil
}
