package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/404FinnNotFound/TiktokBot123/internal/caption"
	"github.com/404FinnNotFound/TiktokBot123/internal/geometry"
	"github.com/404FinnNotFound/TiktokBot123/internal/metadata"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestVideo creates a short solid color video with silent audio.
func createTestVideo(t *testing.T, path string, width, height int) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=red:s=%dx%d:d=0.5", width, height),
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=mono:d=0.5",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegProcessor(t *testing.T) {
	t.Run("default paths", func(t *testing.T) {
		p := NewFFmpegProcessor("", "")
		if p.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", p.ffmpegPath)
		}
		if p.ffprobePath != "ffprobe" {
			t.Errorf("expected default path 'ffprobe', got %q", p.ffprobePath)
		}
	})

	t.Run("custom paths", func(t *testing.T) {
		p := NewFFmpegProcessor("/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffprobe")
		if p.ffmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", p.ffmpegPath)
		}
		if p.ffprobePath != "/opt/ffmpeg/bin/ffprobe" {
			t.Errorf("expected custom path, got %q", p.ffprobePath)
		}
	})
}

func TestProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	src := filepath.Join(tmpDir, "probe.mp4")
	createTestVideo(t, src, 96, 160)

	dims, err := p.Probe(context.Background(), src)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if dims.Width != 96 || dims.Height != 160 {
		t.Errorf("expected 96x160, got %s", dims)
	}

	t.Run("non-existent file", func(t *testing.T) {
		_, err := p.Probe(context.Background(), filepath.Join(tmpDir, "missing.mp4"))
		if !errors.Is(err, ErrFFprobeExecution) {
			t.Errorf("expected ErrFFprobeExecution, got %v", err)
		}
	})

	t.Run("not a video", func(t *testing.T) {
		txt := filepath.Join(tmpDir, "notes.txt")
		if err := os.WriteFile(txt, []byte("hello"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Probe(context.Background(), txt); err == nil {
			t.Error("expected error for non-video input, got nil")
		}
	})
}

func TestCrop(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	ctx := context.Background()

	src := filepath.Join(tmpDir, "source.mp4")
	dst := filepath.Join(tmpDir, "cropped.mp4")
	createTestVideo(t, src, 120, 210)

	rect, err := geometry.CropRect(geometry.Dimensions{Width: 120, Height: 210}, 5, 7)
	if err != nil {
		t.Fatalf("CropRect failed: %v", err)
	}
	if err := p.Crop(ctx, src, dst, rect); err != nil {
		t.Fatalf("Crop failed: %v", err)
	}

	verifyDimensions(t, p, dst, rect.Width, rect.Height)

	if _, err := os.Stat(src); err != nil {
		t.Errorf("source should be left in place: %v", err)
	}

	t.Run("invalid rect", func(t *testing.T) {
		err := p.Crop(ctx, src, dst, geometry.Rect{Width: 0, Height: 10})
		if !errors.Is(err, ErrInvalidDimensions) {
			t.Errorf("expected ErrInvalidDimensions, got %v", err)
		}
	})
}

func TestScalePad(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")

	src := filepath.Join(tmpDir, "source.mp4")
	dst := filepath.Join(tmpDir, "padded.mp4")
	createTestVideo(t, src, 100, 140)

	canvas := geometry.CanvasSize(320, 9, 16)
	pad, content, err := geometry.PadLayout(canvas, 5, 7, 6, 25, 5)
	if err != nil {
		t.Fatalf("PadLayout failed: %v", err)
	}
	// libx264 needs even sides
	content.Width -= content.Width % 2
	content.Height -= content.Height % 2

	if err := p.ScalePad(context.Background(), src, dst, content, canvas, pad, "white"); err != nil {
		t.Fatalf("ScalePad failed: %v", err)
	}

	verifyDimensions(t, p, dst, canvas.Width, canvas.Height)
}

func TestRewriteTags(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	ctx := context.Background()

	src := filepath.Join(tmpDir, "source.mp4")
	dst := filepath.Join(tmpDir, "tagged.mp4")
	createTestVideo(t, src, 64, 64)

	tags := metadata.TagSet{
		"title":         "",
		"creation_time": "2026-03-14 10:00:00",
		"encoder":       "HEVC/H.265",
	}
	if err := p.RewriteTags(ctx, src, dst, tags); err != nil {
		t.Fatalf("RewriteTags failed: %v", err)
	}

	info, err := p.ReadTags(ctx, dst)
	if err != nil {
		t.Fatalf("ReadTags failed: %v", err)
	}
	if len(info.Streams) == 0 {
		t.Fatal("expected streams in probe result")
	}
	if got := info.Format.Tags["title"]; got != "" {
		t.Errorf("expected empty title, got %q", got)
	}
	if _, ok := info.Format.Tags["creation_time"]; !ok {
		t.Error("expected creation_time tag to be written")
	}
}

func TestDrawText(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")

	t.Run("empty filter", func(t *testing.T) {
		err := p.DrawText(context.Background(), "in.mp4", "out.mp4", "  ")
		if !errors.Is(err, ErrEmptyFilter) {
			t.Errorf("expected ErrEmptyFilter, got %v", err)
		}
	})

	t.Run("filter failure surfaces FFmpegError", func(t *testing.T) {
		src := filepath.Join(tmpDir, "source.mp4")
		createTestVideo(t, src, 64, 64)

		style := caption.DefaultStyle()
		style.FontFile = "/nonexistent/font.ttf"
		overlay := caption.Layout("hello", style, 64, 6)

		err := p.DrawText(context.Background(), src, filepath.Join(tmpDir, "out.mp4"), overlay.Filter())
		var ffErr *FFmpegError
		if !errors.As(err, &ffErr) {
			t.Fatalf("expected FFmpegError, got %T: %v", err, err)
		}
		if ffErr.ExitCode() == 0 {
			t.Error("expected non-zero exit code")
		}
	})
}

func TestDrawText_RendersSpecialCharacters(t *testing.T) {
	skipIfNoFFmpeg(t)

	style := caption.DefaultStyle()
	if _, err := os.Stat(style.FontFile); err != nil {
		t.Skipf("font %s not available, skipping test", style.FontFile)
	}
	out, err := exec.Command("ffmpeg", "-hide_banner", "-filters").Output()
	if err != nil || !strings.Contains(string(out), "drawtext") {
		t.Skip("ffmpeg built without drawtext, skipping test")
	}

	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "source.mp4")
	dst := filepath.Join(tmpDir, "captioned.mp4")
	createTestVideo(t, src, 320, 568)

	p := NewFFmpegProcessor("", "")
	overlay := caption.Layout(`it's 50% off: a=b \ done`, style, 320, 6)

	if err := p.DrawText(context.Background(), src, dst, overlay.Filter()); err != nil {
		t.Fatalf("DrawText() error = %v", err)
	}
	verifyDimensions(t, p, dst, 320, 568)
}

func TestRunFFmpeg_Context(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	src := filepath.Join(tmpDir, "source.mp4")
	createTestVideo(t, src, 64, 64)
	rect := geometry.Rect{Width: 32, Height: 32}

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		err := p.Crop(ctx, src, filepath.Join(tmpDir, "cancel.mp4"), rect)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("context timeout", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-1*time.Second))
		defer cancel()

		err := p.Crop(ctx, src, filepath.Join(tmpDir, "timeout.mp4"), rect)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
	})
}

func TestNonExistentSource(t *testing.T) {
	skipIfNoFFmpeg(t)

	p := NewFFmpegProcessor("", "")
	err := p.Crop(context.Background(), "/nonexistent/video.mp4", filepath.Join(t.TempDir(), "out.mp4"), geometry.Rect{Width: 10, Height: 10})
	if _, ok := err.(*FFmpegError); !ok {
		t.Errorf("expected FFmpegError, got %T", err)
	}
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-i", "input.mp4", "-c", "copy", "output.mp4"},
		Stderr: "Error opening input file",
		Err:    fmt.Errorf("exit status 1"),
	}

	errStr := err.Error()
	if !strings.Contains(errStr, "exit status 1") {
		t.Error("Error() should contain underlying error")
	}
	if !strings.Contains(errStr, "Error opening input file") {
		t.Error("Error() should contain stderr")
	}

	unwrapped := err.Unwrap()
	if unwrapped == nil || unwrapped.Error() != "exit status 1" {
		t.Errorf("Unwrap() returned wrong error: %v", unwrapped)
	}
	if err.ExitCode() != -1 {
		t.Errorf("expected -1 for non-exec error, got %d", err.ExitCode())
	}
}

// Helper functions

func verifyDimensions(t *testing.T, p *FFmpegProcessor, path string, expectedW, expectedH int) {
	t.Helper()

	dims, err := p.Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if dims.Width != expectedW || dims.Height != expectedH {
		t.Errorf("expected dimensions %dx%d, got %s", expectedW, expectedH, dims)
	}
}
