// Package media wraps the ffmpeg and ffprobe command line tools used by the
// transform pipeline.
package media

import (
	"context"

	"github.com/404FinnNotFound/TiktokBot123/internal/geometry"
	"github.com/404FinnNotFound/TiktokBot123/internal/metadata"
)

// Processor defines the media-tool operations the pipeline depends on.
// Every transform reads src and writes a new file at dst; src is never modified.
type Processor interface {
	// Probe returns the width and height of the first video stream.
	Probe(ctx context.Context, path string) (geometry.Dimensions, error)

	// ReadTags returns the container and stream description of a file,
	// including its metadata tags.
	ReadTags(ctx context.Context, path string) (*ProbeResult, error)

	// Crop cuts rect out of every frame. Audio is copied unchanged.
	Crop(ctx context.Context, src, dst string, rect geometry.Rect) error

	// ScalePad scales frames to content and pads them onto canvas with the
	// given fill color, placing content at (pad.Left, pad.Top).
	ScalePad(ctx context.Context, src, dst string, content, canvas geometry.Dimensions, pad geometry.Padding, color string) error

	// RewriteTags copies all streams without re-encoding and writes tags.
	RewriteTags(ctx context.Context, src, dst string, tags metadata.TagSet) error

	// DrawText burns a drawtext filter expression into the video.
	DrawText(ctx context.Context, src, dst, filter string) error
}
