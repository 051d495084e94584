// Package caption lays out overlay text for the drawtext stage: line
// wrapping, anchor coordinates and filter escaping.
package caption

import (
	"fmt"
	"strings"
	"unicode"
)

// Defaults for the caption block placement on a 1080x1920 canvas.
const (
	DefaultMaxLineChars = 50
	DefaultBaseY        = 396
	DefaultLineStep     = 50
	DefaultMarginX      = 13
)

// SkipKeyword is the reply that leaves the video without a caption.
const SkipKeyword = "BLANK"

// IsSkip reports whether text asks to skip the overlay.
func IsSkip(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), SkipKeyword)
}

// Wrap splits text into lines of at most maxLineChars characters, breaking at
// the last space of each prefix and hard-breaking words that do not fit.
// Input that already fits is returned as a single unchanged line.
func Wrap(text string, maxLineChars int) []string {
	if maxLineChars <= 0 {
		maxLineChars = DefaultMaxLineChars
	}

	remaining := []rune(text)
	var lines []string
	for len(remaining) > maxLineChars {
		prefix := []rune(strings.TrimRightFunc(string(remaining[:maxLineChars]), unicode.IsSpace))
		breakAt := lastIndex(prefix, ' ')
		if breakAt <= 0 {
			breakAt = maxLineChars
		}
		lines = append(lines, string(remaining[:breakAt]))
		remaining = []rune(strings.TrimLeftFunc(string(remaining[breakAt:]), unicode.IsSpace))
	}
	return append(lines, string(remaining))
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// AnchorY returns the y coordinate of the text block. The block grows upward
// so the last line stays near baseY.
func AnchorY(lineCount, baseY, lineStep int) int {
	if lineCount < 1 {
		lineCount = 1
	}
	return baseY - lineStep*(lineCount-1)
}

// AnchorX returns the x coordinate of the text block: just inside the left gutter.
func AnchorX(canvasWidth, sidePaddingPct, margin int) int {
	return canvasWidth*sidePaddingPct/100 + margin
}

var drawtextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `'\\\''`,
	`:`, `\:`,
	`=`, `\=`,
)

// EscapeDrawtext escapes characters that carry meaning inside a quoted
// drawtext option value. It accepts any input. The result is only literal
// when the filter disables text expansion, as Overlay.Filter does.
func EscapeDrawtext(s string) string {
	return drawtextEscaper.Replace(s)
}

// Style describes how the caption is rendered.
type Style struct {
	FontFile     string
	FontSize     int
	FontColor    string
	LineSpacing  int
	MaxLineChars int
	BaseY        int
	LineStep     int
	MarginX      int
}

// DefaultStyle returns the stock caption style.
func DefaultStyle() Style {
	return Style{
		FontFile:     "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		FontSize:     45,
		FontColor:    "#0F1419",
		LineSpacing:  8,
		MaxLineChars: DefaultMaxLineChars,
		BaseY:        DefaultBaseY,
		LineStep:     DefaultLineStep,
		MarginX:      DefaultMarginX,
	}
}

// Overlay is a laid out caption ready to be drawn.
type Overlay struct {
	Lines []string
	X     int
	Y     int
	Style Style
}

// Layout wraps text and positions it on a canvas of the given width whose
// side gutter is sidePaddingPct percent wide.
func Layout(text string, style Style, canvasWidth, sidePaddingPct int) Overlay {
	lines := Wrap(text, style.MaxLineChars)
	return Overlay{
		Lines: lines,
		X:     AnchorX(canvasWidth, sidePaddingPct, style.MarginX),
		Y:     AnchorY(len(lines), style.BaseY, style.LineStep),
		Style: style,
	}
}

// Text returns the wrapped lines joined by newlines.
func (o Overlay) Text() string {
	return strings.Join(o.Lines, "\n")
}

// Filter renders the ffmpeg drawtext filter expression for the overlay.
func (o Overlay) Filter() string {
	var b strings.Builder
	fmt.Fprintf(&b, "drawtext=text='%s'", EscapeDrawtext(o.Text()))
	if o.Style.FontFile != "" {
		fmt.Fprintf(&b, ":fontfile=%s", EscapeDrawtext(o.Style.FontFile))
	}
	// expansion=none keeps % and \ in captions literal.
	fmt.Fprintf(&b, ":expansion=none:fontsize=%d:fontcolor=%s:line_spacing=%d:x=%d:y=%d:box=0",
		o.Style.FontSize, o.Style.FontColor, o.Style.LineSpacing, o.X, o.Y)
	return b.String()
}
