// Package metadata generates container tag sets that make a re-encoded video
// look like a fresh phone recording.
package metadata

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Tag keys written by the generator.
const (
	KeyEncoder          = "encoder"
	KeyCreationTool     = "creation_tool"
	KeyEncodedDate      = "encoded_date"
	KeyTaggedDate       = "tagged_date"
	KeyEncodingSettings = "encoding-settings"
	KeyHandlerName      = "handler_name"
	KeyVendorID         = "vendor_id"
	KeyMajorBrand       = "major_brand"
	KeyMinorVersion     = "minor_version"
	KeyCompatibleBrands = "compatible_brands"
	KeyDate             = "date"
	KeyCreationTime     = "creation_time"
	KeyAudioBitrate     = "audio_bitrate"
	KeyAudioFormat      = "audio_format"
	KeyChannelLayout    = "channel_layout"
	KeyComment          = "comment"
	KeyDescription      = "description"
	KeyTitle            = "title"
	KeyArtist           = "artist"
	KeyCopyright        = "copyright"
)

// IdentityKeys are blanked on every generated set.
var IdentityKeys = []string{KeyTitle, KeyComment, KeyDescription, KeyArtist, KeyCopyright}

// TimestampLayout is used for every date-time tag.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	defaultDevices = []string{
		"iPhone 15",
		"iPhone 14 Pro",
		"iPhone 14",
		"iPhone 13 Pro",
		"Samsung Galaxy S23",
		"Google Pixel 8",
		"Samsung Galaxy S24",
	}
	defaultEncoders      = []string{"H.264/AVC", "HEVC/H.265", "VideoToolbox"}
	defaultAudioBitrates = []int{96, 128, 192}
)

const (
	minAge          = 30 * time.Minute
	maxAge          = 24 * time.Hour
	minVideoBitrate = 2000
	maxVideoBitrate = 4000
)

// TagSet maps container tag names to values.
type TagSet map[string]string

// Keys returns the tag names in lexical order.
func (t TagSet) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Args renders the set as ffmpeg "-metadata key=value" arguments in key order.
func (t TagSet) Args() []string {
	args := make([]string, 0, 2*len(t))
	for _, k := range t.Keys() {
		args = append(args, "-metadata", k+"="+t[k])
	}
	return args
}

// Generator produces randomized tag sets. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time

	devices  []string
	encoders []string
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand sets the random source, mainly for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) {
		g.rng = r
	}
}

// WithClock sets the function used to read the current time.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator creates a Generator seeded from the runtime source.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:      time.Now,
		devices:  defaultDevices,
		encoders: defaultEncoders,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a new tag set. A single capture instant between 30 minutes
// and 24 hours ago is shared by every date tag.
func (g *Generator) Generate() TagSet {
	g.mu.Lock()
	age := minAge + time.Duration(g.rng.Int64N(int64(maxAge-minAge)+1))
	device := g.devices[g.rng.IntN(len(g.devices))]
	encoder := g.encoders[g.rng.IntN(len(g.encoders))]
	videoBitrate := minVideoBitrate + g.rng.IntN(maxVideoBitrate-minVideoBitrate+1)
	audioBitrate := defaultAudioBitrates[g.rng.IntN(len(defaultAudioBitrates))]
	g.mu.Unlock()

	captured := g.now().Add(-age)
	stamp := captured.Format(TimestampLayout)

	tags := TagSet{
		KeyEncoder:          encoder,
		KeyCreationTool:     fmt.Sprintf("Mobile Camera (%s)", device),
		KeyEncodedDate:      stamp,
		KeyTaggedDate:       stamp,
		KeyEncodingSettings: fmt.Sprintf("baseline / bitrate=%dk", videoBitrate),
		KeyHandlerName:      "Camera Media",
		KeyVendorID:         "Apple",

		KeyMajorBrand:       "mp42",
		KeyMinorVersion:     "1",
		KeyCompatibleBrands: "mp42isom",
		KeyDate:             captured.Format(time.DateOnly),
		KeyCreationTime:     stamp,

		KeyAudioBitrate:  fmt.Sprintf("%dk", audioBitrate),
		KeyAudioFormat:   "AAC LC",
		KeyChannelLayout: "stereo",
	}
	for _, k := range IdentityKeys {
		tags[k] = ""
	}
	return tags
}
