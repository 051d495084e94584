package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
)

// Stage names the last transform applied to an Asset.
type Stage string

const (
	// StageDownloaded is a file fresh from the downloader.
	StageDownloaded Stage = "downloaded"
	// StageCropped is the output of Crop.
	StageCropped Stage = "cropped"
	// StageBordered is the output of Pad.
	StageBordered Stage = "bordered"
	// StageRetagged is the output of Retag.
	StageRetagged Stage = "retagged"
	// StageCaptioned is the output of Overlay.
	StageCaptioned Stage = "captioned"
)

// Asset is a video file on local disk owned by one user.
// Stages never modify an Asset in place; each returns a new one.
type Asset struct {
	// Path is the location of the file.
	Path string
	// Owner is the Telegram user the file belongs to.
	Owner int64
	// Stage is the last stage that produced the file.
	Stage Stage
}

// Dir returns the directory holding the asset.
func (a Asset) Dir() string {
	return filepath.Dir(a.Path)
}

// Size returns the current size of the file in bytes.
func (a Asset) Size() (int64, error) {
	info, err := os.Stat(a.Path)
	if err != nil {
		return 0, fmt.Errorf("stat asset: %w", err)
	}
	return info.Size(), nil
}

// outputPath returns the file a stage writes next to the asset.
func (a Asset) outputPath(stage Stage) string {
	name := string(stage) + ".mp4"
	if filepath.Base(a.Path) == name {
		name = string(stage) + "-1.mp4"
	}
	return filepath.Join(a.Dir(), name)
}
