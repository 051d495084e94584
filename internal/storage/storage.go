// Package storage owns the bot's on-disk working files and the optional
// delivery archive.
//
// TempManager tracks the single live video file of every user and guarantees
// it is deleted on every exit path. S3Archive copies delivered videos to a
// bucket.
package storage

import "context"

// Tracker records the live asset of a user. Registering a new path deletes
// the previous one.
type Tracker interface {
	Register(userID int64, path string)
}

// Archiver stores a delivered file under key and returns its URL.
type Archiver interface {
	Archive(ctx context.Context, key, path string) (url string, err error)
}
