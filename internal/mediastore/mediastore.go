// Package mediastore is the Media Store capability interface: the
// object-storage layer parts, init segments, and recording artifacts are
// written to and served from (§6). Local filesystem, GCS, and Azure Blob
// backends are provided.
package mediastore

import (
	"context"
	"errors"
	"io"
)

// ErrNotExist is returned by Read/ReadRange/Stat when the object is absent.
var ErrNotExist = errors.New("mediastore: object does not exist")

// Store is the capability interface the transcoder (writer) and edge
// (reader) depend on.
type Store interface {
	// Write uploads data at key, overwriting any existing object.
	Write(ctx context.Context, key string, data []byte, contentType string) error
	// Read returns the full object body.
	Read(ctx context.Context, key string) ([]byte, error)
	// ReadRange returns [offset, offset+length) of the object body, for
	// edge's HTTP Range support on `.m4s` part serving. length < 0 means
	// "to end of object".
	ReadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	// Stat returns the object's total size, or ErrNotExist.
	Stat(ctx context.Context, key string) (int64, error)
	// Delete removes an object. No error if absent.
	Delete(ctx context.Context, key string) error
}

// ContentType maps a stored key's suffix to the HTTP content-type edge
// should serve it with.
func ContentType(key string) string {
	switch suffix(key) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".m4s":
		return "video/iso.segment"
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// CacheControl maps a stored key's suffix to the caching policy: live
// playlists must never cache, parts/inits/recordings may cache hard since
// keys are content-addressed/append-only.
func CacheControl(key string) string {
	if suffix(key) == ".m3u8" {
		return "no-cache, no-store, must-revalidate"
	}
	return "public, max-age=31536000, immutable"
}

func suffix(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[i:]
		}
		if key[i] == '/' {
			break
		}
	}
	return ""
}
