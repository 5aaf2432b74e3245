// Package media owns audio assets: write-once, read-many blobs referenced by
// synthesis cache entries. Assets must outlive the cache entries that point
// at them, so there is no deletion path.
package media

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an asset does not exist.
var ErrNotFound = errors.New("media: asset not found")

// AssetStore is the append-only contract for audio assets.
type AssetStore interface {
	// Save persists an asset. Writing an existing ID is a no-op; content
	// under a content-derived ID never changes.
	Save(ctx context.Context, audioID string, content []byte) error

	// Open returns the asset bytes and MIME type, or ErrNotFound.
	Open(ctx context.Context, audioID string) ([]byte, string, error)
}

// AudioID builds a content-derived asset ID from a synthesis cache key hash.
func AudioID(keyHash, ext string) string {
	if len(keyHash) > 16 {
		keyHash = keyHash[:16]
	}
	return keyHash + "." + ext
}

// RandomAudioID builds a random asset ID for ad-hoc writes.
func RandomAudioID(ext string) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "") + "." + ext
}

// MIMEForID derives the MIME type from the asset ID's extension.
func MIMEForID(audioID string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(audioID), ".")) {
	case "mp3", "mpeg":
		return "audio/mpeg"
	default:
		return "audio/wav"
	}
}

// cleanID rejects IDs that could escape the store's namespace.
func cleanID(audioID string) (string, error) {
	if audioID == "" || strings.ContainsAny(audioID, "/\\") || strings.Contains(audioID, "..") {
		return "", ErrNotFound
	}
	return audioID, nil
}
