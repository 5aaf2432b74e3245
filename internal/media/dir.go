package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirStore keeps audio assets as files in a local directory. This is the
// default backend; a single-instance deployment serves playback URLs
// straight from it.
type DirStore struct {
	dir string
}

// NewDirStore creates the directory if needed and returns a store over it.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Save(_ context.Context, audioID string, content []byte) error {
	id, err := cleanID(audioID)
	if err != nil {
		return fmt.Errorf("media: invalid audio id %q", audioID)
	}
	target := filepath.Join(s.dir, id)
	if _, err := os.Stat(target); err == nil {
		// Write-once: the ID is content-derived, the bytes are already there.
		return nil
	}
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return fmt.Errorf("media: write asset: %w", err)
	}
	return nil
}

func (s *DirStore) Open(_ context.Context, audioID string) ([]byte, string, error) {
	id, err := cleanID(audioID)
	if err != nil {
		return nil, "", ErrNotFound
	}
	content, err := os.ReadFile(filepath.Join(s.dir, id))
	if os.IsNotExist(err) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("media: read asset: %w", err)
	}
	return content, MIMEForID(id), nil
}
