package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gallerysync/api/internal/model"
)

// LocalMediaStorage resolves gallery paths below a media directory on disk
type LocalMediaStorage struct {
	mediaRoot string
	logger    zerolog.Logger
}

func NewLocalMediaStorage(mediaRoot string, logger zerolog.Logger) *LocalMediaStorage {
	return &LocalMediaStorage{
		mediaRoot: mediaRoot,
		logger:    logger.With().Str("component", "local_media").Logger(),
	}
}

// Stat reports whether path names a regular file under the media root. Etags
// are not tracked for local files.
func (s *LocalMediaStorage) Stat(ctx context.Context, path string) (model.MediaObject, error) {
	tail := ToTail(path)
	if tail == "" {
		return model.MediaObject{}, nil
	}
	full := filepath.Join(s.mediaRoot, filepath.FromSlash(ObjectKey("", tail)))
	if rel, err := filepath.Rel(s.mediaRoot, full); err != nil || strings.HasPrefix(rel, "..") {
		return model.MediaObject{}, nil
	}

	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug().Str("file", full).Msg("media file not found")
		return model.MediaObject{}, nil
	}
	if err != nil {
		return model.MediaObject{}, fmt.Errorf("stat media file: %w", err)
	}
	return model.MediaObject{Exists: info.Mode().IsRegular()}, nil
}

func (s *LocalMediaStorage) Remote() bool {
	return false
}
