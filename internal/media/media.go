// Package media classifies and stores files uploaded with a post.
//
// Files are written under a local directory and exposed by the HTTP layer
// at URLPrefix + <stored name>. Stored names are
//
//	<unix-millis>-<random suffix><original extension>
//
// so two uploads of "photo.jpg" in the same millisecond still land in
// different files.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/model"
)

const (
	// URLPrefix is the public path under which stored files are served.
	URLPrefix = "/uploads/"

	// DefaultMaxBytes caps a single upload at 50MB.
	DefaultMaxBytes int64 = 50 << 20
)

// Upload is a file received with a request, before it is stored.
type Upload struct {
	Filename    string // name as sent by the client; only its extension is kept
	ContentType string // declared MIME type of the part
	Content     io.Reader
}

// ClassifyStrict is the create-path rule: "image/..." is an image,
// "video/..." is a video, anything else is rejected.
func ClassifyStrict(contentType string) (model.MediaType, error) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return model.MediaImage, nil
	case strings.HasPrefix(contentType, "video/"):
		return model.MediaVideo, nil
	default:
		return "", apperror.ValidationFailed("media",
			"Invalid media type. Only images or videos allowed.")
	}
}

// ClassifyLenient is the update-path rule: anything starting with "video"
// is a video and everything else is treated as an image.
func ClassifyLenient(contentType string) model.MediaType {
	if strings.HasPrefix(contentType, "video") {
		return model.MediaVideo
	}
	return model.MediaImage
}

// Store writes uploads to a directory.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewStore creates dir if needed. A non-positive maxBytes falls back to
// DefaultMaxBytes.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: creating upload dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Dir returns the directory files are stored in.
func (s *Store) Dir() string {
	return s.dir
}

// MaxBytes returns the per-file size cap.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save writes up to the store under a fresh name and returns the recorded
// media. Content larger than MaxBytes is rejected with a validation error
// and nothing is left on disk.
func (s *Store) Save(ctx context.Context, up Upload, kind model.MediaType) (model.Media, error) {
	if err := ctx.Err(); err != nil {
		return model.Media{}, err
	}

	name := StoredName(up.Filename, s.now())

	// Write to a temp file and rename, so a half-written upload is never
	// visible under its public name.
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return model.Media{}, fmt.Errorf("media: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	n, err := io.Copy(tmp, io.LimitReader(up.Content, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.Media{}, fmt.Errorf("media: writing %s: %w", name, err)
	}
	if n > s.maxBytes {
		return model.Media{}, apperror.ValidationFailed("media",
			fmt.Sprintf("File too large (max %d MB)", s.maxBytes>>20))
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return model.Media{}, fmt.Errorf("media: storing %s: %w", name, err)
	}

	return model.Media{Type: kind, URL: URLPrefix + name}, nil
}

// Remove deletes the file behind a URL returned by Save. Unknown URLs and
// already-missing files are not errors.
func (s *Store) Remove(url string) error {
	if !strings.HasPrefix(url, URLPrefix) {
		return nil
	}
	name := path.Base(strings.TrimPrefix(url, URLPrefix))
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("media: removing %s: %w", name, err)
	}
	return nil
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// StoredName builds the collision-resistant on-disk name for original.
// The extension is lower-cased and dropped if it looks unsafe.
func StoredName(original string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), suffix, ext)
}
