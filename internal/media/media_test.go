package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sakif/postboard/internal/apperror"
	"github.com/sakif/postboard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStrict(t *testing.T) {
	tests := []struct {
		contentType string
		want        model.MediaType
		wantErr     bool
	}{
		{"image/png", model.MediaImage, false},
		{"image/jpeg", model.MediaImage, false},
		{"video/mp4", model.MediaVideo, false},
		{"application/pdf", "", true},
		{"text/plain", "", true},
		{"video", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			got, err := ClassifyStrict(tt.contentType)
			if tt.wantErr {
				assert.True(t, errors.Is(err, apperror.ErrValidation), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyLenient(t *testing.T) {
	assert.Equal(t, model.MediaVideo, ClassifyLenient("video/mp4"))
	assert.Equal(t, model.MediaVideo, ClassifyLenient("video"))
	assert.Equal(t, model.MediaImage, ClassifyLenient("image/gif"))
	// Unlike the create path, non-media types are not rejected here.
	assert.Equal(t, model.MediaImage, ClassifyLenient("application/pdf"))
	assert.Equal(t, model.MediaImage, ClassifyLenient(""))
}

func TestStoredName(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	name := StoredName("Holiday Photo.JPG", now)
	assert.Regexp(t, regexp.MustCompile(`^1700000000123-[0-9a-f]{12}\.jpg$`), name)

	assert.NotEqual(t, name, StoredName("Holiday Photo.JPG", now), "names must not collide")

	noExt := StoredName("README", now)
	assert.Regexp(t, regexp.MustCompile(`^1700000000123-[0-9a-f]{12}$`), noExt)

	weird := StoredName("x.p h/p", now)
	assert.NotContains(t, weird, " ")
	assert.NotContains(t, weird, "/")
}

func newTestStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "uploads"), maxBytes)
	require.NoError(t, err)
	return s
}

func TestStoreSave(t *testing.T) {
	s := newTestStore(t, 0)
	assert.Equal(t, DefaultMaxBytes, s.MaxBytes())

	m, err := s.Save(context.Background(), Upload{
		Filename:    "cat.png",
		ContentType: "image/png",
		Content:     strings.NewReader("not really a png"),
	}, model.MediaImage)
	require.NoError(t, err)

	assert.Equal(t, model.MediaImage, m.Type)
	assert.True(t, strings.HasPrefix(m.URL, URLPrefix))
	assert.True(t, strings.HasSuffix(m.URL, ".png"))

	data, err := os.ReadFile(filepath.Join(s.Dir(), strings.TrimPrefix(m.URL, URLPrefix)))
	require.NoError(t, err)
	assert.Equal(t, "not really a png", string(data))
}

func TestStoreSave_TooLarge(t *testing.T) {
	s := newTestStore(t, 8)

	_, err := s.Save(context.Background(), Upload{
		Filename: "big.mp4",
		Content:  strings.NewReader("0123456789"),
	}, model.MediaVideo)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected upload must not leave files behind")
}

func TestStoreSave_ExactlyAtLimit(t *testing.T) {
	s := newTestStore(t, 10)

	_, err := s.Save(context.Background(), Upload{
		Filename: "ok.mp4",
		Content:  strings.NewReader("0123456789"),
	}, model.MediaVideo)
	assert.NoError(t, err)
}

func TestStoreSave_CancelledContext(t *testing.T) {
	s := newTestStore(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, Upload{Filename: "a.png", Content: strings.NewReader("x")}, model.MediaImage)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreRemove(t *testing.T) {
	s := newTestStore(t, 0)

	m, err := s.Save(context.Background(), Upload{Filename: "a.png", Content: strings.NewReader("x")}, model.MediaImage)
	require.NoError(t, err)

	require.NoError(t, s.Remove(m.URL))
	_, err = os.Stat(filepath.Join(s.Dir(), strings.TrimPrefix(m.URL, URLPrefix)))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// Removing again, or removing something that is not ours, is a no-op.
	assert.NoError(t, s.Remove(m.URL))
	assert.NoError(t, s.Remove("https://elsewhere.example/a.png"))
	assert.NoError(t, s.Remove(URLPrefix+"../../etc/passwd"))
}
