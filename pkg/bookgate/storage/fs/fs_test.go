package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

func newTestBackend(t *testing.T) (bookgate.BlobStore, string) {
	t.Helper()

	dir := t.TempDir()
	backend, err := New(Config{
		BaseDir:   dir,
		URLPrefix: "https://cdn.example.com/files",
	})
	require.NoError(t, err)
	return backend, dir
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{URLPrefix: "https://cdn.example.com"})
	assert.Error(t, err)

	_, err = New(Config{BaseDir: t.TempDir()})
	assert.Error(t, err)
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, dir := newTestBackend(t)

	err := backend.Upload(ctx, strings.NewReader("pdf bytes"), bookgate.UploadParams{
		ObjectKey: "books/abc.pdf",
		MimeType:  "application/pdf",
	})
	require.NoError(t, err)

	// The object lands under the base directory.
	_, err = os.Stat(filepath.Join(dir, "books", "abc.pdf"))
	require.NoError(t, err)

	body, err := backend.Download(ctx, "books/abc.pdf")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))
}

func TestDownloadMissing(t *testing.T) {
	backend, _ := newTestBackend(t)
	_, err := backend.Download(context.Background(), "books/missing.pdf")
	assert.ErrorIs(t, err, bookgate.ErrFileNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend, dir := newTestBackend(t)

	require.NoError(t, backend.Upload(ctx, strings.NewReader("x"), bookgate.UploadParams{ObjectKey: "covers/a.jpg"}))
	require.NoError(t, backend.Delete(ctx, "covers/a.jpg"))

	_, err := os.Stat(filepath.Join(dir, "covers", "a.jpg"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, backend.Delete(ctx, "covers/a.jpg"))
}

func TestRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	backend, _ := newTestBackend(t)

	for _, key := range []string{"../outside.txt", "books/../../outside.txt", "/etc/passwd", "."} {
		t.Run(key, func(t *testing.T) {
			err := backend.Upload(ctx, strings.NewReader("x"), bookgate.UploadParams{ObjectKey: key})
			assert.Error(t, err)
		})
	}
}

func TestURLMapping(t *testing.T) {
	backend, _ := newTestBackend(t)

	url := backend.PublicURL("audio/track.mp3")
	assert.Equal(t, "https://cdn.example.com/files/audio/track.mp3", url)

	key, ok := backend.ObjectKey(url)
	require.True(t, ok)
	assert.Equal(t, "audio/track.mp3", key)

	_, ok = backend.ObjectKey("memory://audio/track.mp3")
	assert.False(t, ok)
}
