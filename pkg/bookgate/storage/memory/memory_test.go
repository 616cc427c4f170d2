package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := New()

	err := backend.Upload(ctx, strings.NewReader("hello"), bookgate.UploadParams{
		ObjectKey: "books/abc.pdf",
		MimeType:  "application/pdf",
	})
	require.NoError(t, err)

	body, err := backend.Download(ctx, "books/abc.pdf")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDownloadMissing(t *testing.T) {
	backend := New()
	_, err := backend.Download(context.Background(), "books/missing.pdf")
	assert.ErrorIs(t, err, bookgate.ErrFileNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := New()

	require.NoError(t, backend.Upload(ctx, strings.NewReader("x"), bookgate.UploadParams{ObjectKey: "covers/a.jpg"}))
	require.NoError(t, backend.Delete(ctx, "covers/a.jpg"))
	assert.False(t, backend.Exists("covers/a.jpg"))

	// A second delete of the same key is not an error.
	assert.NoError(t, backend.Delete(ctx, "covers/a.jpg"))
}

func TestURLMapping(t *testing.T) {
	backend := New()

	url := backend.PublicURL("audio/track.mp3")
	assert.Equal(t, "memory://audio/track.mp3", url)

	key, ok := backend.ObjectKey(url)
	require.True(t, ok)
	assert.Equal(t, "audio/track.mp3", key)

	_, ok = backend.ObjectKey("https://cdn.example.com/audio/track.mp3")
	assert.False(t, ok)

	_, ok = backend.ObjectKey("memory://")
	assert.False(t, ok)
}
