package memory

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

const urlScheme = "memory://"

// Backend is an in-memory implementation of the bookgate.BlobStore
// interface, intended for testing
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
	mimes   map[string]string
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string][]byte),
		mimes:   make(map[string]string),
	}
}

func (b *Backend) Upload(ctx context.Context, reader io.Reader, params bookgate.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[params.ObjectKey] = data
	b.mimes[params.ObjectKey] = params.MimeType
	return nil
}

func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, exists := b.objects[objectKey]
	if !exists {
		return nil, bookgate.ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, objectKey)
	delete(b.mimes, objectKey)
	return nil
}

func (b *Backend) PublicURL(objectKey string) string {
	return urlScheme + objectKey
}

func (b *Backend) ObjectKey(publicURL string) (string, bool) {
	key, found := strings.CutPrefix(publicURL, urlScheme)
	if !found || key == "" {
		return "", false
	}
	return key, true
}

// Exists reports whether an object is currently stored. Test helper.
func (b *Backend) Exists(objectKey string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[objectKey]
	return exists
}

// Len returns the number of stored objects. Test helper.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.objects)
}
