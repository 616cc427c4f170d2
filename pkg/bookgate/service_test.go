package bookgate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookgate/bookgate/pkg/bookgate"
	"github.com/bookgate/bookgate/pkg/bookgate/repo/memory"
	memorystorage "github.com/bookgate/bookgate/pkg/bookgate/storage/memory"
)

func TestServiceCreation(t *testing.T) {
	tests := []struct {
		name        string
		options     []bookgate.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []bookgate.Option{},
			expectError: true,
		},
		{
			name: "repository without blob store should fail",
			options: []bookgate.Option{
				bookgate.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "with repository and blob store should succeed",
			options: []bookgate.Option{
				bookgate.WithRepository(memory.New()),
				bookgate.WithBlobStore("memory", memorystorage.New()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := bookgate.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

// setupTestService builds a service on the in-memory repository and
// blob store, returning both backends for direct inspection.
func setupTestService(t *testing.T) (bookgate.Service, bookgate.Repository, *memorystorage.Backend) {
	t.Helper()

	repo := memory.New()
	store := memorystorage.New()
	svc, err := bookgate.New(
		bookgate.WithRepository(repo),
		bookgate.WithBlobStore("memory", store),
	)
	require.NoError(t, err)
	return svc, repo, store
}

func fileUpload(name, mimeType, content string) *bookgate.FileUpload {
	return &bookgate.FileUpload{
		FileName: name,
		MimeType: mimeType,
		Reader:   strings.NewReader(content),
	}
}

// createTestResource publishes a minimal resource with a document and
// a cover.
func createTestResource(t *testing.T, svc bookgate.Service, title string, role bookgate.Role) *bookgate.Resource {
	t.Helper()

	resource, err := svc.CreateResource(context.Background(), bookgate.CreateResourceRequest{
		Title:      title,
		TargetRole: role,
		Cover:      fileUpload("cover.jpg", "image/jpeg", "cover bytes"),
		Document:   fileUpload("book.pdf", "application/pdf", "pdf bytes"),
	})
	require.NoError(t, err)
	return resource
}
