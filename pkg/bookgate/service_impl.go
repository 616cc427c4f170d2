package bookgate

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// service implements the Service interface
type service struct {
	repository  Repository
	blobStore   BlobStore
	backendName string
	logger      *zap.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the storage backend for the service
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		s.backendName = name
		s.blobStore = store
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *zap.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger: zap.NewNop(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	return s, nil
}

// objectKey builds a fresh storage key under the given folder,
// preserving the upload's file extension.
func objectKey(folder, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return folder + "/" + uuid.NewString() + ext
}

func (s *service) storageError(op, key string, err error) error {
	return &StorageError{
		Backend: s.backendName,
		Key:     key,
		Op:      op,
		Err:     err,
	}
}
