package bookgate

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobStore defines the interface for storage backends. Objects are
// addressed by key inside the backend; the resource records persist
// the public URL form, so backends must translate both ways.
type BlobStore interface {
	// Upload stores the reader's content under params.ObjectKey
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download opens the object for reading
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectKey string) error

	// PublicURL returns the durable public URL for an object key
	PublicURL(objectKey string) string

	// ObjectKey recovers the object key from a public URL. The second
	// return is false when the URL does not belong to this backend.
	ObjectKey(publicURL string) (string, bool)
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}

// Repository defines the interface for resource, code and grant
// persistence.
type Repository interface {
	// Resource operations
	CreateResource(ctx context.Context, resource *Resource) error
	GetResource(ctx context.Context, id uuid.UUID) (*Resource, error)
	UpdateResource(ctx context.Context, resource *Resource) error
	DeleteResource(ctx context.Context, id uuid.UUID) error
	ListResources(ctx context.Context) ([]*Resource, error)

	// Activation code operations
	CreateCode(ctx context.Context, code *ActivationCode) error
	GetCode(ctx context.Context, id uuid.UUID) (*ActivationCode, error)
	GetCodeByValue(ctx context.Context, codeValue string) (*ActivationCode, error)
	UpdateCode(ctx context.Context, code *ActivationCode) error
	DeleteCode(ctx context.Context, id uuid.UUID) error
	DeleteCodesByResource(ctx context.Context, resourceID uuid.UUID) error
	ListCodes(ctx context.Context) ([]*ActivationCode, error)

	// Grant operations. CreateGrant must reject a duplicate
	// (code, user) pair with ErrAlreadyRedeemed; this uniqueness is
	// the authoritative guard against concurrent redemption.
	CreateGrant(ctx context.Context, grant *ActivationGrant) error
	GetGrant(ctx context.Context, id uuid.UUID) (*ActivationGrant, error)
	GetGrantByCodeAndUser(ctx context.Context, codeID, userID uuid.UUID) (*ActivationGrant, error)
	CountGrants(ctx context.Context, codeID uuid.UUID) (int, error)
	// ListGrantsByUser returns the user's grants oldest first.
	ListGrantsByUser(ctx context.Context, userID uuid.UUID) ([]*ActivationGrant, error)
	ListGrants(ctx context.Context) ([]*ActivationGrant, error)
	DeleteGrant(ctx context.Context, id uuid.UUID) error
	DeleteGrantsByUser(ctx context.Context, userID uuid.UUID) error
}
