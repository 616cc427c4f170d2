package bookgate

import (
	"context"

	"github.com/google/uuid"
)

// Service is the main interface for the content distribution library
type Service interface {
	// Resource operations
	CreateResource(ctx context.Context, req CreateResourceRequest) (*Resource, error)
	GetResource(ctx context.Context, id uuid.UUID) (*Resource, error)
	ListResources(ctx context.Context) ([]*Resource, error)
	UpdateResource(ctx context.Context, req UpdateResourceRequest) (*Resource, error)
	DeleteResource(ctx context.Context, id uuid.UUID) error
	DeleteResourceItem(ctx context.Context, req DeleteResourceItemRequest) (*Resource, error)
	AddMaterials(ctx context.Context, req AddMaterialsRequest) (*Resource, error)
	SetClassroom(ctx context.Context, req SetClassroomRequest) (*Resource, error)
	AddGlossaryEntries(ctx context.Context, req AddGlossaryRequest) (*Resource, error)
	OpenResourceFile(ctx context.Context, req OpenFileRequest) (*FileDownload, error)

	// Activation code operations
	IssueCode(ctx context.Context, req IssueCodeRequest) (*ActivationCode, error)
	UpdateCode(ctx context.Context, req UpdateCodeRequest) (*ActivationCode, error)
	RevokeCode(ctx context.Context, codeID uuid.UUID) error
	CountActivations(ctx context.Context, codeID uuid.UUID) (int, error)
	ListCodes(ctx context.Context) ([]*CodeUsage, error)

	// Redemption and entitlement operations
	CheckCode(ctx context.Context, codeValue string) (*CodeCheck, error)
	Redeem(ctx context.Context, req RedeemRequest) (*Resource, error)
	ListEntitlements(ctx context.Context, userID uuid.UUID) ([]*Entitlement, error)
	ListGrants(ctx context.Context) ([]*GrantRecord, error)
	RevokeGrant(ctx context.Context, grantID uuid.UUID) error
	RevokeUserGrants(ctx context.Context, userID uuid.UUID) error
}
