package bookgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Placeholder titles for admin listings whose referenced records have
// been removed out from under them.
const (
	placeholderCodeDeleted     = "Code Deleted"
	placeholderResourceDeleted = "Product Deleted"
)

// Activation code operations

func (s *service) IssueCode(ctx context.Context, req IssueCodeRequest) (*ActivationCode, error) {
	// Issued values must already be canonical; only reader input gets
	// normalized.
	value := strings.TrimSpace(req.CodeValue)
	if !ValidCodeValue(value) {
		return nil, fmt.Errorf("%w: malformed code value %q", ErrInvalidInput, req.CodeValue)
	}
	if req.MaxActivations < 1 {
		return nil, fmt.Errorf("%w: max activations must be at least 1", ErrInvalidInput)
	}

	if _, err := s.repository.GetResource(ctx, req.ResourceID); err != nil {
		return nil, &CodeError{Op: "issue", Err: err}
	}

	now := time.Now().UTC()
	code := &ActivationCode{
		ID:             uuid.New(),
		ResourceID:     req.ResourceID,
		CodeValue:      value,
		MaxActivations: req.MaxActivations,
		ExpiryDate:     req.ExpiryDate,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repository.CreateCode(ctx, code); err != nil {
		return nil, &CodeError{CodeID: code.ID, Op: "issue", Err: err}
	}

	s.logger.Info("activation code issued",
		zap.String("code_id", code.ID.String()),
		zap.String("resource_id", code.ResourceID.String()),
		zap.Int("max_activations", code.MaxActivations))

	return code, nil
}

func (s *service) UpdateCode(ctx context.Context, req UpdateCodeRequest) (*ActivationCode, error) {
	code, err := s.repository.GetCode(ctx, req.CodeID)
	if err != nil {
		return nil, &CodeError{CodeID: req.CodeID, Op: "update", Err: err}
	}

	if req.IsActive != nil {
		code.IsActive = *req.IsActive
	}
	if req.ClearExpiry {
		code.ExpiryDate = nil
	} else if req.ExpiryDate != nil {
		code.ExpiryDate = req.ExpiryDate
	}
	code.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateCode(ctx, code); err != nil {
		return nil, &CodeError{CodeID: code.ID, Op: "update", Err: err}
	}

	return code, nil
}

func (s *service) RevokeCode(ctx context.Context, codeID uuid.UUID) error {
	if _, err := s.repository.GetCode(ctx, codeID); err != nil {
		return &CodeError{CodeID: codeID, Op: "revoke", Err: err}
	}

	// Grants hang off the code, so revocation takes them with it.
	if err := s.repository.DeleteCode(ctx, codeID); err != nil {
		return &CodeError{CodeID: codeID, Op: "revoke", Err: err}
	}

	s.logger.Info("activation code revoked", zap.String("code_id", codeID.String()))
	return nil
}

func (s *service) CountActivations(ctx context.Context, codeID uuid.UUID) (int, error) {
	if _, err := s.repository.GetCode(ctx, codeID); err != nil {
		return 0, &CodeError{CodeID: codeID, Op: "count", Err: err}
	}
	return s.repository.CountGrants(ctx, codeID)
}

func (s *service) ListCodes(ctx context.Context) ([]*CodeUsage, error) {
	codes, err := s.repository.ListCodes(ctx)
	if err != nil {
		return nil, err
	}

	usages := make([]*CodeUsage, 0, len(codes))
	for _, code := range codes {
		title := placeholderResourceDeleted
		if resource, err := s.repository.GetResource(ctx, code.ResourceID); err == nil {
			title = resource.Title
		} else if !errors.Is(err, ErrResourceNotFound) {
			return nil, err
		}

		count, err := s.repository.CountGrants(ctx, code.ID)
		if err != nil {
			return nil, err
		}

		usages = append(usages, &CodeUsage{
			Code:          code,
			ResourceTitle: title,
			CurrentUsers:  count,
		})
	}
	return usages, nil
}
