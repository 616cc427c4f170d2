package bookgate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Redemption and entitlement operations

// resolveCode looks up a code by its normalized value and checks the
// gates every redemption path shares: format, lifecycle and the
// referenced resource.
func (s *service) resolveCode(ctx context.Context, codeValue string) (*ActivationCode, *Resource, error) {
	value := NormalizeCodeValue(codeValue)
	if !ValidCodeValue(value) {
		return nil, nil, fmt.Errorf("%w: malformed code value %q", ErrInvalidInput, codeValue)
	}

	code, err := s.repository.GetCodeByValue(ctx, value)
	if err != nil {
		return nil, nil, err
	}
	if !code.IsActive {
		return nil, nil, fmt.Errorf("%w: %s", ErrCodeInactive, value)
	}
	if code.Expired(time.Now().UTC()) {
		return nil, nil, fmt.Errorf("%w: %s", ErrCodeExpired, value)
	}

	resource, err := s.repository.GetResource(ctx, code.ResourceID)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrCodeOrphaned, value)
		}
		return nil, nil, err
	}
	return code, resource, nil
}

func (s *service) CheckCode(ctx context.Context, codeValue string) (*CodeCheck, error) {
	code, _, err := s.resolveCode(ctx, codeValue)
	if err != nil {
		return nil, err
	}

	count, err := s.repository.CountGrants(ctx, code.ID)
	if err != nil {
		return nil, err
	}
	if count >= code.MaxActivations {
		return nil, fmt.Errorf("%w: %s", ErrCapacityExceeded, code.CodeValue)
	}

	return &CodeCheck{Code: code, Remaining: code.MaxActivations - count}, nil
}

func (s *service) Redeem(ctx context.Context, req RedeemRequest) (*Resource, error) {
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	code, resource, err := s.resolveCode(ctx, req.CodeValue)
	if err != nil {
		return nil, err
	}

	// Teacher editions are gated; student editions are open to anyone.
	if resource.TargetRole == RoleTeacher && req.Role != RoleTeacher {
		return nil, fmt.Errorf("%w: %s resource requires %s role", ErrForbidden, resource.TargetRole, RoleTeacher)
	}

	if _, err := s.repository.GetGrantByCodeAndUser(ctx, code.ID, req.UserID); err == nil {
		return nil, fmt.Errorf("%w: code %s", ErrAlreadyRedeemed, code.CodeValue)
	} else if !errors.Is(err, ErrGrantNotFound) {
		return nil, err
	}

	// Best-effort capacity gate. Two racing first-time users can both
	// pass it and briefly overshoot MaxActivations; per-user doubles
	// are still impossible because of the grant uniqueness below.
	count, err := s.repository.CountGrants(ctx, code.ID)
	if err != nil {
		return nil, err
	}
	if count >= code.MaxActivations {
		return nil, fmt.Errorf("%w: %s", ErrCapacityExceeded, code.CodeValue)
	}

	grant := &ActivationGrant{
		ID:          uuid.New(),
		CodeID:      code.ID,
		UserID:      req.UserID,
		ActivatedAt: time.Now().UTC(),
	}
	if err := s.repository.CreateGrant(ctx, grant); err != nil {
		return nil, &CodeError{CodeID: code.ID, Op: "redeem", Err: err}
	}

	s.logger.Info("code redeemed",
		zap.String("code_id", code.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("resource_id", resource.ID.String()))

	return resource, nil
}

func (s *service) ListEntitlements(ctx context.Context, userID uuid.UUID) ([]*Entitlement, error) {
	grants, err := s.repository.ListGrantsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seen := make(map[uuid.UUID]bool)
	var entitlements []*Entitlement

	for _, grant := range grants {
		code, err := s.repository.GetCode(ctx, grant.CodeID)
		if errors.Is(err, ErrCodeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		effective := grant.ActivatedAt.AddDate(0, 0, DefaultEntitlementDays)
		if code.ExpiryDate != nil {
			effective = *code.ExpiryDate
		}
		if !effective.After(now) {
			continue
		}

		resource, err := s.repository.GetResource(ctx, code.ResourceID)
		if errors.Is(err, ErrResourceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		// The earliest grant for a resource wins; later codes for the
		// same resource add nothing.
		if seen[resource.ID] {
			continue
		}
		seen[resource.ID] = true

		entitlements = append(entitlements, &Entitlement{
			Resource:    resource,
			ActivatedAt: grant.ActivatedAt,
			ExpiresAt:   code.ExpiryDate,
		})
	}

	sort.Slice(entitlements, func(i, j int) bool {
		return entitlements[i].Resource.CreatedAt.After(entitlements[j].Resource.CreatedAt)
	})
	return entitlements, nil
}

func (s *service) ListGrants(ctx context.Context) ([]*GrantRecord, error) {
	grants, err := s.repository.ListGrants(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*GrantRecord, 0, len(grants))
	for _, grant := range grants {
		record := &GrantRecord{
			ID:            grant.ID,
			UserID:        grant.UserID,
			CodeValue:     placeholderCodeDeleted,
			ResourceTitle: placeholderResourceDeleted,
			ActivatedAt:   grant.ActivatedAt,
		}

		code, err := s.repository.GetCode(ctx, grant.CodeID)
		if err == nil {
			record.CodeValue = code.CodeValue
			if resource, err := s.repository.GetResource(ctx, code.ResourceID); err == nil {
				record.ResourceTitle = resource.Title
			} else if !errors.Is(err, ErrResourceNotFound) {
				return nil, err
			}
		} else if !errors.Is(err, ErrCodeNotFound) {
			return nil, err
		}

		records = append(records, record)
	}
	return records, nil
}

func (s *service) RevokeGrant(ctx context.Context, grantID uuid.UUID) error {
	if _, err := s.repository.GetGrant(ctx, grantID); err != nil {
		return err
	}
	return s.repository.DeleteGrant(ctx, grantID)
}

func (s *service) RevokeUserGrants(ctx context.Context, userID uuid.UUID) error {
	if err := s.repository.DeleteGrantsByUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user grants revoked", zap.String("user_id", userID.String()))
	return nil
}
