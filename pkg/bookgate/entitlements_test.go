package bookgate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookgate/bookgate/pkg/bookgate"
)

func TestCheckCode(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupTestService(t)
	resource := createTestResource(t, svc, "Reader A", bookgate.RoleStudent)

	_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID:     resource.ID,
		CodeValue:      "AAAA-BBBB-CCCC",
		MaxActivations: 2,
	})
	require.NoError(t, err)

	t.Run("reports remaining capacity", func(t *testing.T) {
		check, err := svc.CheckCode(ctx, "AAAA-BBBB-CCCC")
		require.NoError(t, err)
		assert.Equal(t, 2, check.Remaining)
	})

	t.Run("normalizes reader input", func(t *testing.T) {
		check, err := svc.CheckCode(ctx, "  aaaa-bbbb-cccc ")
		require.NoError(t, err)
		assert.Equal(t, "AAAA-BBBB-CCCC", check.Code.CodeValue)
	})

	t.Run("malformed input", func(t *testing.T) {
		_, err := svc.CheckCode(ctx, "not-a-code")
		assert.ErrorIs(t, err, bookgate.ErrInvalidInput)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := svc.CheckCode(ctx, "ZZZZ-ZZZZ-ZZZZ")
		assert.ErrorIs(t, err, bookgate.ErrCodeNotFound)
	})

	t.Run("expired code", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Hour)
		_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
			ResourceID:     resource.ID,
			CodeValue:      "EEEE-FFFF-GGGG",
			MaxActivations: 1,
			ExpiryDate:     &past,
		})
		require.NoError(t, err)

		_, err = svc.CheckCode(ctx, "EEEE-FFFF-GGGG")
		assert.ErrorIs(t, err, bookgate.ErrCodeExpired)
	})

	t.Run("orphaned code", func(t *testing.T) {
		orphan := createTestResource(t, svc, "Soon Gone", bookgate.RoleStudent)
		_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
			ResourceID:     orphan.ID,
			CodeValue:      "HHHH-IIII-JJJJ",
			MaxActivations: 1,
		})
		require.NoError(t, err)

		// Remove the resource behind the service's back so the code
		// dangles.
		require.NoError(t, repo.DeleteResource(ctx, orphan.ID))

		_, err = svc.CheckCode(ctx, "HHHH-IIII-JJJJ")
		assert.ErrorIs(t, err, bookgate.ErrCodeOrphaned)
	})
}

func TestRedeemSingleUseCode(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t)
	resource := createTestResource(t, svc, "Reader B", bookgate.RoleStudent)

	_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID:     resource.ID,
		CodeValue:      "AAAA-BBBB-CCCC",
		MaxActivations: 1,
	})
	require.NoError(t, err)

	user1 := uuid.New()
	user2 := uuid.New()

	got, err := svc.Redeem(ctx, bookgate.RedeemRequest{
		CodeValue: "AAAA-BBBB-CCCC",
		UserID:    user1,
		Role:      bookgate.RoleStudent,
	})
	require.NoError(t, err)
	assert.Equal(t, resource.ID, got.ID)

	_, err = svc.Redeem(ctx, bookgate.RedeemRequest{
		CodeValue: "AAAA-BBBB-CCCC",
		UserID:    user2,
		Role:      bookgate.RoleStudent,
	})
	assert.ErrorIs(t, err, bookgate.ErrCapacityExceeded)

	// The holder of the grant gets the dedicated error, not the
	// capacity one.
	_, err = svc.Redeem(ctx, bookgate.RedeemRequest{
		CodeValue: "AAAA-BBBB-CCCC",
		UserID:    user1,
		Role:      bookgate.RoleStudent,
	})
	assert.ErrorIs(t, err, bookgate.ErrAlreadyRedeemed)
}

func TestRedeemRoleGate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t)

	teacherEdition := createTestResource(t, svc, "Teacher Guide", bookgate.RoleTeacher)
	studentEdition := createTestResource(t, svc, "Student Book", bookgate.RoleStudent)

	_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID: teacherEdition.ID, CodeValue: "TTTT-TTTT-TTTT", MaxActivations: 5,
	})
	require.NoError(t, err)
	_, err = svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID: studentEdition.ID, CodeValue: "SSSS-SSSS-SSSS", MaxActivations: 5,
	})
	require.NoError(t, err)

	t.Run("student blocked from teacher edition", func(t *testing.T) {
		_, err := svc.Redeem(ctx, bookgate.RedeemRequest{
			CodeValue: "TTTT-TTTT-TTTT",
			UserID:    uuid.New(),
			Role:      bookgate.RoleStudent,
		})
		assert.ErrorIs(t, err, bookgate.ErrForbidden)
	})

	t.Run("teacher allowed on teacher edition", func(t *testing.T) {
		_, err := svc.Redeem(ctx, bookgate.RedeemRequest{
			CodeValue: "TTTT-TTTT-TTTT",
			UserID:    uuid.New(),
			Role:      bookgate.RoleTeacher,
		})
		assert.NoError(t, err)
	})

	t.Run("teacher allowed on student edition", func(t *testing.T) {
		_, err := svc.Redeem(ctx, bookgate.RedeemRequest{
			CodeValue: "SSSS-SSSS-SSSS",
			UserID:    uuid.New(),
			Role:      bookgate.RoleTeacher,
		})
		assert.NoError(t, err)
	})

	t.Run("unknown role rejected", func(t *testing.T) {
		_, err := svc.Redeem(ctx, bookgate.RedeemRequest{
			CodeValue: "SSSS-SSSS-SSSS",
			UserID:    uuid.New(),
			Role:      "Admin",
		})
		assert.ErrorIs(t, err, bookgate.ErrInvalidInput)
	})
}

func TestRedeemCapacity(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t)
	resource := createTestResource(t, svc, "Reader C", bookgate.RoleStudent)

	_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID:     resource.ID,
		CodeValue:      "CCCC-AAAA-PPPP",
		MaxActivations: 3,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Redeem(ctx, bookgate.RedeemRequest{
			CodeValue: "CCCC-AAAA-PPPP",
			UserID:    uuid.New(),
			Role:      bookgate.RoleStudent,
		})
		require.NoError(t, err)
	}

	_, err = svc.Redeem(ctx, bookgate.RedeemRequest{
		CodeValue: "CCCC-AAAA-PPPP",
		UserID:    uuid.New(),
		Role:      bookgate.RoleStudent,
	})
	assert.ErrorIs(t, err, bookgate.ErrCapacityExceeded)
}

func TestRedeemConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t)
	resource := createTestResource(t, svc, "Reader D", bookgate.RoleStudent)

	_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID:     resource.ID,
		CodeValue:      "RRRR-AAAA-CCCC",
		MaxActivations: 10,
	})
	require.NoError(t, err)

	userID := uuid.New()
	const attempts = 8
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Redeem(ctx, bookgate.RedeemRequest{
				CodeValue: "RRRR-AAAA-CCCC",
				UserID:    userID,
				Role:      bookgate.RoleStudent,
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, bookgate.ErrAlreadyRedeemed)
		}
	}
	assert.Equal(t, 1, succeeded)

	entitlements, err := svc.ListEntitlements(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, entitlements, 1)
}

func TestListEntitlements(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupTestService(t)
	userID := uuid.New()

	first := createTestResource(t, svc, "First", bookgate.RoleStudent)
	second := createTestResource(t, svc, "Second", bookgate.RoleStudent)

	_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID: first.ID, CodeValue: "AAAA-1111-AAAA", MaxActivations: 5,
	})
	require.NoError(t, err)
	explicitExpiry := time.Now().UTC().Add(48 * time.Hour)
	_, err = svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID: second.ID, CodeValue: "BBBB-2222-BBBB", MaxActivations: 5,
		ExpiryDate: &explicitExpiry,
	})
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, bookgate.RedeemRequest{CodeValue: "AAAA-1111-AAAA", UserID: userID, Role: bookgate.RoleStudent})
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, bookgate.RedeemRequest{CodeValue: "BBBB-2222-BBBB", UserID: userID, Role: bookgate.RoleStudent})
	require.NoError(t, err)

	t.Run("newest resource first, explicit expiry carried", func(t *testing.T) {
		entitlements, err := svc.ListEntitlements(ctx, userID)
		require.NoError(t, err)
		require.Len(t, entitlements, 2)
		assert.Equal(t, second.ID, entitlements[0].Resource.ID)
		require.NotNil(t, entitlements[0].ExpiresAt)
		assert.WithinDuration(t, explicitExpiry, *entitlements[0].ExpiresAt, time.Second)
		assert.Equal(t, first.ID, entitlements[1].Resource.ID)
		assert.Nil(t, entitlements[1].ExpiresAt)
	})

	t.Run("deduplicates grants for the same resource", func(t *testing.T) {
		_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
			ResourceID: first.ID, CodeValue: "CCCC-3333-CCCC", MaxActivations: 5,
		})
		require.NoError(t, err)
		_, err = svc.Redeem(ctx, bookgate.RedeemRequest{CodeValue: "CCCC-3333-CCCC", UserID: userID, Role: bookgate.RoleStudent})
		require.NoError(t, err)

		entitlements, err := svc.ListEntitlements(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, entitlements, 2)
	})

	t.Run("skips resources that no longer resolve", func(t *testing.T) {
		require.NoError(t, repo.DeleteResource(ctx, second.ID))

		entitlements, err := svc.ListEntitlements(ctx, userID)
		require.NoError(t, err)
		require.Len(t, entitlements, 1)
		assert.Equal(t, first.ID, entitlements[0].Resource.ID)
	})

	t.Run("drops grants past the implicit lifetime", func(t *testing.T) {
		stale := createTestResource(t, svc, "Stale", bookgate.RoleStudent)
		code, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
			ResourceID: stale.ID, CodeValue: "DDDD-4444-DDDD", MaxActivations: 5,
		})
		require.NoError(t, err)

		// An old grant, created directly to backdate its activation.
		require.NoError(t, repo.CreateGrant(ctx, &bookgate.ActivationGrant{
			ID:          uuid.New(),
			CodeID:      code.ID,
			UserID:      userID,
			ActivatedAt: time.Now().UTC().AddDate(0, 0, -(bookgate.DefaultEntitlementDays + 1)),
		}))

		entitlements, err := svc.ListEntitlements(ctx, userID)
		require.NoError(t, err)
		for _, e := range entitlements {
			assert.NotEqual(t, stale.ID, e.Resource.ID)
		}
	})

	t.Run("drops grants whose code expiry passed", func(t *testing.T) {
		fading := createTestResource(t, svc, "Fading", bookgate.RoleStudent)
		code, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
			ResourceID: fading.ID, CodeValue: "EEEE-5555-EEEE", MaxActivations: 5,
		})
		require.NoError(t, err)
		_, err = svc.Redeem(ctx, bookgate.RedeemRequest{CodeValue: "EEEE-5555-EEEE", UserID: userID, Role: bookgate.RoleStudent})
		require.NoError(t, err)

		// Expire the code after redemption.
		past := time.Now().UTC().Add(-time.Minute)
		code.ExpiryDate = &past
		require.NoError(t, repo.UpdateCode(ctx, code))

		entitlements, err := svc.ListEntitlements(ctx, userID)
		require.NoError(t, err)
		for _, e := range entitlements {
			assert.NotEqual(t, fading.ID, e.Resource.ID)
		}
	})
}

func TestGrantAdministration(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupTestService(t)
	resource := createTestResource(t, svc, "Admin View", bookgate.RoleStudent)

	code, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
		ResourceID: resource.ID, CodeValue: "GGGG-RRRR-AAAA", MaxActivations: 5,
	})
	require.NoError(t, err)

	user1 := uuid.New()
	user2 := uuid.New()
	for _, userID := range []uuid.UUID{user1, user2} {
		_, err := svc.Redeem(ctx, bookgate.RedeemRequest{
			CodeValue: "GGGG-RRRR-AAAA", UserID: userID, Role: bookgate.RoleStudent,
		})
		require.NoError(t, err)
	}

	t.Run("lists grants with code and resource context", func(t *testing.T) {
		records, err := svc.ListGrants(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "GGGG-RRRR-AAAA", records[0].CodeValue)
		assert.Equal(t, "Admin View", records[0].ResourceTitle)
	})

	t.Run("revokes a single grant", func(t *testing.T) {
		records, err := svc.ListGrants(ctx)
		require.NoError(t, err)
		require.NoError(t, svc.RevokeGrant(ctx, records[0].ID))

		records, err = svc.ListGrants(ctx)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("revokes all grants of a user", func(t *testing.T) {
		require.NoError(t, svc.RevokeUserGrants(ctx, user1))
		require.NoError(t, svc.RevokeUserGrants(ctx, user2))

		records, err := svc.ListGrants(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)

		count, err := svc.CountActivations(ctx, code.ID)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("placeholder title for a deleted resource", func(t *testing.T) {
		other := createTestResource(t, svc, "Ephemeral", bookgate.RoleStudent)
		_, err := svc.IssueCode(ctx, bookgate.IssueCodeRequest{
			ResourceID: other.ID, CodeValue: "PPPP-LLLL-HHHH", MaxActivations: 1,
		})
		require.NoError(t, err)
		_, err = svc.Redeem(ctx, bookgate.RedeemRequest{
			CodeValue: "PPPP-LLLL-HHHH", UserID: uuid.New(), Role: bookgate.RoleStudent,
		})
		require.NoError(t, err)

		// Drop the resource row without going through the service so
		// the code and grant survive it.
		require.NoError(t, repo.DeleteResource(ctx, other.ID))

		records, err := svc.ListGrants(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Product Deleted", records[0].ResourceTitle)
	})
}
