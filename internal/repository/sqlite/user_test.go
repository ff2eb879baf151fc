package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
)

// =========================================================================
// USER + PROFILE TESTS
// =========================================================================

func TestCreateWithProfile(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{Email: "  Alice@Example.com ", PasswordHash: "hash", Login: "alice"}
	profile := model.NewFreeProfile("", "Alice", "")
	require.NoError(t, db.Users().CreateWithProfile(ctx, user, profile))

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, user.ID, profile.UserID)

	byEmail, err := db.Users().GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	stored, err := db.Users().GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, stored.PlanType)
	assert.Equal(t, model.PlanStatusActive, stored.PlanStatus)
	assert.Equal(t, model.DefaultSnippetLimit, stored.SnippetLimit)
	assert.Equal(t, model.DefaultBoilerplateLimit, stored.BoilerplateLimit)
}

func TestCreateWithProfile_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "dup@example.com")

	err := db.Users().CreateWithProfile(ctx,
		&model.User{Email: "dup@example.com"}, model.NewFreeProfile("", "", ""))
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)
}

func TestCreateWithProfile_ManyUsersWithoutEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		gh := i
		err := db.Users().CreateWithProfile(ctx,
			&model.User{GitHubID: &gh, Login: "noemail"}, model.NewFreeProfile("", "", ""))
		require.NoError(t, err)
	}
}

func TestUpdateProfile_KeepsPlan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := createTestUser(t, db, "a@example.com")

	profile, err := db.Users().GetProfile(ctx, userID)
	require.NoError(t, err)

	profile.FullName = "New Name"
	profile.Bio = "gopher"
	profile.PlanType = model.PlanPro // must be ignored
	require.NoError(t, db.Users().UpdateProfile(ctx, profile))

	stored, err := db.Users().GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "New Name", stored.FullName)
	assert.Equal(t, "gopher", stored.Bio)
	assert.Equal(t, model.PlanFree, stored.PlanType)
}

func TestGetProfile_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Users().GetProfile(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// GITHUB UPSERT TESTS
// =========================================================================

func TestUpsertGitHub_CreatesThenRefreshes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ghID := int64(4242)

	first := &model.User{GitHubID: &ghID, Login: "octocat"}
	require.NoError(t, db.Users().UpsertGitHub(ctx, first, model.NewFreeProfile("", "Octo Cat", "http://avatar")))
	require.NotEmpty(t, first.ID)

	second := &model.User{GitHubID: &ghID, Login: "octocat-renamed", Email: "octo@example.com"}
	require.NoError(t, db.Users().UpsertGitHub(ctx, second, model.NewFreeProfile("", "", "")))

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "octocat-renamed", second.Login)
	assert.Equal(t, "octo@example.com", second.Email)
}

func TestUpsertGitHub_LinksExistingEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	existingID := createTestUser(t, db, "linked@example.com")
	ghID := int64(7)

	user := &model.User{GitHubID: &ghID, Login: "linked", Email: "linked@example.com"}
	require.NoError(t, db.Users().UpsertGitHub(ctx, user, model.NewFreeProfile("", "", "")))

	assert.Equal(t, existingID, user.ID)
	require.NotNil(t, user.GitHubID)
	assert.Equal(t, ghID, *user.GitHubID)
}

// =========================================================================
// PAYMENT TESTS
// =========================================================================

func testUpgrade(userID, txnID string) *model.PlanUpgrade {
	return &model.PlanUpgrade{
		UserID:         userID,
		CustomerID:     "ctm_1",
		SubscriptionID: "sub_1",
		Payment: &model.Payment{
			Provider:      model.ProviderPaddle,
			TransactionID: txnID,
			Amount:        900,
			Currency:      "USD",
			Status:        model.PaymentCompleted,
			PlanType:      model.PlanPro,
		},
	}
}

func TestApplyUpgrade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := createTestUser(t, db, "payer@example.com")

	require.NoError(t, db.Payments().ApplyUpgrade(ctx, testUpgrade(userID, "txn_1")))

	profile, err := db.Users().GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, profile.PlanType)
	assert.Equal(t, model.PlanStatusActive, profile.PlanStatus)
	assert.Equal(t, model.UnlimitedLimit, profile.SnippetLimit)
	assert.Equal(t, model.UnlimitedLimit, profile.BoilerplateLimit)
	assert.Equal(t, "ctm_1", profile.PaymentCustomerID)
	assert.Equal(t, "sub_1", profile.PaymentSubscriptionID)

	payments, err := db.Payments().ListPayments(ctx, userID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "txn_1", payments[0].TransactionID)
	assert.Equal(t, int64(900), payments[0].Amount)
}

func TestApplyUpgrade_DuplicateTransaction(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := createTestUser(t, db, "payer@example.com")

	require.NoError(t, db.Payments().ApplyUpgrade(ctx, testUpgrade(userID, "txn_dup")))

	err := db.Payments().ApplyUpgrade(ctx, testUpgrade(userID, "txn_dup"))
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	payments, err := db.Payments().ListPayments(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestApplyUpgrade_UnknownUserRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// The payment row references users(id); with foreign keys on, the insert
	// fails before the profile update is even attempted.
	err := db.Payments().ApplyUpgrade(ctx, testUpgrade("ghost", "txn_ghost"))
	require.Error(t, err)

	payments, err := db.Payments().ListPayments(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestRecordPayment_Failed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := createTestUser(t, db, "payer@example.com")

	require.NoError(t, db.Payments().RecordPayment(ctx, &model.Payment{
		UserID:        userID,
		Provider:      model.ProviderPaddle,
		TransactionID: "txn_f",
		Status:        model.PaymentFailed,
	}))

	profile, err := db.Users().GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanFree, profile.PlanType)
}
