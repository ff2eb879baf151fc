package seed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-vault/internal/auth"
	"github.com/sakif/snippet-vault/internal/cache"
	"github.com/sakif/snippet-vault/internal/mailer"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository/sqlite"
	"github.com/sakif/snippet-vault/internal/service"
)

type env struct {
	seeder   *Seeder
	auth     *service.AuthService
	snippets *service.SnippetService
	folders  *service.FolderService
}

func newEnv(t *testing.T, limits service.PlanLimits) *env {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokenService("seed-test-secret-0123456", time.Hour)
	require.NoError(t, err)

	users := db.Users()
	publicCache := cache.NewPublicSnippetCache(nil, time.Minute, logger)
	plans := service.NewPlanService(users, db.Snippets(), db.Boilerplates(), logger)

	e := &env{
		auth:     service.NewAuthService(users, tokens, auth.NewPasswordServiceForTest(4), mailer.NewNoop(logger), limits, logger),
		snippets: service.NewSnippetService(db.Snippets(), db.Folders(), plans, publicCache, logger),
		folders:  service.NewFolderService(db.Folders(), logger),
	}
	e.seeder = NewSeeder(
		e.auth,
		e.folders,
		e.snippets,
		service.NewShareService(db.Snippets(), users, publicCache, "https://vault.test", logger),
		service.NewBoilerplateService(db.Boilerplates(), plans, logger),
		logger,
	)
	return e
}

func TestRun(t *testing.T) {
	e := newEnv(t, service.PlanLimits{Snippets: 50, Boilerplates: 5})
	ctx := context.Background()

	res, err := e.seeder.Run(ctx, Options{Users: 3, FoldersPerUser: 2, SnippetsPerUser: 4, Seed: 42})
	require.NoError(t, err)

	assert.Len(t, res.Accounts, 3)
	assert.Equal(t, 6, res.Folders)
	assert.Equal(t, 12, res.Snippets)
	assert.Equal(t, 3, res.Boilerplates)
	assert.LessOrEqual(t, res.Shared, res.Snippets)

	// Every account can sign in with the demo password and owns its data.
	for _, acct := range res.Accounts {
		login, err := e.auth.Login(ctx, acct.Email, acct.Password)
		require.NoError(t, err, acct.Email)

		snippets, err := e.snippets.List(ctx, login.User.ID, model.SnippetFilter{})
		require.NoError(t, err)
		assert.Len(t, snippets, 4)
		for _, s := range snippets {
			assert.True(t, s.HasContent())
			if s.IsPublic {
				assert.NotNil(t, s.PublicID)
			}
		}

		folders, err := e.folders.List(ctx, login.User.ID)
		require.NoError(t, err)
		assert.Len(t, folders, 2)
	}
}

func TestRun_StopsAtPlanLimit(t *testing.T) {
	e := newEnv(t, service.PlanLimits{Snippets: 2, Boilerplates: 1})

	res, err := e.seeder.Run(context.Background(), Options{Users: 2, SnippetsPerUser: 5, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Snippets)
	assert.Equal(t, 2, res.Boilerplates)
}

func TestRun_SameSeedSameAccounts(t *testing.T) {
	a, err := newEnv(t, service.DefaultPlanLimits).seeder.Run(context.Background(), Options{Users: 2, Seed: 99})
	require.NoError(t, err)
	b, err := newEnv(t, service.DefaultPlanLimits).seeder.Run(context.Background(), Options{Users: 2, Seed: 99})
	require.NoError(t, err)

	assert.Equal(t, a.Accounts, b.Accounts)
}

func TestLocalPart(t *testing.T) {
	assert.Equal(t, "vonrueden1234", localPart("Von Rueden1234"))
	assert.Equal(t, "okon7", localPart("O'Kon7"))
	assert.Equal(t, "demo", localPart("!!!"))
}
