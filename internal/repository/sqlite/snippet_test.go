package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" gives every test its own throwaway database. New pins the pool
// to a single connection so all statements see the same data.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user with a free profile and returns its id.
func createTestUser(t *testing.T, db *DB, email string) string {
	t.Helper()
	user := &model.User{Email: email, Login: email}
	profile := model.NewFreeProfile("", "Test User", "")
	if err := db.Users().CreateWithProfile(context.Background(), user, profile); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user.ID
}

func strPtr(s string) *string { return &s }

func createTestSnippet(t *testing.T, db *DB, ownerID, title string) *model.Snippet {
	t.Helper()
	snippet := &model.Snippet{
		UserID:   ownerID,
		Title:    title,
		Code:     strPtr("fmt.Println(42)"),
		Language: "go",
		Tags:     []string{"demo"},
	}
	if err := db.Snippets().CreateWithinLimit(context.Background(), snippet, 100); err != nil {
		t.Fatalf("failed to create test snippet: %v", err)
	}
	return snippet
}

// =========================================================================
// CREATE / QUOTA TESTS
// =========================================================================

func TestSnippetCreateWithinLimit(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")

	snippet := createTestSnippet(t, db, owner, "hello")

	assert.NotEmpty(t, snippet.ID)
	assert.False(t, snippet.CreatedAt.IsZero())
	assert.False(t, snippet.IsPublic)
	assert.Nil(t, snippet.PublicID)

	found, err := db.Snippets().GetByID(context.Background(), owner, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", found.Title)
	assert.Equal(t, []string{"demo"}, found.Tags)
	assert.Equal(t, "fmt.Println(42)", *found.Code)
	assert.Empty(t, found.Files)
}

func TestSnippetCreateWithinLimit_RejectsAtLimit(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s := &model.Snippet{UserID: owner, Title: "s", Code: strPtr("x"), Language: "go"}
		require.NoError(t, db.Snippets().CreateWithinLimit(ctx, s, 3))
	}

	extra := &model.Snippet{UserID: owner, Title: "one too many", Code: strPtr("x"), Language: "go"}
	err := db.Snippets().CreateWithinLimit(ctx, extra, 3)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrLimitReached))
	assert.Empty(t, extra.ID)

	count, err := db.Snippets().CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSnippetCreateWithinLimit_ConcurrentNeverExceeds(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	ctx := context.Background()

	const limit = 5
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := &model.Snippet{UserID: owner, Title: "race", Code: strPtr("x"), Language: "go"}
			_ = db.Snippets().CreateWithinLimit(ctx, s, limit)
		}()
	}
	wg.Wait()

	count, err := db.Snippets().CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, limit, count)
}

func TestSnippetCreateWithinLimit_LimitIsPerOwner(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	ctx := context.Background()

	require.NoError(t, db.Snippets().CreateWithinLimit(ctx,
		&model.Snippet{UserID: alice, Title: "a", Code: strPtr("x"), Language: "go"}, 1))

	err := db.Snippets().CreateWithinLimit(ctx,
		&model.Snippet{UserID: bob, Title: "b", Code: strPtr("x"), Language: "go"}, 1)
	assert.NoError(t, err)
}

// =========================================================================
// OWNERSHIP TESTS
// =========================================================================

func TestSnippetOwnership(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	snippet := createTestSnippet(t, db, alice, "alice's")
	ctx := context.Background()

	tests := []struct {
		name string
		op   func() error
	}{
		{"get", func() error { _, err := db.Snippets().GetByID(ctx, bob, snippet.ID); return err }},
		{"delete", func() error { return db.Snippets().Delete(ctx, bob, snippet.ID) }},
		{"favorite", func() error { return db.Snippets().SetFavorite(ctx, bob, snippet.ID, true) }},
		{"share", func() error {
			_, err := db.Snippets().Share(ctx, bob, snippet.ID, "abcdefghij", "http://x/s/abcdefghij")
			return err
		}},
		{"unshare", func() error { _, err := db.Snippets().Unshare(ctx, bob, snippet.ID); return err }},
		{"update", func() error {
			stolen := *snippet
			stolen.UserID = bob
			stolen.Title = "mine now"
			return db.Snippets().Update(ctx, &stolen)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
		})
	}

	// Alice's row is untouched.
	found, err := db.Snippets().GetByID(ctx, alice, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice's", found.Title)
	assert.False(t, found.IsPublic)
	assert.False(t, found.IsFavorite)
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestSnippetList_Filters(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	ctx := context.Background()

	folder := &model.Folder{UserID: owner, Name: "work"}
	require.NoError(t, db.Folders().Create(ctx, folder))

	goSnippet := &model.Snippet{UserID: owner, Title: "Go HTTP server", Code: strPtr("x"), Language: "go",
		Tags: []string{"http", "server"}, FolderID: &folder.ID}
	pySnippet := &model.Snippet{UserID: owner, Title: "Python list comp", Code: strPtr("x"), Language: "python",
		Tags: []string{"lists"}, IsFavorite: true}
	for _, s := range []*model.Snippet{goSnippet, pySnippet} {
		require.NoError(t, db.Snippets().CreateWithinLimit(ctx, s, 100))
	}

	tests := []struct {
		name   string
		filter model.SnippetFilter
		want   []string
	}{
		{"no filter", model.SnippetFilter{}, []string{goSnippet.ID, pySnippet.ID}},
		{"by folder", model.SnippetFilter{FolderID: folder.ID}, []string{goSnippet.ID}},
		{"by language", model.SnippetFilter{Language: "python"}, []string{pySnippet.ID}},
		{"by tag", model.SnippetFilter{Tag: "server"}, []string{goSnippet.ID}},
		{"favorites", model.SnippetFilter{FavoritesOnly: true}, []string{pySnippet.ID}},
		{"search", model.SnippetFilter{Query: "http"}, []string{goSnippet.ID}},
		{"no match", model.SnippetFilter{Tag: "nope"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Snippets().List(ctx, owner, tt.filter)
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestSnippetList_OnlyOwner(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	createTestSnippet(t, db, alice, "a1")
	createTestSnippet(t, db, alice, "a2")
	createTestSnippet(t, db, bob, "b1")

	got, err := db.Snippets().List(context.Background(), bob, model.SnippetFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].Title)
}

// =========================================================================
// UPDATE / DELETE TESTS
// =========================================================================

func TestSnippetUpdate_DoesNotTouchSharing(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	snippet := createTestSnippet(t, db, owner, "before")
	ctx := context.Background()

	_, err := db.Snippets().Share(ctx, owner, snippet.ID, "pub0000001", "http://x/s/pub0000001")
	require.NoError(t, err)

	snippet.Title = "after"
	snippet.IsPublic = false // ignored by Update
	require.NoError(t, db.Snippets().Update(ctx, snippet))

	found, err := db.Snippets().GetByID(ctx, owner, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", found.Title)
	assert.True(t, found.IsPublic)
	assert.Equal(t, "pub0000001", *found.PublicID)
}

func TestSnippetDelete(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	snippet := createTestSnippet(t, db, owner, "bye")
	ctx := context.Background()

	require.NoError(t, db.Snippets().Delete(ctx, owner, snippet.ID))

	_, err := db.Snippets().GetByID(ctx, owner, snippet.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = db.Snippets().Delete(ctx, owner, snippet.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

// =========================================================================
// SHARE TESTS
// =========================================================================

func TestSnippetShare_Idempotent(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	snippet := createTestSnippet(t, db, owner, "share me")
	ctx := context.Background()

	first, err := db.Snippets().Share(ctx, owner, snippet.ID, "firstid001", "http://x/s/firstid001")
	require.NoError(t, err)
	assert.True(t, first.IsPublic)
	require.NotNil(t, first.PublicID)
	assert.Equal(t, "firstid001", *first.PublicID)

	// A second call offers a different candidate id; the stored one wins.
	second, err := db.Snippets().Share(ctx, owner, snippet.ID, "secondid02", "http://x/s/secondid02")
	require.NoError(t, err)
	assert.Equal(t, "firstid001", *second.PublicID)
	assert.Equal(t, "http://x/s/firstid001", *second.PublicURL)
}

func TestSnippetShare_UnshareKeepsID(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	snippet := createTestSnippet(t, db, owner, "cycle")
	ctx := context.Background()

	_, err := db.Snippets().Share(ctx, owner, snippet.ID, "keepme0001", "http://x/s/keepme0001")
	require.NoError(t, err)

	unshared, err := db.Snippets().Unshare(ctx, owner, snippet.ID)
	require.NoError(t, err)
	assert.False(t, unshared.IsPublic)
	require.NotNil(t, unshared.PublicID)
	assert.Equal(t, "keepme0001", *unshared.PublicID)

	_, err = db.Snippets().GetPublic(ctx, "keepme0001")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	reshared, err := db.Snippets().Share(ctx, owner, snippet.ID, "brandnew01", "http://x/s/brandnew01")
	require.NoError(t, err)
	assert.Equal(t, "keepme0001", *reshared.PublicID)

	public, err := db.Snippets().GetPublic(ctx, "keepme0001")
	require.NoError(t, err)
	assert.Equal(t, snippet.ID, public.ID)
}

func TestSnippetShare_CollisionIsConflict(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	a := createTestSnippet(t, db, owner, "a")
	b := createTestSnippet(t, db, owner, "b")
	ctx := context.Background()

	_, err := db.Snippets().Share(ctx, owner, a.ID, "samesameid", "http://x/s/samesameid")
	require.NoError(t, err)

	_, err = db.Snippets().Share(ctx, owner, b.ID, "samesameid", "http://x/s/samesameid")
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	found, err := db.Snippets().GetByID(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.False(t, found.IsPublic)
	assert.Nil(t, found.PublicID)
}

func TestSnippetGetPublic_UnknownID(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Snippets().GetPublic(context.Background(), "doesnotexist")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSnippetPublicVersion(t *testing.T) {
	db := newTestDB(t)
	owner := createTestUser(t, db, "a@example.com")
	snippet := createTestSnippet(t, db, owner, "stamped")
	ctx := context.Background()

	_, err := db.Snippets().PublicVersion(ctx, "stampid001")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "private snippet got %v", err)

	_, err = db.Snippets().Share(ctx, owner, snippet.ID, "stampid001", "http://x/s/stampid001")
	require.NoError(t, err)
	shared, err := db.Snippets().PublicVersion(ctx, "stampid001")
	require.NoError(t, err)

	again, err := db.Snippets().PublicVersion(ctx, "stampid001")
	require.NoError(t, err)
	assert.Equal(t, shared, again, "stamp must be stable without writes")

	// An author card edit changes the stamp.
	profile, err := db.Users().GetProfile(ctx, owner)
	require.NoError(t, err)
	profile.FullName = "Grace Hopper"
	require.NoError(t, db.Users().UpdateProfile(ctx, profile))
	renamed, err := db.Snippets().PublicVersion(ctx, "stampid001")
	require.NoError(t, err)
	assert.NotEqual(t, shared, renamed)

	// So does a content edit.
	snippet.Title = "restamped"
	require.NoError(t, db.Snippets().Update(ctx, snippet))
	edited, err := db.Snippets().PublicVersion(ctx, "stampid001")
	require.NoError(t, err)
	assert.NotEqual(t, renamed, edited)

	_, err = db.Snippets().Unshare(ctx, owner, snippet.ID)
	require.NoError(t, err)
	_, err = db.Snippets().PublicVersion(ctx, "stampid001")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "unshared snippet got %v", err)
}
