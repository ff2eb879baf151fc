package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/model"
	"github.com/sakif/snippet-vault/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================
//
// In-memory implementations of the repository interfaces. They follow the
// same contracts as the SQLite stores (owner scoping, guarded insert,
// COALESCE share) so service tests exercise real business rules without a
// database. The SQLite behaviour itself is covered in repository/sqlite.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ptr[T any](v T) *T { return &v }

// ---- snippets ----

type fakeSnippetRepo struct {
	snippets map[string]*model.Snippet
	nextID   int
	// takenPublicIDs simulates ids already used by other snippets.
	takenPublicIDs map[string]bool
	shareCalls     int
	listErr        error
	// revs counts writes per snippet; users supplies the profile half of
	// PublicVersion.
	revs  map[string]int
	users *fakeUserRepo
}

var _ repository.SnippetRepository = (*fakeSnippetRepo)(nil)

func newFakeSnippetRepo() *fakeSnippetRepo {
	return &fakeSnippetRepo{
		snippets:       make(map[string]*model.Snippet),
		takenPublicIDs: make(map[string]bool),
		revs:           make(map[string]int),
	}
}

func (f *fakeSnippetRepo) CreateWithinLimit(_ context.Context, s *model.Snippet, limit int) error {
	count, _ := f.CountByOwner(context.Background(), s.UserID)
	if count >= limit {
		return apperror.LimitReached("snippet", limit)
	}
	f.nextID++
	s.ID = fmt.Sprintf("snip-%d", f.nextID)
	s.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	s.UpdatedAt = s.CreatedAt
	stored := *s
	f.snippets[s.ID] = &stored
	return nil
}

func (f *fakeSnippetRepo) GetByID(_ context.Context, ownerID, id string) (*model.Snippet, error) {
	s, ok := f.snippets[id]
	if !ok || s.UserID != ownerID {
		return nil, apperror.NotFound("snippet", id)
	}
	out := *s
	return &out, nil
}

func (f *fakeSnippetRepo) List(_ context.Context, ownerID string, filter model.SnippetFilter) ([]model.Snippet, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Snippet{}
	for _, s := range f.snippets {
		if s.UserID != ownerID {
			continue
		}
		if filter.Language != "" && s.Language != filter.Language {
			continue
		}
		if filter.FavoritesOnly && !s.IsFavorite {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(s.Title), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeSnippetRepo) Update(_ context.Context, s *model.Snippet) error {
	existing, ok := f.snippets[s.ID]
	if !ok || existing.UserID != s.UserID {
		return apperror.NotFound("snippet", s.ID)
	}
	updated := *s
	updated.IsPublic = existing.IsPublic
	updated.PublicID = existing.PublicID
	updated.PublicURL = existing.PublicURL
	updated.IsFavorite = existing.IsFavorite
	f.snippets[s.ID] = &updated
	f.revs[s.ID]++
	return nil
}

func (f *fakeSnippetRepo) Delete(_ context.Context, ownerID, id string) error {
	s, ok := f.snippets[id]
	if !ok || s.UserID != ownerID {
		return apperror.NotFound("snippet", id)
	}
	delete(f.snippets, id)
	return nil
}

func (f *fakeSnippetRepo) SetFavorite(_ context.Context, ownerID, id string, favorite bool) error {
	s, ok := f.snippets[id]
	if !ok || s.UserID != ownerID {
		return apperror.NotFound("snippet", id)
	}
	s.IsFavorite = favorite
	f.revs[id]++
	return nil
}

func (f *fakeSnippetRepo) CountByOwner(_ context.Context, ownerID string) (int, error) {
	n := 0
	for _, s := range f.snippets {
		if s.UserID == ownerID {
			n++
		}
	}
	return n, nil
}

func (f *fakeSnippetRepo) Share(ctx context.Context, ownerID, id, publicID, publicURL string) (*model.Snippet, error) {
	f.shareCalls++
	s, ok := f.snippets[id]
	if !ok || s.UserID != ownerID {
		return nil, apperror.NotFound("snippet", id)
	}
	if s.PublicID == nil {
		if f.takenPublicIDs[publicID] {
			return nil, apperror.Conflict("public snippet", publicID)
		}
		s.PublicID = ptr(publicID)
		s.PublicURL = ptr(publicURL)
	}
	s.IsPublic = true
	f.revs[id]++
	return f.GetByID(ctx, ownerID, id)
}

func (f *fakeSnippetRepo) Unshare(ctx context.Context, ownerID, id string) (*model.Snippet, error) {
	s, ok := f.snippets[id]
	if !ok || s.UserID != ownerID {
		return nil, apperror.NotFound("snippet", id)
	}
	s.IsPublic = false
	f.revs[id]++
	return f.GetByID(ctx, ownerID, id)
}

func (f *fakeSnippetRepo) GetPublic(_ context.Context, publicID string) (*model.Snippet, error) {
	for _, s := range f.snippets {
		if s.PublicID != nil && *s.PublicID == publicID && s.IsPublic {
			out := *s
			return &out, nil
		}
	}
	return nil, apperror.NotFound("public snippet", publicID)
}

func (f *fakeSnippetRepo) PublicVersion(ctx context.Context, publicID string) (string, error) {
	s, err := f.GetPublic(ctx, publicID)
	if err != nil {
		return "", err
	}
	profileRev := 0
	if f.users != nil {
		profileRev = f.users.profileRevs[s.UserID]
	}
	return fmt.Sprintf("%d.%d", f.revs[s.ID], profileRev), nil
}

// ---- boilerplates ----

type fakeBoilerplateRepo struct {
	items  map[string]*model.Boilerplate
	nextID int
}

var _ repository.BoilerplateRepository = (*fakeBoilerplateRepo)(nil)

func newFakeBoilerplateRepo() *fakeBoilerplateRepo {
	return &fakeBoilerplateRepo{items: make(map[string]*model.Boilerplate)}
}

func (f *fakeBoilerplateRepo) CreateWithinLimit(_ context.Context, b *model.Boilerplate, limit int) error {
	count, _ := f.CountByOwner(context.Background(), b.UserID)
	if count >= limit {
		return apperror.LimitReached("boilerplate", limit)
	}
	f.nextID++
	b.ID = fmt.Sprintf("bp-%d", f.nextID)
	stored := *b
	f.items[b.ID] = &stored
	return nil
}

func (f *fakeBoilerplateRepo) GetByID(_ context.Context, ownerID, id string) (*model.Boilerplate, error) {
	b, ok := f.items[id]
	if !ok || b.UserID != ownerID {
		return nil, apperror.NotFound("boilerplate", id)
	}
	out := *b
	return &out, nil
}

func (f *fakeBoilerplateRepo) List(_ context.Context, ownerID string, _ repository.ListOptions) ([]model.Boilerplate, error) {
	out := []model.Boilerplate{}
	for _, b := range f.items {
		if b.UserID == ownerID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBoilerplateRepo) Update(_ context.Context, b *model.Boilerplate) error {
	existing, ok := f.items[b.ID]
	if !ok || existing.UserID != b.UserID {
		return apperror.NotFound("boilerplate", b.ID)
	}
	updated := *b
	updated.IsFavorite = existing.IsFavorite
	f.items[b.ID] = &updated
	return nil
}

func (f *fakeBoilerplateRepo) Delete(_ context.Context, ownerID, id string) error {
	b, ok := f.items[id]
	if !ok || b.UserID != ownerID {
		return apperror.NotFound("boilerplate", id)
	}
	delete(f.items, id)
	return nil
}

func (f *fakeBoilerplateRepo) SetFavorite(_ context.Context, ownerID, id string, favorite bool) error {
	b, ok := f.items[id]
	if !ok || b.UserID != ownerID {
		return apperror.NotFound("boilerplate", id)
	}
	b.IsFavorite = favorite
	return nil
}

func (f *fakeBoilerplateRepo) CountByOwner(_ context.Context, ownerID string) (int, error) {
	n := 0
	for _, b := range f.items {
		if b.UserID == ownerID {
			n++
		}
	}
	return n, nil
}

// ---- folders ----

type fakeFolderRepo struct {
	folders  map[string]*model.Folder
	snippets *fakeSnippetRepo
	nextID   int
}

var _ repository.FolderRepository = (*fakeFolderRepo)(nil)

func newFakeFolderRepo(snippets *fakeSnippetRepo) *fakeFolderRepo {
	return &fakeFolderRepo{folders: make(map[string]*model.Folder), snippets: snippets}
}

func (f *fakeFolderRepo) Create(_ context.Context, folder *model.Folder) error {
	f.nextID++
	folder.ID = fmt.Sprintf("folder-%d", f.nextID)
	stored := *folder
	f.folders[folder.ID] = &stored
	return nil
}

func (f *fakeFolderRepo) GetByID(_ context.Context, ownerID, id string) (*model.Folder, error) {
	folder, ok := f.folders[id]
	if !ok || folder.UserID != ownerID {
		return nil, apperror.NotFound("folder", id)
	}
	out := *folder
	return &out, nil
}

func (f *fakeFolderRepo) List(_ context.Context, ownerID string) ([]model.Folder, error) {
	out := []model.Folder{}
	for _, folder := range f.folders {
		if folder.UserID == ownerID {
			out = append(out, *folder)
		}
	}
	return out, nil
}

func (f *fakeFolderRepo) Update(_ context.Context, folder *model.Folder) error {
	existing, ok := f.folders[folder.ID]
	if !ok || existing.UserID != folder.UserID {
		return apperror.NotFound("folder", folder.ID)
	}
	stored := *folder
	f.folders[folder.ID] = &stored
	return nil
}

func (f *fakeFolderRepo) Delete(_ context.Context, ownerID, id string) error {
	folder, ok := f.folders[id]
	if !ok || folder.UserID != ownerID {
		return apperror.NotFound("folder", id)
	}
	if f.snippets != nil {
		for _, s := range f.snippets.snippets {
			if s.UserID == ownerID && s.FolderID != nil && *s.FolderID == id {
				s.FolderID = nil
			}
		}
	}
	delete(f.folders, id)
	return nil
}

// ---- users + profiles ----

type fakeUserRepo struct {
	users       map[string]*model.User
	profiles    map[string]*model.Profile
	profileRevs map[string]int
	nextID      int
	// set to a non-nil error to simulate a database failure
	createErr  error
	getByIDErr error
}

var (
	_ repository.UserRepository    = (*fakeUserRepo)(nil)
	_ repository.ProfileRepository = (*fakeUserRepo)(nil)
)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:       make(map[string]*model.User),
		profiles:    make(map[string]*model.Profile),
		profileRevs: make(map[string]int),
	}
}

// addUser seeds a user with a free profile and returns its id.
func (f *fakeUserRepo) addUser(email string) string {
	user := &model.User{Email: email}
	_ = f.CreateWithProfile(context.Background(), user, model.NewFreeProfile("", "Test User", ""))
	return user.ID
}

func (f *fakeUserRepo) CreateWithProfile(_ context.Context, user *model.User, profile *model.Profile) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, u := range f.users {
		if user.Email != "" && u.Email == user.Email {
			return apperror.Conflict("user email", user.Email)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	profile.UserID = user.ID
	u := *user
	p := *profile
	f.users[user.ID] = &u
	f.profiles[user.ID] = &p
	return nil
}

func (f *fakeUserRepo) UpsertGitHub(ctx context.Context, user *model.User, profile *model.Profile) error {
	for _, u := range f.users {
		if u.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			u.Login = user.Login
			if u.Email == "" {
				u.Email = user.Email
			}
			*user = *u
			return nil
		}
	}
	for _, u := range f.users {
		if user.Email != "" && u.Email == user.Email {
			u.GitHubID = user.GitHubID
			u.Login = user.Login
			*user = *u
			return nil
		}
	}
	return f.CreateWithProfile(ctx, user, profile)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, apperror.NotFound("profile", userID)
	}
	out := *p
	return &out, nil
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, profile *model.Profile) error {
	p, ok := f.profiles[profile.UserID]
	if !ok {
		return apperror.NotFound("profile", profile.UserID)
	}
	p.FullName = profile.FullName
	p.AvatarURL = profile.AvatarURL
	p.Bio = profile.Bio
	f.profileRevs[profile.UserID]++
	return nil
}

// ---- payments ----

type fakePaymentRepo struct {
	users    *fakeUserRepo
	payments []model.Payment
	// applyErr simulates a database failure inside ApplyUpgrade.
	applyErr error
}

var _ repository.PaymentRepository = (*fakePaymentRepo)(nil)

func (f *fakePaymentRepo) exists(p *model.Payment) bool {
	for _, existing := range f.payments {
		if existing.Provider == p.Provider && existing.TransactionID == p.TransactionID && existing.Status == p.Status {
			return true
		}
	}
	return false
}

func (f *fakePaymentRepo) ApplyUpgrade(_ context.Context, upgrade *model.PlanUpgrade) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	if f.exists(upgrade.Payment) {
		return apperror.Conflict("payment", upgrade.Payment.TransactionID)
	}
	p, ok := f.users.profiles[upgrade.UserID]
	if !ok {
		return apperror.NotFound("profile", upgrade.UserID)
	}
	p.PlanType = model.PlanPro
	p.PlanStatus = model.PlanStatusActive
	p.SnippetLimit = model.UnlimitedLimit
	p.BoilerplateLimit = model.UnlimitedLimit
	if upgrade.CustomerID != "" {
		p.PaymentCustomerID = upgrade.CustomerID
	}
	if upgrade.SubscriptionID != "" {
		p.PaymentSubscriptionID = upgrade.SubscriptionID
	}
	f.payments = append(f.payments, *upgrade.Payment)
	return nil
}

func (f *fakePaymentRepo) RecordPayment(_ context.Context, payment *model.Payment) error {
	if f.exists(payment) {
		return apperror.Conflict("payment", payment.TransactionID)
	}
	f.payments = append(f.payments, *payment)
	return nil
}

func (f *fakePaymentRepo) ListPayments(_ context.Context, userID string) ([]model.Payment, error) {
	out := []model.Payment{}
	for _, p := range f.payments {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// ---- cache, mailer, object store ----

type fakeCache struct {
	views       map[string]*model.PublicSnippet
	versions    map[string]string
	invalidated []string
	gets        int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		views:    make(map[string]*model.PublicSnippet),
		versions: make(map[string]string),
	}
}

func (c *fakeCache) Get(_ context.Context, publicID string) (*model.PublicSnippet, string, bool) {
	c.gets++
	v, ok := c.views[publicID]
	return v, c.versions[publicID], ok
}

func (c *fakeCache) Set(_ context.Context, version string, view *model.PublicSnippet) {
	c.views[view.PublicID] = view
	c.versions[view.PublicID] = version
}

func (c *fakeCache) Invalidate(_ context.Context, publicID string) {
	c.invalidated = append(c.invalidated, publicID)
	delete(c.views, publicID)
	delete(c.versions, publicID)
}

type fakeMailer struct {
	welcome  []string
	upgraded []string
	err      error
}

func (m *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	m.welcome = append(m.welcome, to)
	return m.err
}

func (m *fakeMailer) SendPlanUpgraded(_ context.Context, to, _ string) error {
	m.upgraded = append(m.upgraded, to)
	return m.err
}

type fakeStore struct {
	objects map[string][]byte
	deleted []string
	// failAfter makes the Nth Put (1-based) fail; 0 never fails.
	failAfter int
	puts      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Put(_ context.Context, key, _ string, body io.ReadSeeker, size int64) (string, error) {
	s.puts++
	if s.failAfter > 0 && s.puts >= s.failAfter {
		return "", fmt.Errorf("bucket unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("%s: read %d bytes, content length %d", key, len(data), size)
	}
	s.objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return nil
}
