// Package seed fills a database with demo accounts, folders, snippets and
// boilerplates for local development.
//
// Everything goes through the service layer, so seeded data obeys the same
// validation, plan quotas and share rules as data created over HTTP.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/sakif/snippet-vault/internal/apperror"
	"github.com/sakif/snippet-vault/internal/service"
)

// DemoPassword is shared by every seeded account.
const DemoPassword = "snippet-vault-demo"

type Options struct {
	Users           int
	FoldersPerUser  int
	SnippetsPerUser int
	// Seed makes runs reproducible; 0 picks a random seed.
	Seed int64
}

// Account is a seeded login.
type Account struct {
	Email    string
	Password string
}

type Result struct {
	Accounts     []Account
	Folders      int
	Snippets     int
	Shared       int
	Boilerplates int
}

type Seeder struct {
	auth         *service.AuthService
	folders      *service.FolderService
	snippets     *service.SnippetService
	shares       *service.ShareService
	boilerplates *service.BoilerplateService
	logger       *slog.Logger
}

func NewSeeder(
	auth *service.AuthService,
	folders *service.FolderService,
	snippets *service.SnippetService,
	shares *service.ShareService,
	boilerplates *service.BoilerplateService,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{
		auth:         auth,
		folders:      folders,
		snippets:     snippets,
		shares:       shares,
		boilerplates: boilerplates,
		logger:       logger,
	}
}

// Run creates opts.Users accounts. Snippet creation per user stops early at
// the free plan limit; that is not an error.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	faker := gofakeit.New(opts.Seed)
	res := &Result{}

	for i := range opts.Users {
		email := fmt.Sprintf("%s.%d@example.com", localPart(faker.Username()), i)
		reg, err := s.auth.Register(ctx, email, DemoPassword, faker.Name())
		if err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				s.logger.Warn("account exists, skipping", slog.String("email", email))
				continue
			}
			return res, fmt.Errorf("registering %s: %w", email, err)
		}
		userID := reg.User.ID
		res.Accounts = append(res.Accounts, Account{Email: reg.User.Email, Password: DemoPassword})

		var folderIDs []string
		for range opts.FoldersPerUser {
			folder, err := s.folders.Create(ctx, userID, service.FolderInput{
				Name:        faker.BuzzWord() + " " + faker.NounCollectivePeople(),
				Description: faker.Sentence(6),
				Color:       faker.HexColor(),
			})
			if err != nil {
				return res, fmt.Errorf("creating folder: %w", err)
			}
			folderIDs = append(folderIDs, folder.ID)
			res.Folders++
		}

		for range opts.SnippetsPerUser {
			pick := samples[faker.Number(0, len(samples)-1)]
			code := pick.code

			in := service.SnippetInput{
				Title:       faker.HackerVerb() + " " + faker.HackerNoun(),
				Description: faker.HackerPhrase(),
				Code:        &code,
				Language:    pick.language,
				Tags:        []string{faker.HackerAbbreviation(), faker.HackerAdjective()},
				IsFavorite:  faker.Number(0, 4) == 0,
			}
			if len(folderIDs) > 0 && faker.Bool() {
				id := folderIDs[faker.Number(0, len(folderIDs)-1)]
				in.FolderID = &id
			}

			snippet, err := s.snippets.Create(ctx, userID, in)
			if err != nil {
				if errors.Is(err, apperror.ErrLimitReached) {
					break
				}
				return res, fmt.Errorf("creating snippet: %w", err)
			}
			res.Snippets++

			if faker.Number(0, 2) == 0 {
				if _, err := s.shares.Share(ctx, userID, snippet.ID); err != nil {
					return res, fmt.Errorf("sharing snippet: %w", err)
				}
				res.Shared++
			}
		}

		starter := samples[i%len(samples)]
		code := starter.code
		_, err = s.boilerplates.Create(ctx, userID, service.BoilerplateInput{
			Title:     starter.language + " starter",
			Code:      &code,
			Languages: []string{starter.language},
			Tags:      []string{"starter"},
		})
		switch {
		case err == nil:
			res.Boilerplates++
		case errors.Is(err, apperror.ErrLimitReached):
		default:
			return res, fmt.Errorf("creating boilerplate: %w", err)
		}
	}

	s.logger.Info("seed complete",
		slog.Int("users", len(res.Accounts)),
		slog.Int("folders", res.Folders),
		slog.Int("snippets", res.Snippets),
		slog.Int("shared", res.Shared),
		slog.Int("boilerplates", res.Boilerplates),
	)
	return res, nil
}

// localPart keeps a generated username to lowercase letters and digits.
func localPart(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return -1
	}, s)
	if s == "" {
		return "demo"
	}
	return s
}

type sample struct {
	language string
	code     string
}

var samples = []sample{
	{"Go", "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n"},
	{"Python", "def fib(n):\n    a, b = 0, 1\n    for _ in range(n):\n        a, b = b, a + b\n    return a\n"},
	{"JavaScript", "const debounce = (fn, ms) => {\n  let t;\n  return (...args) => {\n    clearTimeout(t);\n    t = setTimeout(() => fn(...args), ms);\n  };\n};\n"},
	{"SQL", "SELECT user_id, COUNT(*) AS n\nFROM snippets\nGROUP BY user_id\nORDER BY n DESC;\n"},
	{"Bash", "#!/usr/bin/env bash\nset -euo pipefail\nfind . -name '*.log' -mtime +7 -delete\n"},
}
