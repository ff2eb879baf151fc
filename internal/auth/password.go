package auth

// PASSWORD ACCOUNTS:
// Email + password signup stores a bcrypt hash on the user row. GitHub-only
// accounts have an empty hash and can never pass Verify.
//
// bcrypt embeds the salt and the cost in its output, so the stored string is
// all that is needed to check a password later:
//
//	$2a$12$<22-char salt><31-char hash>

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is bcrypt's input limit. Longer passwords would be
// silently truncated, so they are rejected instead.
const MaxPasswordBytes = 72

// productionCost takes roughly 250ms per hash on current server hardware.
const productionCost = 12

var (
	ErrPasswordMismatch = errors.New("auth: password does not match")
	ErrPasswordTooLong  = fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
)

// PasswordService hashes and checks account passwords.
//
// The cost is a field so tests can run at bcrypt.MinCost.
type PasswordService struct {
	cost int

	// decoy is a hash of a random value at the same cost. Login burns one
	// comparison against it when the email is unknown, so response time
	// does not reveal which addresses have accounts.
	decoyOnce sync.Once
	decoy     []byte
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: productionCost}
}

// NewPasswordServiceForTest lets other packages' tests pick a cheap cost
// (bcrypt.MinCost is 4). Never use it in production wiring.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash to store for plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash and ErrPasswordMismatch
// when it doesn't. An empty hash (GitHub-only account) never matches.
// The comparison inside bcrypt is constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		p.Decoy(plaintext)
		return ErrPasswordMismatch
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
}

// Decoy spends the same time as a real Verify and discards the result.
func (p *PasswordService) Decoy(plaintext string) {
	p.decoyOnce.Do(func() {
		p.decoy, _ = bcrypt.GenerateFromPassword([]byte(NewState()), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.decoy, []byte(plaintext))
}
