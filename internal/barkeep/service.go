// Package barkeep is a miniature credential issuer used by the demo
// binary and the end-to-end tests. It speaks just enough of the OAuth2
// token endpoint shape (password and refresh_token grants over a
// form-encoded POST) for pkg/renew's stock helpers to drive it, and its
// access tokens are HS256 JWTs so protected endpoints can verify them
// without a round trip back to the issuer.
package barkeep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/patron/pkg/cryptox"
	"github.com/aussiebroadwan/patron/pkg/idx"
	"github.com/aussiebroadwan/patron/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes. Short enough that a demo run can wait out an
// access token, long enough that a refresh session survives the run.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidRefresh     = errors.New("invalid_refresh_token")
)

// Config controls token issuance. Zero values pick sensible defaults.
type Config struct {
	// Issuer becomes the "iss" claim on access tokens.
	Issuer string

	// AccessTTL is the access token lifetime.
	AccessTTL time.Duration

	// RefreshTTL is how long a refresh session stays redeemable.
	RefreshTTL time.Duration

	// SigningKey is the HS256 key. A random key is generated when empty,
	// which is fine for a single-process issuer.
	SigningKey []byte
}

// Service issues and verifies patron credentials. Accounts and refresh
// sessions live in memory; refresh tokens are stored by fingerprint
// only, so a dump of the session table never leaks a usable credential.
type Service struct {
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	signingKey []byte

	mu       sync.Mutex
	accounts map[string]account
	sessions map[string]session
	rounds   map[string]int
}

type account struct {
	username     string
	passwordHash string
}

// session is one redeemable refresh credential, keyed in Service.sessions
// by the credential's fingerprint.
type session struct {
	subject   string
	expiresAt time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = "patron-barkeep"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	key := cfg.SigningKey
	if len(key) == 0 {
		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, fmt.Errorf("barkeep: generate signing key: %w", err)
		}
		key = []byte(opaque)
	}

	return &Service{
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		signingKey: key,
		accounts:   make(map[string]account),
		sessions:   make(map[string]session),
		rounds:     make(map[string]int),
	}, nil
}

// CreateAccount registers a patron with an argon2id-hashed password.
func (s *Service) CreateAccount(username, password string) error {
	if username == "" {
		return errors.New("barkeep: username required")
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("barkeep: hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[username]; exists {
		return fmt.Errorf("barkeep: account %q already exists", username)
	}
	s.accounts[username] = account{username: username, passwordHash: hash}

	return nil
}

// TokenPair is the result of a successful grant.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// PasswordGrant implements the OAuth2 password grant: it verifies the
// patron's password and opens a fresh refresh session alongside the
// access token.
func (s *Service) PasswordGrant(ctx context.Context, username, password string) (*TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)

	s.mu.Lock()
	acct, ok := s.accounts[username]
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := cryptox.VerifyPassword(password, acct.passwordHash); err != nil {
		l.Info("password verification failed", "username", username)
		return nil, ErrInvalidCredentials
	}

	access, err := s.signAccess(username, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[cryptox.FingerprintToken(refreshOpaque)] = session{
		subject:   username,
		expiresAt: now.Add(s.RefreshTTL),
	}
	s.mu.Unlock()

	l.Debug("refresh session opened", "username", username)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshOpaque,
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// RefreshGrant implements the OAuth2 refresh_token grant with rotation:
// the presented token is single use and the pair comes back with a new
// refresh token. An expired session is deleted on sight.
func (s *Service) RefreshGrant(ctx context.Context, refreshOpaque string) (*TokenPair, error) {
	now := time.Now()
	l := slogx.FromContext(ctx)
	fp := cryptox.FingerprintToken(refreshOpaque)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[fp]
	if !ok {
		return nil, ErrInvalidRefresh
	}
	if now.After(sess.expiresAt) {
		delete(s.sessions, fp)
		return nil, ErrInvalidRefresh
	}

	access, err := s.signAccess(sess.subject, now)
	if err != nil {
		return nil, err
	}
	newOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	delete(s.sessions, fp)
	s.sessions[cryptox.FingerprintToken(newOpaque)] = session{
		subject:   sess.subject,
		expiresAt: now.Add(s.RefreshTTL),
	}

	l.Debug("refresh session rotated", "username", sess.subject)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: newOpaque,
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Verify checks an access token and returns the patron it was issued
// to. It satisfies httpx.TokenVerifier, so the Service can sit directly
// behind httpx.AuthnMiddleware.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.Issuer),
	)

	parsed, err := parser.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("barkeep: parse or verify: %w", err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("barkeep: invalid token claims")
	}
	if claims.Subject == "" {
		return "", errors.New("barkeep: token has no subject")
	}

	return claims.Subject, nil
}

// AddRound bumps the patron's tab by one round and returns the new
// count. The tab endpoint uses it so successive authenticated calls are
// visibly distinct in demo output.
func (s *Service) AddRound(subject string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rounds[subject]++
	return s.rounds[subject]
}

// SweepSessions drops refresh sessions whose expiry has passed and
// reports how many were removed.
func (s *Service) SweepSessions(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for fp, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, fp)
			removed++
		}
	}
	return removed
}

// SessionCount reports the number of live refresh sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) signAccess(subject string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.AccessTTL)),
		ID:        idx.New().String(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.signingKey)
}
