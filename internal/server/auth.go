package server

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/maruel/docstore/internal/errors"
	"github.com/maruel/docstore/internal/models"
)

// Claims are the JWT claims of a request token.
type Claims struct {
	// Databases lists the databases the token grants access to. Empty means
	// all databases.
	Databases []string `json:"dbs,omitempty"`
	// ReadOnly restricts the token to find requests.
	ReadOnly bool `json:"ro,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator checks request tokens signed with a shared HS256 secret.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator returns an Authenticator, or nil when secret is empty,
// meaning authentication is disabled.
func NewAuthenticator(secret []byte) *Authenticator {
	if len(secret) == 0 {
		return nil
	}
	return &Authenticator{
		secret: secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// Mint returns a signed token granting dbs (all when empty), expiring after
// ttl.
func Mint(secret []byte, dbs []string, readOnly bool, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is empty")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	now := time.Now()
	c := Claims{
		Databases: dbs,
		ReadOnly:  readOnly,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return s, nil
}

// Authorize validates the token of req and checks that it grants the
// requested operation. A nil Authenticator allows everything.
func (a *Authenticator) Authorize(req *models.Request) error {
	if a == nil {
		return nil
	}
	if req.Token == "" {
		return apierrors.Unauthorized("missing token")
	}
	var c Claims
	if _, err := a.parser.ParseWithClaims(req.Token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return apierrors.Unauthorized("invalid token").Wrap(err)
	}
	if len(c.Databases) != 0 && !slices.Contains(c.Databases, req.Database) {
		return apierrors.Forbidden(fmt.Sprintf("token does not grant access to database %q", req.Database))
	}
	if c.ReadOnly && req.Operation.IsWrite() {
		return apierrors.Forbidden("token is read-only")
	}
	return nil
}
