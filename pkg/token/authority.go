// Package token issues and verifies the capability tokens that authorize
// every subscriber-facing mutation. A token is a signed JWT carrying exactly
// one permission tag; it is never stored server-side and dies by expiry alone.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Permission restricts a token to one class of transition.
type Permission string

const (
	// ChangePreferences authorizes preference updates, unsubscribe,
	// resubscribe and record deletion.
	ChangePreferences Permission = "change_preferences"
	// VerifyEmail authorizes confirming the bound email address.
	VerifyEmail Permission = "verify_email"
)

// Validity is the fixed lifetime of every issued token.
const Validity = 7 * 24 * time.Hour

var (
	ErrNotConfigured          = errors.New("token: signing secret not configured")
	ErrInvalidSignature       = errors.New("token: invalid signature")
	ErrExpired                = errors.New("token: expired")
	ErrInsufficientPermission = errors.New("token: insufficient permission")
)

// Claims is the signed claim set embedded in every capability token.
type Claims struct {
	Permission Permission `json:"prm"`
	BoundEmail string     `json:"eml,omitempty"`
	jwt.RegisteredClaims
}

// Grant is the result of a successful verification. Mutation entry points
// accept a Grant, never a raw token string, so skipping verification is a
// compile-time error.
type Grant struct {
	Subject    string
	BoundEmail string // empty unless the token carried one
}

// Authority mints and verifies capability tokens. It holds no mutable state
// beyond the secret loaded at startup and is safe for concurrent use.
type Authority struct {
	secret []byte
	method jwt.SigningMethod

	now func() time.Time // test hook
}

// NewAuthority builds an Authority from the configured secret and algorithm
// identifier (HS256, HS384 or HS512). Both are fixed for the process
// lifetime; a missing secret or unknown algorithm is a startup failure.
func NewAuthority(secret, algorithm string) (*Authority, error) {
	if secret == "" {
		return nil, ErrNotConfigured
	}
	method := jwt.GetSigningMethod(algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrNotConfigured
	}
	return &Authority{
		secret: []byte(secret),
		method: method,
		now:    time.Now,
	}, nil
}

// Issue mints a token authorizing permission on subject. boundEmail must be
// supplied for VerifyEmail tokens; for other permissions it is optional and
// carried through verbatim when present.
func (a *Authority) Issue(subject string, permission Permission, boundEmail string) (string, error) {
	if a == nil || len(a.secret) == 0 {
		return "", ErrNotConfigured
	}
	issued := a.now().UTC()
	claims := &Claims{
		Permission: permission,
		BoundEmail: boundEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(Validity)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(a.method, claims).SignedString(a.secret)
}

// Verify checks signature and expiry, then requires the token's permission to
// be one of allowed. Callers must not assume BoundEmail is present.
func (a *Authority) Verify(tokenStr string, allowed ...Permission) (Grant, error) {
	if a == nil || len(a.secret) == 0 {
		return Grant{}, ErrNotConfigured
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != a.method.Alg() {
			return nil, ErrInvalidSignature
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Grant{}, ErrExpired
		}
		return Grant{}, ErrInvalidSignature
	}
	if !tkn.Valid {
		return Grant{}, ErrInvalidSignature
	}
	for _, p := range allowed {
		if claims.Permission == p {
			return Grant{Subject: claims.Subject, BoundEmail: claims.BoundEmail}, nil
		}
	}
	return Grant{}, ErrInsufficientPermission
}
