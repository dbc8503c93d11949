package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthority(t *testing.T) *Authority {
	t.Helper()
	a, err := NewAuthority("test-signing-secret", "HS256")
	require.NoError(t, err)
	return a
}

func TestNewAuthority_Configuration(t *testing.T) {
	t.Parallel()

	_, err := NewAuthority("", "HS256")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewAuthority("secret", "RS256")
	assert.ErrorIs(t, err, ErrNotConfigured, "non-HMAC algorithms are rejected at startup")

	_, err = NewAuthority("secret", "HS512")
	assert.NoError(t, err)
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	t.Parallel()
	a := newTestAuthority(t)

	for _, perm := range []Permission{ChangePreferences, VerifyEmail} {
		tok, err := a.Issue("U1D2E3F4", perm, "")
		require.NoError(t, err)

		grant, err := a.Verify(tok, perm)
		require.NoError(t, err)
		assert.Equal(t, "U1D2E3F4", grant.Subject)
		assert.Empty(t, grant.BoundEmail)
	}
}

func TestVerify_BoundEmail(t *testing.T) {
	t.Parallel()
	a := newTestAuthority(t)

	tok, err := a.Issue("U1D2E3F4", VerifyEmail, "alice@x.com")
	require.NoError(t, err)

	grant, err := a.Verify(tok, VerifyEmail)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", grant.BoundEmail)
}

func TestVerify_InsufficientPermission(t *testing.T) {
	t.Parallel()
	a := newTestAuthority(t)

	tok, err := a.Issue("U1D2E3F4", VerifyEmail, "alice@x.com")
	require.NoError(t, err)

	_, err = a.Verify(tok, ChangePreferences)
	assert.ErrorIs(t, err, ErrInsufficientPermission)

	// Membership in a wider allowed set still succeeds.
	_, err = a.Verify(tok, ChangePreferences, VerifyEmail)
	assert.NoError(t, err)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	a := newTestAuthority(t)

	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }

	tok, err := a.Issue("U1D2E3F4", ChangePreferences, "")
	require.NoError(t, err)

	// Just inside the window.
	a.now = func() time.Time { return issued.Add(Validity - time.Minute) }
	_, err = a.Verify(tok, ChangePreferences)
	assert.NoError(t, err)

	// At and past the window boundary.
	a.now = func() time.Time { return issued.Add(Validity + time.Second) }
	_, err = a.Verify(tok, ChangePreferences)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_Tampered(t *testing.T) {
	t.Parallel()
	a := newTestAuthority(t)

	tok, err := a.Issue("U1D2E3F4", ChangePreferences, "")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	flip := func(s string) string {
		b := []byte(s)
		if b[0] == 'A' {
			b[0] = 'B'
		} else {
			b[0] = 'A'
		}
		return string(b)
	}

	// One byte changed in the payload.
	_, err = a.Verify(parts[0]+"."+flip(parts[1])+"."+parts[2], ChangePreferences)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// One byte changed in the signature.
	_, err = a.Verify(parts[0]+"."+parts[1]+"."+flip(parts[2]), ChangePreferences)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	a := newTestAuthority(t)
	other, err := NewAuthority("a-different-secret", "HS256")
	require.NoError(t, err)

	tok, err := a.Issue("U1D2E3F4", ChangePreferences, "")
	require.NoError(t, err)

	_, err = other.Verify(tok, ChangePreferences)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	a := newTestAuthority(t)

	_, err := a.Verify("not.a.jwt", ChangePreferences)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
