package entity

import (
	"crypto/rand"
	"time"
)

// EmailPreferences holds the three independent opt-in flags. A zero value
// means fully unsubscribed; all three flags are always persisted together.
type EmailPreferences struct {
	Marketing bool `json:"marketing"`
	Product   bool `json:"product"`
	Content   bool `json:"content"`
}

// DefaultPreferences returns the opt-in set every new subscriber starts with.
func DefaultPreferences() EmailPreferences {
	return EmailPreferences{Marketing: true, Product: true, Content: true}
}

// Unsubscribed reports whether every flag is off. There is no stored
// "unsubscribed" column; this derived check is the single source of truth.
func (p EmailPreferences) Unsubscribed() bool {
	return !p.Marketing && !p.Product && !p.Content
}

// IsDefault reports whether the subscriber never customized anything.
func (p EmailPreferences) IsDefault() bool {
	return p.Marketing && p.Product && p.Content
}

// Subscriber is the aggregate root for the subscription domain.
// UID and Source are immutable after creation; Email is only changed through
// the token-gated preferences update, which also resets EmailVerified.
type Subscriber struct {
	UID           string
	Email         string
	Name          string
	Source        string
	EmailVerified bool
	Preferences   EmailPreferences
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const uidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewUID generates an 8-character uppercase alphanumeric identifier.
func NewUID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand never fails on supported platforms
	}
	for i := range b {
		b[i] = uidAlphabet[int(b[i])%len(uidAlphabet)]
	}
	return string(b)
}

// NewSubscriber builds a record with defaulted preferences and an
// unverified email.
func NewSubscriber(email, name, source string) *Subscriber {
	now := time.Now().UTC()
	return &Subscriber{
		UID:         NewUID(),
		Email:       email,
		Name:        name,
		Source:      source,
		Preferences: DefaultPreferences(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
