package repository

import (
	"context"
	"errors"

	"github.com/reachkit/reach/internal/domain/entity"
)

var (
	// ErrNotFound is returned when no subscriber matches the given uid or email.
	ErrNotFound = errors.New("subscriber not found")
	// ErrDuplicateEmail is returned when an insert violates the unique email constraint.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Patch describes a partial update. Nil fields are left untouched; the store
// refreshes updated_at on every write. Email and EmailVerified travel in the
// same patch so an address change and its verification reset land in one
// atomic write.
type Patch struct {
	Name          *string
	Email         *string
	EmailVerified *bool
	Preferences   *entity.EmailPreferences
}

// IsEmpty reports whether the patch would write nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.EmailVerified == nil && p.Preferences == nil
}

// SubscriberRepository defines the persistence contract for subscriber records.
type SubscriberRepository interface {
	Insert(ctx context.Context, s *entity.Subscriber) error
	GetByUID(ctx context.Context, uid string) (*entity.Subscriber, error)
	GetByEmail(ctx context.Context, email string) (*entity.Subscriber, error)
	Update(ctx context.Context, uid string, patch Patch) (*entity.Subscriber, error)
	Delete(ctx context.Context, uid string) error
}
