package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachkit/reach/internal/domain/entity"
	repo "github.com/reachkit/reach/internal/domain/repository"
)

// memRepo is an in-memory SubscriberRepository with the same contract as the
// postgres implementation, including the unique email constraint.
type memRepo struct {
	mu    sync.Mutex
	byUID map[string]*entity.Subscriber
}

func newMemRepo() *memRepo {
	return &memRepo{byUID: map[string]*entity.Subscriber{}}
}

func (m *memRepo) clone(s *entity.Subscriber) *entity.Subscriber {
	c := *s
	return &c
}

func (m *memRepo) Insert(_ context.Context, s *entity.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byUID {
		if existing.Email == s.Email {
			return repo.ErrDuplicateEmail
		}
	}
	m.byUID[s.UID] = m.clone(s)
	return nil
}

func (m *memRepo) GetByUID(_ context.Context, uid string) (*entity.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUID[uid]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return m.clone(s), nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*entity.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byUID {
		if s.Email == email {
			return m.clone(s), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memRepo) Update(_ context.Context, uid string, patch repo.Patch) (*entity.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUID[uid]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if patch.Email != nil {
		for _, other := range m.byUID {
			if other.UID != uid && other.Email == *patch.Email {
				return nil, repo.ErrDuplicateEmail
			}
		}
		s.Email = *patch.Email
	}
	if patch.Name != nil {
		s.Name = *patch.Name
	}
	if patch.EmailVerified != nil {
		s.EmailVerified = *patch.EmailVerified
	}
	if patch.Preferences != nil {
		s.Preferences = *patch.Preferences
	}
	s.UpdatedAt = time.Now().UTC()
	return m.clone(s), nil
}

func (m *memRepo) Delete(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUID[uid]; !ok {
		return repo.ErrNotFound
	}
	delete(m.byUID, uid)
	return nil
}

func newTestLedger() (*Ledger, *memRepo) {
	r := newMemRepo()
	return NewLedger(r, nil, nil, ""), r
}

func TestRegister_Defaults(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	s, err := l.Register(ctx, "a@x.com", "Alice", "blog")
	require.NoError(t, err)
	assert.Len(t, s.UID, 8)
	assert.Equal(t, entity.DefaultPreferences(), s.Preferences)
	assert.False(t, s.EmailVerified)
	assert.Equal(t, "blog", s.Source)
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.Register(ctx, "a@x.com", "", "")
	require.NoError(t, err)

	_, err = l.Register(ctx, "a@x.com", "", "")
	assert.ErrorIs(t, err, ErrDuplicateSubscriber)
}

func TestLookup_SyntacticDispatch(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	s, err := l.Register(ctx, "a@x.com", "", "")
	require.NoError(t, err)

	byEmail, err := l.Lookup(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, s.UID, byEmail.UID)

	byUID, err := l.Lookup(ctx, s.UID)
	require.NoError(t, err)
	assert.Equal(t, s.Email, byUID.Email)

	_, err = l.Lookup(ctx, "missing@x.com")
	assert.ErrorIs(t, err, ErrNotFound)

	// "a@@x.com" has two '@'s, so it is treated as a uid and not found.
	_, err = l.Lookup(ctx, "a@@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	s, err := l.Register(ctx, "a@x.com", "", "")
	require.NoError(t, err)

	first, err := l.Unsubscribe(ctx, s.UID)
	require.NoError(t, err)
	assert.True(t, first.Preferences.Unsubscribed())

	second, err := l.Unsubscribe(ctx, s.UID)
	require.NoError(t, err)
	assert.True(t, second.Preferences.Unsubscribed())
}

func TestResubscribe_RestoresDefaults(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	s, err := l.Register(ctx, "a@x.com", "", "")
	require.NoError(t, err)

	_, err = l.Unsubscribe(ctx, s.UID)
	require.NoError(t, err)

	restored, err := l.Resubscribe(ctx, s.UID)
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultPreferences(), restored.Preferences)
}

func TestUpdatePreferences_Partial(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	s, err := l.Register(ctx, "a@x.com", "Alice", "")
	require.NoError(t, err)

	prefs := entity.EmailPreferences{Marketing: false, Product: true, Content: true}
	updated, emailChanged, err := l.UpdatePreferences(ctx, s.UID, UpdateInput{Preferences: &prefs})
	require.NoError(t, err)
	assert.False(t, emailChanged)
	assert.Equal(t, prefs, updated.Preferences)
	assert.Equal(t, "Alice", updated.Name, "name untouched by a preferences-only patch")
}

func TestUpdatePreferences_EmailChangeResetsVerification(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	s, err := l.Register(ctx, "a@x.com", "", "")
	require.NoError(t, err)

	_, err = l.ConfirmEmailVerified(ctx, s.UID)
	require.NoError(t, err)

	updated, emailChanged, err := l.UpdatePreferences(ctx, s.UID, UpdateInput{Email: "b@x.com"})
	require.NoError(t, err)
	assert.True(t, emailChanged)
	assert.Equal(t, "b@x.com", updated.Email)
	assert.False(t, updated.EmailVerified)

	// Same email again is not a change and must not reset anything.
	_, err = l.ConfirmEmailVerified(ctx, updated.UID)
	require.NoError(t, err)
	again, emailChanged, err := l.UpdatePreferences(ctx, s.UID, UpdateInput{Email: "b@x.com"})
	require.NoError(t, err)
	assert.False(t, emailChanged)
	assert.True(t, again.EmailVerified)
}

func TestConfirmEmailVerified_Guard(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	s, err := l.Register(ctx, "a@x.com", "", "")
	require.NoError(t, err)

	verified, err := l.ConfirmEmailVerified(ctx, s.UID)
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)

	_, err = l.ConfirmEmailVerified(ctx, s.UID)
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	_, err = l.ConfirmEmailVerified(ctx, "NOPE1234")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	l, _ := newTestLedger()
	ctx := context.Background()

	s, err := l.Register(ctx, "a@x.com", "", "")
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, s.UID))
	assert.ErrorIs(t, l.Delete(ctx, s.UID), ErrNotFound)
}
