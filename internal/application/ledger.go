package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"

	"github.com/reachkit/reach/internal/domain/entity"
	repo "github.com/reachkit/reach/internal/domain/repository"
)

var (
	ErrDuplicateSubscriber = errors.New("subscriber already exists")
	ErrNotFound            = errors.New("subscriber not found")
	ErrAlreadyVerified     = errors.New("email already verified")
)

// Ledger is the only writer of subscriber records. It enforces the legal
// state transitions; token verification happens above it, so every mutating
// method trusts that its caller already holds the required grant.
type Ledger struct {
	Repo         repo.SubscriberRepository
	Logger       *logrus.Logger
	ES           *elasticsearch.Client
	ESIndex      string
	IndexTimeout time.Duration
}

func NewLedger(r repo.SubscriberRepository, logger *logrus.Logger, es *elasticsearch.Client, esIndex string) *Ledger {
	return &Ledger{Repo: r, Logger: logger, ES: es, ESIndex: esIndex, IndexTimeout: 3 * time.Second}
}

// Register creates a new subscriber with defaulted preferences and an
// unverified email. The repository's unique constraint is the authoritative
// backstop against concurrent signups; the pre-check just keeps the common
// path cheap.
func (l *Ledger) Register(ctx context.Context, email, name, source string) (*entity.Subscriber, error) {
	if existing, err := l.Repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrDuplicateSubscriber
	}
	s := entity.NewSubscriber(email, name, source)
	if err := l.Repo.Insert(ctx, s); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return nil, ErrDuplicateSubscriber
		}
		return nil, err
	}
	l.indexSubscriber(ctx, s)
	return s, nil
}

// looksLikeEmail implements the syntactic dispatch rule: exactly one '@'
// separating two non-empty segments.
func looksLikeEmail(identifier string) bool {
	parts := strings.Split(identifier, "@")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// Lookup resolves an identifier that is either an email or a uid.
func (l *Ledger) Lookup(ctx context.Context, identifier string) (*entity.Subscriber, error) {
	var (
		s   *entity.Subscriber
		err error
	)
	if looksLikeEmail(identifier) {
		s, err = l.Repo.GetByEmail(ctx, identifier)
	} else {
		s, err = l.Repo.GetByUID(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// UpdateInput carries the optional fields of a partial preferences update.
type UpdateInput struct {
	Name        string
	Email       string
	Preferences *entity.EmailPreferences
}

// UpdatePreferences applies the supplied fields in one atomic write. When the
// email changes, emailVerified is reset to false in the same write; the
// returned emailChanged flag tells the caller to mint a fresh verification
// token for the new address.
func (l *Ledger) UpdatePreferences(ctx context.Context, uid string, in UpdateInput) (s *entity.Subscriber, emailChanged bool, err error) {
	current, err := l.Repo.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}

	patch := repo.Patch{Preferences: in.Preferences}
	if in.Name != "" {
		patch.Name = &in.Name
	}
	if in.Email != "" && in.Email != current.Email {
		emailChanged = true
		patch.Email = &in.Email
		unverified := false
		patch.EmailVerified = &unverified
	}
	if patch.IsEmpty() {
		return current, false, nil
	}

	s, err = l.Repo.Update(ctx, uid, patch)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil, false, ErrNotFound
		case errors.Is(err, repo.ErrDuplicateEmail):
			return nil, false, ErrDuplicateSubscriber
		}
		return nil, false, err
	}
	l.indexSubscriber(ctx, s)
	return s, emailChanged, nil
}

func (l *Ledger) setPreferences(ctx context.Context, uid string, prefs entity.EmailPreferences) (*entity.Subscriber, error) {
	s, err := l.Repo.Update(ctx, uid, repo.Patch{Preferences: &prefs})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.indexSubscriber(ctx, s)
	return s, nil
}

// Unsubscribe turns every flag off. Calling it on an already-unsubscribed
// record is a no-op success.
func (l *Ledger) Unsubscribe(ctx context.Context, uid string) (*entity.Subscriber, error) {
	return l.setPreferences(ctx, uid, entity.EmailPreferences{})
}

// Resubscribe restores the default all-on preference set.
func (l *Ledger) Resubscribe(ctx context.Context, uid string) (*entity.Subscriber, error) {
	return l.setPreferences(ctx, uid, entity.DefaultPreferences())
}

// ConfirmEmailVerified flips emailVerified false→true. The bound-email match
// against the record's current address is the caller's responsibility, since
// only the caller holds the verified grant.
func (l *Ledger) ConfirmEmailVerified(ctx context.Context, uid string) (*entity.Subscriber, error) {
	current, err := l.Repo.GetByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if current.EmailVerified {
		return nil, ErrAlreadyVerified
	}
	verified := true
	s, err := l.Repo.Update(ctx, uid, repo.Patch{EmailVerified: &verified})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.indexSubscriber(ctx, s)
	return s, nil
}

// Delete removes the record entirely.
func (l *Ledger) Delete(ctx context.Context, uid string) error {
	if err := l.Repo.Delete(ctx, uid); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	l.deleteIndexed(ctx, uid)
	return nil
}

// indexSubscriber mirrors the record into Elasticsearch, best effort. Search
// is an operator convenience; an indexing failure never affects the ledger.
func (l *Ledger) indexSubscriber(ctx context.Context, s *entity.Subscriber) {
	if l.ES == nil || l.ESIndex == "" {
		return
	}
	doc := map[string]any{
		"uid":            s.UID,
		"email":          s.Email,
		"name":           s.Name,
		"source":         s.Source,
		"email_verified": s.EmailVerified,
		"unsubscribed":   s.Preferences.Unsubscribed(),
		"created_at":     s.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":     s.UpdatedAt.Format(time.RFC3339Nano),
	}
	b, _ := json.Marshal(doc)
	req := esapi.IndexRequest{Index: l.ESIndex, DocumentID: s.UID, Body: strings.NewReader(string(b)), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, l.IndexTimeout)
	defer cancel()
	res, err := req.Do(c, l.ES)
	if err != nil {
		if l.Logger != nil {
			l.Logger.WithError(err).WithField("uid", s.UID).Warn("es index failed")
		}
		return
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() && l.Logger != nil {
		l.Logger.WithField("status", res.Status()).WithField("uid", s.UID).Warn("es index response error")
	}
}

func (l *Ledger) deleteIndexed(ctx context.Context, uid string) {
	if l.ES == nil || l.ESIndex == "" {
		return
	}
	req := esapi.DeleteRequest{Index: l.ESIndex, DocumentID: uid}
	c, cancel := context.WithTimeout(ctx, l.IndexTimeout)
	defer cancel()
	res, err := req.Do(c, l.ES)
	if err != nil {
		if l.Logger != nil {
			l.Logger.WithError(err).WithField("uid", uid).Warn("es delete failed")
		}
		return
	}
	_ = res.Body.Close()
}

// Search runs a multi_match query over email, name and source.
func (l *Ledger) Search(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if l.ES == nil || l.ESIndex == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "name", "source"},
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(query)

	c, cancel := context.WithTimeout(ctx, l.IndexTimeout)
	defer cancel()

	res, err := l.ES.Search(
		l.ES.Search.WithContext(c),
		l.ES.Search.WithIndex(l.ESIndex),
		l.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}
