package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reachkit/reach/internal/domain/entity"
	"github.com/reachkit/reach/internal/domain/repository"
)

const uniqueViolation = "23505"

type SubscriberRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriberRepository(pool *pgxpool.Pool) *SubscriberRepository {
	return &SubscriberRepository{pool: pool}
}

const subscriberColumns = `uid, email, name, source, email_verified,
	pref_marketing, pref_product, pref_content, created_at, updated_at`

func scanSubscriber(row pgx.Row) (*entity.Subscriber, error) {
	s := &entity.Subscriber{}
	if err := row.Scan(&s.UID, &s.Email, &s.Name, &s.Source, &s.EmailVerified,
		&s.Preferences.Marketing, &s.Preferences.Product, &s.Preferences.Content,
		&s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *SubscriberRepository) Insert(ctx context.Context, s *entity.Subscriber) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO subscribers (uid, email, name, source, email_verified,
			pref_marketing, pref_product, pref_content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, s.UID, s.Email, s.Name, s.Source, s.EmailVerified,
		s.Preferences.Marketing, s.Preferences.Product, s.Preferences.Content)

	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *SubscriberRepository) GetByUID(ctx context.Context, uid string) (*entity.Subscriber, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE uid = $1
	`, uid)
	return scanSubscriber(row)
}

func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*entity.Subscriber, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriberColumns+`
		FROM subscribers
		WHERE email = $1
	`, email)
	return scanSubscriber(row)
}

// Update applies the non-nil patch fields in a single conditional write and
// returns the resulting record. updated_at is always refreshed.
func (r *SubscriberRepository) Update(ctx context.Context, uid string, patch repository.Patch) (*entity.Subscriber, error) {
	sets := []string{"updated_at = now()"}
	args := []any{uid}

	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.EmailVerified != nil {
		add("email_verified", *patch.EmailVerified)
	}
	if patch.Preferences != nil {
		add("pref_marketing", patch.Preferences.Marketing)
		add("pref_product", patch.Preferences.Product)
		add("pref_content", patch.Preferences.Content)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE subscribers
		SET `+strings.Join(sets, ", ")+`
		WHERE uid = $1
		RETURNING `+subscriberColumns+`
	`, args...)

	s, err := scanSubscriber(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrDuplicateEmail
		}
		return nil, err
	}
	return s, nil
}

func (r *SubscriberRepository) Delete(ctx context.Context, uid string) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM subscribers WHERE uid = $1`, uid)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.SubscriberRepository = (*SubscriberRepository)(nil)
