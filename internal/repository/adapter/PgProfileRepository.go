package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	profile "go-mensajeria/internal/pkg/profile/application/domain"
	repository "go-mensajeria/internal/repository/port"
)

const profileColumns = `id, display_name, legacy_name, COALESCE(email, ''), COALESCE(phone, ''),
	photo_ref, about, last_seen, created_at`

type PgProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

var _ repository.ProfileRepository = (*PgProfileRepository)(nil)

func scanProfile(row pgx.Row) (profile.Profile, error) {
	var p profile.Profile
	err := row.Scan(&p.ID, &p.DisplayName, &p.LegacyName, &p.Email, &p.Phone,
		&p.PhotoRef, &p.About, &p.LastSeen, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.Profile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if p.LastSeen != nil {
		ls := p.LastSeen.UTC()
		p.LastSeen = &ls
	}
	return p, nil
}

// Ensure upserts in one statement; existing non-blank columns win over the incoming values.
func (r *PgProfileRepository) Ensure(ctx context.Context, in profile.Identity) (profile.Profile, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (id, display_name, legacy_name, email, phone, photo_ref)
		VALUES ($1, $2, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		ON CONFLICT (id) DO UPDATE SET
			display_name = CASE WHEN btrim(profiles.display_name) = '' THEN EXCLUDED.display_name ELSE profiles.display_name END,
			legacy_name  = CASE WHEN btrim(profiles.legacy_name) = '' THEN EXCLUDED.legacy_name ELSE profiles.legacy_name END,
			email        = COALESCE(profiles.email, EXCLUDED.email),
			phone        = COALESCE(profiles.phone, EXCLUDED.phone),
			photo_ref    = COALESCE(profiles.photo_ref, EXCLUDED.photo_ref)
		RETURNING `+profileColumns,
		in.ID, in.DisplayName, in.Email, in.Phone, in.PhotoRef)
	return scanProfile(row)
}

func (r *PgProfileRepository) Get(ctx context.Context, id string) (profile.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return profile.Profile{}, err
	}
	p.PushTokens, err = r.Tokens(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}

func (r *PgProfileRepository) List(ctx context.Context, limit int) ([]profile.Profile, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		ORDER BY lower(COALESCE(NULLIF(display_name, ''), legacy_name)), id
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Update writes the patch; a display name lands in both the canonical and the legacy column.
func (r *PgProfileRepository) Update(ctx context.Context, id string, patch profile.Patch) (profile.Profile, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE profiles SET
			display_name = COALESCE($2, display_name),
			legacy_name  = COALESCE($2, legacy_name),
			about        = COALESCE($3, about)
		WHERE id = $1
		RETURNING `+profileColumns,
		id, patch.DisplayName, patch.About)
	return scanProfile(row)
}

func (r *PgProfileRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE profiles SET last_seen = GREATEST(last_seen, $2) WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return profile.ErrNotFound
	}
	return nil
}

func (r *PgProfileRepository) AddTokens(ctx context.Context, id string, tokens ...string) error {
	tokens = repository.UniqueTokens(tokens)
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO push_tokens (token, profile_id)
		SELECT t, $1 FROM unnest($2::text[]) AS t
		ON CONFLICT (token) DO UPDATE
		SET profile_id = EXCLUDED.profile_id, created_at = clock_timestamp()
		WHERE push_tokens.profile_id <> EXCLUDED.profile_id
	`, id, tokens)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return profile.ErrNotFound
	}
	return err
}

func (r *PgProfileRepository) RemoveTokens(ctx context.Context, id string, tokens ...string) (int64, error) {
	tokens = repository.UniqueTokens(tokens)
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM push_tokens WHERE profile_id = $1 AND token = ANY($2::text[])
	`, id, tokens)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgProfileRepository) Tokens(ctx context.Context, id string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT token FROM push_tokens WHERE profile_id = $1 ORDER BY created_at, token
	`, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
