package postgres

import (
	"context"

	"github.com/sodav-monitor/sodav/pkg/auth"
)

const profileColumns = `id, email, full_name, role, is_active, created_at, updated_at`

// GetProfile loads a profile by user ID.
func (s *Store) GetProfile(ctx context.Context, userID string) (p *auth.Profile, err error) {
	ctx, done := s.begin(ctx, "Store.GetProfile", "select", "profiles")
	defer func() { done(err) }()

	var profile auth.Profile
	err = s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID,
	).Scan(&profile.ID, &profile.Email, &profile.FullName, &profile.Role, &profile.IsActive, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		return nil, wrap("get profile "+userID, err)
	}
	return &profile, nil
}

// UpsertProfile inserts a profile or updates email, name, role and active
// flag of an existing one.
func (s *Store) UpsertProfile(ctx context.Context, p *auth.Profile) (err error) {
	ctx, done := s.begin(ctx, "Store.UpsertProfile", "upsert", "profiles")
	defer func() { done(err) }()

	now := s.now()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, email, full_name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		p.ID, p.Email, p.FullName, p.Role, p.IsActive, now,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return wrap("upsert profile "+p.ID, err)
}
