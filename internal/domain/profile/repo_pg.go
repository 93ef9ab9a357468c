package profile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medintake/intake/internal/platform/db"
)

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const profileCols = `id, display_name, email, avatar_url, updated_at`

func (r *profileRepoPG) scanRow(row pgx.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.DisplayName, &p.Email, &p.AvatarURL, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, db.NotFound(err)
	}
	return p, nil
}

func (r *profileRepoPG) UpdateDisplayName(ctx context.Context, id uuid.UUID, displayName string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE profiles SET display_name = $2, updated_at = NOW() WHERE id = $1`, id, displayName)
	if err != nil {
		return fmt.Errorf("update profile display name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *profileRepoPG) Upsert(ctx context.Context, p *Profile) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO profiles (id, display_name, email, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = COALESCE(EXCLUDED.email, profiles.email),
			avatar_url = COALESCE(EXCLUDED.avatar_url, profiles.avatar_url),
			updated_at = NOW()
		RETURNING `+profileCols,
		p.ID, p.DisplayName, p.Email, p.AvatarURL)
	saved, err := r.scanRow(row)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	*p = *saved
	return nil
}

// authUserRepoPG writes display names into Supabase's auth.users metadata.
// The connecting role needs UPDATE on auth.users.
type authUserRepoPG struct{ pool *pgxpool.Pool }

func NewAuthUserRepoPG(pool *pgxpool.Pool) AuthUserRepository {
	return &authUserRepoPG{pool: pool}
}

func (r *authUserRepoPG) UpdateDisplayName(ctx context.Context, userID uuid.UUID, displayName string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE auth.users
		SET raw_user_meta_data = jsonb_set(COALESCE(raw_user_meta_data, '{}'::jsonb), '{display_name}', to_jsonb($2::text))
		WHERE id = $1`, userID, displayName)
	if err != nil {
		return fmt.Errorf("update auth user metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
