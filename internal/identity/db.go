package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-clinic-queue/internal/models"

	"github.com/uptrace/bun"
)

// DB reads and writes the profiles table.
type DB struct {
	Bun *bun.DB
}

func (d *DB) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := d.Bun.NewSelect().
		Model(&profile).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return &profile, nil
}

// UpsertProfile creates the profile or replaces its editable fields. The
// staff flag is only written on insert.
func (d *DB) UpsertProfile(ctx context.Context, profile models.Profile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().
		Model(&profile).
		On("CONFLICT (id) DO UPDATE").
		Set("full_name = EXCLUDED.full_name").
		Set("email = EXCLUDED.email").
		Set("mobile = EXCLUDED.mobile").
		Set("address = EXCLUDED.address").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", profile.ID, err)
	}
	return nil
}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SearchProfiles matches name, email or mobile, for staff booking on
// behalf of a registered user.
func (d *DB) SearchProfiles(ctx context.Context, query string, limit int) ([]models.Profile, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	profiles := make([]models.Profile, 0)
	q := d.Bun.NewSelect().Model(&profiles).Order("full_name ASC").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where(`LOWER(full_name) LIKE ? ESCAPE '\'`, pattern).
				WhereOr(`LOWER(email) LIKE ? ESCAPE '\'`, pattern).
				WhereOr(`mobile LIKE ? ESCAPE '\'`, pattern)
		})
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	return profiles, nil
}
