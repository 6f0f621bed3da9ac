package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"inbox-service/internal/apperrors"
	"inbox-service/internal/models"
)

var ErrUserNotFound = apperrors.New(apperrors.ErrNotFound, "User not found")

const profileQuery = `SELECT u.id, u.username, u.first_name, u.last_name, u.is_active,
        p.profile_image, COALESCE(p.role, 'user') AS role
    FROM users u
    LEFT JOIN profiles p ON p.user_id = u.id`

// ProfileRepository reads user display data owned by the main application.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID int64) (models.Profile, error)
	BulkProfiles(ctx context.Context, ids []int64) (map[int64]models.Profile, error)
}

// ProfileRepo is a sqlx implementation of ProfileRepository.
type ProfileRepo struct {
	db *sqlx.DB
}

// NewProfileRepo constructs a ProfileRepo.
func NewProfileRepo(db *sqlx.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetProfile fetches a single profile.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID int64) (models.Profile, error) {
	var p models.Profile
	err := r.db.GetContext(ctx, &p, profileQuery+` WHERE u.id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrUserNotFound
	}
	return p, err
}

// BulkProfiles fetches several profiles in one query. Unknown ids are absent from the result.
func (r *ProfileRepo) BulkProfiles(ctx context.Context, ids []int64) (map[int64]models.Profile, error) {
	out := make(map[int64]models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(profileQuery+` WHERE u.id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var profiles []models.Profile
	if err := r.db.SelectContext(ctx, &profiles, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}
