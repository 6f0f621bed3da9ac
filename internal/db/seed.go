package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"inbox-service/internal/models"
)

// InsertUser creates a user and its profile row and returns the new id.
func InsertUser(ctx context.Context, db *sqlx.DB, p models.Profile) (int64, error) {
	role := p.Role
	if role == "" {
		role = models.RoleUser
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var id int64
	if err = tx.QueryRowxContext(ctx, `INSERT INTO users (username, first_name, last_name, is_active) VALUES ($1, $2, $3, $4) RETURNING id`,
		p.Username, p.FirstName, p.LastName, p.IsActive).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert user %s: %w", p.Username, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO profiles (user_id, profile_image, role) VALUES ($1, $2, $3)`, id, p.AvatarURL, role); err != nil {
		return 0, fmt.Errorf("insert profile %s: %w", p.Username, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

var demoUsers = []models.Profile{
	{Username: "alice", FirstName: "Alice", LastName: "Moreau", IsActive: true},
	{Username: "bob", FirstName: "Bob", LastName: "Okafor", IsActive: true},
	{Username: "carol", IsActive: true},
	{Username: "admin", FirstName: "Site", LastName: "Admin", Role: models.RoleAdmin, IsActive: true},
}

// SeedDemo inserts a fixed set of development users when they are missing.
// It returns the ids keyed by username.
func SeedDemo(ctx context.Context, db *sqlx.DB) (map[string]int64, error) {
	ids := make(map[string]int64, len(demoUsers))
	for _, u := range demoUsers {
		var id int64
		err := db.GetContext(ctx, &id, `SELECT id FROM users WHERE username=$1`, u.Username)
		if errors.Is(err, sql.ErrNoRows) {
			id, err = InsertUser(ctx, db, u)
		}
		if err != nil {
			return nil, err
		}
		ids[u.Username] = id
	}
	return ids, nil
}
