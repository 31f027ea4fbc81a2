package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetOrCreateUserByEmail looks up a user by email, creating one if none
// exists. Password hashing and verification are out of scope (§1 Non-goals:
// "email delivery, JWT issuance, and password hashing (spec'd only by
// contract)") — the /auth handlers call this to resolve an identity before
// issuing a token.
func GetOrCreateUserByEmail(ctx context.Context, email string) (*User, error) {
	pool := Pool()

	var u User
	err := pool.QueryRow(ctx, `
		INSERT INTO users (email, created_at) VALUES ($1, NOW())
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, created_at
	`, email).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create user %q: %w", email, err)
	}
	return &u, nil
}

// GetUserByID retrieves a user by id, used to resolve a verified JWT subject
// back to a row before trusting it.
func GetUserByID(ctx context.Context, id int64) (*User, error) {
	pool := Pool()

	var u User
	err := pool.QueryRow(ctx, `SELECT id, email, created_at FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// GetUserLocation returns a user's last-known coordinates, the input to the
// chat orchestrator's get_user_locations tool (§4.H) and the optimizer's
// nearby-store default. A user with no location on file (never geocoded,
// never supplied one) is not an error — callers treat nil as "unknown."
func GetUserLocation(ctx context.Context, userID int64) (*UserLocation, error) {
	pool := Pool()

	var loc UserLocation
	err := pool.QueryRow(ctx, `
		SELECT user_id, lat, lon, updated_at FROM user_locations WHERE user_id = $1
	`, userID).Scan(&loc.UserID, &loc.Lat, &loc.Lon, &loc.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user location for user %d: %w", userID, err)
	}
	return &loc, nil
}

// UpsertUserLocation records a user's current coordinates, set explicitly by
// the client or filled by the geocoding batch job from a saved address.
func UpsertUserLocation(ctx context.Context, userID int64, lat, lon float64) error {
	pool := Pool()

	_, err := pool.Exec(ctx, `
		INSERT INTO user_locations (user_id, lat, lon, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET lat = EXCLUDED.lat, lon = EXCLUDED.lon, updated_at = NOW()
	`, userID, lat, lon)
	if err != nil {
		return fmt.Errorf("upsert user location for user %d: %w", userID, err)
	}
	return nil
}
