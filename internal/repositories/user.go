package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/shared"
)

// UserRepository implements [models.Repository] for [models.User] persistence.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, sequence, spotify_id, display_name, email, profile_url,
	access_token, refresh_token, token_expires_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var (
		userID         string
		sequence       int
		spotifyID      string
		displayName    string
		email          sql.NullString
		profileURL     sql.NullString
		accessToken    sql.NullString
		refreshToken   sql.NullString
		tokenExpiresAt sql.NullTime
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&userID, &sequence, &spotifyID, &displayName, &email, &profileURL,
		&accessToken, &refreshToken, &tokenExpiresAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	user := models.NewUser(sequence, spotifyID, displayName)
	user.SetID(userID)
	user.SetEmail(email.String)
	user.SetProfileURL(profileURL.String)
	if accessToken.Valid {
		user.SetTokens(accessToken.String, refreshToken.String, tokenExpiresAt.Time)
	}
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)

	return user, nil
}

// Create inserts a new user into the database with generated ID and sequence
func (r *UserRepository) Create(user *models.User) error {
	sequence, err := NextSequence(r.db, "users")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	user.SetID(id)
	user.SetSequence(sequence)

	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO users (id, sequence, spotify_id, display_name, email, profile_url,
			access_token, refresh_token, token_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, user.SpotifyID(), user.DisplayName(), user.Email(),
		user.ProfileURL(), user.AccessToken(), user.RefreshToken(), user.TokenExpiresAt(),
		user.CreatedAt(), user.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// Get retrieves a user by internal ID
func (r *UserRepository) Get(id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = ?", userColumns)

	user, err := scanUser(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotAuthenticated, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// GetBySpotifyID retrieves a user by external Spotify identity
func (r *UserRepository) GetBySpotifyID(spotifyID string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE spotify_id = ?", userColumns)

	user, err := scanUser(r.db.QueryRow(query, spotifyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: spotify user %s", shared.ErrNotAuthenticated, spotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

// Upsert inserts the user or, when the spotify_id already exists, updates the
// profile fields and token triple of the existing row. The canonical row is
// returned so repeated OAuth callbacks converge on a single user per identity.
func (r *UserRepository) Upsert(user *models.User) (*models.User, error) {
	sequence, err := NextSequence(r.db, "users")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	user.SetID(id)
	user.SetSequence(sequence)

	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO users (id, sequence, spotify_id, display_name, email, profile_url,
			access_token, refresh_token, token_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (spotify_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			profile_url = excluded.profile_url,
			access_token = excluded.access_token,
			refresh_token = CASE WHEN excluded.refresh_token != '' THEN excluded.refresh_token ELSE users.refresh_token END,
			token_expires_at = excluded.token_expires_at,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query, id, sequence, user.SpotifyID(), user.DisplayName(), user.Email(),
		user.ProfileURL(), user.AccessToken(), user.RefreshToken(), user.TokenExpiresAt(),
		user.CreatedAt(), user.UpdatedAt())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return r.GetBySpotifyID(user.SpotifyID())
}

// UpdateTokens persists a refreshed token triple for an existing user.
func (r *UserRepository) UpdateTokens(user *models.User) error {
	query := `
		UPDATE users
		SET access_token = ?, refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, user.AccessToken(), user.RefreshToken(),
		user.TokenExpiresAt(), user.UpdatedAt(), user.ID())
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", user.ID())
	}

	return nil
}

// Update modifies an existing user in the database
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	user.SetUpdatedAt(now)

	query := `
		UPDATE users
		SET display_name = ?, email = ?, profile_url = ?, access_token = ?,
			refresh_token = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, user.DisplayName(), user.Email(), user.ProfileURL(),
		user.AccessToken(), user.RefreshToken(), user.TokenExpiresAt(), now, user.ID())
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", user.ID())
	}

	return nil
}

// Delete removes a user by ID; ratings and sessions cascade.
func (r *UserRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", id)
	}

	return nil
}

// List retrieves all users matching the given criteria
func (r *UserRepository) List(criteria map[string]any) ([]*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE 1=1", userColumns)

	args := []any{}

	if spotifyID, ok := criteria["spotify_id"].(string); ok && spotifyID != "" {
		query += " AND spotify_id = ?"
		args = append(args, spotifyID)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return users, nil
}
