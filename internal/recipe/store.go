package recipe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS recipe_generations (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS recipe_generations_user_created_idx ON recipe_generations (user_id, created_at);
CREATE TABLE IF NOT EXISTS recipes (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	is_favorite BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS recipes_user_created_idx ON recipes (user_id, created_at DESC);
`

// PostgresStore persists recipes and generation records in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to the database at dataSourceName.
func NewPostgresStore(ctx context.Context, dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PostgresStore{db: db}, nil
}

// NewStore wraps an existing connection.
func NewStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CountGenerationsSince counts a user's generation records at or after since.
func (s *PostgresStore) CountGenerationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM recipe_generations WHERE user_id = $1 AND created_at >= $2",
		userID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count generations: %w", err)
	}
	return count, nil
}

// InsertGeneration appends a generation record.
func (s *PostgresStore) InsertGeneration(ctx context.Context, g Generation) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO recipe_generations (user_id, created_at) VALUES ($1, $2)",
		g.UserID, g.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}
	return nil
}

// InsertRecipe saves a new recipe. An empty ID is filled with a random UUID.
func (s *PostgresStore) InsertRecipe(ctx context.Context, r *Recipe) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO recipes (id, user_id, content, is_favorite, created_at) VALUES ($1, $2, $3, $4, $5)",
		r.ID, r.UserID, r.Content, r.IsFavorite, r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert recipe: %w", err)
	}
	return nil
}

// ListRecipes returns a user's recipes, newest first.
func (s *PostgresStore) ListRecipes(ctx context.Context, userID string) ([]*Recipe, error) {
	recipes := []*Recipe{}
	err := s.db.SelectContext(ctx, &recipes,
		"SELECT id, user_id, content, is_favorite, created_at FROM recipes WHERE user_id = $1 ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	return recipes, nil
}

// GetRecipe returns one of a user's recipes or ErrNotFound.
func (s *PostgresStore) GetRecipe(ctx context.Context, userID, id string) (*Recipe, error) {
	var r Recipe
	err := s.db.GetContext(ctx, &r,
		"SELECT id, user_id, content, is_favorite, created_at FROM recipes WHERE id = $1 AND user_id = $2",
		id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return &r, nil
}

// ToggleFavorite flips the favorite flag and returns its new value.
func (s *PostgresStore) ToggleFavorite(ctx context.Context, userID, id string) (bool, error) {
	var favorite bool
	err := s.db.GetContext(ctx, &favorite,
		"UPDATE recipes SET is_favorite = NOT is_favorite WHERE id = $1 AND user_id = $2 RETURNING is_favorite",
		id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return favorite, nil
}

// DeleteRecipe removes one of a user's recipes.
func (s *PostgresStore) DeleteRecipe(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
