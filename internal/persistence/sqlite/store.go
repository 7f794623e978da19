// Package sqlite is a single-file recommendation store for local runs and small deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/persistence"
)

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite implementation of domain.RecommendationStore.
type Store struct {
	db *sql.DB
}

var _ domain.RecommendationStore = (*Store)(nil)

// New opens (or creates) the database at dsn and ensures the schema exists.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS recommendations (
			id TEXT PRIMARY KEY,
			activity_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			recommendation_text TEXT NOT NULL,
			improvements TEXT NOT NULL,
			suggestions TEXT NOT NULL,
			safety TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_user ON recommendations(user_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_activity ON recommendations(activity_id, created_at DESC, id DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

const columns = `id, activity_id, user_id, activity_type, recommendation_text, improvements, suggestions, safety, created_at, updated_at`

// Create implements domain.RecommendationStore.
func (s *Store) Create(ctx context.Context, rec domain.Recommendation) error {
	args, err := insertArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO recommendations (`+columns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`, args...)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// UpsertByActivity implements domain.RecommendationStore. The oldest record of the activity is the one kept.
func (s *Store) UpsertByActivity(ctx context.Context, rec domain.Recommendation) (domain.Recommendation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer tx.Rollback()

	existing, err := scan(tx.QueryRowContext(ctx,
		`SELECT `+columns+` FROM recommendations WHERE activity_id = ? ORDER BY created_at, id LIMIT 1`, rec.ActivityID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		args, err := insertArgs(rec)
		if err != nil {
			return domain.Recommendation{}, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO recommendations (`+columns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`, args...); err != nil {
			return domain.Recommendation{}, fmt.Errorf("insert recommendation: %w", err)
		}
	case err != nil:
		return domain.Recommendation{}, fmt.Errorf("find recommendation: %w", err)
	default:
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
		if err := updateContent(ctx, tx, rec, true); err != nil {
			return domain.Recommendation{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

// Update implements domain.RecommendationStore.
func (s *Store) Update(ctx context.Context, rec domain.Recommendation) error {
	return updateContent(ctx, s.db, rec, false)
}

// Delete implements domain.RecommendationStore.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recommendations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recommendation: %w", err)
	}
	return requireRow(res)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// updateContent rewrites the mutable fields of rec.ID. withOwner also rewrites user_id, which only
// the pipeline upsert does.
func updateContent(ctx context.Context, db execer, rec domain.Recommendation, withOwner bool) error {
	improvements, suggestions, safety, err := encodeLists(rec)
	if err != nil {
		return err
	}
	query := `UPDATE recommendations
		SET activity_type = ?, recommendation_text = ?, improvements = ?, suggestions = ?, safety = ?, updated_at = ?`
	args := []interface{}{rec.ActivityType, rec.Text, improvements, suggestions, safety, formatTime(rec.UpdatedAt)}
	if withOwner {
		query += `, user_id = ?`
		args = append(args, rec.UserID)
	}
	query += ` WHERE id = ?`
	args = append(args, rec.ID)

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update recommendation: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrRecommendationNotFound
	}
	return nil
}

// Get implements domain.RecommendationStore.
func (s *Store) Get(ctx context.Context, id string) (*domain.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM recommendations WHERE id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByUser implements domain.RecommendationStore.
func (s *Store) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	return s.list(ctx, `user_id = ?`, []interface{}{userID}, cursor, limit)
}

// ListByActivity implements domain.RecommendationStore.
func (s *Store) ListByActivity(ctx context.Context, userID, activityID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	return s.list(ctx, `user_id = ? AND activity_id = ?`, []interface{}{userID, activityID}, cursor, limit)
}

// DeleteByUser implements domain.RecommendationStore.
func (s *Store) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recommendations WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete recommendations: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) list(ctx context.Context, where string, args []interface{}, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	limit = persistence.ClampLimit(limit)

	var b strings.Builder
	b.WriteString(`SELECT ` + columns + ` FROM recommendations WHERE ` + where)
	if cursor != nil {
		b.WriteString(` AND (created_at < ? OR (created_at = ? AND id < ?))`)
		at := formatTime(cursor.At)
		args = append(args, at, at, cursor.ID)
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Recommendation, 0, limit)
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if n := len(out); n > 0 {
		next = persistence.NextCursor(n, limit, out[n-1].CreatedAt, out[n-1].ID)
	}
	return out, next, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (domain.Recommendation, error) {
	var (
		rec                               domain.Recommendation
		improvements, suggestions, safety string
		createdAt, updatedAt              string
	)
	if err := row.Scan(&rec.ID, &rec.ActivityID, &rec.UserID, &rec.ActivityType, &rec.Text,
		&improvements, &suggestions, &safety, &createdAt, &updatedAt); err != nil {
		return domain.Recommendation{}, err
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{improvements, &rec.Improvements}, {suggestions, &rec.Suggestions}, {safety, &rec.Safety}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return domain.Recommendation{}, fmt.Errorf("decode recommendation %s lists: %w", rec.ID, err)
		}
		if *f.dst == nil {
			*f.dst = []string{}
		}
	}
	var err error
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return domain.Recommendation{}, err
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return domain.Recommendation{}, err
	}
	return rec, nil
}

func insertArgs(rec domain.Recommendation) ([]interface{}, error) {
	improvements, suggestions, safety, err := encodeLists(rec)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		rec.ID, rec.ActivityID, rec.UserID, rec.ActivityType, rec.Text,
		improvements, suggestions, safety, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	}, nil
}

func encodeLists(rec domain.Recommendation) (string, string, string, error) {
	out := make([]string, 3)
	for i, list := range [][]string{rec.Improvements, rec.Suggestions, rec.Safety} {
		if list == nil {
			list = []string{}
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return "", "", "", fmt.Errorf("encode recommendation lists: %w", err)
		}
		out[i] = string(raw)
	}
	return out[0], out[1], out[2], nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
