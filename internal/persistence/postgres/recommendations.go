package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/persistence"
)

// RecommendationStore is the Postgres implementation of domain.RecommendationStore.
type RecommendationStore struct {
	pool *pgxpool.Pool
}

var _ domain.RecommendationStore = (*RecommendationStore)(nil)

// NewRecommendationStore constructs a RecommendationStore.
func NewRecommendationStore(pool *pgxpool.Pool) *RecommendationStore {
	return &RecommendationStore{pool: pool}
}

const recommendationColumns = `recommendation_id, activity_id, user_id, activity_type, recommendation_text, improvements, suggestions, safety, created_at, updated_at`

const insertRecommendation = `INSERT INTO recommendations (` + recommendationColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

// Create appends a recommendation.
func (s *RecommendationStore) Create(ctx context.Context, rec domain.Recommendation) error {
	if _, err := s.pool.Exec(ctx, insertRecommendation, insertArgs(rec)...); err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// UpsertByActivity replaces the oldest recommendation of the activity, or inserts when there is none,
// and returns the stored row. Concurrent upserts for one activity are serialised by a transaction-scoped
// advisory lock.
func (s *RecommendationStore) UpsertByActivity(ctx context.Context, rec domain.Recommendation) (stored domain.Recommendation, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Recommendation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.ActivityID); err != nil {
		return domain.Recommendation{}, fmt.Errorf("lock activity %s: %w", rec.ActivityID, err)
	}

	stored, err = scanRecommendation(tx.QueryRow(ctx,
		`UPDATE recommendations
            SET user_id = $2, activity_type = $3, recommendation_text = $4,
                improvements = $5, suggestions = $6, safety = $7, updated_at = $8
          WHERE recommendation_id = (
                SELECT recommendation_id FROM recommendations
                 WHERE activity_id = $1
                 ORDER BY created_at, recommendation_id
                 LIMIT 1)
      RETURNING `+recommendationColumns,
		rec.ActivityID, rec.UserID, rec.ActivityType, rec.Text,
		nonNil(rec.Improvements), nonNil(rec.Suggestions), nonNil(rec.Safety), rec.UpdatedAt,
	))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		stored, err = scanRecommendation(tx.QueryRow(ctx, insertRecommendation+` RETURNING `+recommendationColumns, insertArgs(rec)...))
		if err != nil {
			return domain.Recommendation{}, fmt.Errorf("insert recommendation: %w", err)
		}
	case err != nil:
		return domain.Recommendation{}, fmt.Errorf("update recommendation: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return domain.Recommendation{}, err
	}
	return stored, nil
}

// Update rewrites the content of an existing recommendation. Owner and activity are left as stored.
func (s *RecommendationStore) Update(ctx context.Context, rec domain.Recommendation) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recommendations
            SET activity_type = $2, recommendation_text = $3,
                improvements = $4, suggestions = $5, safety = $6, updated_at = $7
          WHERE recommendation_id = $1`,
		rec.ID, rec.ActivityType, rec.Text,
		nonNil(rec.Improvements), nonNil(rec.Suggestions), nonNil(rec.Safety), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update recommendation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecommendationNotFound
	}
	return nil
}

// Delete removes one recommendation.
func (s *RecommendationStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recommendations WHERE recommendation_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete recommendation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRecommendationNotFound
	}
	return nil
}

// Get retrieves a recommendation by ID.
func (s *RecommendationStore) Get(ctx context.Context, id string) (*domain.Recommendation, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recommendationColumns+` FROM recommendations WHERE recommendation_id = $1`, id)
	rec, err := scanRecommendation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByUser pages through a user's recommendations, newest first.
func (s *RecommendationStore) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	return s.list(ctx, `user_id = $1`, []interface{}{userID}, cursor, limit)
}

// ListByActivity pages through the recommendations userID owns for an activity, newest first.
func (s *RecommendationStore) ListByActivity(ctx context.Context, userID, activityID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	return s.list(ctx, `user_id = $1 AND activity_id = $2`, []interface{}{userID, activityID}, cursor, limit)
}

// DeleteByUser removes every recommendation owned by userID.
func (s *RecommendationStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recommendations WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete recommendations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// list runs a keyset page query. where binds its own args as $1..$n; limit and cursor follow.
func (s *RecommendationStore) list(ctx context.Context, where string, args []interface{}, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	limit = persistence.ClampLimit(limit)
	args = append(args, limit)
	limitParam := len(args)
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE ` + where
	if cursor != nil {
		query += fmt.Sprintf(` AND (created_at, recommendation_id) < ($%d, $%d)`, limitParam+1, limitParam+2)
		args = append(args, cursor.At, cursor.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, recommendation_id DESC LIMIT $%d`, limitParam)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Recommendation, 0, limit)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if n := len(results); n > 0 {
		next = persistence.NextCursor(n, limit, results[n-1].CreatedAt, results[n-1].ID)
	}
	return results, next, nil
}

func scanRecommendation(row pgx.Row) (domain.Recommendation, error) {
	var rec domain.Recommendation
	if err := row.Scan(&rec.ID, &rec.ActivityID, &rec.UserID, &rec.ActivityType, &rec.Text,
		&rec.Improvements, &rec.Suggestions, &rec.Safety, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.Recommendation{}, err
	}
	rec.Improvements = nonNil(rec.Improvements)
	rec.Suggestions = nonNil(rec.Suggestions)
	rec.Safety = nonNil(rec.Safety)
	return rec, nil
}

func insertArgs(rec domain.Recommendation) []interface{} {
	return []interface{}{
		rec.ID, rec.ActivityID, rec.UserID, rec.ActivityType, rec.Text,
		nonNil(rec.Improvements), nonNil(rec.Suggestions), nonNil(rec.Safety), rec.CreatedAt, rec.UpdatedAt,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
