// Package postgres provides pgx-backed persistence for activities and recommendations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/events"
	"example.com/recommendation/internal/observability"
	"example.com/recommendation/internal/persistence"
)

// ActivityRepository provides Postgres-backed persistence for activities.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

var _ domain.ActivityRepository = (*ActivityRepository)(nil)

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

const activityColumns = `activity_id, user_id, activity_type, duration_min, calories_burned, started_at, additional_metrics, created_at, updated_at`

// Create inserts a new activity.
func (r *ActivityRepository) Create(ctx context.Context, activity domain.Activity) error {
	metrics, err := encodeMetrics(activity.AdditionalMetrics)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO activities (`+activityColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		activity.ID, activity.UserID, string(activity.Type), activity.DurationMin, activity.CaloriesBurned,
		activity.StartedAt, metrics, activity.CreatedAt, activity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return nil
}

// Update replaces the mutable fields of an existing activity.
func (r *ActivityRepository) Update(ctx context.Context, activity domain.Activity) error {
	metrics, err := encodeMetrics(activity.AdditionalMetrics)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE activities
            SET activity_type = $2, duration_min = $3, calories_burned = $4, started_at = $5,
                additional_metrics = $6, updated_at = $7
          WHERE activity_id = $1`,
		activity.ID, string(activity.Type), activity.DurationMin, activity.CaloriesBurned,
		activity.StartedAt, metrics, activity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	observability.RecordActivityPersisted(activity.UpdatedAt)
	return nil
}

// Delete removes an activity. Recommendations referencing it are kept.
func (r *ActivityRepository) Delete(ctx context.Context, activityID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activities WHERE activity_id = $1`, activityID)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

// Get retrieves an activity by ID.
func (r *ActivityRepository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id = $1`, activityID)
	activity, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListByUser returns activities for a user ordered by start time, newest first.
func (r *ActivityRepository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	limit = persistence.ClampLimit(limit)
	args := []interface{}{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE user_id = $1`
	if cursor != nil {
		query += ` AND (started_at, activity_id) < ($3, $4)`
		args = append(args, cursor.At, cursor.ID)
	}
	query += ` ORDER BY started_at DESC, activity_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if n := len(results); n > 0 {
		next = persistence.NextCursor(n, limit, results[n-1].StartedAt, results[n-1].ID)
	}
	return results, next, nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		activity     domain.Activity
		activityType string
		metrics      []byte
	)
	if err := row.Scan(&activity.ID, &activity.UserID, &activityType, &activity.DurationMin, &activity.CaloriesBurned,
		&activity.StartedAt, &metrics, &activity.CreatedAt, &activity.UpdatedAt); err != nil {
		return domain.Activity{}, err
	}
	activity.Type = events.ActivityType(activityType)
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &activity.AdditionalMetrics); err != nil {
			return domain.Activity{}, fmt.Errorf("decode additional metrics for %s: %w", activity.ID, err)
		}
	}
	return activity, nil
}

func encodeMetrics(metrics map[string]interface{}) ([]byte, error) {
	if metrics == nil {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("encode additional metrics: %w", err)
	}
	return body, nil
}
