package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists dead letters in the event_dlq table.
type Store struct {
	pool      *pgxpool.Pool
	baseDelay time.Duration
}

// NewStore initialises a store backed by the provided connection pool. baseDelay is the replay
// backoff base and should match the Manager's.
func NewStore(pool *pgxpool.Pool, baseDelay time.Duration) *Store {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Store{pool: pool, baseDelay: baseDelay}
}

// Write records a failed message alongside its reason. A first failure is due for replay
// immediately; a message that failed again after replay n keeps n as its retry count and waits
// Backoff(n) before the next replay.
func (s *Store) Write(ctx context.Context, entry Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO event_dlq (queue, routing_key, event_kind, message_key, payload, reason, retry_count, next_retry_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7, NOW() + make_interval(secs => $8))`,
		entry.Queue, entry.RoutingKey, entry.Kind, entry.Key, entry.Payload, entry.Reason,
		entry.RetryCount, s.writeDelay(entry.RetryCount).Seconds(),
	)
	if err != nil {
		return fmt.Errorf("write dead letter for %s: %w", entry.Queue, err)
	}
	return nil
}

func (s *Store) writeDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	return Backoff(s.baseDelay, retryCount)
}

// Pending returns up to limit non-quarantined entries whose retry time has passed, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]Entry, error) {
	const query = `SELECT dlq_id, queue, routing_key, event_kind, message_key, payload, reason, retry_count, created_at
                    FROM event_dlq
                   WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                   ORDER BY created_at
                   LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Quarantine parks an entry permanently.
func (s *Store) Quarantine(ctx context.Context, id int64, reason string) error {
	_, err := s.pool.Exec(ctx, `UPDATE event_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, reason, id)
	return err
}

// Reschedule records a failed replay and defers the next one by delay.
func (s *Store) Reschedule(ctx context.Context, id int64, delay time.Duration, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE event_dlq
           SET retry_count = retry_count + 1,
               last_attempt_at = NOW(),
               next_retry_at = NOW() + make_interval(secs => $1),
               reason = $2
         WHERE dlq_id = $3`,
		delay.Seconds(), reason, id,
	)
	return err
}

// Remove deletes a replayed entry.
func (s *Store) Remove(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM event_dlq WHERE dlq_id = $1`, id)
	return err
}

// Backlog counts entries that are not quarantined.
func (s *Store) Backlog(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_dlq WHERE quarantined_at IS NULL`).Scan(&count)
	return count, err
}

func scanEntry(rows pgx.Rows) (Entry, error) {
	var entry Entry
	if err := rows.Scan(&entry.ID, &entry.Queue, &entry.RoutingKey, &entry.Kind, &entry.Key, &entry.Payload, &entry.Reason, &entry.RetryCount, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	return entry, nil
}
