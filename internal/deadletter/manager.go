package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Queue is the storage the Manager drains. *Store satisfies it.
type Queue interface {
	Pending(ctx context.Context, limit int) ([]Entry, error)
	Quarantine(ctx context.Context, id int64, reason string) error
	Reschedule(ctx context.Context, id int64, delay time.Duration, reason string) error
	Remove(ctx context.Context, id int64) error
	Backlog(ctx context.Context) (int, error)
}

// Replayer re-publishes a payload to its original queue. *broker.Publisher satisfies it.
type Replayer interface {
	Replay(ctx context.Context, queue, key string, payload []byte, attempt int) error
}

// Defaults applied by NewManager and NewStore.
const (
	defaultMaxRetries = 5
	defaultBaseDelay  = time.Minute
)

// QuarantineReason is recorded on entries that exhausted their replays.
const QuarantineReason = "retry limit reached"

// Manager retries dead letters and quarantines exhausted entries.
type Manager struct {
	queue      Queue
	replayer   Replayer
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewManager constructs a Manager. Non-positive maxRetries and baseDelay fall back to 5 and one minute.
func NewManager(queue Queue, replayer Replayer, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{queue: queue, replayer: replayer, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// RunOnce processes a batch of due entries and returns how many were replayed.
func (m *Manager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.queue.Pending(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("load dead letters: %w", err)
	}

	replayed := 0
	for _, entry := range entries {
		ok, handleErr := m.handleEntry(ctx, entry)
		if handleErr != nil {
			err = errors.Join(err, handleErr)
			continue
		}
		if ok {
			replayed++
		}
	}

	if count, backlogErr := m.queue.Backlog(ctx); backlogErr == nil {
		backlogGauge.Set(float64(count))
	}
	return replayed, err
}

func (m *Manager) handleEntry(ctx context.Context, entry Entry) (bool, error) {
	recordProcessed(entry)

	if entry.RetryCount >= m.maxRetries {
		if err := m.queue.Quarantine(ctx, entry.ID, QuarantineReason); err != nil {
			return false, fmt.Errorf("quarantine dead letter %d: %w", entry.ID, err)
		}
		recordQuarantined(entry)
		m.logger.Warn("dead letter quarantined", "dlq_id", entry.ID, "queue", entry.Queue, "retries", entry.RetryCount, "reason", entry.Reason)
		return false, nil
	}

	if replayErr := m.replayer.Replay(ctx, entry.Queue, entry.Key, entry.Payload, entry.RetryCount+1); replayErr != nil {
		delay := m.BackoffDelay(entry.RetryCount + 1)
		if err := m.queue.Reschedule(ctx, entry.ID, delay, replayErr.Error()); err != nil {
			return false, fmt.Errorf("reschedule dead letter %d: %w", entry.ID, err)
		}
		recordRetry(entry)
		m.logger.Warn("dead letter replay failed", "dlq_id", entry.ID, "queue", entry.Queue, "next_in", delay, "error", replayErr)
		return false, nil
	}

	if err := m.queue.Remove(ctx, entry.ID); err != nil {
		return false, fmt.Errorf("remove replayed dead letter %d: %w", entry.ID, err)
	}
	recordReplayed(entry)
	return true, nil
}

// BackoffDelay returns the replay delay for a 1-based attempt.
func (m *Manager) BackoffDelay(attempt int) time.Duration {
	return Backoff(m.baseDelay, attempt)
}

// Backoff returns base doubled per attempt (1-based), capped at one hour.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 31 {
		return time.Hour
	}
	delay := time.Duration(1<<uint(attempt-1)) * base
	if delay > time.Hour || delay <= 0 {
		delay = time.Hour
	}
	return delay
}
