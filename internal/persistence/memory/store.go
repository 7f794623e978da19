// Package memory provides in-process activity and recommendation stores for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/persistence"
)

// RecommendationStore keeps recommendations in a map guarded by a RWMutex.
type RecommendationStore struct {
	mu   sync.RWMutex
	recs map[string]domain.Recommendation
}

var _ domain.RecommendationStore = (*RecommendationStore)(nil)

// NewRecommendationStore constructs an empty store.
func NewRecommendationStore() *RecommendationStore {
	return &RecommendationStore{recs: make(map[string]domain.Recommendation)}
}

// Create implements domain.RecommendationStore.
func (s *RecommendationStore) Create(_ context.Context, rec domain.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recs[rec.ID]; exists {
		return fmt.Errorf("recommendation %s already exists", rec.ID)
	}
	s.recs[rec.ID] = cloneRecommendation(rec)
	return nil
}

// UpsertByActivity implements domain.RecommendationStore. The oldest record of the activity is the one kept.
func (s *RecommendationStore) UpsertByActivity(_ context.Context, rec domain.Recommendation) (domain.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.Recommendation
	for _, existing := range s.recs {
		if existing.ActivityID != rec.ActivityID {
			continue
		}
		if oldest == nil || newer(oldest.CreatedAt, oldest.ID, existing.CreatedAt, existing.ID) {
			e := existing
			oldest = &e
		}
	}
	if oldest != nil {
		rec.ID = oldest.ID
		rec.CreatedAt = oldest.CreatedAt
	}
	s.recs[rec.ID] = cloneRecommendation(rec)
	return cloneRecommendation(rec), nil
}

// Update implements domain.RecommendationStore.
func (s *RecommendationStore) Update(_ context.Context, rec domain.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.recs[rec.ID]
	if !ok {
		return domain.ErrRecommendationNotFound
	}
	existing.ActivityType = rec.ActivityType
	existing.Text = rec.Text
	existing.Improvements = rec.Improvements
	existing.Suggestions = rec.Suggestions
	existing.Safety = rec.Safety
	existing.UpdatedAt = rec.UpdatedAt
	s.recs[rec.ID] = cloneRecommendation(existing)
	return nil
}

// Delete implements domain.RecommendationStore.
func (s *RecommendationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return domain.ErrRecommendationNotFound
	}
	delete(s.recs, id)
	return nil
}

// Get implements domain.RecommendationStore.
func (s *RecommendationStore) Get(_ context.Context, id string) (*domain.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	out := cloneRecommendation(rec)
	return &out, nil
}

// ListByUser implements domain.RecommendationStore.
func (s *RecommendationStore) ListByUser(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	return s.list(func(r domain.Recommendation) bool { return r.UserID == userID }, cursor, limit)
}

// ListByActivity implements domain.RecommendationStore.
func (s *RecommendationStore) ListByActivity(_ context.Context, userID, activityID string, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	return s.list(func(r domain.Recommendation) bool { return r.UserID == userID && r.ActivityID == activityID }, cursor, limit)
}

// DeleteByUser implements domain.RecommendationStore.
func (s *RecommendationStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.recs {
		if rec.UserID == userID {
			delete(s.recs, id)
			n++
		}
	}
	return n, nil
}

func (s *RecommendationStore) list(match func(domain.Recommendation) bool, cursor *domain.Cursor, limit int) ([]domain.Recommendation, *domain.Cursor, error) {
	limit = persistence.ClampLimit(limit)

	s.mu.RLock()
	matched := make([]domain.Recommendation, 0)
	for _, rec := range s.recs {
		if match(rec) && before(rec.CreatedAt, rec.ID, cursor) {
			matched = append(matched, cloneRecommendation(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return newer(matched[i].CreatedAt, matched[i].ID, matched[j].CreatedAt, matched[j].ID)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	var next *domain.Cursor
	if n := len(matched); n > 0 {
		next = persistence.NextCursor(n, limit, matched[n-1].CreatedAt, matched[n-1].ID)
	}
	return matched, next, nil
}

// ActivityRepository keeps activities in memory.
type ActivityRepository struct {
	mu         sync.RWMutex
	activities map[string]domain.Activity
}

var _ domain.ActivityRepository = (*ActivityRepository)(nil)

// NewActivityRepository constructs an empty repository.
func NewActivityRepository() *ActivityRepository {
	return &ActivityRepository{activities: make(map[string]domain.Activity)}
}

// Create implements domain.ActivityRepository.
func (r *ActivityRepository) Create(_ context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.activities[activity.ID]; exists {
		return fmt.Errorf("activity %s already exists", activity.ID)
	}
	r.activities[activity.ID] = activity
	return nil
}

// Update implements domain.ActivityRepository.
func (r *ActivityRepository) Update(_ context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.activities[activity.ID]; !exists {
		return domain.ErrActivityNotFound
	}
	r.activities[activity.ID] = activity
	return nil
}

// Delete implements domain.ActivityRepository.
func (r *ActivityRepository) Delete(_ context.Context, activityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.activities, activityID)
	return nil
}

// Get implements domain.ActivityRepository.
func (r *ActivityRepository) Get(_ context.Context, activityID string) (*domain.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	activity, ok := r.activities[activityID]
	if !ok {
		return nil, nil
	}
	return &activity, nil
}

// ListByUser implements domain.ActivityRepository, ordered by start time, newest first.
func (r *ActivityRepository) ListByUser(_ context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	limit = persistence.ClampLimit(limit)

	r.mu.RLock()
	matched := make([]domain.Activity, 0)
	for _, a := range r.activities {
		if a.UserID == userID && before(a.StartedAt, a.ID, cursor) {
			matched = append(matched, a)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return newer(matched[i].StartedAt, matched[i].ID, matched[j].StartedAt, matched[j].ID)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	var next *domain.Cursor
	if n := len(matched); n > 0 {
		next = persistence.NextCursor(n, limit, matched[n-1].StartedAt, matched[n-1].ID)
	}
	return matched, next, nil
}

// before reports whether (at, id) sorts after the cursor position in newest-first order.
func before(at time.Time, id string, cursor *domain.Cursor) bool {
	if cursor == nil {
		return true
	}
	if at.Equal(cursor.At) {
		return id < cursor.ID
	}
	return at.Before(cursor.At)
}

func newer(a time.Time, aID string, b time.Time, bID string) bool {
	if a.Equal(b) {
		return aID > bID
	}
	return a.After(b)
}

func cloneRecommendation(rec domain.Recommendation) domain.Recommendation {
	rec.Improvements = append([]string{}, rec.Improvements...)
	rec.Suggestions = append([]string{}, rec.Suggestions...)
	rec.Safety = append([]string{}, rec.Safety...)
	return rec
}
