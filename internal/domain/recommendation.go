package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/recommendation/internal/events"
	"example.com/recommendation/internal/extract"
)

var (
	// ErrRecommendationNotFound is returned when a recommendation cannot be located for the caller.
	ErrRecommendationNotFound = errors.New("recommendation not found")
	// ErrInvalidRecommendation wraps validation failures of caller-supplied recommendations.
	ErrInvalidRecommendation = errors.New("invalid recommendation")
)

// Recommendation is the persisted outcome of enriching one activity. ActivityID and UserID are
// captured at generation time and never change afterwards.
type Recommendation struct {
	ID           string
	ActivityID   string
	UserID       string
	ActivityType string
	Text         string
	Improvements []string
	Suggestions  []string
	Safety       []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecommendationStore persists recommendations. Get returns nil, nil when the record does not exist;
// Update and Delete return ErrRecommendationNotFound.
type RecommendationStore interface {
	Create(ctx context.Context, rec Recommendation) error
	// UpsertByActivity keeps one record per activity: the oldest existing record keeps its ID and
	// CreatedAt and takes every other field from rec. It returns the record as stored.
	UpsertByActivity(ctx context.Context, rec Recommendation) (Recommendation, error)
	Get(ctx context.Context, id string) (*Recommendation, error)
	// Update replaces the content fields and UpdatedAt of the record with rec.ID.
	Update(ctx context.Context, rec Recommendation) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Recommendation, *Cursor, error)
	ListByActivity(ctx context.Context, userID, activityID string, cursor *Cursor, limit int) ([]Recommendation, *Cursor, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// RecommendationInput is the caller-supplied part of a manually managed recommendation.
type RecommendationInput struct {
	ActivityID   string
	ActivityType string
	Text         string
	Improvements []string
	Suggestions  []string
	Safety       []string
}

// RecommendationService records pipeline output and serves the read side.
type RecommendationService struct {
	store  RecommendationStore
	dedupe bool
	now    func() time.Time
}

// NewRecommendationService constructs a RecommendationService. With dedupe set, each activity keeps
// a single recommendation that is replaced on reprocessing; otherwise every processed event appends one.
func NewRecommendationService(store RecommendationStore, dedupe bool) *RecommendationService {
	return &RecommendationService{
		store:  store,
		dedupe: dedupe,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record builds a recommendation from extracted fields and the activity snapshot carried by evt.
func (s *RecommendationService) Record(ctx context.Context, evt events.ActivityEvent, fields extract.Fields) (Recommendation, error) {
	now := s.now()
	rec := Recommendation{
		ID:           uuid.NewString(),
		ActivityID:   evt.ActivityID,
		UserID:       evt.UserID,
		ActivityType: string(evt.ActivityType),
		Text:         strings.TrimSpace(fields.Analysis),
		Improvements: cleanList(fields.Improvements),
		Suggestions:  cleanList(fields.Suggestions),
		Safety:       cleanList(fields.Safety),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var err error
	if s.dedupe {
		rec, err = s.store.UpsertByActivity(ctx, rec)
	} else {
		err = s.store.Create(ctx, rec)
	}
	if err != nil {
		return Recommendation{}, fmt.Errorf("store recommendation for activity %s: %w", evt.ActivityID, err)
	}
	return rec, nil
}

// Get returns a recommendation owned by userID.
func (s *RecommendationService) Get(ctx context.Context, userID, id string) (*Recommendation, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UserID != userID {
		return nil, ErrRecommendationNotFound
	}
	return rec, nil
}

// ListForUser pages through the caller's recommendations, newest first.
func (s *RecommendationService) ListForUser(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Recommendation, *Cursor, error) {
	return s.store.ListByUser(ctx, userID, cursor, limit)
}

// ListForActivity pages through the caller's recommendations for one activity.
func (s *RecommendationService) ListForActivity(ctx context.Context, userID, activityID string, cursor *Cursor, limit int) ([]Recommendation, *Cursor, error) {
	return s.store.ListByActivity(ctx, userID, activityID, cursor, limit)
}

// Create stores a caller-supplied recommendation owned by userID.
func (s *RecommendationService) Create(ctx context.Context, userID string, in RecommendationInput) (Recommendation, error) {
	if strings.TrimSpace(in.ActivityID) == "" {
		return Recommendation{}, fmt.Errorf("%w: activity id is required", ErrInvalidRecommendation)
	}
	now := s.now()
	rec := Recommendation{
		ID:           uuid.NewString(),
		ActivityID:   strings.TrimSpace(in.ActivityID),
		UserID:       userID,
		ActivityType: in.ActivityType,
		Text:         strings.TrimSpace(in.Text),
		Improvements: cleanList(in.Improvements),
		Suggestions:  cleanList(in.Suggestions),
		Safety:       cleanList(in.Safety),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return Recommendation{}, fmt.Errorf("store recommendation: %w", err)
	}
	return rec, nil
}

// Update replaces the content of a recommendation owned by userID. The activity and owner are kept;
// records owned by someone else are reported as not found.
func (s *RecommendationService) Update(ctx context.Context, userID, id string, in RecommendationInput) (*Recommendation, error) {
	rec, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.ActivityType != "" {
		rec.ActivityType = in.ActivityType
	}
	rec.Text = strings.TrimSpace(in.Text)
	rec.Improvements = cleanList(in.Improvements)
	rec.Suggestions = cleanList(in.Suggestions)
	rec.Safety = cleanList(in.Safety)
	rec.UpdatedAt = s.now()
	if err := s.store.Update(ctx, *rec); err != nil {
		return nil, fmt.Errorf("update recommendation: %w", err)
	}
	return rec, nil
}

// Delete removes one recommendation owned by userID.
func (s *RecommendationService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete recommendation: %w", err)
	}
	return nil
}

// DeleteForUser removes every recommendation owned by userID.
func (s *RecommendationService) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	return s.store.DeleteByUser(ctx, userID)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if len(out) == extract.MaxListEntries {
			break
		}
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}
