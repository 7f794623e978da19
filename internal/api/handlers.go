// Package api exposes HTTP handlers for activities and their recommendations.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"example.com/recommendation/internal/auth"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/persistence"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	activities      *domain.ActivityService
	recommendations *domain.RecommendationService
	logger          *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(activities *domain.ActivityService, recommendations *domain.RecommendationService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{activities: activities, recommendations: recommendations, logger: logger}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)

	r.Route("/v1/activities", func(r chi.Router) {
		r.Post("/", h.createActivity)
		r.Get("/", h.listActivities)
		r.Get("/{id}", h.getActivity)
		r.Put("/{id}", h.updateActivity)
		r.Delete("/{id}", h.deleteActivity)
	})

	r.Route("/v1/recommendations", func(r chi.Router) {
		r.Post("/", h.createRecommendation)
		r.Get("/", h.listRecommendations)
		r.Delete("/", h.deleteRecommendations)
		r.Get("/{id}", h.getRecommendation)
		r.Put("/{id}", h.updateRecommendation)
		r.Delete("/{id}", h.deleteRecommendation)
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize returns the caller's claims when they hold one of scopes; otherwise it writes the error response.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasAnyScope(scopes...) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.activities.CreateActivity(r.Context(), claims.Subject, req.input())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req ActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.activities.UpdateActivity(r.Context(), claims.Subject, chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	if err := h.activities.DeleteActivity(r.Context(), claims.Subject, chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	activity, err := h.activities.GetActivity(r.Context(), claims.Subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	cursor, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	activities, next, err := h.activities.ListActivities(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) listRecommendations(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeRecommendationsRead)
	if !ok {
		return
	}
	cursor, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	var (
		recs []domain.Recommendation
		next *domain.Cursor
		err  error
	)
	if activityID := strings.TrimSpace(r.URL.Query().Get("activity_id")); activityID != "" {
		recs, next, err = h.recommendations.ListForActivity(r.Context(), claims.Subject, activityID, cursor, limit)
	} else {
		recs, next, err = h.recommendations.ListForUser(r.Context(), claims.Subject, cursor, limit)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]RecommendationView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toRecommendationView(rec))
	}
	writeJSON(w, http.StatusOK, ListRecommendationsResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) getRecommendation(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeRecommendationsRead)
	if !ok {
		return
	}
	rec, err := h.recommendations.Get(r.Context(), claims.Subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationView(*rec))
}

func (h *Handler) createRecommendation(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeRecommendationsWrite)
	if !ok {
		return
	}

	var req RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	rec, err := h.recommendations.Create(r.Context(), claims.Subject, req.input())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecommendationView(rec))
}

func (h *Handler) updateRecommendation(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeRecommendationsWrite)
	if !ok {
		return
	}

	var req RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	rec, err := h.recommendations.Update(r.Context(), claims.Subject, chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationView(*rec))
}

func (h *Handler) deleteRecommendation(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeRecommendationsWrite)
	if !ok {
		return
	}
	if err := h.recommendations.Delete(r.Context(), claims.Subject, chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRecommendations(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeRecommendationsWrite)
	if !ok {
		return
	}
	deleted, err := h.recommendations.DeleteForUser(r.Context(), claims.Subject)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteRecommendationsResponse{Deleted: deleted})
}

func pageParams(w http.ResponseWriter, r *http.Request) (*domain.Cursor, int, bool) {
	limit := persistence.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return nil, 0, false
		}
		limit = persistence.ClampLimit(parsed)
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return nil, 0, false
	}
	return cursor, limit, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidActivity), errors.Is(err, domain.ErrInvalidRecommendation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrRecommendationNotFound):
		writeError(w, http.StatusNotFound, "not_found", "recommendation not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrPublish):
		h.logger.Error("activity stored but event not published", "error", err)
		writeError(w, http.StatusBadGateway, "publish_failed", err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// ActivityRequest is the payload for creating or replacing an activity.
type ActivityRequest struct {
	ActivityType      string                 `json:"activity_type"`
	DurationMin       int                    `json:"duration_min"`
	CaloriesBurned    int                    `json:"calories_burned"`
	StartedAt         time.Time              `json:"started_at"`
	AdditionalMetrics map[string]interface{} `json:"additional_metrics,omitempty"`
}

func (r ActivityRequest) input() domain.ActivityInput {
	return domain.ActivityInput{
		Type:              r.ActivityType,
		DurationMin:       r.DurationMin,
		CaloriesBurned:    r.CaloriesBurned,
		StartedAt:         r.StartedAt,
		AdditionalMetrics: r.AdditionalMetrics,
	}
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID        string                 `json:"activity_id"`
	UserID            string                 `json:"user_id"`
	ActivityType      string                 `json:"activity_type"`
	DurationMin       int                    `json:"duration_min"`
	CaloriesBurned    int                    `json:"calories_burned"`
	StartedAt         time.Time              `json:"started_at"`
	AdditionalMetrics map[string]interface{} `json:"additional_metrics"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// RecommendationRequest is the payload for creating or editing a recommendation.
// activity_id is ignored on update.
type RecommendationRequest struct {
	ActivityID     string   `json:"activity_id"`
	ActivityType   string   `json:"activity_type"`
	Recommendation string   `json:"recommendation"`
	Improvements   []string `json:"improvements"`
	Suggestions    []string `json:"suggestions"`
	Safety         []string `json:"safety"`
}

func (r RecommendationRequest) input() domain.RecommendationInput {
	return domain.RecommendationInput{
		ActivityID:   r.ActivityID,
		ActivityType: r.ActivityType,
		Text:         r.Recommendation,
		Improvements: r.Improvements,
		Suggestions:  r.Suggestions,
		Safety:       r.Safety,
	}
}

// RecommendationView exposes a stored recommendation. Lists are always arrays.
type RecommendationView struct {
	RecommendationID string    `json:"recommendation_id"`
	ActivityID       string    `json:"activity_id"`
	UserID           string    `json:"user_id"`
	ActivityType     string    `json:"activity_type"`
	Recommendation   string    `json:"recommendation"`
	Improvements     []string  `json:"improvements"`
	Suggestions      []string  `json:"suggestions"`
	Safety           []string  `json:"safety"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListRecommendationsResponse packages list results.
type ListRecommendationsResponse struct {
	Items      []RecommendationView `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// DeleteRecommendationsResponse reports how many records were removed.
type DeleteRecommendationsResponse struct {
	Deleted int64 `json:"deleted"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func toActivityView(a domain.Activity) ActivityView {
	metrics := a.AdditionalMetrics
	if metrics == nil {
		metrics = map[string]interface{}{}
	}
	return ActivityView{
		ActivityID:        a.ID,
		UserID:            a.UserID,
		ActivityType:      string(a.Type),
		DurationMin:       a.DurationMin,
		CaloriesBurned:    a.CaloriesBurned,
		StartedAt:         a.StartedAt,
		AdditionalMetrics: metrics,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toRecommendationView(rec domain.Recommendation) RecommendationView {
	return RecommendationView{
		RecommendationID: rec.ID,
		ActivityID:       rec.ActivityID,
		UserID:           rec.UserID,
		ActivityType:     rec.ActivityType,
		Recommendation:   rec.Text,
		Improvements:     nonNil(rec.Improvements),
		Suggestions:      nonNil(rec.Suggestions),
		Safety:           nonNil(rec.Safety),
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
