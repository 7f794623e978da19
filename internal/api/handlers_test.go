package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"example.com/recommendation/internal/auth"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/events"
	"example.com/recommendation/internal/extract"
	"example.com/recommendation/internal/persistence/memory"
)

type stubPublisher struct {
	err    error
	events []events.ActivityEvent
}

func (p *stubPublisher) Publish(_ context.Context, evt events.ActivityEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

type fixture struct {
	router    *chi.Mux
	publisher *stubPublisher
	recs      *domain.RecommendationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	publisher := &stubPublisher{}
	activities := domain.NewActivityService(memory.NewActivityRepository(), publisher)
	recs := domain.NewRecommendationService(memory.NewRecommendationStore(), false)

	router := chi.NewRouter()
	NewHandler(activities, recs, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterRoutes(router)
	return &fixture{router: router, publisher: publisher, recs: recs}
}

func (f *fixture) do(t *testing.T, method, path, user string, body interface{}, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		claims := &auth.Claims{Subject: user, Scopes: map[string]struct{}{}, ExpiresAt: time.Now().Add(time.Hour)}
		for _, s := range scopes {
			claims.Scopes[s] = struct{}{}
		}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func runRequest() ActivityRequest {
	return ActivityRequest{
		ActivityType:   "RUNNING",
		DurationMin:    30,
		CaloriesBurned: 250,
		StartedAt:      time.Date(2025, time.March, 3, 7, 0, 0, 0, time.UTC),
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestActivityLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/activities", "user-1", runRequest(), auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ActivityView](t, rec)
	require.Equal(t, "RUNNING", created.ActivityType)
	require.Equal(t, "user-1", created.UserID)
	require.NotNil(t, created.AdditionalMetrics)

	rec = f.do(t, http.MethodGet, "/v1/activities/"+created.ActivityID, "user-1", nil, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusOK, rec.Code)

	update := runRequest()
	update.DurationMin = 45
	rec = f.do(t, http.MethodPut, "/v1/activities/"+created.ActivityID, "user-1", update, auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 45, decode[ActivityView](t, rec).DurationMin)

	rec = f.do(t, http.MethodGet, "/v1/activities", "user-1", nil, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListActivitiesResponse](t, rec)
	require.Len(t, list.Items, 1)
	require.Empty(t, list.NextCursor)

	rec = f.do(t, http.MethodDelete, "/v1/activities/"+created.ActivityID, "user-1", nil, auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/activities/"+created.ActivityID, "user-1", nil, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Len(t, f.publisher.events, 3)
	require.Equal(t, events.KindCreate, f.publisher.events[0].Kind)
	require.Equal(t, events.KindUpdate, f.publisher.events[1].Kind)
	require.Equal(t, events.KindDelete, f.publisher.events[2].Kind)
	require.Equal(t, created.ActivityID, f.publisher.events[2].TargetActivityID)
}

func TestCreateActivityErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/activities", "", runRequest())
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/activities", "user-1", runRequest(), auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusForbidden, rec.Code)

	bad := runRequest()
	bad.DurationMin = 0
	rec = f.do(t, http.MethodPost, "/v1/activities", "user-1", bad, auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_failed", decode[map[string]string](t, rec)["type"])

	f.publisher.err = errors.New("broker down")
	rec = f.do(t, http.MethodPost, "/v1/activities", "user-1", runRequest(), auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "publish_failed", decode[map[string]string](t, rec)["type"])
}

func TestActivityOwnership(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/activities", "owner", runRequest(), auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[ActivityView](t, rec).ActivityID

	rec = f.do(t, http.MethodGet, "/v1/activities/"+id, "intruder", nil, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/activities/"+id, "intruder", nil, auth.ScopeActivitiesWrite)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Len(t, f.publisher.events, 1)
}

func TestListActivitiesPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		req := runRequest()
		req.StartedAt = req.StartedAt.Add(time.Duration(i) * time.Hour)
		rec := f.do(t, http.MethodPost, "/v1/activities", "user-1", req, auth.ScopeActivitiesWrite)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/v1/activities?limit=2", "user-1", nil, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[ListActivitiesResponse](t, rec)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)
	require.True(t, first.Items[0].StartedAt.After(first.Items[1].StartedAt))

	rec = f.do(t, http.MethodGet, "/v1/activities?limit=2&cursor="+first.NextCursor, "user-1", nil, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[ListActivitiesResponse](t, rec)
	require.Len(t, second.Items, 1)
	require.Empty(t, second.NextCursor)

	rec = f.do(t, http.MethodGet, "/v1/activities?limit=abc", "user-1", nil, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/activities?cursor=%21%21", "user-1", nil, auth.ScopeActivitiesRead)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecommendationEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	evt := events.ActivityEvent{
		Kind:           events.KindCreate,
		ActivityID:     "act-1",
		UserID:         "user-1",
		ActivityType:   events.ActivityRunning,
		DurationMin:    30,
		CaloriesBurned: 250,
	}
	stored, err := f.recs.Record(ctx, evt, extract.Fields{Analysis: "Overall: fine", Safety: []string{"Hydrate"}})
	require.NoError(t, err)
	other := evt
	other.ActivityID = "act-2"
	other.UserID = "user-2"
	_, err = f.recs.Record(ctx, other, extract.Fields{Analysis: "Overall: other"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/v1/recommendations", "user-1", nil, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListRecommendationsResponse](t, rec)
	require.Len(t, list.Items, 1)
	require.Equal(t, "Overall: fine", list.Items[0].Recommendation)
	require.NotNil(t, list.Items[0].Improvements)
	require.Equal(t, []string{"Hydrate"}, list.Items[0].Safety)

	rec = f.do(t, http.MethodGet, "/v1/recommendations?activity_id=act-2", "user-1", nil, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[ListRecommendationsResponse](t, rec).Items)

	rec = f.do(t, http.MethodGet, "/v1/recommendations/"+stored.ID, "user-1", nil, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "act-1", decode[RecommendationView](t, rec).ActivityID)

	rec = f.do(t, http.MethodGet, "/v1/recommendations/"+stored.ID, "user-2", nil, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/recommendations", "user-1", nil, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/recommendations", "user-1", nil, auth.ScopeRecommendationsWrite)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, int64(1), decode[DeleteRecommendationsResponse](t, rec).Deleted)

	rec = f.do(t, http.MethodGet, "/v1/recommendations", "user-2", nil, auth.ScopeRecommendationsRead)
	require.Len(t, decode[ListRecommendationsResponse](t, rec).Items, 1)
}

func TestRecommendationManagement(t *testing.T) {
	f := newFixture(t)
	body := RecommendationRequest{
		ActivityID:     "act-1",
		ActivityType:   "RUNNING",
		Recommendation: "Overall: steady",
		Safety:         []string{"Hydrate", " "},
	}

	rec := f.do(t, http.MethodPost, "/v1/recommendations", "user-1", body, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/recommendations", "user-1", RecommendationRequest{Recommendation: "x"}, auth.ScopeRecommendationsWrite)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation_failed", decode[map[string]string](t, rec)["type"])

	rec = f.do(t, http.MethodPost, "/v1/recommendations", "user-1", body, auth.ScopeRecommendationsWrite)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[RecommendationView](t, rec)
	require.Equal(t, "user-1", created.UserID)
	require.Equal(t, []string{"Hydrate"}, created.Safety)
	require.Equal(t, []string{}, created.Improvements)

	edit := RecommendationRequest{Recommendation: "Overall: edited", Improvements: []string{"Cadence: quicker steps"}}
	rec = f.do(t, http.MethodPut, "/v1/recommendations/"+created.RecommendationID, "user-2", edit, auth.ScopeRecommendationsWrite)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/v1/recommendations/"+created.RecommendationID, "user-1", edit, auth.ScopeRecommendationsWrite)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[RecommendationView](t, rec)
	require.Equal(t, created.RecommendationID, updated.RecommendationID)
	require.Equal(t, "act-1", updated.ActivityID)
	require.Equal(t, "RUNNING", updated.ActivityType)
	require.Equal(t, "Overall: edited", updated.Recommendation)
	require.Equal(t, []string{"Cadence: quicker steps"}, updated.Improvements)

	rec = f.do(t, http.MethodGet, "/v1/recommendations/"+created.RecommendationID, "user-1", nil, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Overall: edited", decode[RecommendationView](t, rec).Recommendation)

	rec = f.do(t, http.MethodDelete, "/v1/recommendations/"+created.RecommendationID, "user-2", nil, auth.ScopeRecommendationsWrite)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/recommendations/"+created.RecommendationID, "user-1", nil, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/recommendations/"+created.RecommendationID, "user-1", nil, auth.ScopeRecommendationsWrite)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/recommendations/"+created.RecommendationID, "user-1", nil, auth.ScopeRecommendationsRead)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/v1/recommendations/missing", "user-1", edit, auth.ScopeRecommendationsWrite)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
