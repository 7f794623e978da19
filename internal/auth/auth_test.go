package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "i5e.identity"}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "user-1",
		"iss":    "i5e.identity",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{ScopeActivitiesWrite, ScopeRecommendationsRead},
	}
}

func TestParseValidToken(t *testing.T) {
	claims, err := Parse(signToken(t, validClaims(), testConfig.Secret), testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeActivitiesWrite))
	require.True(t, claims.HasAnyScope(ScopeActivitiesRead, ScopeRecommendationsRead))
	require.False(t, claims.HasScope(ScopeRecommendationsWrite))
}

func TestParseAcceptsSpaceSeparatedScope(t *testing.T) {
	c := validClaims()
	delete(c, "scopes")
	c["scope"] = "recommendations:read  recommendations:write"

	claims, err := Parse(signToken(t, c, testConfig.Secret), testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeRecommendationsWrite))
	require.Len(t, claims.Scopes, 2)
}

func TestParseRejects(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"
	noSubject := validClaims()
	delete(noSubject, "sub")
	noExpiry := validClaims()
	delete(noExpiry, "exp")

	cases := map[string]string{
		"bad signature": signToken(t, validClaims(), "other-secret"),
		"expired":       signToken(t, expired, testConfig.Secret),
		"wrong issuer":  signToken(t, wrongIssuer, testConfig.Secret),
		"no subject":    signToken(t, noSubject, testConfig.Secret),
		"no expiry":     signToken(t, noExpiry, testConfig.Secret),
		"garbage":       "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	handler := NewMiddleware(testConfig).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, seen)

	req = httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"type":"unauthorized","detail":"missing bearer token"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/recommendations", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims(), testConfig.Secret))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.Subject)
}
