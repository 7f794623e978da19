package auth

// Scopes checked by the HTTP handlers.
const (
	ScopeActivitiesWrite      = "activities:write"
	ScopeActivitiesRead       = "activities:read"
	ScopeRecommendationsRead  = "recommendations:read"
	ScopeRecommendationsWrite = "recommendations:write"
)
