package domain

// SignupMetrics is the JSON snapshot served by GET /metrics/signup.
type SignupMetrics struct {
	SignupsCreated    int64   `json:"signupsCreated"`
	SignupsRejected   int64   `json:"signupsRejected"`
	SignupsConflicted int64   `json:"signupsConflicted"`
	SignupsFailed     int64   `json:"signupsFailed"`
	PartialSignups    int64   `json:"partialSignups"`
	OrphansReconciled int64   `json:"orphansReconciled"`
	OrphansDeleted    int64   `json:"orphansDeleted"`
	TokenCacheHitRate float64 `json:"tokenCacheHitRate"`
	ConflictRate      float64 `json:"conflictRate"`
	Period            string  `json:"period"`
}
