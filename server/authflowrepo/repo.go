package authflowrepo

import "time"

// AuthFlowState tracks one authorization request waiting for its redirect.
type AuthFlowState struct {
	State     string
	AuthURL   string
	CreatedAt time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error
	// Expire removes states created before cutoff and reports how many.
	Expire(cutoff time.Time) int
}
