package authflow

import "time"

// AuthFlowState is what the server remembers between redirecting a visitor to
// an OAuth provider and receiving the callback.
type AuthFlowState struct {
	VisitorID    string
	Provider     string
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, flow *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error

	// Take returns the flow and removes it, so a state value can only be used once.
	Take(state string) (*AuthFlowState, error)
}
