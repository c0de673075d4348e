package auth

// Outcome is the terminal state of the post-auth reconciliation machine.
type Outcome int

const (
	// OutcomeNormal continues to the originally requested destination.
	OutcomeNormal Outcome = iota
	// OutcomeDeactivated terminated the session; redirect to login with the
	// deactivation indicator.
	OutcomeDeactivated
	// OutcomeInvited accepted a pending invitation; redirect to the
	// password-setup surface with the welcome message.
	OutcomeInvited
)

// Redirect query parameters used as the user-facing message channel.
const (
	ErrAccountDeactivated = "account_deactivated"
	ErrAuthFailed         = "auth_failed"
	WelcomeMessage        = "Welcome! Please set your password to get started."
)
