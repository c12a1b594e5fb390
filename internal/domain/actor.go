package domain

// Actor is the authenticated caller as asserted by the identity provider.
// Whether the role is privileged is decided by the authorization guard.
type Actor struct {
	ID   string
	Role string
}
