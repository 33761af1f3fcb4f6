package types

// Role values assigned by the backend.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account status values. New registrations start as pending until an
// administrator approves or denies them.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

// User represents an account as returned by the backend.
// The console never holds authoritative user state; it only mirrors what
// the last profile or admin listing returned.
type User struct {
	// ID is the backend identifier of the account.
	ID ID `json:"id"`

	// Username is the display name chosen at registration.
	Username string `json:"username"`

	// Email is the login identifier.
	Email string `json:"email,omitempty"`

	// Role is either "user" or "admin".
	Role string `json:"role"`

	// Status is one of "pending", "approved" or "denied".
	Status string `json:"status,omitempty"`
}

// IsAdmin reports whether the account carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is the client-side authentication state: the bearer token and
// the last known profile of its owner.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}
