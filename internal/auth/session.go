package auth

import "errors"

// ErrNotAuthenticated is returned when an action requires a resolved user
// identity and none is present or the presented token is invalid.
var ErrNotAuthenticated = errors.New("not authenticated")

// Session is the resolved identity tuple from the identity provider. It is
// passed explicitly into every service call; there is no ambient current
// user.
type Session struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Valid reports whether the session carries a resolved identity.
func (s Session) Valid() bool {
	return s.UID != ""
}
