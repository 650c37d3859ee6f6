package session

import "fmt"

// Session identifies the signed-in user on whose behalf the daemon
// synchronizes. It is constructed once at startup and passed explicitly
// to every component that needs the current user id.
type Session struct {
	Profile string
	UserID  string
}

// New validates and builds a Session for the given profile and user.
func New(profile, userID string) (*Session, error) {
	if err := ValidateName(profile); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return &Session{Profile: profile, UserID: userID}, nil
}
