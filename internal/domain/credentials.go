package domain

import "time"

// Credentials is a read-only snapshot of the token pair. The access token
// is short-lived (~15 min); the refresh token alone still counts as a
// recoverable session.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Username     string
	RememberMe   bool
	Expiry       time.Time
}

func (c Credentials) AccessValid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.Expiry)
}
