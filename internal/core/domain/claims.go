package domain

import "time"

// Claims is the signed payload carried by a bearer token.
type Claims struct {
	Subject   string    `json:"sub"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// ExpiredAt reports whether the claims are past expiry at now. Comparison is
// done on whole Unix seconds, matching the token encoding.
func (c Claims) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt.Unix() < now.Unix()
}
