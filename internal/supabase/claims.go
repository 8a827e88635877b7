package supabase

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token fields worth reporting. Tokens are decoded
// without signature verification: the server already accepted them.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ParseClaims decodes the claims of a Supabase JWT
func ParseClaims(token string) (*Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	claims := &Claims{
		Subject: tc.Subject,
		Role:    tc.Role,
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, nil
}

// KeyRole returns the role baked into a legacy JWT API key ("anon",
// "service_role"). Opaque keys yield "".
func KeyRole(apiKey string) string {
	claims, err := ParseClaims(apiKey)
	if err != nil {
		return ""
	}
	return claims.Role
}

// Describe summarizes the session for reports
func (s *Session) Describe() string {
	if !s.Valid() {
		return "no session"
	}

	who := "unknown user"
	if s.User != nil {
		switch {
		case s.User.Email != "":
			who = s.User.Email
		case s.User.Phone != "":
			who = s.User.Phone
		case s.User.ID != "":
			who = s.User.ID
		}
	}

	claims, err := ParseClaims(s.AccessToken)
	if err != nil {
		return fmt.Sprintf("session for %s", who)
	}
	if who == "unknown user" && claims.Subject != "" {
		who = claims.Subject
	}
	if claims.ExpiresAt.IsZero() {
		return fmt.Sprintf("session for %s (role %s)", who, claims.Role)
	}
	return fmt.Sprintf("session for %s (role %s, expires %s)", who, claims.Role, claims.ExpiresAt.UTC().Format(time.RFC3339))
}
