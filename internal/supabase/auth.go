package supabase

import (
	"context"
	"net/http"
	"net/url"
)

const authPrefix = "/auth/v1"

// User is the GoTrue user attached to a session
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// Session is the token response of a successful sign-in
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// Valid reports whether the session carries an access token
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != ""
}

type passwordGrant struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

// SignInWithEmail performs a password login with an email address
func (c *Client) SignInWithEmail(ctx context.Context, email, password string) (*Session, error) {
	return c.signInWithPassword(ctx, "auth.sign_in_email", passwordGrant{Email: email, Password: password})
}

// SignInWithPhone performs a password login with a phone number
func (c *Client) SignInWithPhone(ctx context.Context, phone, password string) (*Session, error) {
	return c.signInWithPassword(ctx, "auth.sign_in_phone", passwordGrant{Phone: phone, Password: password})
}

func (c *Client) signInWithPassword(ctx context.Context, op string, grant passwordGrant) (*Session, error) {
	query := url.Values{}
	query.Set("grant_type", "password")

	var session Session
	err := c.doJSON(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   authPrefix + "/token",
		query:  query,
		body:   grant,
		token:  c.apiKey,
	}, &session)
	if err != nil {
		return nil, err
	}

	if session.Valid() {
		c.setSession(&session)
	}
	return &session, nil
}

// SignInAnonymously creates a session without credentials. Projects with
// anonymous sign-ins disabled answer 422.
func (c *Client) SignInAnonymously(ctx context.Context) (*Session, error) {
	var session Session
	err := c.doJSON(ctx, request{
		op:     "auth.sign_in_anonymous",
		method: http.MethodPost,
		path:   authPrefix + "/signup",
		body:   map[string]interface{}{"data": map[string]interface{}{}},
		token:  c.apiKey,
	}, &session)
	if err != nil {
		return nil, err
	}

	if session.Valid() {
		c.setSession(&session)
	}
	return &session, nil
}

// SignOut revokes the current session. The local session is dropped even
// when the server call fails; without a session no request is made.
func (c *Client) SignOut(ctx context.Context) error {
	session := c.Session()
	if !session.Valid() {
		c.setSession(nil)
		return nil
	}
	c.setSession(nil)

	return c.doJSON(ctx, request{
		op:     "auth.sign_out",
		method: http.MethodPost,
		path:   authPrefix + "/logout",
		token:  session.AccessToken,
	}, nil)
}

// ResetPasswordForEmail asks GoTrue to send a password-recovery email
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.doJSON(ctx, request{
		op:     "auth.recover",
		method: http.MethodPost,
		path:   authPrefix + "/recover",
		body:   map[string]string{"email": email},
		token:  c.apiKey,
	}, nil)
}
