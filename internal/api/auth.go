package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/protomem/chatik/internal/apperr"
	"github.com/protomem/chatik/internal/models"
)

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and register. Older servers send the
// token as "token" instead of "accessToken"; both are accepted.
type AuthResponse struct {
	AccessToken string      `json:"accessToken"`
	Token       string      `json:"token,omitempty"`
	User        models.User `json:"user"`
}

// Session converts the response into a client session.
func (r *AuthResponse) Session() models.Session {
	token := r.AccessToken
	if token == "" {
		token = r.Token
	}
	user := r.User
	return models.Session{Token: token, User: &user}
}

// Login exchanges credentials for an access token. Bad credentials fail
// with apperr.ErrAuth; callers must not retry automatically.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperr.InvalidArg("email and password are required")
	}

	var resp AuthResponse
	err := c.do(ctx, request{
		op:     "auth.login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   LoginRequest{Email: email, Password: password},
		auth:   true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.checkAuth("auth.login", &resp)
}

// Register creates an account and returns its access token.
func (c *Client) Register(ctx context.Context, nickname, email, password string) (*AuthResponse, error) {
	nickname = strings.TrimSpace(nickname)
	email = strings.TrimSpace(email)
	if nickname == "" || email == "" || password == "" {
		return nil, apperr.InvalidArg("nickname, email and password are required")
	}

	var resp AuthResponse
	err := c.do(ctx, request{
		op:     "auth.register",
		method: http.MethodPost,
		path:   "/auth/register",
		body:   RegisterRequest{Nickname: nickname, Email: email, Password: password},
		auth:   true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.checkAuth("auth.register", &resp)
}

func (c *Client) checkAuth(op string, resp *AuthResponse) (*AuthResponse, error) {
	if resp.Session().Token == "" {
		return nil, apperr.New(apperr.CodeServer, op+": response carries no access token")
	}
	// A new identity must never see results cached for the previous one.
	c.InvalidateCache()
	return resp, nil
}
