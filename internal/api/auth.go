package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/eocert/console/types"
)

// LoginRequest carries sign-in credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest carries a new account application.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// MessageResponse is the generic acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a bearer token and profile.
func (c *Client) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	var resp AuthResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: req}, &resp)
	if err != nil {
		return AuthResponse{}, err
	}
	return resp, nil
}

// Register submits an account application. New accounts wait for admin
// approval, so no token is returned to the caller.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	var resp MessageResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: req}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Profile validates the current token and returns its owner.
func (c *Client) Profile(ctx context.Context) (types.User, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{method: http.MethodGet, path: "/user/profile", auth: true}, &raw)
	if err != nil {
		return types.User{}, err
	}
	return decodeProfile(raw)
}

// decodeProfile accepts either a bare user object or one wrapped in "user".
func decodeProfile(raw json.RawMessage) (types.User, error) {
	var wrapped struct {
		User *types.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return *wrapped.User, nil
	}
	var user types.User
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&user); err != nil {
		return types.User{}, err
	}
	return user, nil
}
