package api

import (
	"context"
	"net/http"

	"github.com/eocert/console/types"
)

type usersResponse struct {
	Users []types.User `json:"users"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// ListUsers returns every account, unpaginated.
func (c *Client) ListUsers(ctx context.Context) ([]types.User, error) {
	var resp usersResponse
	err := c.do(ctx, request{method: http.MethodGet, path: "/admin/users", auth: true}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// UpdateUserStatus approves or denies an account.
func (c *Client) UpdateUserStatus(ctx context.Context, id, status string) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/admin/users/" + pathID(id) + "/status",
		body:   statusRequest{Status: status},
		auth:   true,
	}, nil)
}

// DeleteUser removes an account.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/admin/users/" + pathID(id), auth: true}, nil)
}
