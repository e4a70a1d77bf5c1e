package splito

import (
	"context"
	"strings"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

// User is the authenticated backend user.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Image string `json:"image,omitempty"`
}

// Me returns the user owning the session in ctx.
func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	if err := c.get(ctx, "/users/me", nil, &user); err != nil {
		return User{}, err
	}
	if user.ID == "" {
		return User{}, apperr.New(apperr.CodeUnauthenticated, "session has no user")
	}
	return user, nil
}

// ListFriends returns friends with balances aggregated across shared groups.
func (c *Client) ListFriends(ctx context.Context) ([]balance.Friend, error) {
	var friends []balance.Friend
	if err := c.get(ctx, "/users/friends", nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// InviteFriend sends a friend invitation by email.
func (c *Client) InviteFriend(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperr.New(apperr.CodeInvalidRequest, "email is required")
	}
	return c.post(ctx, "/users/friends/invite", map[string]string{"email": email}, nil)
}
