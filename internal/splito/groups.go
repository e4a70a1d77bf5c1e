package splito

import (
	"context"
	"net/url"
	"time"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/balance"
)

// Group is a shared expense context.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListGroups returns the groups the caller belongs to.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.get(ctx, "/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetGroup fetches one group.
func (c *Client) GetGroup(ctx context.Context, groupID string) (Group, error) {
	var group Group
	if err := c.get(ctx, "/groups/"+url.PathEscape(groupID), nil, &group); err != nil {
		return Group{}, err
	}
	return group, nil
}

// GroupBalances returns the raw balance rows of a group.
func (c *Client) GroupBalances(ctx context.Context, groupID string) ([]balance.GroupBalance, error) {
	var rows []balance.GroupBalance
	if err := c.get(ctx, "/groups/"+url.PathEscape(groupID)+"/balances", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
