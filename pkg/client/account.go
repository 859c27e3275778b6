package client

import (
	"context"
	"net/http"
)

// GetUserMetadata returns the account metadata of the authenticated user.
func (c *Client) GetUserMetadata(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON(ctx, c.endpoint("metadata", jsonFormat), c.queryTimeout, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Close ends the server-side session by calling the logout page next to
// the RAPI root. The response body is ignored.
func (c *Client) Close(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, c.endpoint("../logout.jsp", nil), nil, c.queryTimeout)
	return err
}

