package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

func (c *Client) destinationURL(d *rapi.Destination) string {
	return c.endpoint("order/destinations/"+url.PathEscape(string(d.Type))+"/"+url.PathEscape(d.Name), nil)
}

// ListDestinations returns the user's order destinations. When collection
// and recordID are both set only the destinations valid for that record
// are returned.
func (c *Client) ListDestinations(ctx context.Context, collection string, recordID rapi.ID) ([]rapi.Destination, error) {
	q := url.Values{}
	if collection != "" && recordID != "" {
		id, err := c.CollectionID(ctx, collection)
		if err != nil {
			return nil, err
		}
		q.Set("collection", id)
		q.Set("recordId", string(recordID))
	}
	rawURL := c.endpoint("order/destinations", q)

	data, err := c.do(ctx, http.MethodGet, rawURL, nil, c.queryTimeout)
	if err != nil {
		return nil, err
	}
	var list []rapi.Destination
	if json.Unmarshal(data, &list) == nil {
		return list, nil
	}
	var wrapped struct {
		Items []rapi.Destination `json:"items"`
	}
	if err := decodeJSON(data, rawURL, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Items, nil
}

// CreateDestination validates and creates a destination.
func (c *Client) CreateDestination(ctx context.Context, d rapi.Destination) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPost, c.endpoint("order/destinations", nil), d, c.queryTimeout); err != nil {
		return err
	}
	c.logger.Info("destination created", zap.String("type", string(d.Type)), zap.String("name", d.Name))
	return nil
}

// UpdateDestination replaces the destination with the same type and name.
func (c *Client) UpdateDestination(ctx context.Context, d rapi.Destination) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPut, c.destinationURL(&d), d, c.queryTimeout); err != nil {
		return err
	}
	c.logger.Info("destination updated", zap.String("type", string(d.Type)), zap.String("name", d.Name))
	return nil
}

// DeleteDestination removes a destination.
func (c *Client) DeleteDestination(ctx context.Context, typ rapi.DestinationType, name string) error {
	d := rapi.Destination{Type: typ, Name: name}
	if name == "" {
		return rapi.ErrDestinationName
	}
	if _, err := c.do(ctx, http.MethodDelete, c.destinationURL(&d), nil, c.queryTimeout); err != nil {
		return err
	}
	c.logger.Info("destination deleted", zap.String("type", string(typ)), zap.String("name", name))
	return nil
}
