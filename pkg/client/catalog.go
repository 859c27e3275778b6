package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

var jsonFormat = url.Values{"format": {"json"}}

// Collections returns the collections available to the user: the leaves of
// the /collections tree, with their aliases attached. The tree is fetched
// once and cached until RefreshCatalog.
func (c *Client) Collections(ctx context.Context) ([]*rapi.Collection, error) {
	c.catalogMu.RLock()
	cached := c.collections
	c.catalogMu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := c.group.Do("collections", func() (any, error) {
		rawURL := c.endpoint("collections", jsonFormat)
		c.logger.Info("getting collection information", zap.String("url", rawURL))

		var roots []*rapi.Collection
		if err := c.getJSON(ctx, rawURL, c.queryTimeout, &roots); err != nil {
			return nil, err
		}
		var leaves []*rapi.Collection
		for _, r := range roots {
			leaves = append(leaves, r.Leaves()...)
		}
		for _, l := range leaves {
			l.Children = nil
			if len(l.Aliases) == 0 {
				l.Aliases = rapi.CollectionAliases[l.ID]
			}
		}

		c.catalogMu.Lock()
		c.collections = leaves
		c.catalogMu.Unlock()
		return leaves, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*rapi.Collection), nil
}

// CollectionID resolves a collection id, title or alias to the collection id.
func (c *Client) CollectionID(ctx context.Context, nameOrID string) (string, error) {
	coll, err := c.lookupCollection(ctx, nameOrID)
	if err != nil {
		return "", err
	}
	return coll.ID, nil
}

func (c *Client) lookupCollection(ctx context.Context, nameOrID string) (*rapi.Collection, error) {
	colls, err := c.Collections(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(nameOrID)
	for _, coll := range colls {
		if coll.Matches(name) {
			return coll, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, nameOrID)
}

// Collection returns the collection together with its search and result
// fields. Concurrent callers share a single fetch per collection.
func (c *Client) Collection(ctx context.Context, nameOrID string) (*rapi.Collection, error) {
	leaf, err := c.lookupCollection(ctx, nameOrID)
	if err != nil {
		return nil, err
	}

	c.catalogMu.RLock()
	cached, ok := c.fields[leaf.ID]
	c.catalogMu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := c.group.Do("fields:"+leaf.ID, func() (any, error) {
		rawURL := c.endpoint("collections/"+url.PathEscape(leaf.ID), jsonFormat)
		c.logger.Debug("getting field catalog", zap.String("collection", leaf.ID), zap.String("url", rawURL))

		var coll rapi.Collection
		if err := c.getJSON(ctx, rawURL, c.queryTimeout, &coll); err != nil {
			return nil, err
		}
		if coll.ID == "" {
			coll.ID = leaf.ID
		}
		if coll.Title == "" {
			coll.Title = leaf.Title
		}
		coll.Aliases = leaf.Aliases
		coll.Children = nil

		c.catalogMu.Lock()
		c.fields[leaf.ID] = &coll
		c.catalogMu.Unlock()
		return &coll, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rapi.Collection), nil
}

// AvailableFields returns the search and result fields of a collection.
func (c *Client) AvailableFields(ctx context.Context, collection string) (search, results []*rapi.Field, err error) {
	coll, err := c.Collection(ctx, collection)
	if err != nil {
		return nil, nil, err
	}
	return coll.SearchFields, coll.ResultFields, nil
}

// FieldChoices returns the enumerated choices of a search field. A field
// without choices yields an empty slice; its DataType is still available
// from AvailableFields.
func (c *Client) FieldChoices(ctx context.Context, collection, field string) ([]rapi.Choice, error) {
	coll, err := c.Collection(ctx, collection)
	if err != nil {
		return nil, err
	}
	f, ok := coll.SearchField(field)
	if !ok {
		return nil, fmt.Errorf("%w: %q in collection %s", ErrUnknownField, field, coll.ID)
	}
	return f.Choices, nil
}

// RefreshCatalog drops the cached collection tree and field catalogs.
func (c *Client) RefreshCatalog() {
	c.catalogMu.Lock()
	c.collections = nil
	c.fields = make(map[string]*rapi.Collection)
	c.catalogMu.Unlock()
}
