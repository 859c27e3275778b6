package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-rapi-client/pkg/query"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

// SearchParams describes a search of one collection.
type SearchParams struct {
	Collection string
	Query      query.Query
	// ResultFields are result field names or ids added to resultField. The
	// footprint, spatial resolution, download link and archive id fields
	// are always requested.
	ResultFields []string
	// MaxResults caps the number of records returned. Zero means no cap.
	MaxResults int
	// FirstResult is the 0-based offset of the first record.
	FirstResult int
}

// SearchResult is the outcome of a search.
type SearchResult struct {
	Collection string
	// URL is the request URL of the first page.
	URL string
	// Query is the rendered query expression, empty when none was given.
	Query   string
	Records []*rapi.Record
	// TotalResults is the total reported by the last page.
	TotalResults int
	// Pages is the number of page requests issued, retries excluded.
	Pages int
}

type searchPage struct {
	TotalResults int            `json:"totalResults"`
	Results      []*rapi.Record `json:"results"`
}

// alwaysRequested are added to every resultField list when the collection
// has them.
var alwaysRequested = []string{"Footprint", "Spatial Resolution", "Download Link", "Archive ID"}

// Search runs a paginated search. Pages of the configured page size are
// requested at increasing offsets until the service returns a short page
// or the MaxResults cap is reached.
//
// On failure the records accumulated so far are returned alongside the
// error.
func (c *Client) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	values, res, err := c.searchValues(ctx, p)
	if err != nil {
		return nil, err
	}
	log := c.logger.With(zap.String("collection", res.Collection))
	log.Info("searching for images")

	err = c.paginate(ctx, values, p.FirstResult, p.MaxResults, res)
	log.Info("images returned from RAPI", zap.Int("count", len(res.Records)), zap.Int("pages", res.Pages))
	return res, err
}

// HitCount returns the number of records matching p without fetching them.
func (c *Client) HitCount(ctx context.Context, p SearchParams) (int, error) {
	values, _, err := c.searchValues(ctx, p)
	if err != nil {
		return 0, err
	}
	values.Set("hitCount", "true")
	rawURL := c.endpoint("search", values)

	data, err := c.do(ctx, http.MethodGet, rawURL, nil, c.queryTimeout)
	if err != nil {
		return 0, err
	}
	var page searchPage
	if err := json.Unmarshal(data, &page); err == nil {
		return page.TotalResults, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, decodeJSON(data, rawURL, &page)
	}
	return n, nil
}

// SearchURL replays a search URL built earlier, for example one returned in
// SearchResult.URL. Any maxResults and firstResult parameters in rawURL are
// replaced by the pagination driver.
func (c *Client) SearchURL(ctx context.Context, rawURL string, maxResults int) (*SearchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse search URL: %w", err)
	}
	values := u.Query()
	first, _ := strconv.Atoi(values.Get("firstResult"))
	values.Del("maxResults")
	values.Del("firstResult")
	if values.Get("format") == "" {
		values.Set("format", "json")
	}

	res := &SearchResult{
		Collection: values.Get("collection"),
		Query:      values.Get("query"),
	}
	err = c.paginate(ctx, values, first, maxResults, res)
	return res, err
}

// CheckAuth verifies the credentials against the collections endpoint. It
// clears the auth flag on success.
func (c *Client) CheckAuth(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, c.endpoint("collections", jsonFormat), nil, c.queryTimeout); err != nil {
		return err
	}
	c.authFailed.Store(false)
	return nil
}

// searchValues resolves the collection, builds the query and the result
// field list.
func (c *Client) searchValues(ctx context.Context, p SearchParams) (url.Values, *SearchResult, error) {
	coll, err := c.Collection(ctx, p.Collection)
	if err != nil {
		return nil, nil, err
	}
	res := &SearchResult{Collection: coll.ID}

	values := url.Values{}
	values.Set("collection", coll.ID)

	if !p.Query.IsZero() {
		b := query.NewBuilder(c,
			query.WithLogger(c.logger.Named("query")),
			query.WithNow(c.now))
		if res.Query, err = b.Build(ctx, coll.ID, p.Query); err != nil {
			return nil, nil, err
		}
		if res.Query != "" {
			values.Set("query", res.Query)
		}
	}

	if ids := c.resultFieldIDs(coll, p.ResultFields); len(ids) > 0 {
		values.Set("resultField", strings.Join(ids, ","))
	}
	values.Set("format", "json")
	return values, res, nil
}

func (c *Client) resultFieldIDs(coll *rapi.Collection, names []string) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, name := range names {
		f, ok := coll.ResultField(name)
		if !ok {
			c.logger.Warn("result field does not exist; excluded from resultField",
				zap.String("collection", coll.ID),
				zap.String("field", name))
			continue
		}
		add(f.ID)
	}
	for _, name := range alwaysRequested {
		if f, ok := coll.ResultField(name); ok {
			add(f.ID)
		}
	}
	return ids
}

// paginate accumulates pages into res.
func (c *Client) paginate(ctx context.Context, values url.Values, first, maxResults int, res *SearchResult) error {
	retried := false
	for {
		if maxResults > 0 && len(res.Records) >= maxResults {
			res.Records = res.Records[:maxResults]
			return nil
		}

		limit := c.pageSize
		if maxResults > 0 && maxResults-len(res.Records) < limit {
			limit = maxResults - len(res.Records)
		}
		pageValues := cloneValues(values)
		pageValues.Set("maxResults", strconv.Itoa(limit))
		if offset := first + len(res.Records); offset > 0 {
			pageValues.Set("firstResult", strconv.Itoa(offset))
		}
		rawURL := c.endpoint("search", pageValues)
		if res.URL == "" {
			res.URL = rawURL
		}

		page, err := c.searchPage(ctx, rawURL)
		if err != nil {
			if IsTransient(err) && !retried {
				retried = true
				c.logger.Warn("search page failed; retrying",
					zap.String("url", rawURL),
					zap.Duration("delay", c.searchRetryDelay),
					zap.Error(err))
				c.metrics.IncRetry("search")
				if serr := sleepCtx(ctx, c.searchRetryDelay); serr != nil {
					return &Error{Kind: KindCanceled, URL: rawURL, Err: serr}
				}
				continue
			}
			if IsAuth(err) {
				return c.confirmAuth(ctx, err)
			}
			return err
		}
		retried = false
		res.Pages++
		res.TotalResults = page.TotalResults

		if len(page.Results) == 0 {
			return nil
		}
		res.Records = append(res.Records, page.Results...)
		c.logger.Debug("search page received",
			zap.Int("page", res.Pages),
			zap.Int("count", len(page.Results)),
			zap.Int("accumulated", len(res.Records)))
		if len(page.Results) < limit {
			if maxResults > 0 && len(res.Records) > maxResults {
				res.Records = res.Records[:maxResults]
			}
			return nil
		}
	}
}

func (c *Client) searchPage(ctx context.Context, rawURL string) (*searchPage, error) {
	var page searchPage
	if err := c.getJSON(ctx, rawURL, c.queryTimeout, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// confirmAuth decides whether a 401 on a search means bad credentials. When
// the collections endpoint accepts the credentials the original error is
// returned with the auth flag cleared.
func (c *Client) confirmAuth(ctx context.Context, searchErr error) error {
	err := c.CheckAuth(ctx)
	if err == nil {
		c.logger.Warn("search rejected although credentials are valid", zap.Error(searchErr))
		return searchErr
	}
	if IsAuth(err) {
		c.logger.Error("authentication failed", zap.Error(err))
		return err
	}
	return errors.Join(searchErr, err)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
