package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robert-malhotra/go-rapi-client/pkg/naming"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

// ResultForm selects the shape returned by Session.Results.
type ResultForm string

const (
	// FormRaw returns the records as the service sent them.
	FormRaw ResultForm = "raw"
	// FormBrief returns the records flattened without further requests.
	FormBrief ResultForm = "brief"
	// FormFull fetches each record's complete metadata, then flattens it
	// and adds the WKT geometry.
	FormFull ResultForm = "full"
	// FormGeoJSON returns a FeatureCollection of the complete records.
	FormGeoJSON ResultForm = "geojson"
)

// ParseResultForm maps a user supplied name to a ResultForm. The empty
// string is FormRaw.
func ParseResultForm(s string) (ResultForm, error) {
	switch f := ResultForm(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormRaw:
		return FormRaw, nil
	case FormBrief, FormFull, FormGeoJSON:
		return f, nil
	}
	return "", fmt.Errorf("rapi: unknown result form %q", s)
}

// Session accumulates the records of successive searches until Clear.
type Session struct {
	client *Client
	conv   naming.Convention

	mu      sync.Mutex
	records []*rapi.Record
	lastURL string
	full    []*rapi.Record
	gen     uint64 // bumped whenever records change
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithNaming sets the key convention of flattened results.
func WithNaming(conv naming.Convention) SessionOption {
	return func(s *Session) { s.conv = conv }
}

// NewSession returns an empty session backed by c.
func NewSession(c *Client, opts ...SessionOption) *Session {
	s := &Session{client: c, conv: naming.Camel}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search runs p and appends its records to the session. It returns the
// number of records added. Records of a failed search that were received
// before the failure are kept.
func (s *Session) Search(ctx context.Context, p SearchParams) (int, error) {
	res, err := s.client.Search(ctx, p)
	if res == nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastURL = res.URL
	s.records = append(s.records, res.Records...)
	s.full = nil
	s.gen++
	return len(res.Records), err
}

// Records returns the accumulated records.
func (s *Session) Records() []*rapi.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*rapi.Record(nil), s.records...)
}

// Results returns the accumulated records in the requested form:
// []*rapi.Record for FormRaw, []*rapi.Metadata for FormBrief and FormFull,
// *geojson.FeatureCollection for FormGeoJSON. The complete metadata fetched
// for FormFull and FormGeoJSON is reused until the next search.
func (s *Session) Results(ctx context.Context, form ResultForm) (any, error) {
	s.mu.Lock()
	records := append([]*rapi.Record(nil), s.records...)
	full, gen := s.full, s.gen
	s.mu.Unlock()

	switch form {
	case "", FormRaw:
		return records, nil
	case FormBrief:
		return FlattenRecords(records, s.conv), nil
	case FormFull, FormGeoJSON:
		if full == nil {
			var err error
			if full, err = s.client.EnrichRecords(ctx, records); err != nil {
				return nil, err
			}
			s.mu.Lock()
			if s.gen == gen {
				s.full = full
			}
			s.mu.Unlock()
		}
		if form == FormFull {
			return flattenWithWKT(s.client.logger, full, s.conv), nil
		}
		return FeatureCollection(full, s.conv), nil
	}
	return nil, fmt.Errorf("rapi: unknown result form %q", form)
}

// Clear drops the accumulated records.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.full = nil
	s.lastURL = ""
	s.gen++
}

// LastURL returns the first-page URL of the latest search.
func (s *Session) LastURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURL
}
