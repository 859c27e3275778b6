package client

import (
	"context"
	"net/url"
	"strings"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/go-rapi-client/pkg/geom"
	"github.com/robert-malhotra/go-rapi-client/pkg/naming"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

// IssueField is set on a record whose full metadata could not be fetched.
const IssueField = "issue"

// WKTField is the key of the WKT rendering added to full results.
const WKTField = "WKT Geometry"

// GetRecord fetches a single record with its complete metadata.
func (c *Client) GetRecord(ctx context.Context, collection string, recordID rapi.ID) (*rapi.Record, error) {
	id, err := c.CollectionID(ctx, collection)
	if err != nil {
		return nil, err
	}
	rawURL := c.endpoint("record/"+url.PathEscape(id)+"/"+url.PathEscape(string(recordID)), jsonFormat)

	var rec rapi.Record
	if err := c.getJSON(ctx, rawURL, c.queryTimeout, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// EnrichRecords fetches the complete metadata of every record through its
// thisRecordUrl, at most WithWorkers fetches at a time. The result keeps the
// input order. A failed fetch never fails the batch: the input record is
// returned in its place with the failure under IssueField. Only
// cancellation of ctx is reported as an error.
func (c *Client) EnrichRecords(ctx context.Context, records []*rapi.Record) ([]*rapi.Record, error) {
	out := make([]*rapi.Record, len(records))
	log := c.logger.Named("enrich")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, rec := range records {
		g.Go(func() error {
			full, err := c.fetchRecord(gctx, rec)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("could not retrieve full metadata",
					zap.String("record", rec.Key()),
					zap.Error(err))
				withIssue := *rec
				withIssue.AdditionalFields = make(map[string]any, len(rec.AdditionalFields)+1)
				for k, v := range rec.AdditionalFields {
					withIssue.AdditionalFields[k] = v
				}
				withIssue.AdditionalFields[IssueField] = "Could not retrieve full metadata due to: " + err.Error()
				out[i] = &withIssue
				return nil
			}
			out[i] = full
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchRecord(ctx context.Context, rec *rapi.Record) (*rapi.Record, error) {
	rawURL := rec.ThisRecordURL
	if rawURL == "" {
		rawURL = c.endpoint("record/"+url.PathEscape(rec.CollectionID)+"/"+url.PathEscape(string(rec.RecordID)), nil)
	}
	if u, err := url.Parse(rawURL); err == nil {
		q := u.Query()
		q.Set("format", "json")
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	var full rapi.Record
	if err := c.getJSON(ctx, rawURL, c.queryTimeout, &full); err != nil {
		return nil, err
	}
	return &full, nil
}

// FlattenRecords converts records to their flattened form with keys in the
// given convention.
func FlattenRecords(records []*rapi.Record, conv naming.Convention) []*rapi.Metadata {
	out := make([]*rapi.Metadata, 0, len(records))
	f := conv.Func()
	for _, r := range records {
		out = append(out, r.Flatten(f))
	}
	return out
}

// flattenWithWKT flattens records and appends the WKT rendering of their
// geometry.
func flattenWithWKT(log *zap.Logger, records []*rapi.Record, conv naming.Convention) []*rapi.Metadata {
	out := FlattenRecords(records, conv)
	key := conv.Convert(WKTField)
	for i, r := range records {
		if len(r.Geometry) == 0 {
			continue
		}
		g, err := geom.FromGeoJSON(r.Geometry)
		if err != nil {
			log.Warn("record geometry not understood", zap.String("record", r.Key()), zap.Error(err))
			continue
		}
		out[i].Set(key, geom.ToWKT(g))
	}
	return out
}

// FeatureCollection converts records to GeoJSON features whose properties
// are the flattened metadata without the geometry. Records without a
// readable geometry are skipped.
func FeatureCollection(records []*rapi.Record, conv naming.Convention) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	geomKey := conv.Convert("geometry")
	for _, r := range records {
		if len(r.Geometry) == 0 {
			continue
		}
		g, err := geom.FromGeoJSON(r.Geometry)
		if err != nil {
			continue
		}
		f := geojson.NewFeature(g)
		f.ID = string(r.RecordID)
		m := r.Flatten(conv.Func())
		for _, k := range m.Keys() {
			if strings.EqualFold(k, geomKey) {
				continue
			}
			v, _ := m.Get(k)
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}
