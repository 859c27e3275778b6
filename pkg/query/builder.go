// Package query builds the expression passed in the query parameter of a
// RAPI search.
//
// A Query is resolved against a collection's field catalog into a list of
// top-level clauses (dates, geometries, one clause per filter) that are
// joined with AND. Malformed entries are logged and dropped; only catalog
// failures abort a build.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-rapi-client/pkg/geom"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

// ErrUnknownField is reported for field names the catalog cannot resolve.
var ErrUnknownField = errors.New("query: unknown field")

// FieldCatalog resolves a collection name or id to its field catalog.
type FieldCatalog interface {
	Collection(ctx context.Context, nameOrID string) (*rapi.Collection, error)
}

// Filter restricts Field with Operator (default "=") to any of Values.
type Filter struct {
	Field    string   `json:"field" yaml:"field"`
	Operator string   `json:"operator,omitempty" yaml:"operator,omitempty"`
	Values   []string `json:"values" yaml:"values"`
}

// Feature is a spatial restriction. Operator is INTERSECTS, CONTAINS, "="
// and so on.
type Feature struct {
	Operator string
	Source   geom.Source
}

// Query is the input of Build.
type Query struct {
	Filters  []Filter
	Features []Feature
	Dates    []DateRange
}

// IsZero reports whether the query has no entries at all.
func (q Query) IsZero() bool {
	return len(q.Filters) == 0 && len(q.Features) == 0 && len(q.Dates) == 0
}

// Field titles with special handling.
const (
	FootprintField  = "Footprint"
	specialHandling = "RCM.SPECIAL_HANDLING_REQUIRED"
)

var dateFields = []string{"Acquisition Start Date", "Start Date"}

var rangeFields = map[string]bool{
	"incidence angle":    true,
	"scale":              true,
	"spacial resolution": true,
	"spatial resolution": true,
	"absolute orbit":     true,
}

// Builder turns a Query into a query string.
type Builder struct {
	catalog FieldCatalog
	logger  *zap.Logger
	now     func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for dropped entries.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithNow overrides the clock used for relative dates.
func WithNow(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder returns a Builder backed by catalog.
func NewBuilder(catalog FieldCatalog, opts ...BuilderOption) *Builder {
	b := &Builder{
		catalog: catalog,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build resolves q against the catalog of collection and renders it.
func (b *Builder) Build(ctx context.Context, collection string, q Query) (string, error) {
	clauses, err := b.Clauses(ctx, collection, q)
	if err != nil {
		return "", err
	}
	return Join(clauses...), nil
}

// Clauses returns the top-level clauses of q in date, geometry, filter
// order.
func (b *Builder) Clauses(ctx context.Context, collection string, q Query) ([]Node, error) {
	coll, err := b.catalog.Collection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("query: load field catalog for %q: %w", collection, err)
	}
	log := b.logger.With(zap.String("collection", coll.ID))

	var clauses []Node
	if n := b.dateClause(log, coll, q.Dates); n != nil {
		clauses = append(clauses, n)
	}
	if n := b.featureClause(log, coll, q.Features); n != nil {
		clauses = append(clauses, n)
	}
	for _, f := range q.Filters {
		if n := b.filterClause(log, coll, f); n != nil {
			clauses = append(clauses, n)
		}
	}
	return clauses, nil
}

func (b *Builder) dateClause(log *zap.Logger, coll *rapi.Collection, dates []DateRange) Node {
	if len(dates) == 0 {
		return nil
	}
	var field *rapi.Field
	for _, name := range dateFields {
		if f, ok := coll.SearchField(name); ok {
			field = f
			break
		}
	}
	if field == nil {
		log.Warn("no start date field; dates excluded from query",
			zap.Error(ErrUnknownField))
		return nil
	}

	now := b.now()
	var ranges Or
	for i, r := range dates {
		start, end, err := ResolveDateRange(r, now)
		if err != nil {
			log.Warn("date range excluded from query", zap.Int("index", i), zap.Error(err))
			continue
		}
		ranges = append(ranges, And{
			Comparison{Field: field.ID, Operator: ">=", Value: quote(start.Format(OutputLayout))},
			Comparison{Field: field.ID, Operator: "<=", Value: quote(end.Format(OutputLayout))},
		})
	}
	switch len(ranges) {
	case 0:
		return nil
	case 1:
		return ranges[0]
	}
	return Group{Node: ranges}
}

func (b *Builder) featureClause(log *zap.Logger, coll *rapi.Collection, feats []Feature) Node {
	if len(feats) == 0 {
		return nil
	}
	field, ok := coll.SearchField(FootprintField)
	if !ok {
		log.Warn("no footprint field; geometry excluded from query",
			zap.Error(ErrUnknownField))
		return nil
	}

	var terms Or
	for i, f := range feats {
		gs, err := geom.Normalize(f.Source)
		if err != nil {
			log.Warn("geometry feature excluded from query",
				zap.Int("feature", i+1), zap.Error(err))
			continue
		}
		op := strings.ToUpper(strings.TrimSpace(f.Operator))
		if op == "" {
			op = "INTERSECTS"
		}
		for _, g := range gs {
			terms = append(terms, geometryComparison(field.ID, op, geom.ToWKT(g)))
		}
	}
	if len(terms) == 0 {
		return nil
	}
	return Group{Node: terms}
}

func geometryComparison(field, op, wkt string) Comparison {
	if op == "=" {
		return Comparison{Field: field, Operator: op, Value: quote(wkt)}
	}
	return Comparison{Field: field, Operator: op, Value: wkt}
}

func (b *Builder) filterClause(log *zap.Logger, coll *rapi.Collection, f Filter) Node {
	log = log.With(zap.String("field", f.Field))

	field, ok := coll.SearchField(f.Field)
	if !ok {
		log.Warn("filter excluded from query", zap.Error(ErrUnknownField))
		return nil
	}

	values := make([]string, 0, len(f.Values))
	for _, v := range f.Values {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		log.Warn("filter has no value; excluded from query")
		return nil
	}

	op := strings.TrimSpace(f.Operator)
	if op == "" {
		op = "="
	}

	switch {
	case rangeFields[strings.ToLower(f.Field)] || rangeFields[strings.ToLower(field.Title)]:
		return orGroup(rangeTerms(field.ID, op, values))
	case field.ID == specialHandling:
		return Comparison{Field: field.ID, Operator: op, Value: values[0]}
	case strings.EqualFold(field.Title, FootprintField) || strings.EqualFold(f.Field, FootprintField):
		coords, err := geom.ParseCoordinates(values[0])
		if err != nil {
			log.Warn("filter excluded from query", zap.Error(err))
			return nil
		}
		g, err := coords.Geometry()
		if err != nil {
			log.Warn("filter excluded from query", zap.Error(err))
			return nil
		}
		return geometryComparison(field.ID, op, geom.ToWKT(g))
	}

	var terms []Node
	for _, v := range values {
		v = substituteChoice(log, field, v)
		lit, ok := formatValue(log, field, v)
		if !ok {
			continue
		}
		terms = append(terms, Comparison{Field: field.ID, Operator: op, Value: lit})
	}
	return orGroup(terms)
}

func rangeTerms(field, op string, values []string) []Node {
	terms := make([]Node, 0, len(values))
	for _, v := range values {
		// a leading '-' is a sign, not a separator
		if i := strings.Index(v[1:], "-"); i >= 0 {
			low, high := strings.TrimSpace(v[:i+1]), strings.TrimSpace(v[i+2:])
			terms = append(terms, And{
				Comparison{Field: field, Operator: ">=", Value: low},
				Comparison{Field: field, Operator: "<=", Value: high},
			})
			continue
		}
		terms = append(terms, Comparison{Field: field, Operator: op, Value: v})
	}
	return terms
}

func orGroup(terms []Node) Node {
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return terms[0]
	}
	return Group{Node: Or(terms)}
}

// substituteChoice replaces a choice label with its value. Values that are
// not a label are passed through unchanged so raw codes keep working.
func substituteChoice(log *zap.Logger, field *rapi.Field, v string) string {
	if len(field.Choices) == 0 {
		return v
	}
	if c, ok := field.ChoiceFor(v); ok {
		return c.Value
	}
	if !field.HasChoiceValue(v) {
		log.Debug("value matches no choice label; passed through", zap.String("value", v))
	}
	return v
}

// localTimeLayouts carry no zone and are rendered without one. Values with
// an offset keep it.
var localTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	InputLayout,
	"2006-01-02",
}

func formatValue(log *zap.Logger, field *rapi.Field, v string) (string, bool) {
	switch field.DataType {
	case rapi.DataTypeString:
		return quote(v), true
	case rapi.DataTypeBoolean:
		if field.HasChoiceValue(v) {
			return quote(v), true
		}
		switch strings.ToLower(v)[0] {
		case 't', 'y':
			return "true", true
		case 'f', 'n':
			return "false", true
		}
		log.Warn("boolean value not understood; excluded from query", zap.String("value", v))
		return "", false
	case rapi.DataTypeDateTimeRange:
		v = strings.TrimSpace(v)
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return quote(t.Format(time.RFC3339)), true
		}
		for _, layout := range localTimeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return quote(t.Format("2006-01-02T15:04:05")), true
			}
		}
		log.Warn("date value not understood; excluded from query", zap.String("value", v))
		return "", false
	default:
		return v, true
	}
}

func quote(s string) string {
	return "'" + s + "'"
}
