package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/robert-malhotra/go-rapi-client/pkg/geom"
	"github.com/robert-malhotra/go-rapi-client/pkg/query"
)

// filterOperators in match order; two-character operators first.
var filterOperators = []string{">=", "<=", "<>", "!=", "=", "<", ">", " LIKE "}

// parseFilter reads FIELD<op>VALUE[|VALUE...], e.g.
// "Beam Mnemonic=16M11|16M13" or "Incidence Angle>=30".
func parseFilter(s string) (query.Filter, error) {
	upper := strings.ToUpper(s)
	best, op := -1, ""
	for _, candidate := range filterOperators {
		if i := strings.Index(upper, candidate); i > 0 && (best < 0 || i < best) {
			best, op = i, candidate
		}
	}
	if best < 0 {
		return query.Filter{}, fmt.Errorf("filter %q: expected FIELD<op>VALUE", s)
	}

	f := query.Filter{
		Field:    strings.TrimSpace(s[:best]),
		Operator: strings.TrimSpace(op),
	}
	for _, v := range strings.Split(s[best+len(op):], "|") {
		if v = strings.TrimSpace(v); v != "" {
			f.Values = append(f.Values, v)
		}
	}
	if len(f.Values) == 0 {
		return query.Filter{}, fmt.Errorf("filter %q: no value", s)
	}
	return f, nil
}

// parseFeature reads [OPERATOR;]SOURCE where SOURCE is WKT, GeoJSON, a
// coordinate list or a file path. The operator defaults to INTERSECTS.
func parseFeature(s string) (query.Feature, error) {
	op, src := "INTERSECTS", s
	if i := strings.Index(s, ";"); i >= 0 {
		op, src = strings.TrimSpace(s[:i]), s[i+1:]
	}
	src = strings.TrimSpace(src)
	if src == "" {
		return query.Feature{}, fmt.Errorf("feature %q: no geometry", s)
	}
	return query.Feature{Operator: strings.ToUpper(op), Source: geom.Detect(src)}, nil
}

// parseDates reads a comma separated list of ranges. Each range is either
// START-END in YYYYMMDD_HHMMSS form or a relative phrase such as "7 days".
func parseDates(s string) ([]query.DateRange, error) {
	var out []query.DateRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if start, end, ok := strings.Cut(part, "-"); ok && isBound(start) {
			out = append(out, query.DateRange{Start: strings.TrimSpace(start), End: strings.TrimSpace(end)})
			continue
		}
		if _, err := query.ParseRelative(part, time.Now()); err != nil {
			return nil, fmt.Errorf("dates %q: %w", part, err)
		}
		out = append(out, query.DateRange{Relative: part})
	}
	return out, nil
}

func isBound(s string) bool {
	_, err := time.Parse(query.InputLayout, strings.TrimSpace(s))
	return err == nil
}

// parseParameters reads KEY=VALUE order parameters.
func parseParameters(values []string) ([]map[string]string, error) {
	out := make([]map[string]string, 0, len(values))
	for _, v := range values {
		key, val, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("parameter %q: expected KEY=VALUE", v)
		}
		out = append(out, map[string]string{strings.TrimSpace(key): strings.TrimSpace(val)})
	}
	return out, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", query.InputLayout}

// parseTime accepts RFC 3339, a bare date or YYYYMMDD_HHMMSS. The empty
// string is the zero time.
func parseTime(s string) (time.Time, error) {
	if s = strings.TrimSpace(s); s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
