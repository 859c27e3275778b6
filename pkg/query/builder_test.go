package query

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/robert-malhotra/go-rapi-client/pkg/geom"
	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

type stubCatalog map[string]*rapi.Collection

func (s stubCatalog) Collection(_ context.Context, id string) (*rapi.Collection, error) {
	c, ok := s[id]
	if !ok {
		return nil, errors.New("no such collection")
	}
	return c, nil
}

func rcmCatalog() stubCatalog {
	return stubCatalog{"RCMImageProducts": {
		ID:    "RCMImageProducts",
		Title: "RCM Image Products",
		SearchFields: []*rapi.Field{
			{ID: "RCM.START_DATETIME", Title: "Acquisition Start Date", DataType: rapi.DataTypeDateTimeRange},
			{ID: "RCM.FOOTPRINT", Title: "Footprint", DataType: rapi.DataTypeString},
			{ID: "RCM.BEAM_MNEMONIC", Title: "Beam Mnemonic", DataType: rapi.DataTypeString,
				Choices: []rapi.Choice{{Label: "5M", Value: "5M"}, {Label: "Quad-Pol", Value: "QP"}}},
			{ID: "RCM.INCIDENCE_ANGLE", Title: "Incidence Angle", DataType: rapi.DataTypeDouble},
			{ID: "RCM.DOWNLINK_SEGMENT_ID", Title: "Downlink segment ID", DataType: rapi.DataTypeString},
			{ID: "RCM.SPECIAL_HANDLING_REQUIRED", Title: "Special Handling Required", DataType: rapi.DataTypeString},
			{ID: "RCM.ORBIT_DIRECTION", Title: "Orbit Direction", DataType: rapi.DataTypeString},
			{ID: "RCM.GEORECTIFIED", Title: "Georectified", DataType: rapi.DataTypeBoolean},
			{ID: "RCM.LOOK_DIRECTION", Title: "Look Direction", DataType: rapi.DataTypeBoolean,
				Choices: []rapi.Choice{{Label: "Left", Value: "L"}, {Label: "Right", Value: "R"}}},
			{ID: "RCM.PROC_TIME", Title: "Processing Date", DataType: rapi.DataTypeDateTimeRange},
		},
	}}
}

func fixedNow() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }

// topLevelAnds counts AND joins outside of parentheses and quotes.
func topLevelAnds(q string) int {
	depth, n := 0, 0
	inQuote := false
	for i := 0; i < len(q); i++ {
		switch c := q[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(q[i:], " AND "):
			n++
		}
	}
	return n
}

func TestBuild_ExplicitDateRange(t *testing.T) {
	b := NewBuilder(rcmCatalog())
	q, err := b.Build(context.Background(), "RCMImageProducts", Query{
		Dates: []DateRange{{Start: "20190101_000000", End: "20210621_000000"}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"(RCM.START_DATETIME>='2019-01-01T00:00:00Z' AND RCM.START_DATETIME<='2021-06-21T00:00:00Z')", q)
}

func TestBuild_MultipleDateRangesAreOred(t *testing.T) {
	b := NewBuilder(rcmCatalog(), WithNow(fixedNow))
	q, err := b.Build(context.Background(), "RCMImageProducts", Query{
		Dates: []DateRange{
			{Start: "20190101_000000", End: "20190201_000000"},
			{Relative: "7 days"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"((RCM.START_DATETIME>='2019-01-01T00:00:00Z' AND RCM.START_DATETIME<='2019-02-01T00:00:00Z') OR "+
			"(RCM.START_DATETIME>='2024-03-03T12:00:00Z' AND RCM.START_DATETIME<='2024-03-10T12:00:00Z'))", q)
}

func TestBuild_Geometry(t *testing.T) {
	b := NewBuilder(rcmCatalog())
	q, err := b.Build(context.Background(), "RCMImageProducts", Query{
		Features: []Feature{
			{Operator: "intersects", Source: geom.GeoJSON(`{"type":"MultiPoint","coordinates":[[1,2],[3,4]]}`)},
			{Operator: "=", Source: geom.Coordinates{{5, 6}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"(RCM.FOOTPRINT INTERSECTS POINT(1 2) OR RCM.FOOTPRINT INTERSECTS POINT(3 4) OR RCM.FOOTPRINT='POINT(5 6)')", q)
}

func TestBuild_ClauseCount(t *testing.T) {
	b := NewBuilder(rcmCatalog(), WithNow(fixedNow))
	q, err := b.Build(context.Background(), "RCMImageProducts", Query{
		Dates:    []DateRange{{Relative: "2 months"}, {Start: "20200101_000000", End: "20200102_000000"}},
		Features: []Feature{{Operator: "INTERSECTS", Source: geom.WKT("POLYGON ((0 0, 1 0, 1 1, 0 0))")}},
		Filters: []Filter{
			{Field: "Beam Mnemonic", Values: []string{"5M", "Quad-Pol"}},
			{Field: "Incidence Angle", Values: []string{"20-30", "40-45"}},
			{Field: "Orbit Direction", Values: []string{"Ascending"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1+1+3-1, topLevelAnds(q), q)
	assert.Contains(t, q, "(RCM.BEAM_MNEMONIC='5M' OR RCM.BEAM_MNEMONIC='QP')")
	assert.Contains(t, q, "((RCM.INCIDENCE_ANGLE>=20 AND RCM.INCIDENCE_ANGLE<=30) OR (RCM.INCIDENCE_ANGLE>=40 AND RCM.INCIDENCE_ANGLE<=45))")
	assert.True(t, strings.HasSuffix(q, " AND RCM.ORBIT_DIRECTION='Ascending'"))
}

func TestBuild_ChoicePassthrough(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	b := NewBuilder(rcmCatalog(), WithLogger(zap.New(core)))

	q, err := b.Build(context.Background(), "RCMImageProducts", Query{
		Filters: []Filter{{Field: "Beam Mnemonic", Values: []string{"Quad-Pol", "SC50MA"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "(RCM.BEAM_MNEMONIC='QP' OR RCM.BEAM_MNEMONIC='SC50MA')", q)

	passed := logs.FilterMessageSnippet("passed through").All()
	require.Len(t, passed, 1)
	assert.Equal(t, zapcore.DebugLevel, passed[0].Level)
	assert.Equal(t, "SC50MA", passed[0].ContextMap()["value"])
}

func TestBuild_FilterFormatting(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"boolean yes", Filter{Field: "Georectified", Values: []string{"yes"}}, "RCM.GEORECTIFIED=true"},
		{"boolean false", Filter{Field: "Georectified", Values: []string{"False"}}, "RCM.GEORECTIFIED=false"},
		{"boolean choice label", Filter{Field: "Look Direction", Values: []string{"Left"}}, "RCM.LOOK_DIRECTION='L'"},
		{"datetime", Filter{Field: "Processing Date", Operator: ">=", Values: []string{"2021-05-01"}}, "RCM.PROC_TIME>='2021-05-01T00:00:00'"},
		{"datetime with offset", Filter{Field: "Processing Date", Operator: ">=", Values: []string{"2021-05-01T05:00:00+05:00"}}, "RCM.PROC_TIME>='2021-05-01T05:00:00+05:00'"},
		{"datetime utc", Filter{Field: "Processing Date", Operator: "<", Values: []string{"2021-05-01T05:00:00Z"}}, "RCM.PROC_TIME<'2021-05-01T05:00:00Z'"},
		{"datetime without zone", Filter{Field: "Processing Date", Operator: "<=", Values: []string{"2021-05-01 05:00:00"}}, "RCM.PROC_TIME<='2021-05-01T05:00:00'"},
		{"like", Filter{Field: "Downlink segment ID", Operator: "like", Values: []string{"%abc%"}}, "RCM.DOWNLINK_SEGMENT_ID LIKE '%abc%'"},
		{"single range value", Filter{Field: "Incidence Angle", Operator: "<", Values: []string{"35"}}, "RCM.INCIDENCE_ANGLE<35"},
		{"special handling", Filter{Field: "Special Handling Required", Values: []string{"false"}}, "RCM.SPECIAL_HANDLING_REQUIRED=false"},
		{"footprint", Filter{Field: "Footprint", Operator: "INTERSECTS", Values: []string{"0 0 1 0 1 1"}}, "RCM.FOOTPRINT INTERSECTS POLYGON((0 0,1 0,1 1,0 0))"},
		{"field by id", Filter{Field: "RCM.ORBIT_DIRECTION", Values: []string{"Descending"}}, "RCM.ORBIT_DIRECTION='Descending'"},
	}
	b := NewBuilder(rcmCatalog())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := b.Build(context.Background(), "RCMImageProducts", Query{Filters: []Filter{tt.filter}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestBuild_MalformedEntriesAreDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := NewBuilder(rcmCatalog(), WithLogger(zap.New(core)))

	q, err := b.Build(context.Background(), "RCMImageProducts", Query{
		Dates:    []DateRange{{Start: "not a date"}},
		Features: []Feature{{Operator: "INTERSECTS", Source: geom.File("aoi.xyz")}},
		Filters: []Filter{
			{Field: "Cloud Cover", Values: []string{"10"}},
			{Field: "Georectified", Values: []string{"maybe"}},
			{Field: "Orbit Direction", Values: []string{""}},
			{Field: "Orbit Direction", Values: []string{"Ascending"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "RCM.ORBIT_DIRECTION='Ascending'", q)
	assert.Equal(t, 5, logs.Len())
}

func TestBuild_CatalogErrorAborts(t *testing.T) {
	b := NewBuilder(rcmCatalog())
	_, err := b.Build(context.Background(), "Nope", Query{})
	assert.Error(t, err)
}

func TestJoin(t *testing.T) {
	a := Comparison{Field: "a", Value: "1"}
	c := Comparison{Field: "c", Operator: ">", Value: "2"}
	assert.Equal(t, "a=1 OR c>2", Join(Or{a, c}))
	assert.Equal(t, "(a=1 OR c>2) AND c>2", Join(Or{a, c}, c))
	assert.Equal(t, "a=1 AND c>2", Join(Or{a}, nil, c))
	assert.Equal(t, "", Join())
}

func TestParseRelative(t *testing.T) {
	now := fixedNow()
	tests := map[string]time.Time{
		"7 days":        now.AddDate(0, 0, -7),
		"2 months ago":  now.AddDate(0, -2, 0),
		"last 24 hours": now.Add(-24 * time.Hour),
		"1 year":        now.AddDate(-1, 0, 0),
		"3 weeks":       now.AddDate(0, 0, -21),
		"90 min":        now.Add(-90 * time.Minute),
		"36h":           now.Add(-36 * time.Hour),
	}
	for phrase, want := range tests {
		got, err := ParseRelative(phrase, now)
		require.NoError(t, err, phrase)
		assert.True(t, want.Equal(got), "%s: got %s want %s", phrase, got, want)
	}

	_, err := ParseRelative("sometime", now)
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}

func TestResolveDateRange(t *testing.T) {
	now := fixedNow()
	start, end, err := ResolveDateRange(DateRange{Start: "20240101_000000"}, now)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", start.Format(OutputLayout))
	assert.True(t, end.Equal(now))

	_, _, err = ResolveDateRange(DateRange{Start: "20240101_000000", End: "20230101_000000"}, now)
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	_, _, err = ResolveDateRange(DateRange{}, now)
	assert.ErrorIs(t, err, ErrInvalidDateRange)
}
