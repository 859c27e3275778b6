// Package geom turns areas of interest supplied in several forms into the
// atomic geometries the RAPI query grammar accepts.
//
// The query grammar has no multi-geometries, so every source is normalised
// to a flat list of orb.Point, orb.LineString and orb.Polygon values that the
// caller joins with OR.
package geom

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

var (
	ErrEmptyGeometry       = errors.New("geom: no geometry found")
	ErrUnsupportedGeometry = errors.New("geom: unsupported geometry type")
	ErrUnsupportedFormat   = errors.New("geom: unsupported file format")
)

// Source is one of File, WKT, GeoJSON or Coordinates.
type Source interface {
	isSource()
}

// File is the path of a GeoJSON, KML, GML or ESRI Shapefile AOI.
type File string

// WKT is an inline Well-Known Text geometry.
type WKT string

// GeoJSON is a GeoJSON geometry, Feature or FeatureCollection document.
type GeoJSON json.RawMessage

// Coordinates is a list of lon/lat pairs. A single pair is a point;
// anything longer is the ring of a polygon.
type Coordinates []orb.Point

func (File) isSource()        {}
func (WKT) isSource()         {}
func (GeoJSON) isSource()     {}
func (Coordinates) isSource() {}

var wktPrefixes = []string{
	"POINT", "LINESTRING", "POLYGON", "MULTIPOINT", "MULTILINESTRING",
	"MULTIPOLYGON", "GEOMETRYCOLLECTION",
}

// Detect classifies a free-form string: a JSON object is GeoJSON, a JSON
// array of pairs is Coordinates, a string starting with a WKT keyword is WKT
// and anything else is taken to be a file path.
func Detect(s string) Source {
	t := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(t, "{"):
		return GeoJSON(t)
	case strings.HasPrefix(t, "["):
		var pairs [][]float64
		if err := json.Unmarshal([]byte(t), &pairs); err == nil {
			return coordinatesFrom(pairs)
		}
	}
	upper := strings.ToUpper(t)
	for _, p := range wktPrefixes {
		if strings.HasPrefix(upper, p) {
			return WKT(t)
		}
	}
	return File(t)
}

func coordinatesFrom(pairs [][]float64) Coordinates {
	out := make(Coordinates, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		out = append(out, orb.Point{p[0], p[1]})
	}
	return out
}

// ParseCoordinates reads whitespace separated numbers as x y pairs, the way
// a footprint filter value is written ("-75.1 45.2 -75.0 45.2 ...").
func ParseCoordinates(s string) (Coordinates, error) {
	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("geom: odd number of coordinate values in %q", s)
	}
	out := make(Coordinates, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		x, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("geom: coordinate %q: %w", fields[i], err)
		}
		y, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("geom: coordinate %q: %w", fields[i+1], err)
		}
		out = append(out, orb.Point{x, y})
	}
	return out, nil
}

// Normalize reads src and returns its atomic geometries.
func Normalize(src Source) ([]orb.Geometry, error) {
	var (
		gs  []orb.Geometry
		err error
	)
	switch s := src.(type) {
	case File:
		gs, err = readFile(string(s))
	case WKT:
		var g orb.Geometry
		g, err = wkt.Unmarshal(strings.ToUpper(strings.TrimSpace(string(s))))
		if err != nil {
			return nil, fmt.Errorf("geom: parse wkt: %w", err)
		}
		gs = []orb.Geometry{g}
	case GeoJSON:
		gs, err = decodeGeoJSON(json.RawMessage(s))
	case Coordinates:
		var g orb.Geometry
		g, err = s.Geometry()
		gs = []orb.Geometry{g}
	case nil:
		return nil, ErrEmptyGeometry
	default:
		return nil, fmt.Errorf("%w: source %T", ErrUnsupportedGeometry, src)
	}
	if err != nil {
		return nil, err
	}

	var out []orb.Geometry
	for _, g := range gs {
		atoms, err := Split(g)
		if err != nil {
			return nil, err
		}
		out = append(out, atoms...)
	}
	if len(out) == 0 {
		return nil, ErrEmptyGeometry
	}
	return out, nil
}

// Geometry converts the coordinate list into a point or a closed polygon.
func (c Coordinates) Geometry() (orb.Geometry, error) {
	switch len(c) {
	case 0:
		return nil, ErrEmptyGeometry
	case 1:
		return c[0], nil
	}
	ring := orb.Ring(append([]orb.Point(nil), c...))
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}

// Split breaks multi-geometries and collections into points, line strings
// and polygons.
func Split(g orb.Geometry) ([]orb.Geometry, error) {
	switch t := g.(type) {
	case nil:
		return nil, nil
	case orb.Point, orb.LineString, orb.Polygon:
		return []orb.Geometry{t}, nil
	case orb.Ring:
		return []orb.Geometry{orb.Polygon{t}}, nil
	case orb.Bound:
		return []orb.Geometry{t.ToPolygon()}, nil
	case orb.MultiPoint:
		out := make([]orb.Geometry, 0, len(t))
		for _, p := range t {
			out = append(out, p)
		}
		return out, nil
	case orb.MultiLineString:
		out := make([]orb.Geometry, 0, len(t))
		for _, ls := range t {
			out = append(out, ls)
		}
		return out, nil
	case orb.MultiPolygon:
		out := make([]orb.Geometry, 0, len(t))
		for _, p := range t {
			out = append(out, p)
		}
		return out, nil
	case orb.Collection:
		var out []orb.Geometry
		for _, child := range t {
			atoms, err := Split(child)
			if err != nil {
				return nil, err
			}
			out = append(out, atoms...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.GeoJSONType())
	}
}

// ToWKT renders g as Well-Known Text.
func ToWKT(g orb.Geometry) string {
	return wkt.MarshalString(g)
}

// FromGeoJSON decodes a bare GeoJSON geometry object, such as the geometry
// member of a RAPI record.
func FromGeoJSON(raw json.RawMessage) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("geom: decode geojson geometry: %w", err)
	}
	return g.Geometry(), nil
}

func decodeGeoJSON(raw json.RawMessage) ([]orb.Geometry, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("geom: decode geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("geom: decode feature collection: %w", err)
		}
		out := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		return out, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("geom: decode feature: %w", err)
		}
		if f.Geometry == nil {
			return nil, ErrEmptyGeometry
		}
		return []orb.Geometry{f.Geometry}, nil
	case "":
		return nil, fmt.Errorf("%w: geojson without type", ErrUnsupportedGeometry)
	default:
		g, err := FromGeoJSON(raw)
		if err != nil {
			return nil, err
		}
		return []orb.Geometry{g}, nil
	}
}
