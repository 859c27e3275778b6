package geom

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"golang.org/x/net/html/charset"
)

func readFile(path string) ([]orb.Geometry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("geom: read %s: %w", path, err)
		}
		return decodeGeoJSON(data)
	case ".kml", ".gml":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("geom: open %s: %w", path, err)
		}
		defer f.Close()
		return decodeMarkup(f)
	case ".shp":
		return readShapefile(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// decodeMarkup extracts Point, LineString and Polygon elements from KML or
// GML. Both name their geometry elements the same way; coordinates come as
// KML/GML2 <coordinates> tuples or GML3 <pos>/<posList> sequences.
func decodeMarkup(r io.Reader) ([]orb.Geometry, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	var (
		out     []orb.Geometry
		kind    string
		depth   int
		rings   [][]orb.Point
		textFor string
		dim     = 2
		text    strings.Builder
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("geom: parse markup: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			if kind == "" {
				switch name {
				case "Point", "LineString", "Polygon":
					kind, depth, rings = name, 0, nil
				}
				continue
			}
			if name == kind {
				depth++
			}
			switch name {
			case "coordinates", "posList", "pos":
				textFor = name
				text.Reset()
				dim = 2
				for _, a := range t.Attr {
					if a.Name.Local == "srsDimension" {
						if n, err := strconv.Atoi(a.Value); err == nil && n > 0 {
							dim = n
						}
					}
				}
			}
		case xml.CharData:
			if textFor != "" {
				text.Write(t)
			}
		case xml.EndElement:
			name := t.Name.Local
			if textFor != "" && name == textFor {
				pts, err := parseMarkupCoords(textFor, text.String(), dim)
				if err != nil {
					return nil, err
				}
				if textFor == "pos" && len(rings) > 0 {
					rings[len(rings)-1] = append(rings[len(rings)-1], pts...)
				} else {
					rings = append(rings, pts)
				}
				textFor = ""
				continue
			}
			if kind != "" && name == kind {
				if depth > 0 {
					depth--
					continue
				}
				g, err := markupGeometry(kind, rings)
				if err != nil {
					return nil, err
				}
				out = append(out, g)
				kind = ""
			}
		}
	}
	return out, nil
}

func parseMarkupCoords(elem, s string, dim int) ([]orb.Point, error) {
	var pts []orb.Point
	if elem == "coordinates" {
		for _, tuple := range strings.Fields(s) {
			parts := strings.Split(tuple, ",")
			if len(parts) < 2 {
				return nil, fmt.Errorf("geom: bad coordinate tuple %q", tuple)
			}
			p, err := parsePoint(parts[0], parts[1])
			if err != nil {
				return nil, err
			}
			pts = append(pts, p)
		}
		return pts, nil
	}

	nums := strings.Fields(s)
	if dim < 2 {
		dim = 2
	}
	for i := 0; i+1 < len(nums); i += dim {
		p, err := parsePoint(nums[i], nums[i+1])
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}

func parsePoint(xs, ys string) (orb.Point, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geom: coordinate %q: %w", xs, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("geom: coordinate %q: %w", ys, err)
	}
	return orb.Point{x, y}, nil
}

func markupGeometry(kind string, rings [][]orb.Point) (orb.Geometry, error) {
	if len(rings) == 0 || len(rings[0]) == 0 {
		return nil, fmt.Errorf("%w: %s without coordinates", ErrEmptyGeometry, kind)
	}
	switch kind {
	case "Point":
		return rings[0][0], nil
	case "LineString":
		return orb.LineString(rings[0]), nil
	default:
		poly := make(orb.Polygon, 0, len(rings))
		for _, r := range rings {
			ring := orb.Ring(r)
			if !ring.Closed() {
				ring = append(ring, ring[0])
			}
			poly = append(poly, ring)
		}
		return poly, nil
	}
}

// readShapefile reads every shape of an ESRI Shapefile. Polygon parts wound
// clockwise start a new polygon; counter-clockwise parts are holes of the
// preceding one.
func readShapefile(path string) ([]orb.Geometry, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geom: open shapefile %s: %w", path, err)
	}
	defer r.Close()

	var out []orb.Geometry
	for r.Next() {
		_, shape := r.Shape()
		switch s := shape.(type) {
		case *shp.Point:
			out = append(out, orb.Point{s.X, s.Y})
		case *shp.MultiPoint:
			for _, p := range s.Points {
				out = append(out, orb.Point{p.X, p.Y})
			}
		case *shp.PolyLine:
			for _, part := range shapeParts(s.Parts, s.Points) {
				out = append(out, orb.LineString(part))
			}
		case *shp.Polygon:
			var current orb.Polygon
			for _, part := range shapeParts(s.Parts, s.Points) {
				ring := orb.Ring(part)
				if !ring.Closed() {
					ring = append(ring, ring[0])
				}
				if current == nil || ring.Orientation() == orb.CW {
					if current != nil {
						out = append(out, current)
					}
					current = orb.Polygon{ring}
					continue
				}
				current = append(current, ring)
			}
			if current != nil {
				out = append(out, current)
			}
		default:
			return nil, fmt.Errorf("%w: shapefile shape %T", ErrUnsupportedGeometry, shape)
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("geom: read shapefile %s: %w", path, err)
	}
	return out, nil
}

func shapeParts(parts []int32, points []shp.Point) [][]orb.Point {
	var out [][]orb.Point
	for i, start := range parts {
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) >= end {
			continue
		}
		seg := make([]orb.Point, 0, end-int(start))
		for _, p := range points[start:end] {
			seg = append(seg, orb.Point{p.X, p.Y})
		}
		out = append(out, seg)
	}
	return out
}
