package geom

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		in   string
		want Source
	}{
		{`{"type":"Point","coordinates":[1,2]}`, GeoJSON(`{"type":"Point","coordinates":[1,2]}`)},
		{"POLYGON ((0 0, 1 0, 1 1, 0 0))", WKT("POLYGON ((0 0, 1 0, 1 1, 0 0))")},
		{"  point(1 2)", WKT("point(1 2)")},
		{"[[1, 2], [3, 4]]", Coordinates{{1, 2}, {3, 4}}},
		{"/data/aoi.shp", File("/data/aoi.shp")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.in))
		})
	}
}

func TestNormalize_SplitsMultiGeometries(t *testing.T) {
	gs, err := Normalize(WKT("MULTIPOLYGON(((0 0,1 0,1 1,0 0)),((5 5,6 5,6 6,5 5)))"))
	require.NoError(t, err)
	require.Len(t, gs, 2)
	for _, g := range gs {
		_, ok := g.(orb.Polygon)
		assert.True(t, ok, "expected polygon, got %T", g)
	}

	gs, err = Normalize(GeoJSON(`{"type":"GeometryCollection","geometries":[
		{"type":"MultiPoint","coordinates":[[1,2],[3,4]]},
		{"type":"LineString","coordinates":[[0,0],[1,1]]}
	]}`))
	require.NoError(t, err)
	require.Len(t, gs, 3)
	assert.Equal(t, orb.Point{1, 2}, gs[0])
	assert.Equal(t, orb.Point{3, 4}, gs[1])
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, gs[2])
}

func TestNormalize_Coordinates(t *testing.T) {
	gs, err := Normalize(Coordinates{{-75.5, 45.2}})
	require.NoError(t, err)
	assert.Equal(t, []orb.Geometry{orb.Point{-75.5, 45.2}}, gs)

	gs, err = Normalize(Coordinates{{0, 0}, {1, 0}, {1, 1}})
	require.NoError(t, err)
	require.Len(t, gs, 1)
	poly := gs[0].(orb.Polygon)
	require.Len(t, poly, 1)
	assert.True(t, poly[0].Closed())
	assert.Len(t, poly[0], 4)

	_, err = Normalize(Coordinates{})
	assert.ErrorIs(t, err, ErrEmptyGeometry)
}

func TestNormalize_FeatureCollectionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoi.geojson")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"type": "FeatureCollection",
		"features": [
			{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,2],[0,0]]]}},
			{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[7,8]}}
		]
	}`), 0o644))

	gs, err := Normalize(File(path))
	require.NoError(t, err)
	require.Len(t, gs, 2)
	assert.IsType(t, orb.Polygon{}, gs[0])
	assert.Equal(t, orb.Point{7, 8}, gs[1])
}

func TestNormalize_KML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoi.kml")
	require.NoError(t, os.WriteFile(path, []byte(`<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <Polygon>
        <outerBoundaryIs><LinearRing><coordinates>
          -75.0,45.0,0 -74.0,45.0,0 -74.0,46.0,0 -75.0,45.0,0
        </coordinates></LinearRing></outerBoundaryIs>
      </Polygon>
    </Placemark>
    <Placemark>
      <Point><coordinates>-73.5,45.5</coordinates></Point>
    </Placemark>
  </Document>
</kml>`), 0o644))

	gs, err := Normalize(File(path))
	require.NoError(t, err)
	require.Len(t, gs, 2)
	assert.Equal(t, orb.Polygon{{{-75, 45}, {-74, 45}, {-74, 46}, {-75, 45}}}, gs[0])
	assert.Equal(t, orb.Point{-73.5, 45.5}, gs[1])
}

func TestNormalize_GMLPosList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoi.gml")
	require.NoError(t, os.WriteFile(path, []byte(`<?xml version="1.0"?>
<gml:FeatureCollection xmlns:gml="http://www.opengis.net/gml">
  <gml:featureMember>
    <gml:MultiPolygon>
      <gml:polygonMember><gml:Polygon><gml:exterior><gml:LinearRing>
        <gml:posList>0 0 1 0 1 1 0 0</gml:posList>
      </gml:LinearRing></gml:exterior></gml:Polygon></gml:polygonMember>
      <gml:polygonMember><gml:Polygon><gml:exterior><gml:LinearRing>
        <gml:posList srsDimension="3">5 5 0 6 5 0 6 6 0 5 5 0</gml:posList>
      </gml:LinearRing></gml:exterior></gml:Polygon></gml:polygonMember>
    </gml:MultiPolygon>
  </gml:featureMember>
</gml:FeatureCollection>`), 0o644))

	gs, err := Normalize(File(path))
	require.NoError(t, err)
	require.Len(t, gs, 2)
	assert.Equal(t, orb.Polygon{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}}, gs[1])
}

func TestNormalize_Shapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aoi.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	line := shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}},
	})
	poly := shp.Polygon(*line)
	w.Write(&poly)
	w.Close()

	gs, err := Normalize(File(path))
	require.NoError(t, err)
	require.Len(t, gs, 1)
	assert.Equal(t, orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}}, gs[0])
}

func TestNormalize_UnsupportedFile(t *testing.T) {
	_, err := Normalize(File("aoi.tiff"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseCoordinates(t *testing.T) {
	c, err := ParseCoordinates("-75.1 45.2  -75.0 45.2 -75.0 45.3")
	require.NoError(t, err)
	assert.Equal(t, Coordinates{{-75.1, 45.2}, {-75.0, 45.2}, {-75.0, 45.3}}, c)

	_, err = ParseCoordinates("1 2 3")
	assert.Error(t, err)
}

func TestFromGeoJSONToWKT(t *testing.T) {
	g, err := FromGeoJSON([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`))
	require.NoError(t, err)
	assert.Equal(t, "POLYGON((0 0,1 0,1 1,0 0))", ToWKT(g))
}
