package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const rapiRoot = "/wes/rapi"

const collectionsJSON = `[
  {"title": "Radar", "children": [
    {"title": "RCM", "children": [
      {"collectionId": "RCMImageProducts", "title": "RCM Image Products"}
    ]},
    {"collectionId": "Radarsat2", "title": "RADARSAT-2"}
  ]},
  {"title": "Optical", "children": [
    {"collectionId": "NAPL", "title": "National Air Photo Library"}
  ]}
]`

const rcmFieldsJSON = `{
  "collectionId": "RCMImageProducts",
  "title": "RCM Image Products",
  "searchFields": [
    {"id": "RCM.FOOTPRINT", "title": "Footprint", "datatype": "Polygon"},
    {"id": "CATALOG_IMAGE.START_DATETIME", "title": "Acquisition Start Date", "datatype": "DateTimeRange"},
    {"id": "RCM.BEAM_MNEMONIC", "title": "Beam Mnemonic", "datatype": "String"},
    {"id": "RCM.POLARIZATION", "title": "Polarization", "datatype": "String",
     "choices": [{"label": "HH", "value": "HH"}, {"label": "VV", "value": "VV"}]}
  ],
  "resultFields": [
    {"id": "RCM.FOOTPRINT", "title": "Footprint", "datatype": "Polygon"},
    {"id": "SENSOR_BEAM.SPATIAL_RESOLUTION", "title": "Spatial Resolution", "datatype": "Double"},
    {"id": "CATALOG_IMAGE.URL", "title": "Download Link", "datatype": "String"},
    {"id": "ARCHIVE_IMAGE.ORDER_KEY", "title": "Archive ID", "datatype": "String"},
    {"id": "RCM.BEAM_MNEMONIC", "title": "Beam Mnemonic", "datatype": "String"}
  ]
}`

// fakeRAPI serves handlers by exact path and counts the requests per path.
type fakeRAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
}

func newFakeRAPI(t *testing.T) *fakeRAPI {
	t.Helper()
	f := &fakeRAPI{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	f.handle("/collections", rawJSONHandler(collectionsJSON))
	f.handle("/collections/RCMImageProducts", rawJSONHandler(rcmFieldsJSON))
	f.handle("/collections/NAPL", rawJSONHandler(`{"collectionId":"NAPL","title":"National Air Photo Library","searchFields":[],"resultFields":[]}`))

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		h, ok := f.handlers[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// handle registers h for a path relative to the RAPI root, replacing any
// previous handler.
func (f *fakeRAPI) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[rapiRoot+path] = h
}

// handleAbs registers h for an absolute server path.
func (f *fakeRAPI) handleAbs(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeRAPI) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rapiRoot+path]
}

func (f *fakeRAPI) url() string { return f.srv.URL + rapiRoot }

func (f *fakeRAPI) client(opts ...ClientOption) *Client {
	f.t.Helper()
	base := []ClientOption{
		WithLogger(zaptest.NewLogger(f.t)),
		WithCredentials("user", "secret"),
		WithQueryTimeout(5 * time.Second),
		WithSearchRetryDelay(time.Millisecond),
	}
	c, err := NewClient(f.url(), append(base, opts...)...)
	require.NoError(f.t, err)
	return c
}

func rawJSONHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

// countingRecorder is a Recorder that keeps what it is told.
type countingRecorder struct {
	mu         sync.Mutex
	requests   map[string]int
	retries    map[string]int
	bytes      int64
	orderItems map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		requests:   make(map[string]int),
		retries:    make(map[string]int),
		orderItems: make(map[string]int),
	}
}

func (r *countingRecorder) ObserveRequest(method, code string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[method+" "+code]++
}

func (r *countingRecorder) IncRetry(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[reason]++
}

func (r *countingRecorder) AddDownloadedBytes(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes += n
}

func (r *countingRecorder) IncOrderItems(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderItems[status]++
}
