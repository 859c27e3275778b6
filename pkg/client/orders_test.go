package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// orderRecorder answers POST /order by echoing one SUBMITTED item per
// requested item and keeps every payload.
type orderRecorder struct {
	t *testing.T

	mu       sync.Mutex
	payloads []rapi.OrderPayload
	failOn   int
}

func (o *orderRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.Equal(o.t, http.MethodPost, r.Method)
	assert.Equal(o.t, "application/json", r.Header.Get("Content-Type"))

	var p rapi.OrderPayload
	require.NoError(o.t, json.NewDecoder(r.Body).Decode(&p))

	o.mu.Lock()
	o.payloads = append(o.payloads, p)
	n := len(o.payloads)
	o.mu.Unlock()

	if n == o.failOn {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	items := make([]map[string]any, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, map[string]any{
			"itemId":       "item-" + string(it.RecordID),
			"orderId":      fmt.Sprintf("order-%d", n),
			"recordId":     it.RecordID,
			"collectionId": it.CollectionID,
			"status":       "SUBMITTED",
			"priority":     it.Priority,
		})
	}
	writeJSON(o.t, w, map[string]any{"items": items})
}

func makeRecords(collection string, n int) []*rapi.Record {
	out := make([]*rapi.Record, 0, n)
	for i := range n {
		out = append(out, &rapi.Record{RecordID: rapi.ID(fmt.Sprint(i)), CollectionID: collection})
	}
	return out
}

func TestOrderBatches(t *testing.T) {
	f := newFakeRAPI(t)
	rec := &orderRecorder{t: t}
	f.handle("/order", rec.ServeHTTP)

	metrics := newCountingRecorder()
	c := f.client(WithMetrics(metrics))
	c.now = func() time.Time { return fixedNow }

	items, err := c.Order(context.Background(), OrderRequest{Records: makeRecords("RCMImageProducts", 250)})
	require.NoError(t, err)
	require.Len(t, items, 250)

	require.Len(t, rec.payloads, 3)
	assert.Len(t, rec.payloads[0].Items, 100)
	assert.Len(t, rec.payloads[1].Items, 100)
	assert.Len(t, rec.payloads[2].Items, 50)
	assert.NotNil(t, rec.payloads[0].Destinations)
	assert.Equal(t, rapi.ID("100"), rec.payloads[1].Items[0].RecordID)

	stamp := fixedNow.Local().Format(time.RFC3339Nano)
	for _, it := range items {
		assert.Equal(t, stamp, it.DateRapiOrdered)
	}
	assert.Equal(t, 250, metrics.orderItems["SUBMITTED"])
}

func TestOrderPartialFailure(t *testing.T) {
	f := newFakeRAPI(t)
	rec := &orderRecorder{t: t, failOn: 2}
	f.handle("/order", rec.ServeHTTP)

	items, err := f.client().Order(context.Background(), OrderRequest{Records: makeRecords("RCMImageProducts", 150)})
	require.Error(t, err)
	assert.Equal(t, KindBadRequest, kindOf(err))
	assert.Len(t, items, 100, "items of accepted batches are kept")
}

func TestOrderParametersAndPriority(t *testing.T) {
	f := newFakeRAPI(t)
	rec := &orderRecorder{t: t}
	f.handle("/order", rec.ServeHTTP)
	c := f.client()

	napl := makeRecords("NAPL", 2)
	napl[1].Priority = "urgent"
	napl[1].Parameters = []map[string]string{{"Format": "TIFF"}}

	_, err := c.Order(context.Background(), OrderRequest{
		Records:    napl,
		Priority:   "HIGH",
		Parameters: []map[string]string{{"Format": "JPEG"}},
	})
	require.NoError(t, err)

	got := rec.payloads[0].Items
	assert.Equal(t, rapi.PriorityHigh, got[0].Priority)
	assert.Equal(t, []map[string]string{{"Format": "JPEG"}, {"MediaType": "DIGITAL"}, {"FreeMode": "true"}}, got[0].Parameters)
	assert.Equal(t, rapi.PriorityUrgent, got[1].Priority)
	assert.Equal(t, []map[string]string{{"Format": "TIFF"}, {"MediaType": "DIGITAL"}, {"FreeMode": "true"}}, got[1].Parameters)

	_, err = c.Order(context.Background(), OrderRequest{Records: makeRecords("RCMImageProducts", 1), Priority: "asap"})
	require.NoError(t, err)
	assert.Equal(t, rapi.PriorityMedium, rec.payloads[1].Items[0].Priority)
	assert.Nil(t, rec.payloads[1].Items[0].Parameters)

	_, err = c.Order(context.Background(), OrderRequest{})
	require.Error(t, err)
}

func TestSubmitOrderPayload(t *testing.T) {
	f := newFakeRAPI(t)
	rec := &orderRecorder{t: t}
	f.handle("/order", rec.ServeHTTP)

	payload := rapi.OrderPayload{Items: []rapi.OrderItemRequest{
		{CollectionID: "RCMImageProducts", RecordID: "1", Priority: rapi.PriorityLow},
		{CollectionID: "RCMImageProducts", RecordID: "2"},
	}}
	items, err := f.client().SubmitOrderPayload(context.Background(), payload, "urgent")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	for _, it := range rec.payloads[0].Items {
		assert.Equal(t, rapi.PriorityUrgent, it.Priority)
	}
	assert.Equal(t, rapi.PriorityLow, payload.Items[0].Priority, "caller payload is not modified")
}

func orderItem(item, order, record, submitted string) *rapi.OrderItem {
	return &rapi.OrderItem{
		ItemID:        rapi.ID(item),
		OrderID:       rapi.ID(order),
		RecordID:      rapi.ID(record),
		CollectionID:  "RCMImageProducts",
		DateSubmitted: submitted,
	}
}

func TestRemoveDuplicateOrders(t *testing.T) {
	sar1 := orderItem("s1", "o3", "r1", "2024-01-01T00:00:00Z")
	sar1.Parameters = map[string]any{"Vap_Request_UUID": "abc"}
	sar2 := orderItem("s2", "o3", "r1", "2024-01-01T00:00:00Z")
	sar2.Parameters = map[string]any{"Vap_Request_UUID": "def"}

	items := []*rapi.OrderItem{
		orderItem("a", "o1", "r1", "2024-01-01T00:00:00Z"),
		orderItem("b", "o1", "r2", "2024-01-01T00:00:00Z"),
		orderItem("c", "o2", "r1", "2024-02-01T00:00:00Z"),
		orderItem("c", "o2", "r1", "2024-02-01T00:00:00Z"),
		orderItem("d", "o2", "r2", "2023-12-01T00:00:00Z"),
		sar1,
		sar2,
		nil,
	}

	got := RemoveDuplicateOrders(items)
	ids := make([]rapi.ID, 0, len(got))
	for _, it := range got {
		ids = append(ids, it.ItemID)
	}
	assert.Equal(t, []rapi.ID{"c", "b", "s1", "s2"}, ids)
}

func TestRemoveDuplicateOrders_EqualTimesKeepLater(t *testing.T) {
	stamped := func(item string, stamp string) *rapi.OrderItem {
		it := orderItem(item, "o1", "9", "")
		it.DateRapiOrdered = stamp
		return it
	}

	t.Run("same stamp", func(t *testing.T) {
		got := RemoveDuplicateOrders([]*rapi.OrderItem{
			stamped("first", "2024-03-10T12:00:00Z"),
			stamped("second", "2024-03-10T12:00:00Z"),
		})
		require.Len(t, got, 1)
		assert.Equal(t, rapi.ID("second"), got[0].ItemID)
	})

	t.Run("no stamps", func(t *testing.T) {
		got := RemoveDuplicateOrders([]*rapi.OrderItem{stamped("first", ""), stamped("second", "")})
		require.Len(t, got, 1)
		assert.Equal(t, rapi.ID("second"), got[0].ItemID)
	})

	t.Run("sub-second stamps", func(t *testing.T) {
		got := RemoveDuplicateOrders([]*rapi.OrderItem{
			stamped("newer", "2024-03-10T12:00:00.5Z"),
			stamped("older", "2024-03-10T12:00:00.1Z"),
		})
		require.Len(t, got, 1)
		assert.Equal(t, rapi.ID("newer"), got[0].ItemID)
	})
}

func TestGetOrdersByRecords(t *testing.T) {
	t.Run("from order listing", func(t *testing.T) {
		f := newFakeRAPI(t)
		f.handle("/order", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "100", r.URL.Query().Get("maxOrders"))
			writeJSON(t, w, map[string]any{"items": []*rapi.OrderItem{
				orderItem("a", "o1", "1", "2024-01-01T00:00:00Z"),
				orderItem("b", "o2", "1", "2024-03-01T00:00:00Z"),
				orderItem("c", "o3", "2", "2024-02-01T00:00:00Z"),
			}})
		})

		found, unfound, err := f.client().GetOrdersByRecords(context.Background(), makeRecords("RCMImageProducts", 3))
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, rapi.ID("b"), found[0].ItemID)
		assert.Equal(t, rapi.ID("c"), found[1].ItemID)
		assert.Equal(t, []rapi.ID{"0"}, unfound)
	})

	t.Run("from record order ids", func(t *testing.T) {
		f := newFakeRAPI(t)
		var mu sync.Mutex
		var orderIDs []string
		f.handle("/order", func(w http.ResponseWriter, r *http.Request) {
			id := r.URL.Query().Get("orderId")
			mu.Lock()
			orderIDs = append(orderIDs, id)
			mu.Unlock()
			if id == "broken" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(t, w, map[string]any{"items": []*rapi.OrderItem{
				orderItem("item-"+id, id, "1", "2024-01-01T00:00:00Z"),
			}})
		})

		recs := makeRecords("RCMImageProducts", 3)
		recs[0].AdditionalFields = map[string]any{"orderId": "broken"}
		recs[1].AdditionalFields = map[string]any{"orderId": float64(77)}
		recs[2].AdditionalFields = map[string]any{"orderId": float64(77)}

		found, unfound, err := f.client().GetOrdersByRecords(context.Background(), recs)
		require.NoError(t, err)
		assert.Equal(t, []string{"broken", "77"}, orderIDs, "each order fetched once")
		require.Len(t, found, 1)
		assert.Equal(t, rapi.ID("item-77"), found[0].ItemID)
		assert.Equal(t, []rapi.ID{"0", "2"}, unfound)
	})
}

func TestListOrders(t *testing.T) {
	f := newFakeRAPI(t)
	var lastQuery map[string][]string
	f.handle("/order", func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.Query()
		a := orderItem("a", "o1", "1", "")
		a.Status = rapi.StatusAvailable
		b := orderItem("b", "o1", "2", "")
		b.Status = rapi.StatusSubmitted
		writeJSON(t, w, map[string]any{"items": []*rapi.OrderItem{a, b}})
	})
	c := f.client()
	c.now = func() time.Time { return fixedNow }

	items, err := c.ListOrders(context.Background(), ListOrdersParams{
		Start:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxOrders: 5,
		Status:    "available_for_download",
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, rapi.ID("a"), items[0].ItemID)

	assert.Equal(t, "2024-03-01T00:00:00Z", lastQuery["dtstart"][0])
	assert.Equal(t, "2024-03-10T12:00:00Z", lastQuery["dtend"][0])
	assert.Equal(t, "5", lastQuery["maxOrders"][0])
	assert.Equal(t, "AVAILABLE_FOR_DOWNLOAD", lastQuery["status"][0])
	assert.Equal(t, "json", lastQuery["format"][0])

	_, err = c.ListOrders(context.Background(), ListOrdersParams{End: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-10T12:00:00Z", lastQuery["dtstart"][0])
	assert.NotContains(t, lastQuery, "status")
}

func TestGetOrderItem(t *testing.T) {
	f := newFakeRAPI(t)
	f.handle("/order", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("itemId") == "9" {
			writeJSON(t, w, map[string]any{"items": []*rapi.OrderItem{orderItem("9", "7", "1", "")}})
			return
		}
		writeJSON(t, w, map[string]any{"items": []any{}})
	})
	c := f.client()

	it, err := c.GetOrderItem(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, rapi.ID("7"), it.OrderID)

	_, err = c.GetOrderItem(context.Background(), "10")
	assert.True(t, IsNotFound(err))
}

func TestCancelOrderItem(t *testing.T) {
	f := newFakeRAPI(t)
	f.handle("/order/7/9", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, f.client().CancelOrderItem(context.Background(), "7", "9"))
	assert.Equal(t, 1, f.callCount("/order/7/9"))
}

func TestGetOrderParameters(t *testing.T) {
	f := newFakeRAPI(t)
	f.handle("/order/params/RCMImageProducts/13", rawJSONHandler(`{"fields":[{"id":"Format"}]}`))

	raw, err := f.client().GetOrderParameters(context.Background(), "rcm", "13")
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":[{"id":"Format"}]}`, string(raw))
}
