package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-rapi-client/pkg/rapi"
)

// orderBatchSize is the most items the service accepts in one order.
const orderBatchSize = 100

const orderTimeLayout = "2006-01-02T15:04:05Z"

// OrderRequest describes an order for a set of search records.
type OrderRequest struct {
	Records []*rapi.Record
	// Priority is the default priority. Records with their own Priority
	// override it. Empty means Medium; an invalid value falls back to
	// Medium with a warning.
	Priority string
	// Parameters are the default order parameters. Records with their own
	// Parameters override them.
	Parameters   []map[string]string
	Destinations []rapi.Destination
}

// forcedParameters are appended to every item of the listed collections.
var forcedParameters = map[string][]map[string]string{
	"NAPL": {{"MediaType": "DIGITAL"}, {"FreeMode": "true"}},
}

// Order submits an order for req.Records in batches of at most 100 items.
// Every returned item carries a local dateRapiOrdered stamp. When a batch
// fails, the items of the batches already accepted are returned with the
// error.
func (c *Client) Order(ctx context.Context, req OrderRequest) ([]*rapi.OrderItem, error) {
	if len(req.Records) == 0 {
		return nil, errors.New("rapi: no records to order")
	}
	log := c.logger.Named("order")

	items := make([]rapi.OrderItemRequest, 0, len(req.Records))
	for _, r := range req.Records {
		items = append(items, c.orderItemRequest(log, r, req))
	}

	destinations := req.Destinations
	if destinations == nil {
		destinations = []rapi.Destination{}
	}
	stamp := c.now().Local().Format(time.RFC3339Nano)

	var all []*rapi.OrderItem
	for start := 0; start < len(items); start += orderBatchSize {
		end := min(start+orderBatchSize, len(items))
		log.Info("submitting order items", zap.Int("from", start+1), zap.Int("to", end), zap.Int("total", len(items)))

		got, err := c.postOrder(ctx, rapi.OrderPayload{Destinations: destinations, Items: items[start:end]}, stamp)
		if err != nil {
			log.Error("order submission failed", zap.Error(err))
			return all, err
		}
		all = append(all, got...)
	}
	log.Info("order submitted successfully", zap.Int("items", len(all)))
	return all, nil
}

func (c *Client) orderItemRequest(log *zap.Logger, r *rapi.Record, req OrderRequest) rapi.OrderItemRequest {
	item := rapi.OrderItemRequest{
		CollectionID: r.CollectionID,
		RecordID:     r.RecordID,
		Priority:     resolvePriority(log, req.Priority, r.Priority),
	}

	params := req.Parameters
	if len(r.Parameters) > 0 {
		params = r.Parameters
	}
	forced := forcedParameters[r.CollectionID]
	if len(params) > 0 || len(forced) > 0 {
		item.Parameters = make([]map[string]string, 0, len(params)+len(forced))
		item.Parameters = append(item.Parameters, params...)
		item.Parameters = append(item.Parameters, forced...)
	}
	return item
}

func resolvePriority(log *zap.Logger, global, own string) rapi.Priority {
	for _, s := range []string{own, global} {
		if strings.TrimSpace(s) == "" {
			continue
		}
		p, err := rapi.ParsePriority(s)
		if err != nil {
			log.Warn("invalid priority; using Medium", zap.String("priority", s))
			return rapi.PriorityMedium
		}
		return p
	}
	return rapi.PriorityMedium
}

// SubmitOrderPayload sends a pre-built order. A non-empty priority replaces
// the priority of every item.
func (c *Client) SubmitOrderPayload(ctx context.Context, payload rapi.OrderPayload, priority string) ([]*rapi.OrderItem, error) {
	if priority != "" {
		p := resolvePriority(c.logger.Named("order"), priority, "")
		items := make([]rapi.OrderItemRequest, len(payload.Items))
		copy(items, payload.Items)
		for i := range items {
			items[i].Priority = p
		}
		payload.Items = items
	}
	if payload.Destinations == nil {
		payload.Destinations = []rapi.Destination{}
	}
	return c.postOrder(ctx, payload, c.now().Local().Format(time.RFC3339Nano))
}

func (c *Client) postOrder(ctx context.Context, payload rapi.OrderPayload, stamp string) ([]*rapi.OrderItem, error) {
	rawURL := c.endpoint("order", nil)
	data, err := c.do(ctx, http.MethodPost, rawURL, payload, c.orderTimeout)
	if err != nil {
		return nil, err
	}
	var resp rapi.OrderResponse
	if err := decodeJSON(data, rawURL, &resp); err != nil {
		return nil, err
	}
	for _, it := range resp.Items {
		it.DateRapiOrdered = stamp
		c.metrics.IncOrderItems(string(it.Status))
	}
	return resp.Items, nil
}

// GetOrderItem fetches a single order item.
func (c *Client) GetOrderItem(ctx context.Context, itemID rapi.ID) (*rapi.OrderItem, error) {
	items, err := c.orderQuery(ctx, url.Values{"itemId": {string(itemID)}}, c.orderTimeout)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &Error{Kind: KindNotFound, Messages: []string{fmt.Sprintf("order item %s not found.", itemID)}}
	}
	return items[0], nil
}

// GetOrder fetches the items of an order.
func (c *Client) GetOrder(ctx context.Context, orderID rapi.ID) ([]*rapi.OrderItem, error) {
	return c.orderQuery(ctx, url.Values{"orderId": {string(orderID)}}, c.queryTimeout)
}

func (c *Client) orderQuery(ctx context.Context, q url.Values, timeout time.Duration) ([]*rapi.OrderItem, error) {
	q.Set("format", "json")
	var resp rapi.OrderResponse
	if err := c.getJSON(ctx, c.endpoint("order", q), timeout, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// ListOrdersParams filters ListOrders.
type ListOrdersParams struct {
	// Start and End bound the submission time. A Start without End ends
	// now; an End without Start starts one month earlier.
	Start time.Time
	End   time.Time
	// MaxOrders defaults to 100.
	MaxOrders int
	Status    rapi.OrderStatus
}

// ListOrders returns the user's order items.
func (c *Client) ListOrders(ctx context.Context, p ListOrdersParams) ([]*rapi.OrderItem, error) {
	log := c.logger.Named("order")
	q := url.Values{}

	start, end := p.Start, p.End
	if !start.IsZero() && end.IsZero() {
		log.Warn("start date given without end date; using current time as end date")
		end = c.now()
	}
	if start.IsZero() && !end.IsZero() {
		log.Warn("end date given without start date; using one month before end date")
		start = end.AddDate(0, -1, 0)
	}
	if !start.IsZero() {
		q.Set("dtstart", start.UTC().Format(orderTimeLayout))
		q.Set("dtend", end.UTC().Format(orderTimeLayout))
	}

	maxOrders := p.MaxOrders
	if maxOrders <= 0 {
		maxOrders = 100
	}
	q.Set("maxOrders", strconv.Itoa(maxOrders))

	status := rapi.OrderStatus(strings.ToUpper(string(p.Status)))
	if status != "" {
		q.Set("status", string(status))
	}

	log.Info("getting list of orders",
		zap.String("status", string(status)),
		zap.String("dtstart", q.Get("dtstart")),
		zap.String("dtend", q.Get("dtend")))
	items, err := c.orderQuery(ctx, q, c.queryTimeout)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return items, nil
	}
	out := items[:0]
	for _, it := range items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out, nil
}

// GetOrdersFor fetches the current state of every order referenced by
// items, once per distinct order id. Orders that cannot be fetched are
// logged and skipped; authentication failures and cancellation are
// returned.
func (c *Client) GetOrdersFor(ctx context.Context, items []*rapi.OrderItem) ([]*rapi.OrderItem, error) {
	ids := make([]rapi.ID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.OrderID)
	}
	return c.ordersByID(ctx, ids)
}

func (c *Client) ordersByID(ctx context.Context, ids []rapi.ID) ([]*rapi.OrderItem, error) {
	seen := make(map[rapi.ID]bool)
	var all []*rapi.OrderItem
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		got, err := c.GetOrder(ctx, id)
		if err != nil {
			if IsAuth(err) || kindOf(err) == KindCanceled || ctx.Err() != nil {
				return all, err
			}
			c.logger.Warn("could not get order", zap.String("order", string(id)), zap.Error(err))
			continue
		}
		all = append(all, got...)
	}
	return all, nil
}

// GetOrdersByRecords finds the most recent order item of each record. When
// every record carries an orderId member only those orders are fetched;
// otherwise the default order listing is searched. Records without any
// order item are returned in unfound.
func (c *Client) GetOrdersByRecords(ctx context.Context, records []*rapi.Record) (found []*rapi.OrderItem, unfound []rapi.ID, err error) {
	if len(records) == 0 {
		return nil, nil, errors.New("rapi: no records given")
	}

	var orders []*rapi.OrderItem
	if ids, ok := recordOrderIDs(records); ok {
		orders, err = c.ordersByID(ctx, ids)
	} else {
		orders, err = c.ListOrders(ctx, ListOrdersParams{})
	}
	if err != nil {
		return nil, nil, err
	}

	for _, r := range records {
		var latest *rapi.OrderItem
		for _, o := range orders {
			if o.RecordID != r.RecordID {
				continue
			}
			if latest == nil || o.SubmittedAt().After(latest.SubmittedAt()) {
				latest = o
			}
		}
		if latest == nil {
			unfound = append(unfound, r.RecordID)
			continue
		}
		found = append(found, latest)
	}

	c.logger.Info("order items found for records",
		zap.Int("found", len(found)),
		zap.Int("unfound", len(unfound)))
	return found, unfound, nil
}

func recordOrderIDs(records []*rapi.Record) ([]rapi.ID, bool) {
	ids := make([]rapi.ID, 0, len(records))
	for _, r := range records {
		v, ok := r.AdditionalFields["orderId"]
		if !ok || v == nil {
			return nil, false
		}
		switch t := v.(type) {
		case string:
			ids = append(ids, rapi.ID(t))
		case float64:
			ids = append(ids, rapi.ID(strconv.FormatFloat(t, 'f', -1, 64)))
		default:
			ids = append(ids, rapi.ID(fmt.Sprint(t)))
		}
	}
	return ids, true
}

// CancelOrderItem removes an item from an order.
func (c *Client) CancelOrderItem(ctx context.Context, orderID, itemID rapi.ID) error {
	rawURL := c.endpoint("order/"+url.PathEscape(string(orderID))+"/"+url.PathEscape(string(itemID)), nil)
	if _, err := c.do(ctx, http.MethodDelete, rawURL, nil, c.queryTimeout); err != nil {
		return err
	}
	c.logger.Info("order item removed", zap.String("order", string(orderID)), zap.String("item", string(itemID)))
	return nil
}

// GetOrderParameters returns the order parameters available for a record
// as the service describes them.
func (c *Client) GetOrderParameters(ctx context.Context, collection string, recordID rapi.ID) (json.RawMessage, error) {
	id, err := c.CollectionID(ctx, collection)
	if err != nil {
		return nil, err
	}
	rawURL := c.endpoint("order/params/"+url.PathEscape(id)+"/"+url.PathEscape(string(recordID)), jsonFormat)
	var raw json.RawMessage
	if err := c.getJSON(ctx, rawURL, c.queryTimeout, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// RemoveDuplicateOrders keeps one order item per record: the most recently
// submitted one, or the last listed when the times are equal. Repeated item
// ids are dropped and SAR Toolbox items are always kept. The result follows the order in which records first appear.
func RemoveDuplicateOrders(items []*rapi.OrderItem) []*rapi.OrderItem {
	out := make([]*rapi.OrderItem, 0, len(items))
	seenItem := make(map[rapi.ID]bool)
	byRecord := make(map[string]int)

	for _, it := range items {
		if it == nil {
			continue
		}
		if it.ItemID != "" {
			if seenItem[it.ItemID] {
				continue
			}
			seenItem[it.ItemID] = true
		}
		if it.IsSARToolbox() {
			out = append(out, it)
			continue
		}

		key := it.CollectionID + "/" + string(it.RecordID)
		if i, ok := byRecord[key]; ok {
			if !it.SubmittedAt().Before(out[i].SubmittedAt()) {
				out[i] = it
			}
			continue
		}
		byRecord[key] = len(out)
		out = append(out, it)
	}
	return out
}
