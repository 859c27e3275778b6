package rapi

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// OrderStatus is the service-side state of an order item.
type OrderStatus string

const (
	StatusSubmitted           OrderStatus = "SUBMITTED"
	StatusProcessing          OrderStatus = "PROCESSING"
	StatusAvailable           OrderStatus = "AVAILABLE_FOR_DOWNLOAD"
	StatusCancelled           OrderStatus = "CANCELLED"
	StatusFailed              OrderStatus = "FAILED"
	StatusExpired             OrderStatus = "EXPIRED"
	StatusDelivered           OrderStatus = "DELIVERED"
	StatusMediaOrderSubmitted OrderStatus = "MEDIA_ORDER_SUBMITTED"
	StatusAwaitingPayment     OrderStatus = "AWAITING_PAYMENT"
)

// IsFailed reports whether the status is one from which no download will
// ever be possible.
func (s OrderStatus) IsFailed() bool {
	switch s {
	case StatusCancelled, StatusFailed, StatusExpired, StatusDelivered,
		StatusMediaOrderSubmitted, StatusAwaitingPayment:
		return true
	}
	return false
}

// Priority is the processing priority of an order item.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

var titleCaser = cases.Title(language.Und)

// ParsePriority normalises s ("urgent", "HIGH", ...) to a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(titleCaser.String(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("rapi: invalid priority %q", s)
}

// Manifest maps delivered file paths to their sizes in bytes.
type Manifest map[string]int64

// UnmarshalJSON accepts sizes encoded as numbers or numeric strings.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Manifest, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case float64:
			out[k] = int64(t)
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
			if err != nil {
				return fmt.Errorf("rapi: manifest size for %q: %w", k, err)
			}
			out[k] = n
		}
	}
	*m = out
	return nil
}

// SizeOf returns the declared size of the file named name. When no entry
// matches, the last entry in key order is used.
func (m Manifest) SizeOf(name string) (int64, bool) {
	for k, v := range m {
		if path.Base(k) == name {
			return v, true
		}
	}
	if len(m) > 0 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return m[keys[len(keys)-1]], true
	}
	return 0, false
}

// DownloadPath records where a delivered artefact was written.
type DownloadPath struct {
	URL              string `json:"url"`
	LocalDestination string `json:"local_destination"`
}

// OrderItem is one unit of a submitted order.
type OrderItem struct {
	ItemID          ID             `json:"itemId"`
	OrderID         ID             `json:"orderId"`
	RecordID        ID             `json:"recordId"`
	CollectionID    string         `json:"collectionId"`
	Status          OrderStatus    `json:"status,omitempty"`
	StatusMessage   string         `json:"statusMessage,omitempty"`
	Priority        string         `json:"priority,omitempty"`
	DateSubmitted   string         `json:"dateSubmitted,omitempty"`
	DateRapiOrdered string         `json:"dateRapiOrdered,omitempty"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Destinations    []Destination  `json:"destinations,omitempty"`
	Manifest        Manifest       `json:"manifest,omitempty"`

	Downloaded    bool           `json:"downloaded,omitempty"`
	DownloadPaths []DownloadPath `json:"downloadPaths,omitempty"`

	// AdditionalFields holds members not modelled above.
	AdditionalFields map[string]any `json:"-"`
}

var knownOrderItemFields = map[string]bool{
	"itemId": true, "orderId": true, "recordId": true, "collectionId": true,
	"status": true, "statusMessage": true, "priority": true, "dateSubmitted": true,
	"dateRapiOrdered": true, "parameters": true, "destinations": true,
	"manifest": true, "downloaded": true, "downloadPaths": true,
}

// UnmarshalJSON implements custom unmarshaling to capture foreign members.
func (o *OrderItem) UnmarshalJSON(data []byte) error {
	type orderItemAlias OrderItem
	var aux orderItemAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*o = OrderItem(aux)

	extra, err := decodeForeign(data, knownOrderItemFields)
	if err != nil {
		return err
	}
	o.AdditionalFields = extra
	return nil
}

// MarshalJSON implements custom marshaling to include foreign members.
func (o OrderItem) MarshalJSON() ([]byte, error) {
	type orderItemAlias OrderItem
	data, err := json.Marshal(orderItemAlias(o))
	if err != nil {
		return nil, err
	}
	return encodeForeign(data, o.AdditionalFields)
}

// Parameter returns the named item parameter rendered as a string.
func (o *OrderItem) Parameter(name string) (string, bool) {
	v, ok := o.Parameters[name]
	if !ok || v == nil {
		return "", false
	}
	return scalarString(v), true
}

// IsSARToolbox reports whether the item is a SAR Toolbox request. Such
// items are never collapsed by record id.
func (o *OrderItem) IsSARToolbox() bool {
	_, ok := o.Parameters["Vap_Request_UUID"]
	return ok
}

// ParentItemID returns the id of the item this one was derived from.
func (o *OrderItem) ParentItemID() ID {
	v, _ := o.Parameter("ParentItemId")
	return ID(v)
}

// SubmittedAt returns the best known submission time: the service's
// dateSubmitted if it parses, else the local dateRapiOrdered stamp.
func (o *OrderItem) SubmittedAt() time.Time {
	for _, s := range []string{o.DateSubmitted, o.DateRapiOrdered} {
		if t, ok := parseTimestamp(s); ok {
			return t
		}
	}
	return time.Time{}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999Z0700",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// OrderItemRequest is one item of an order submission.
type OrderItemRequest struct {
	CollectionID string              `json:"collectionId"`
	RecordID     ID                  `json:"recordId"`
	Priority     Priority            `json:"priority,omitempty"`
	Parameters   []map[string]string `json:"parameters,omitempty"`
}

// OrderPayload is the body of POST /order.
type OrderPayload struct {
	Destinations []Destination      `json:"destinations"`
	Items        []OrderItemRequest `json:"items"`
}

// OrderResponse wraps the item list returned by the order endpoints.
type OrderResponse struct {
	Items []*OrderItem `json:"items"`
}
