package rapi

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LabelValue is one entry of a record's "metadata2" list.
type LabelValue struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Record is a search result or single-record response in the raw form the
// service returns it.
type Record struct {
	RecordID        ID              `json:"recordId"`
	CollectionID    string          `json:"collectionId"`
	Title           string          `json:"title,omitempty"`
	CollectionTitle string          `json:"collectionTitle,omitempty"`
	Geometry        json.RawMessage `json:"geometry,omitempty"`
	ThisRecordURL   string          `json:"thisRecordUrl,omitempty"`
	OverviewURL     string          `json:"overviewUrl,omitempty"`
	ThumbnailURL    string          `json:"thumbnailUrl,omitempty"`
	MetadataURL     string          `json:"metadataUrl,omitempty"`
	RAPIOrderURL    string          `json:"rapiOrderUrl,omitempty"`
	OrderExecuteURL string          `json:"orderExecuteUrl,omitempty"`
	IsGeorectified  *bool           `json:"isGeorectified,omitempty"`
	IsOrderable     *bool           `json:"isOrderable,omitempty"`

	// Metadata holds [label, value] pairs for the requested result fields.
	Metadata [][]any `json:"metadata,omitempty"`
	// Metadata2 holds the complete labelled metadata of a single record.
	Metadata2 []LabelValue `json:"metadata2,omitempty"`

	// Priority and Parameters are client-side order hints. When set they
	// override the defaults passed to an order submission.
	Priority   string              `json:"priority,omitempty"`
	Parameters []map[string]string `json:"parameters,omitempty"`

	// AdditionalFields holds members not modelled above.
	AdditionalFields map[string]any `json:"-"`
}

var knownRecordFields = map[string]bool{
	"recordId": true, "collectionId": true, "title": true, "collectionTitle": true,
	"geometry": true, "thisRecordUrl": true, "overviewUrl": true, "thumbnailUrl": true,
	"metadataUrl": true, "rapiOrderUrl": true, "orderExecuteUrl": true,
	"isGeorectified": true, "isOrderable": true, "metadata": true, "metadata2": true,
	"priority": true, "parameters": true,
}

// UnmarshalJSON implements custom unmarshaling to capture foreign members.
func (r *Record) UnmarshalJSON(data []byte) error {
	type recordAlias Record
	var aux recordAlias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux)

	extra, err := decodeForeign(data, knownRecordFields)
	if err != nil {
		return err
	}
	r.AdditionalFields = extra
	return nil
}

// MarshalJSON implements custom marshaling to include foreign members.
func (r Record) MarshalJSON() ([]byte, error) {
	type recordAlias Record
	data, err := json.Marshal(recordAlias(r))
	if err != nil {
		return nil, err
	}
	return encodeForeign(data, r.AdditionalFields)
}

// Key identifies the record across collections.
func (r *Record) Key() string {
	return fmt.Sprintf("%s/%s", r.CollectionID, r.RecordID)
}

// Flatten converts the record into its flattened form. Every key is passed
// through conv; a nil conv keeps keys as they are.
//
// The record and collection ids and the geometry come first, followed by the
// remaining top-level members and then the labelled metadata. Labels that
// collide with the leading three keys are dropped.
func (r *Record) Flatten(conv func(string) string) *Metadata {
	if conv == nil {
		conv = func(s string) string { return s }
	}

	m := NewMetadata()
	m.Set(conv("recordId"), string(r.RecordID))
	m.Set(conv("collectionId"), r.CollectionID)
	if len(r.Geometry) > 0 {
		var g any
		if err := json.Unmarshal(r.Geometry, &g); err == nil {
			m.Set(conv("geometry"), g)
		}
	}
	exclude := map[string]bool{
		conv("recordId"): true, conv("collectionId"): true, conv("geometry"): true,
	}

	set := func(key string, v any) {
		k := conv(key)
		if exclude[k] {
			return
		}
		m.Set(k, v)
	}

	for _, kv := range []struct {
		key string
		val string
	}{
		{"title", r.Title},
		{"collectionTitle", r.CollectionTitle},
		{"thisRecordUrl", r.ThisRecordURL},
		{"overviewUrl", r.OverviewURL},
		{"thumbnailUrl", r.ThumbnailURL},
		{"metadataUrl", r.MetadataURL},
		{"rapiOrderUrl", r.RAPIOrderURL},
		{"orderExecuteUrl", r.OrderExecuteURL},
	} {
		if kv.val != "" {
			set(kv.key, kv.val)
		}
	}
	if r.IsGeorectified != nil {
		set("isGeorectified", *r.IsGeorectified)
	}
	if r.IsOrderable != nil {
		set("isOrderable", *r.IsOrderable)
	}

	keys := make([]string, 0, len(r.AdditionalFields))
	for k := range r.AdditionalFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k, r.AdditionalFields[k])
	}

	if len(r.Metadata2) > 0 {
		for _, lv := range r.Metadata2 {
			set(lv.Label, lv.Value)
		}
		return m
	}
	for _, pair := range r.Metadata {
		if len(pair) < 2 {
			continue
		}
		label, ok := pair[0].(string)
		if !ok {
			continue
		}
		set(label, pair[1])
	}
	return m
}
