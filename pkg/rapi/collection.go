package rapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DataType is the declared type of a collection field.
type DataType string

const (
	DataTypeString        DataType = "String"
	DataTypeBoolean       DataType = "Boolean"
	DataTypeDateTimeRange DataType = "DateTimeRange"
	DataTypeInteger       DataType = "Integer"
	DataTypeDouble        DataType = "Double"
	DataTypeFloat         DataType = "Float"
	DataTypeLong          DataType = "Long"
)

// IsNumeric reports whether values of this type are emitted unquoted.
func (d DataType) IsNumeric() bool {
	switch d {
	case DataTypeInteger, DataTypeDouble, DataTypeFloat, DataTypeLong:
		return true
	}
	return false
}

// FieldGroup distinguishes searchable fields from result fields.
type FieldGroup string

const (
	SearchGroup FieldGroup = "search"
	ResultGroup FieldGroup = "results"
)

// Choice is one enumerated value of a field.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// UnmarshalJSON tolerates non-string values and fills an empty value
// from the label.
func (c *Choice) UnmarshalJSON(data []byte) error {
	var aux struct {
		Label any `json:"label"`
		Value any `json:"value"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.Label = scalarString(aux.Label)
	c.Value = scalarString(aux.Value)
	if c.Value == "" {
		c.Value = c.Label
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Field describes a single search or result field of a collection.
type Field struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	DataType    DataType `json:"datatype"`
	Description string   `json:"description,omitempty"`
	Choices     []Choice `json:"choices,omitempty"`
}

// Matches reports whether name refers to this field by title or id.
func (f *Field) Matches(name string) bool {
	return strings.EqualFold(f.Title, name) || strings.EqualFold(f.ID, name)
}

// ChoiceFor returns the choice whose label equals v.
func (f *Field) ChoiceFor(v string) (Choice, bool) {
	for _, c := range f.Choices {
		if c.Label == v {
			return c, true
		}
	}
	return Choice{}, false
}

// HasChoiceValue reports whether v is the (case-insensitive) value of one
// of the field's choices.
func (f *Field) HasChoiceValue(v string) bool {
	for _, c := range f.Choices {
		if strings.EqualFold(c.Value, v) {
			return true
		}
	}
	return false
}

// Collection is a RAPI collection together with its field catalog.
//
// The /collections endpoint returns a tree of grouping nodes; leaves carry a
// collectionId. The /collections/{id} endpoint fills SearchFields and
// ResultFields.
type Collection struct {
	ID           string        `json:"collectionId,omitempty"`
	Title        string        `json:"title"`
	Aliases      []string      `json:"aliases,omitempty"`
	SearchFields []*Field      `json:"searchFields,omitempty"`
	ResultFields []*Field      `json:"resultFields,omitempty"`
	Children     []*Collection `json:"children,omitempty"`
}

// CollectionAliases maps collection ids to the short names accepted in
// their place.
var CollectionAliases = map[string][]string{
	"RCMImageProducts": {"rcm"},
	"Radarsat1":        {"r1", "rs1", "radarsat", "radarsat-1"},
	"Radarsat2":        {"r2", "rs2", "radarsat-2"},
	"PlanetScope":      {"planet"},
}

// Leaves flattens the collection tree to the nodes that carry an id.
func (c *Collection) Leaves() []*Collection {
	var out []*Collection
	var walk func(*Collection)
	walk = func(n *Collection) {
		if n == nil {
			return
		}
		if n.ID != "" {
			out = append(out, n)
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(c)
	return out
}

// Matches reports whether name is the collection's id, title or one of its
// aliases. Comparison is case-insensitive.
func (c *Collection) Matches(name string) bool {
	if strings.EqualFold(c.ID, name) || strings.EqualFold(c.Title, name) {
		return true
	}
	for _, a := range c.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// HasFields reports whether the field catalog has been loaded.
func (c *Collection) HasFields() bool {
	return len(c.SearchFields) > 0 || len(c.ResultFields) > 0
}

// Fields returns the fields of the given group.
func (c *Collection) Fields(group FieldGroup) []*Field {
	if group == ResultGroup {
		return c.ResultFields
	}
	return c.SearchFields
}

// SearchField resolves a search field by exact title, then by id, then
// case-insensitively.
func (c *Collection) SearchField(name string) (*Field, bool) {
	return findField(c.SearchFields, name, false)
}

// ResultField resolves a result field. Besides the SearchField rules, a
// title containing name also matches.
func (c *Collection) ResultField(name string) (*Field, bool) {
	return findField(c.ResultFields, name, true)
}

func findField(fields []*Field, name string, partial bool) (*Field, bool) {
	for _, f := range fields {
		if f.Title == name {
			return f, true
		}
	}
	for _, f := range fields {
		if f.ID == name {
			return f, true
		}
	}
	for _, f := range fields {
		if f.Matches(name) {
			return f, true
		}
	}
	if partial && name != "" {
		for _, f := range fields {
			if strings.Contains(f.Title, name) {
				return f, true
			}
		}
	}
	return nil, false
}
