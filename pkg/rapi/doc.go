// Package rapi provides the wire types exchanged with the EODMS RAPI image
// catalog service.
//
// Records, order items and destinations keep "foreign members" (JSON fields
// the service adds that these types do not model) in AdditionalFields, so a
// value decoded from the service can be written back out without loss.
//
// Search records come in two shapes. A Record is the raw object returned by
// the service; Record.Flatten produces a Metadata, an ordered key/value view
// with every label renamed through a naming convention.
//
//	var rec rapi.Record
//	json.Unmarshal(data, &rec)
//
//	flat := rec.Flatten(nil)
//	v, _ := flat.Get("recordId")
package rapi
