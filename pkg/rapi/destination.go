package rapi

import (
	"errors"
	"strings"
)

// DestinationType selects how an order is delivered.
type DestinationType string

const (
	DestinationFTP      DestinationType = "FTP"
	DestinationPhysical DestinationType = "Physical"
)

// Destination is an order delivery target. The same shape is used for the
// destinations attached to order items, where StringValue carries an HTML
// anchor pointing at the delivered file.
type Destination struct {
	Type        DestinationType `json:"type"`
	Name        string          `json:"name,omitempty"`
	StringValue string          `json:"stringValue,omitempty"`

	// FTP
	Hostname string `json:"hostname,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Path     string `json:"path,omitempty"`
	CanEdit  string `json:"canEdit,omitempty"`

	// Physical
	CustomerName   string `json:"customerName,omitempty"`
	ContactEmail   string `json:"contactEmail,omitempty"`
	Organization   string `json:"organization,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Addr1          string `json:"addr1,omitempty"`
	Addr2          string `json:"addr2,omitempty"`
	Addr3          string `json:"addr3,omitempty"`
	City           string `json:"city,omitempty"`
	StateProv      string `json:"stateProv,omitempty"`
	Country        string `json:"country,omitempty"`
	PostalCode     string `json:"postalCode,omitempty"`
	Classification string `json:"classification,omitempty"`
}

var (
	ErrDestinationName      = errors.New("rapi: destination name is required")
	ErrDestinationType      = errors.New("rapi: destination type must be FTP or Physical")
	ErrDestinationAddresses = errors.New("rapi: physical destination needs 1 to 3 address lines")
)

// SetAddresses fills Addr1..Addr3.
func (d *Destination) SetAddresses(addrs []string) error {
	if len(addrs) == 0 || len(addrs) > 3 {
		return ErrDestinationAddresses
	}
	slots := []*string{&d.Addr1, &d.Addr2, &d.Addr3}
	for i, a := range addrs {
		*slots[i] = a
	}
	return nil
}

// Validate checks the fields required for creating or updating the
// destination.
func (d *Destination) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrDestinationName
	}
	switch {
	case strings.EqualFold(string(d.Type), string(DestinationFTP)):
		d.Type = DestinationFTP
		if d.Hostname == "" {
			return errors.New("rapi: ftp destination needs a hostname")
		}
	case strings.EqualFold(string(d.Type), string(DestinationPhysical)):
		d.Type = DestinationPhysical
		if d.Addr1 == "" {
			return ErrDestinationAddresses
		}
		if d.CustomerName == "" || d.ContactEmail == "" || d.City == "" || d.Country == "" {
			return errors.New("rapi: physical destination needs customerName, contactEmail, city and country")
		}
	default:
		return ErrDestinationType
	}
	return nil
}
