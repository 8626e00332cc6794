package mailvendor

import (
	"strings"
	"time"

	"github.com/postcard/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// vendorAddress is the address block in postcard requests and responses
type vendorAddress struct {
	Name           string `json:"name,omitempty"`
	AddressLine1   string `json:"address_line1"`
	AddressLine2   string `json:"address_line2,omitempty"`
	AddressCity    string `json:"address_city"`
	AddressState   string `json:"address_state"`
	AddressZip     string `json:"address_zip"`
	AddressCountry string `json:"address_country,omitempty"`
}

func newVendorAddress(name string, a valueobject.PostalAddress) vendorAddress {
	return vendorAddress{
		Name:           name,
		AddressLine1:   a.Line1(),
		AddressLine2:   a.Line2(),
		AddressCity:    a.City(),
		AddressState:   a.State(),
		AddressZip:     a.Zip(),
		AddressCountry: a.Country(),
	}
}

// postcardRequest is the body of POST /postcards
type postcardRequest struct {
	Description    string            `json:"description,omitempty"`
	To             vendorAddress     `json:"to"`
	From           *vendorAddress    `json:"from,omitempty"`
	Front          string            `json:"front"`
	Back           string            `json:"back"`
	Size           string            `json:"size"`
	MailType       string            `json:"mail_type"`
	UseType        string            `json:"use_type"`
	MergeVariables map[string]string `json:"merge_variables,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// trackingEvent is one USPS scan reported by the vendor
type trackingEvent struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Time        string `json:"time"`
	DateCreated string `json:"date_created"`
}

// postcardResponse is the postcard object returned by the vendor
type postcardResponse struct {
	ID                   string          `json:"id"`
	URL                  string          `json:"url"`
	Status               string          `json:"status"`
	ExpectedDeliveryDate string          `json:"expected_delivery_date"`
	DateCreated          string          `json:"date_created"`
	Price                string          `json:"price"`
	Deleted              bool            `json:"deleted"`
	TrackingEvents       []trackingEvent `json:"tracking_events"`
}

// errorEnvelope is the vendor's error body
type errorEnvelope struct {
	Error struct {
		Message    string `json:"message"`
		StatusCode int    `json:"status_code"`
		Code       string `json:"code"`
	} `json:"error"`
}

// currentStatus is the explicit status when present, otherwise the name of
// the latest tracking event
func (p *postcardResponse) currentStatus() string {
	if p.Deleted {
		return "failed"
	}
	if p.Status != "" {
		return p.Status
	}
	if n := len(p.TrackingEvents); n > 0 {
		return strings.ToLower(p.TrackingEvents[n-1].Name)
	}
	return ""
}

// priceCents parses a dollar price like "0.87"; unparseable values are 0
func (p *postcardResponse) priceCents() int64 {
	if p.Price == "" {
		return 0
	}
	d, err := decimal.NewFromString(p.Price)
	if err != nil {
		return 0
	}
	return d.Shift(2).Round(0).IntPart()
}

func parseVendorDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
