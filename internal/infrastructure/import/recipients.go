package csvimport

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Recipient column aliases, after header normalization
var recipientColumns = map[string][]string{
	"name":          {"name", "full_name", "recipient", "recipient_name"},
	"address_line1": {"address_line1", "address_line_1", "address1", "address", "line1", "street"},
	"city":          {"city", "town"},
	"state":         {"state", "st", "state_code"},
	"zip":           {"zip", "zip_code", "zipcode", "postal_code"},
}

var optionalRecipientColumns = map[string][]string{
	"address_line2": {"address_line2", "address_line_2", "address2", "line2", "apt", "suite"},
	"country":       {"country", "country_code"},
	"email":         {"email", "email_address"},
	"phone":         {"phone", "phone_number"},
	"profile_id":    {"profile_id", "customer_id"},
}

// RecipientRecord is one CSV row mapped onto recipient fields. Columns that
// are not recipient fields become merge fields.
type RecipientRecord struct {
	Line        int
	Name        string
	Line1       string
	Line2       string
	City        string
	State       string
	Zip         string
	Country     string
	Email       string
	Phone       string
	ProfileID   string
	MergeFields map[string]string
}

// ReadRecipients parses a recipient CSV. File-level problems (encoding,
// missing header, missing required columns, row limit) are returned as an
// error; row contents are validated by the caller.
func ReadRecipients(r io.Reader, maxRows int) ([]RecipientRecord, error) {
	parser, err := NewCSVParser(r, WithMaxRows(maxRows))
	if err != nil {
		return nil, err
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, err
	}
	if missing := parser.MissingHeaders(recipientColumns); len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: missing columns %s", ErrMissingHeader, strings.Join(missing, ", "))
	}

	known := make(map[string]bool)
	for _, group := range []map[string][]string{recipientColumns, optionalRecipientColumns} {
		for _, aliases := range group {
			for _, a := range aliases {
				known[a] = true
			}
		}
	}

	rows, err := parser.ReadAllRows()
	if err != nil {
		return nil, err
	}

	records := make([]RecipientRecord, 0, len(rows))
	for _, row := range rows {
		rec := RecipientRecord{
			Line:      row.LineNumber,
			Name:      row.First(recipientColumns["name"]...),
			Line1:     row.First(recipientColumns["address_line1"]...),
			Line2:     row.First(optionalRecipientColumns["address_line2"]...),
			City:      row.First(recipientColumns["city"]...),
			State:     row.First(recipientColumns["state"]...),
			Zip:       row.First(recipientColumns["zip"]...),
			Country:   row.First(optionalRecipientColumns["country"]...),
			Email:     row.First(optionalRecipientColumns["email"]...),
			Phone:     row.First(optionalRecipientColumns["phone"]...),
			ProfileID: row.First(optionalRecipientColumns["profile_id"]...),
		}
		for header, value := range row.Data {
			if known[header] || value == "" {
				continue
			}
			if rec.MergeFields == nil {
				rec.MergeFields = make(map[string]string)
			}
			rec.MergeFields[header] = value
		}
		records = append(records, rec)
	}
	return records, nil
}
