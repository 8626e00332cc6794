package valueobject

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCountry is the only country the mail vendor accepts for this service.
const DefaultCountry = "US"

var zipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// PostalAddress is a value object representing a US postal address.
// It is immutable - all operations return new PostalAddress instances.
type PostalAddress struct {
	line1   string
	line2   string
	city    string
	state   string
	zip     string
	country string
}

// AddressOption is a functional option for configuring PostalAddress
type AddressOption func(*PostalAddress)

// WithLine2 sets the secondary address line (suite, apartment)
func WithLine2(line2 string) AddressOption {
	return func(a *PostalAddress) {
		a.line2 = strings.TrimSpace(line2)
	}
}

// WithCountry sets the country for the address
func WithCountry(country string) AddressOption {
	return func(a *PostalAddress) {
		a.country = strings.ToUpper(strings.TrimSpace(country))
	}
}

// NewPostalAddress creates a new PostalAddress.
// line1, city, a 2-letter state code and a 5 or 9 digit ZIP are required.
func NewPostalAddress(line1, city, state, zip string, opts ...AddressOption) (PostalAddress, error) {
	addr := PostalAddress{
		line1:   strings.TrimSpace(line1),
		city:    strings.TrimSpace(city),
		state:   strings.ToUpper(strings.TrimSpace(state)),
		zip:     strings.TrimSpace(zip),
		country: DefaultCountry,
	}
	for _, opt := range opts {
		opt(&addr)
	}
	if addr.country == "" {
		addr.country = DefaultCountry
	}

	if err := addr.validate(); err != nil {
		return PostalAddress{}, err
	}
	return addr, nil
}

// MustNewPostalAddress creates a new PostalAddress, panics on error
func MustNewPostalAddress(line1, city, state, zip string, opts ...AddressOption) PostalAddress {
	addr, err := NewPostalAddress(line1, city, state, zip, opts...)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a PostalAddress) validate() error {
	if a.line1 == "" {
		return fmt.Errorf("address line1 cannot be empty")
	}
	if len(a.line1) > 64 {
		return fmt.Errorf("address line1 cannot exceed 64 characters")
	}
	if len(a.line2) > 64 {
		return fmt.Errorf("address line2 cannot exceed 64 characters")
	}
	if a.city == "" {
		return fmt.Errorf("city cannot be empty")
	}
	if len(a.city) > 200 {
		return fmt.Errorf("city cannot exceed 200 characters")
	}
	if len(a.state) != 2 || !isASCIILetters(a.state) {
		return fmt.Errorf("state must be a 2-letter code, got %q", a.state)
	}
	if !zipPattern.MatchString(a.zip) {
		return fmt.Errorf("zip must be 5 digits or ZIP+4, got %q", a.zip)
	}
	if a.country != DefaultCountry {
		return fmt.Errorf("only US addresses are supported, got %q", a.country)
	}
	return nil
}

func isASCIILetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// EmptyPostalAddress returns an empty address (for optional address fields)
func EmptyPostalAddress() PostalAddress {
	return PostalAddress{}
}

// Line1 returns the primary address line
func (a PostalAddress) Line1() string { return a.line1 }

// Line2 returns the secondary address line
func (a PostalAddress) Line2() string { return a.line2 }

// City returns the city
func (a PostalAddress) City() string { return a.city }

// State returns the 2-letter state code
func (a PostalAddress) State() string { return a.state }

// Zip returns the ZIP code as entered (5 digits or ZIP+4)
func (a PostalAddress) Zip() string { return a.zip }

// Zip5 returns the 5-digit ZIP prefix
func (a PostalAddress) Zip5() string {
	if len(a.zip) >= 5 {
		return a.zip[:5]
	}
	return a.zip
}

// Country returns the ISO country code
func (a PostalAddress) Country() string { return a.country }

// IsEmpty returns true if the address has no primary line
func (a PostalAddress) IsEmpty() bool {
	return a.line1 == "" && a.city == "" && a.state == "" && a.zip == ""
}

// String returns a single-line representation of the address
func (a PostalAddress) String() string {
	if a.IsEmpty() {
		return ""
	}
	parts := []string{a.line1}
	if a.line2 != "" {
		parts = append(parts, a.line2)
	}
	parts = append(parts, a.city, a.state+" "+a.zip)
	return strings.Join(parts, ", ")
}

// Equals returns true if both addresses are equal
func (a PostalAddress) Equals(other PostalAddress) bool {
	return a == other
}

// NormalizedKey returns the comparison key for the complete address
// (line1, city, state, ZIP5), normalized so that cosmetic differences such as
// case, punctuation, accents or extra whitespace collapse to the same key.
func (a PostalAddress) NormalizedKey() string {
	if a.IsEmpty() {
		return ""
	}
	return NormalizeAddressText(strings.Join([]string{a.line1, a.city, a.state, a.Zip5()}, " "))
}

// NormalizeAddressText upper-cases, trims, strips punctuation and diacritics,
// and squeezes whitespace.
func NormalizeAddressText(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	out = cases.Upper(language.AmericanEnglish).String(out)

	var sb strings.Builder
	sb.Grow(len(out))
	for _, r := range out {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AddressDTO is a data transfer object used for JSON and storage
type AddressDTO struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country,omitempty"`
}

// ToDTO converts PostalAddress to AddressDTO
func (a PostalAddress) ToDTO() AddressDTO {
	return AddressDTO{
		Line1:   a.line1,
		Line2:   a.line2,
		City:    a.city,
		State:   a.state,
		Zip:     a.zip,
		Country: a.country,
	}
}

// ToPostalAddress converts the DTO to a validated PostalAddress.
// An all-empty DTO yields an empty address.
func (d AddressDTO) ToPostalAddress() (PostalAddress, error) {
	if d.Line1 == "" && d.City == "" && d.State == "" && d.Zip == "" {
		return EmptyPostalAddress(), nil
	}
	return NewPostalAddress(d.Line1, d.City, d.State, d.Zip, WithLine2(d.Line2), WithCountry(d.Country))
}

// MarshalJSON implements json.Marshaler
func (a PostalAddress) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.ToDTO())
}

// UnmarshalJSON implements json.Unmarshaler, applying the same validation as NewPostalAddress
func (a *PostalAddress) UnmarshalJSON(data []byte) error {
	var d AddressDTO
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	addr, err := d.ToPostalAddress()
	if err != nil {
		return err
	}
	*a = addr
	return nil
}
