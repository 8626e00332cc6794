package mailvendor

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Redaction placeholders
const (
	Redacted        = "[REDACTED]"
	ArtworkOmitted  = "[ARTWORK OMITTED]"
	maxAuditBodyLen = 2048
)

// RedactBody removes personal data from a vendor request or response body:
// the recipient name, every field of the return address, all but the first
// three ZIP digits, inline HTML artwork and merge variables. Bodies that are
// not JSON objects are dropped entirely. The result is capped at 2 KB.
func RedactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Redacted
	}

	if to, ok := doc["to"].(map[string]any); ok {
		if _, has := to["name"]; has {
			to["name"] = Redacted
		}
		if zip, ok := to["address_zip"].(string); ok {
			to["address_zip"] = zipPrefix(zip)
		}
	}
	if from, ok := doc["from"].(map[string]any); ok {
		for k := range from {
			from[k] = Redacted
		}
	}
	for _, side := range []string{"front", "back"} {
		if v, ok := doc[side].(string); ok && !isURL(v) {
			doc[side] = ArtworkOmitted
		}
	}
	delete(doc, "merge_variables")

	out, err := json.Marshal(doc)
	if err != nil {
		return Redacted
	}
	return truncate(string(out), maxAuditBodyLen)
}

func zipPrefix(zip string) string {
	if len(zip) <= 3 {
		return zip
	}
	return zip[:3]
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

// truncate cuts s to at most n bytes on a rune boundary
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
