package persistence

import (
	"strings"

	"github.com/postcard/backend/internal/domain/shared"
)

// Columns a list may be ordered by. OrderBy values are interpolated into SQL,
// so anything outside these sets falls back to created_at.
var (
	campaignColumns = columnSet("created_at", "updated_at", "name", "status",
		"scheduled_at", "sent_at", "recipient_count", "actual_cost")
	recipientColumns = columnSet("created_at", "updated_at", "name", "status", "sent_at")
	doNotMailColumns = columnSet("created_at", "email", "address_key")
)

const defaultOrderColumn = "created_at"

func columnSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// orderClause renders the filter's ordering as "<column> ASC|DESC".
// Direction defaults to DESC.
func orderClause(filter shared.Filter, allowed map[string]bool) string {
	column := strings.TrimSpace(filter.OrderBy)
	if !allowed[column] {
		column = defaultOrderColumn
	}
	dir := "DESC"
	if strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc") {
		dir = "ASC"
	}
	return column + " " + dir
}
