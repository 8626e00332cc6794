package persistence

import (
	"testing"

	"github.com/postcard/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestOrderClause(t *testing.T) {
	tests := []struct {
		name     string
		orderBy  string
		orderDir string
		expected string
	}{
		{"defaults", "", "", "created_at DESC"},
		{"allowed column ascending", "name", "asc", "name ASC"},
		{"trims input", "  sent_at ", " ASC ", "sent_at ASC"},
		{"unknown column", "tenant_id", "asc", "created_at ASC"},
		{"column injection", "name; DROP TABLE campaigns;--", "", "created_at DESC"},
		{"direction injection", "status", "ASC; DROP TABLE campaigns;--", "status DESC"},
		{"case sensitive column", "NAME", "desc", "created_at DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := shared.Filter{OrderBy: tt.orderBy, OrderDir: tt.orderDir}
			assert.Equal(t, tt.expected, orderClause(filter, recipientColumns))
		})
	}
}

func TestOrderColumnsPerTable(t *testing.T) {
	assert.True(t, campaignColumns["actual_cost"])
	assert.False(t, recipientColumns["actual_cost"])
	assert.True(t, doNotMailColumns["address_key"])
	assert.False(t, doNotMailColumns["name"])
}
