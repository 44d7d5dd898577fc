package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationAndTable(t *testing.T) {
	tests := []struct {
		sql   string
		op    string
		table string
	}{
		{"SELECT id FROM emails WHERE id = $1", "select", "emails"},
		{"\n  INSERT INTO rules (rule_key) VALUES ($1)", "insert", "rules"},
		{"UPDATE emails SET is_archived = TRUE", "update", "emails"},
		{"DELETE FROM rules WHERE rule_key = $1", "delete", "rules"},
		{"", "unknown", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.op, operationOf(tt.sql), tt.sql)
		assert.Equal(t, tt.table, tableOf(tt.sql), tt.sql)
	}
}
