package handler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-archivist/internal/model"
)

func TestRuleRequest_ToRule(t *testing.T) {
	tests := []struct {
		name string
		body string
		want model.Rule
	}{
		{"typed sender", `{"rule_type":"sender","sender":"a@x.com","category":"Finance"}`,
			model.Rule{Type: model.RuleTypeSender, Sender: "a@x.com", Category: "Finance"}},
		{"legacy sender", `{"sender":"a@x.com","category":"Finance"}`,
			model.Rule{Type: model.RuleTypeSender, Sender: "a@x.com", Category: "Finance"}},
		{"legacy keywords", `{"keywords":[" invoice "],"category":"Shopping"}`,
			model.Rule{Type: model.RuleTypeSubject, Keyword: "invoice", Category: "Shopping"}},
		{"typed subject", `{"rule_type":"subject","keyword":"sale","category":"Promo"}`,
			model.Rule{Type: model.RuleTypeSubject, Keyword: "sale", Category: "Promo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ruleRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			got, err := req.toRule()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	var req ruleRequest
	require.NoError(t, json.Unmarshal([]byte(`{"keywords":["a","b"],"category":"X"}`), &req))
	_, err := req.toRule()
	assert.Error(t, err)
}

func TestLooseString(t *testing.T) {
	var req pipelineRequest
	require.NoError(t, json.Unmarshal([]byte(`{"action":"sync","year":2024}`), &req))
	assert.Equal(t, looseString("2024"), req.Year)

	require.NoError(t, json.Unmarshal([]byte(`{"action":"sync","year":"2023"}`), &req))
	assert.Equal(t, looseString("2023"), req.Year)

	assert.Error(t, json.Unmarshal([]byte(`{"year":20.5}`), &req))
}
