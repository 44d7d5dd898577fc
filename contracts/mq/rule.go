package mq

import "time"

type RuleCreatedPayload struct {
	Key       string    `json:"key"`
	RuleType  string    `json:"rule_type"`
	Category  string    `json:"category"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

type RuleDeletedPayload struct {
	Key       string    `json:"key"`
	Category  string    `json:"category"`
	DeletedAt time.Time `json:"deleted_at"`
}
