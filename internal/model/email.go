package model

import "time"

// Category assigned to messages that no rule or categorizer could place.
const CategoryUnclassified = "Unclassified"

// Classification sources recorded on an email.
const (
	SourceRule = "Rule"
	SourceAI   = "AI"
)

// Email is a synced message as stored locally.
type Email struct {
	ID           string    `json:"id"`
	Sender       string    `json:"sender"`
	Subject      string    `json:"subject"`
	Snippet      string    `json:"snippet"`
	Date         time.Time `json:"date"`
	SizeEstimate int64     `json:"size_estimate"`
	Category     string    `json:"category"`
	IsClassified bool      `json:"is_classified"`
	RuleSource   string    `json:"rule_source,omitempty"`
	IsArchived   bool      `json:"is_archived"`
}

// MonthCount is one bar of the dashboard chart.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// EmailStats is the dashboard aggregate.
type EmailStats struct {
	Total      int          `json:"total_emails"`
	Classified int          `json:"classified"`
	TrashFound int          `json:"trash_found"`
	AvgSizeKB  int          `json:"avg_size_kb"`
	ChartData  []MonthCount `json:"chart_data"`
}

// DatabaseStats summarizes row counts of the local store.
type DatabaseStats struct {
	Emails     int `json:"emails"`
	Classified int `json:"classified"`
	Archived   int `json:"archived"`
	Rules      int `json:"rules"`
}
