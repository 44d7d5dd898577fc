package repository

import (
	"context"
	"errors"

	"mail-archivist/internal/model"
)

// ErrDuplicateKey is returned by InsertRule when a row with the same key already exists.
var ErrDuplicateKey = errors.New("duplicate rule key")

// TrashSizeThreshold marks messages counted as trash on the dashboard.
const TrashSizeThreshold = 1_000_000

// ChartMonths is the number of most recent months returned in the dashboard chart.
const ChartMonths = 6

// SenderCount is a distinct sender with the number of stored messages.
type SenderCount struct {
	Sender string
	Count  int
}

// RuleRepository persists rule rows. Rows come back in insertion order.
type RuleRepository interface {
	ListRules(ctx context.Context) ([]model.Rule, error)
	InsertRule(ctx context.Context, rule model.Rule) error
	DeleteRule(ctx context.Context, key string) (bool, error)
}

// EmailRepository persists synced messages and their classification state.
type EmailRepository interface {
	// UpsertEmails inserts unseen messages and returns how many were new.
	UpsertEmails(ctx context.Context, emails []model.Email) (int, error)
	ListUnclassified(ctx context.Context, limit int) ([]model.Email, error)
	// UnclassifiedSenders returns distinct senders of unclassified messages, most frequent first.
	UnclassifiedSenders(ctx context.Context, limit int) ([]SenderCount, error)
	SetCategory(ctx context.Context, id, category, source string) error
	// ListArchivable returns classified, unarchived messages with a real category.
	ListArchivable(ctx context.Context) ([]model.Email, error)
	MarkArchived(ctx context.Context, id string) error
	Stats(ctx context.Context) (model.EmailStats, error)
	Counts(ctx context.Context) (model.DatabaseStats, error)
	Clear(ctx context.Context) (int64, error)
}
