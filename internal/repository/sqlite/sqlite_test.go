package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archivist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRuleRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRuleRepository(openTestDB(t))

	sender := model.NewSenderRule("News@Example.com", "Newsletters")
	sender.Source = model.RuleSourceManual
	sender.CreatedAt = time.Now()
	keyword := model.NewKeywordRule("invoice", "Finance")
	keyword.Source = model.RuleSourceAI
	keyword.CreatedAt = time.Now()

	require.NoError(t, repo.InsertRule(ctx, sender))
	require.NoError(t, repo.InsertRule(ctx, keyword))
	assert.ErrorIs(t, repo.InsertRule(ctx, sender), repository.ErrDuplicateKey)

	rules, err := repo.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, model.RuleTypeSender, rules[0].Type)
	assert.Equal(t, "news@example.com", rules[0].Sender)
	assert.Equal(t, model.RuleTypeSubject, rules[1].Type)
	assert.Equal(t, "invoice", rules[1].Keyword)
	assert.Equal(t, model.RuleSourceAI, rules[1].Source)

	removed, err := repo.DeleteRule(ctx, "keyword:invoice")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.DeleteRule(ctx, "keyword:invoice")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRuleRepository_TypeSurvivesReload(t *testing.T) {
	ctx := context.Background()
	repo := NewRuleRepository(openTestDB(t))

	// A sender whose text looks like a keyword key must come back as a sender rule.
	odd := model.Rule{Type: model.RuleTypeSender, Sender: "keyword:promo", Category: "Spam", CreatedAt: time.Now()}
	require.NoError(t, repo.InsertRule(ctx, odd))
	require.NoError(t, repo.InsertRule(ctx, model.NewKeywordRule("Sale", "Promotions")))

	rules, err := repo.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, model.RuleTypeSender, rules[0].Type)
	assert.Equal(t, "keyword:promo", rules[0].Sender)
	assert.Empty(t, rules[0].Keyword)
	assert.Equal(t, model.RuleTypeSubject, rules[1].Type)
	assert.Equal(t, "Sale", rules[1].Keyword)
}

func TestEmailRepository_ClassifyAndArchive(t *testing.T) {
	ctx := context.Background()
	repo := NewEmailRepository(openTestDB(t))
	march := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	n, err := repo.UpsertEmails(ctx, []model.Email{
		{ID: "1:10", Sender: "a@x.com", Subject: "hello", Date: march, SizeEstimate: 4096},
		{ID: "1:11", Sender: "a@x.com", Subject: "again", Date: march, SizeEstimate: 2_000_000},
		{ID: "1:12", Sender: "b@x.com", Subject: "other", Date: march.AddDate(0, -1, 0), SizeEstimate: 2048},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.UpsertEmails(ctx, []model.Email{{ID: "1:10", Sender: "a@x.com", Date: march}})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	unclassified, err := repo.ListUnclassified(ctx, 0)
	require.NoError(t, err)
	require.Len(t, unclassified, 3)
	assert.Equal(t, model.CategoryUnclassified, unclassified[0].Category)
	assert.True(t, unclassified[0].Date.Equal(march))

	senders, err := repo.UnclassifiedSenders(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []repository.SenderCount{{Sender: "a@x.com", Count: 2}}, senders)

	require.NoError(t, repo.SetCategory(ctx, "1:10", "Work", model.SourceRule))
	archivable, err := repo.ListArchivable(ctx)
	require.NoError(t, err)
	require.Len(t, archivable, 1)
	assert.Equal(t, "Work", archivable[0].Category)
	assert.Equal(t, model.SourceRule, archivable[0].RuleSource)

	require.NoError(t, repo.MarkArchived(ctx, "1:10"))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Classified)
	assert.Equal(t, 1, stats.TrashFound)
	assert.Equal(t, []model.MonthCount{{Month: "2024-02", Count: 1}, {Month: "2024-03", Count: 2}}, stats.ChartData)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DatabaseStats{Emails: 3, Classified: 1, Archived: 1}, counts)

	cleared, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, cleared)
}
