package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-archivist/internal/model"
)

func TestMemoryRuleRepository_DuplicateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRuleRepository()

	require.NoError(t, repo.InsertRule(ctx, model.NewSenderRule("a@x.com", "Work")))
	assert.ErrorIs(t, repo.InsertRule(ctx, model.NewSenderRule("a@x.com", "Other")), ErrDuplicateKey)

	removed, err := repo.DeleteRule(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.DeleteRule(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMemoryEmailRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmailRepository()
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	n, err := repo.UpsertEmails(ctx, []model.Email{
		{ID: "1", Sender: "a@x.com", Date: date, SizeEstimate: 2_000_000},
		{ID: "2", Sender: "b@x.com", Date: date, SizeEstimate: 1024},
		{ID: "3", Sender: "a@x.com", Date: date.AddDate(0, -1, 0), SizeEstimate: 1024},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.UpsertEmails(ctx, []model.Email{{ID: "1", Sender: "a@x.com", Date: date}})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "already synced messages are not re-inserted")

	senders, err := repo.UnclassifiedSenders(ctx, 0)
	require.NoError(t, err)
	require.Len(t, senders, 2)
	assert.Equal(t, SenderCount{Sender: "a@x.com", Count: 2}, senders[0])

	require.NoError(t, repo.SetCategory(ctx, "1", "Work", model.SourceRule))
	assert.Error(t, repo.SetCategory(ctx, "missing", "Work", model.SourceRule))

	archivable, err := repo.ListArchivable(ctx)
	require.NoError(t, err)
	require.Len(t, archivable, 1)
	assert.Equal(t, "1", archivable[0].ID)

	require.NoError(t, repo.MarkArchived(ctx, "1"))
	archivable, err = repo.ListArchivable(ctx)
	require.NoError(t, err)
	assert.Empty(t, archivable)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Classified)
	assert.Equal(t, 1, stats.TrashFound)
	assert.Equal(t, []model.MonthCount{{Month: "2024-02", Count: 1}, {Month: "2024-03", Count: 2}}, stats.ChartData)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Emails)
	assert.Equal(t, 1, counts.Archived)

	cleared, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, cleared)
}

func TestMemoryEmailRepository_ChartKeepsLastSixMonths(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEmailRepository()
	var emails []model.Email
	for i := 0; i < 8; i++ {
		emails = append(emails, model.Email{
			ID:   string(rune('a' + i)),
			Date: time.Date(2024, time.Month(i+1), 5, 0, 0, 0, 0, time.UTC),
		})
	}
	_, err := repo.UpsertEmails(ctx, emails)
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.ChartData, ChartMonths)
	assert.Equal(t, "2024-03", stats.ChartData[0].Month)
	assert.Equal(t, "2024-08", stats.ChartData[5].Month)
}
