package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
)

const emailColumns = `id, sender, subject, snippet, date, size_estimate, category, is_classified, rule_source, is_archived`

type EmailRepository struct {
	db *pgxpool.Pool
}

func NewEmailRepository(db *pgxpool.Pool) *EmailRepository {
	return &EmailRepository{db: db}
}

// UpsertEmails inserts messages in one batch, leaving already-synced rows untouched.
func (r *EmailRepository) UpsertEmails(ctx context.Context, emails []model.Email) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	query := `
        INSERT INTO emails (id, sender, subject, snippet, date, size_estimate)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING
    `
	batch := &pgx.Batch{}
	for _, e := range emails {
		batch.Queue(query, e.ID, e.Sender, e.Subject, e.Snippet, e.Date, e.SizeEstimate)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range emails {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to upsert email: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *EmailRepository) ListUnclassified(ctx context.Context, limit int) ([]model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE NOT is_classified ORDER BY synced_at, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	return r.queryEmails(ctx, query, args...)
}

func (r *EmailRepository) UnclassifiedSenders(ctx context.Context, limit int) ([]repository.SenderCount, error) {
	query := `
        SELECT sender, COUNT(*) AS cnt
        FROM emails
        WHERE NOT is_classified AND sender <> ''
        GROUP BY sender
        ORDER BY cnt DESC, sender
    `
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.SenderCount
	for rows.Next() {
		var sc repository.SenderCount
		if err := rows.Scan(&sc.Sender, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *EmailRepository) SetCategory(ctx context.Context, id, category, source string) error {
	query := `
        UPDATE emails
        SET category = $2, rule_source = $3, is_classified = TRUE
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, category, source)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("email %s not found", id)
	}
	return nil
}

func (r *EmailRepository) ListArchivable(ctx context.Context) ([]model.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails
        WHERE is_classified AND NOT is_archived AND category <> $1
        ORDER BY category, id`
	return r.queryEmails(ctx, query, model.CategoryUnclassified)
}

func (r *EmailRepository) MarkArchived(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE emails SET is_archived = TRUE WHERE id = $1`, id)
	return err
}

func (r *EmailRepository) Stats(ctx context.Context) (model.EmailStats, error) {
	stats := model.EmailStats{ChartData: []model.MonthCount{}}
	var avg float64
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE is_classified),
               COUNT(*) FILTER (WHERE size_estimate > $1),
               COALESCE(AVG(size_estimate), 0)
        FROM emails
    `, repository.TrashSizeThreshold).Scan(&stats.Total, &stats.Classified, &stats.TrashFound, &avg)
	if err != nil {
		return stats, err
	}
	stats.AvgSizeKB = int(avg / 1024)

	rows, err := r.db.Query(ctx, `
        SELECT to_char(date, 'YYYY-MM') AS month, COUNT(*)
        FROM emails
        GROUP BY month
        ORDER BY month DESC
        LIMIT $1
    `, repository.ChartMonths)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var mc model.MonthCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return stats, err
		}
		stats.ChartData = append([]model.MonthCount{mc}, stats.ChartData...)
	}
	return stats, rows.Err()
}

func (r *EmailRepository) Counts(ctx context.Context) (model.DatabaseStats, error) {
	var out model.DatabaseStats
	err := r.db.QueryRow(ctx, `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE is_classified),
               COUNT(*) FILTER (WHERE is_archived)
        FROM emails
    `).Scan(&out.Emails, &out.Classified, &out.Archived)
	return out, err
}

func (r *EmailRepository) Clear(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM emails`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *EmailRepository) queryEmails(ctx context.Context, query string, args ...any) ([]model.Email, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Email
	for rows.Next() {
		var e model.Email
		if err := rows.Scan(
			&e.ID,
			&e.Sender,
			&e.Subject,
			&e.Snippet,
			&e.Date,
			&e.SizeEstimate,
			&e.Category,
			&e.IsClassified,
			&e.RuleSource,
			&e.IsArchived,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
