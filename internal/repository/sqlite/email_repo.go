package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
)

const emailColumns = "id, sender, subject, snippet, date, size_estimate, category, is_classified, rule_source, is_archived"

type EmailRepository struct {
	db *DB
}

func NewEmailRepository(db *DB) *EmailRepository {
	return &EmailRepository{db: db}
}

// UpsertEmails inserts unseen messages in one transaction.
func (r *EmailRepository) UpsertEmails(ctx context.Context, emails []model.Email) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO emails (id, sender, subject, snippet, date, size_estimate) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range emails {
		result, err := stmt.ExecContext(ctx, e.ID, e.Sender, e.Subject, e.Snippet, e.Date.UTC(), e.SizeEstimate)
		if err != nil {
			return 0, fmt.Errorf("failed to insert email %s: %w", e.ID, err)
		}
		n, _ := result.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return inserted, nil
}

func (r *EmailRepository) ListUnclassified(ctx context.Context, limit int) ([]model.Email, error) {
	query := "SELECT " + emailColumns + " FROM emails WHERE is_classified = 0 ORDER BY seq"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return r.queryEmails(ctx, query)
}

func (r *EmailRepository) UnclassifiedSenders(ctx context.Context, limit int) ([]repository.SenderCount, error) {
	query := `SELECT sender, COUNT(*) AS cnt FROM emails
		WHERE is_classified = 0 AND sender <> ''
		GROUP BY sender
		ORDER BY cnt DESC, MIN(seq)`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.db.conn.QueryContext(ctx, query)
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
	result, err := r.db.conn.ExecContext(ctx,
		"UPDATE emails SET category = ?, rule_source = ?, is_classified = 1 WHERE id = ?",
		category, source, id,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("email %s not found", id)
	}
	return nil
}

func (r *EmailRepository) ListArchivable(ctx context.Context) ([]model.Email, error) {
	return r.queryEmails(ctx,
		"SELECT "+emailColumns+" FROM emails WHERE is_classified = 1 AND is_archived = 0 AND category <> ? ORDER BY seq",
		model.CategoryUnclassified,
	)
}

func (r *EmailRepository) MarkArchived(ctx context.Context, id string) error {
	_, err := r.db.conn.ExecContext(ctx, "UPDATE emails SET is_archived = 1 WHERE id = ?", id)
	return err
}

func (r *EmailRepository) Stats(ctx context.Context) (model.EmailStats, error) {
	stats := model.EmailStats{ChartData: []model.MonthCount{}}
	var avg sql.NullFloat64
	err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(is_classified), 0),
		COALESCE(SUM(CASE WHEN size_estimate > ? THEN 1 ELSE 0 END), 0),
		AVG(size_estimate)
		FROM emails`, repository.TrashSizeThreshold,
	).Scan(&stats.Total, &stats.Classified, &stats.TrashFound, &avg)
	if err != nil {
		return stats, err
	}
	stats.AvgSizeKB = int(avg.Float64 / 1024)

	// Dates are stored as "YYYY-MM-DD HH:MM:SS...", so the first seven characters are the month.
	rows, err := r.db.conn.QueryContext(ctx, `SELECT substr(date, 1, 7) AS month, COUNT(*)
		FROM emails
		GROUP BY month
		ORDER BY month DESC
		LIMIT ?`, repository.ChartMonths)
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
	err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(is_classified), 0),
		COALESCE(SUM(is_archived), 0)
		FROM emails`).Scan(&out.Emails, &out.Classified, &out.Archived)
	return out, err
}

func (r *EmailRepository) Clear(ctx context.Context) (int64, error) {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM emails")
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *EmailRepository) queryEmails(ctx context.Context, query string, args ...any) ([]model.Email, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Email
	for rows.Next() {
		var e model.Email
		if err := rows.Scan(&e.ID, &e.Sender, &e.Subject, &e.Snippet, &e.Date, &e.SizeEstimate,
			&e.Category, &e.IsClassified, &e.RuleSource, &e.IsArchived); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
