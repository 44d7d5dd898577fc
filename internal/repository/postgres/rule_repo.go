package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
)

const uniqueViolation = "23505"

type RuleRepository struct {
	db *pgxpool.Pool
}

func NewRuleRepository(db *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListRules returns all rules in insertion order.
func (r *RuleRepository) ListRules(ctx context.Context) ([]model.Rule, error) {
	query := `
        SELECT rule_type, match_value, category, source, created_at
        FROM rules
        ORDER BY id ASC
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var ruleType, value, category, source string
		var createdAt time.Time
		if err := rows.Scan(&ruleType, &value, &category, &source, &createdAt); err != nil {
			return nil, err
		}
		rule := model.RuleFromRow(ruleType, value, category)
		rule.Source = source
		rule.CreatedAt = createdAt
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// InsertRule inserts a rule row; a unique violation on rule_key maps to ErrDuplicateKey.
func (r *RuleRepository) InsertRule(ctx context.Context, rule model.Rule) error {
	query := `
        INSERT INTO rules (rule_key, rule_type, match_value, category, source, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.db.Exec(ctx, query, rule.Key(), string(rule.Type), rule.MatchValue(), rule.Category, rule.Source, rule.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrDuplicateKey
	}
	return err
}

// DeleteRule removes a rule by key and reports whether a row existed.
func (r *RuleRepository) DeleteRule(ctx context.Context, key string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM rules WHERE rule_key = $1`, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
