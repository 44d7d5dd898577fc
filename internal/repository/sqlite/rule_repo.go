package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
)

type RuleRepository struct {
	db *DB
}

func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) ListRules(ctx context.Context) ([]model.Rule, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		"SELECT rule_type, match_value, category, source, created_at FROM rules ORDER BY id ASC")
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

func (r *RuleRepository) InsertRule(ctx context.Context, rule model.Rule) error {
	_, err := r.db.conn.ExecContext(ctx,
		"INSERT INTO rules (rule_key, rule_type, match_value, category, source, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		rule.Key(), string(rule.Type), rule.MatchValue(), rule.Category, rule.Source, rule.CreatedAt.UTC(),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return repository.ErrDuplicateKey
	}
	return err
}

func (r *RuleRepository) DeleteRule(ctx context.Context, key string) (bool, error) {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM rules WHERE rule_key = ?", key)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}
