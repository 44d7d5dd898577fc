package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mail-archivist/internal/model"
)

// MemoryRuleRepository keeps rule rows in process memory.
type MemoryRuleRepository struct {
	mu    sync.Mutex
	rules []model.Rule
}

func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{}
}

func (r *MemoryRuleRepository) ListRules(ctx context.Context) ([]model.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Rule, len(r.rules))
	copy(out, r.rules)
	return out, nil
}

func (r *MemoryRuleRepository) InsertRule(ctx context.Context, rule model.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rules {
		if existing.Key() == rule.Key() {
			return ErrDuplicateKey
		}
	}
	r.rules = append(r.rules, rule)
	return nil
}

func (r *MemoryRuleRepository) DeleteRule(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rules {
		if existing.Key() == key {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// MemoryEmailRepository keeps messages in process memory, in sync order.
type MemoryEmailRepository struct {
	mu     sync.Mutex
	order  []string
	emails map[string]*model.Email
}

func NewMemoryEmailRepository() *MemoryEmailRepository {
	return &MemoryEmailRepository{emails: make(map[string]*model.Email)}
}

func (r *MemoryEmailRepository) UpsertEmails(ctx context.Context, emails []model.Email) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, e := range emails {
		if _, ok := r.emails[e.ID]; ok {
			continue
		}
		if e.Category == "" {
			e.Category = model.CategoryUnclassified
		}
		r.emails[e.ID] = &e
		r.order = append(r.order, e.ID)
		inserted++
	}
	return inserted, nil
}

func (r *MemoryEmailRepository) ListUnclassified(ctx context.Context, limit int) ([]model.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Email
	for _, id := range r.order {
		e := r.emails[id]
		if e.IsClassified {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryEmailRepository) UnclassifiedSenders(ctx context.Context, limit int) ([]SenderCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	var senders []string
	for _, id := range r.order {
		e := r.emails[id]
		if e.IsClassified || e.Sender == "" {
			continue
		}
		if _, seen := counts[e.Sender]; !seen {
			senders = append(senders, e.Sender)
		}
		counts[e.Sender]++
	}
	out := make([]SenderCount, 0, len(senders))
	for _, s := range senders {
		out = append(out, SenderCount{Sender: s, Count: counts[s]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryEmailRepository) SetCategory(ctx context.Context, id, category, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.emails[id]
	if !ok {
		return fmt.Errorf("email %s not found", id)
	}
	e.Category = category
	e.RuleSource = source
	e.IsClassified = true
	return nil
}

func (r *MemoryEmailRepository) ListArchivable(ctx context.Context) ([]model.Email, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Email
	for _, id := range r.order {
		e := r.emails[id]
		if e.IsClassified && !e.IsArchived && e.Category != model.CategoryUnclassified {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *MemoryEmailRepository) MarkArchived(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.emails[id]
	if !ok {
		return fmt.Errorf("email %s not found", id)
	}
	e.IsArchived = true
	return nil
}

func (r *MemoryEmailRepository) Stats(ctx context.Context) (model.EmailStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := model.EmailStats{ChartData: []model.MonthCount{}}
	var totalSize int64
	months := make(map[string]int)
	for _, e := range r.emails {
		stats.Total++
		if e.IsClassified {
			stats.Classified++
		}
		if e.SizeEstimate > TrashSizeThreshold {
			stats.TrashFound++
		}
		totalSize += e.SizeEstimate
		months[e.Date.Format("2006-01")]++
	}
	if stats.Total > 0 {
		stats.AvgSizeKB = int(totalSize / int64(stats.Total) / 1024)
	}
	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > ChartMonths {
		keys = keys[len(keys)-ChartMonths:]
	}
	for _, k := range keys {
		stats.ChartData = append(stats.ChartData, model.MonthCount{Month: k, Count: months[k]})
	}
	return stats, nil
}

func (r *MemoryEmailRepository) Counts(ctx context.Context) (model.DatabaseStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out model.DatabaseStats
	for _, e := range r.emails {
		out.Emails++
		if e.IsClassified {
			out.Classified++
		}
		if e.IsArchived {
			out.Archived++
		}
	}
	return out, nil
}

func (r *MemoryEmailRepository) Clear(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.emails))
	r.emails = make(map[string]*model.Email)
	r.order = nil
	return n, nil
}
