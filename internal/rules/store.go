// Package rules owns the sender and subject-keyword rule table.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	mqcontracts "mail-archivist/contracts/mq"
	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
	"mail-archivist/pkg/metrics"
)

// EventPublisher is satisfied by *mq.Publisher.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

type entry struct {
	rule    model.Rule
	seq     uint64
	keyword string // lower-cased keyword of subject rules
}

// Store keeps an in-memory index of all rules backed by a RuleRepository.
// Mutations are serialized; Match and List may run concurrently with them
// and observe either the state before or after a mutation.
type Store struct {
	repo      repository.RuleRepository
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	writeMu sync.Mutex

	mu       sync.RWMutex
	byKey    map[string]*entry
	senders  map[string]*entry
	keywords []*entry // ordered by seq
	nextSeq  uint64
}

// NewStore creates an empty store. publisher may be nil.
func NewStore(repo repository.RuleRepository, publisher EventPublisher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		byKey:     make(map[string]*entry),
		senders:   make(map[string]*entry),
	}
}

// Load replaces the index with the rows held by the repository.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.repo.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	byKey := make(map[string]*entry, len(rows))
	senders := make(map[string]*entry)
	var keywords []*entry
	var seq uint64
	for _, r := range rows {
		r = r.Normalize()
		if err := r.Validate(); err != nil {
			s.logger.Warn("skipping invalid stored rule", zap.String("key", r.Key()), zap.Error(err))
			continue
		}
		if _, dup := byKey[r.Key()]; dup {
			continue
		}
		seq++
		e := newEntry(r, seq)
		byKey[r.Key()] = e
		if r.Type == model.RuleTypeSender {
			senders[r.Sender] = e
		} else {
			keywords = append(keywords, e)
		}
	}

	s.mu.Lock()
	s.byKey, s.senders, s.keywords, s.nextSeq = byKey, senders, keywords, seq
	s.mu.Unlock()

	s.logger.Info("rules loaded", zap.Int("count", len(byKey)))
	return nil
}

// Add validates and persists rule. An existing rule under the same key is
// never overwritten; a *ConflictError carrying it is returned instead.
func (s *Store) Add(ctx context.Context, rule model.Rule) (model.Rule, error) {
	rule = rule.Normalize()
	if err := rule.Validate(); err != nil {
		metrics.RecordRuleOperation("add", "invalid")
		return model.Rule{}, &ValidationError{Err: err}
	}
	if rule.Source == "" {
		rule.Source = model.RuleSourceManual
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	key := rule.Key()
	if existing, ok := s.Get(key); ok {
		metrics.RecordRuleOperation("add", "conflict")
		return model.Rule{}, &ConflictError{Existing: existing}
	}

	rule.CreatedAt = s.now()
	if err := s.repo.InsertRule(ctx, rule); err != nil {
		metrics.RecordRuleOperation("add", "error")
		return model.Rule{}, fmt.Errorf("failed to persist rule %q: %w", key, err)
	}

	s.mu.Lock()
	s.nextSeq++
	e := newEntry(rule, s.nextSeq)
	s.byKey[key] = e
	if rule.Type == model.RuleTypeSender {
		s.senders[rule.Sender] = e
	} else {
		s.keywords = append(s.keywords, e)
	}
	s.mu.Unlock()

	metrics.RecordRuleOperation("add", "ok")
	s.publish(mqcontracts.RoutingRuleCreated, mqcontracts.RuleCreatedPayload{
		Key:       key,
		RuleType:  string(rule.Type),
		Category:  rule.Category,
		Source:    rule.Source,
		CreatedAt: rule.CreatedAt,
	})
	return rule, nil
}

// Remove deletes the rule stored under key. Sender keys match case-insensitively.
// A missing key is a *NotFoundError.
func (s *Store) Remove(ctx context.Context, key string) error {
	key = model.NormalizeKey(key)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, ok := s.Get(key)
	if !ok {
		metrics.RecordRuleOperation("remove", "not_found")
		return &NotFoundError{Key: key}
	}

	if _, err := s.repo.DeleteRule(ctx, key); err != nil {
		metrics.RecordRuleOperation("remove", "error")
		return fmt.Errorf("failed to delete rule %q: %w", key, err)
	}

	s.mu.Lock()
	delete(s.byKey, key)
	if existing.Type == model.RuleTypeSender {
		delete(s.senders, existing.Sender)
	} else {
		for i, e := range s.keywords {
			if e.rule.Key() == key {
				s.keywords = append(s.keywords[:i], s.keywords[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	metrics.RecordRuleOperation("remove", "ok")
	s.publish(mqcontracts.RoutingRuleDeleted, mqcontracts.RuleDeletedPayload{
		Key:       key,
		Category:  existing.Category,
		DeletedAt: s.now(),
	})
	return nil
}

// Get returns the rule stored under key.
func (s *Store) Get(key string) (model.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byKey[model.NormalizeKey(key)]
	if !ok {
		return model.Rule{}, false
	}
	return e.rule, true
}

// HasSender reports whether a sender rule exists for the address.
func (s *Store) HasSender(sender string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.senders[model.NormalizeSender(sender)]
	return ok
}

// List returns a snapshot of all rules in insertion order.
func (s *Store) List() []model.Rule {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.byKey))
	for _, e := range s.byKey {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]model.Rule, len(entries))
	for i, e := range entries {
		out[i] = e.rule
	}
	return out
}

// Len returns the number of rules held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// Match returns the category for a message. A sender rule always wins over
// subject rules; among subject rules the earliest added match wins.
func (s *Store) Match(sender, subject string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sender = model.NormalizeSender(sender); sender != "" {
		if e, ok := s.senders[sender]; ok {
			return e.rule.Category, true
		}
	}

	if subject == "" {
		return "", false
	}
	subject = strings.ToLower(subject)
	for _, e := range s.keywords {
		if strings.Contains(subject, e.keyword) {
			return e.rule.Category, true
		}
	}
	return "", false
}

func (s *Store) publish(routingKey string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(routingKey, payload); err != nil {
		s.logger.Warn("failed to publish rule event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func newEntry(rule model.Rule, seq uint64) *entry {
	e := &entry{rule: rule, seq: seq}
	if rule.Type == model.RuleTypeSubject {
		e.keyword = strings.ToLower(rule.Keyword)
	}
	return e
}
