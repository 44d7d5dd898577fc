package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqcontracts "mail-archivist/contracts/mq"
	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	routes []string
}

func (p *recordingPublisher) Publish(routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, routingKey)
	return nil
}

type failingRepo struct {
	repository.RuleRepository
}

func (failingRepo) InsertRule(ctx context.Context, rule model.Rule) error {
	return errors.New("connection refused")
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(repository.NewMemoryRuleRepository(), nil, nil)
}

func TestStore_AddConflictKeepsFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Add(ctx, model.NewSenderRule("a@x.com", "Finance"))
	require.NoError(t, err)

	_, err = s.Add(ctx, model.NewSenderRule("A@X.com ", "Spam"))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Finance", conflict.Existing.Category)
	assert.Equal(t, "a@x.com", conflict.Existing.Key())

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, "Finance", list[0].Category)
}

func TestStore_RemoveTwiceIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Add(ctx, model.NewKeywordRule("invoice", "Shopping"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "keyword:invoice"))

	err = s.Remove(ctx, "keyword:invoice")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "keyword:invoice", notFound.Key)
}

func TestStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tests := []struct {
		name string
		rule model.Rule
		want error
	}{
		{"empty sender", model.Rule{Type: model.RuleTypeSender, Category: "Work"}, model.ErrEmptySender},
		{"empty keyword", model.Rule{Type: model.RuleTypeSubject, Keyword: "  ", Category: "Work"}, model.ErrEmptyKeyword},
		{"empty category", model.NewSenderRule("a@x.com", ""), model.ErrEmptyCategory},
		{"both fields", model.Rule{Type: model.RuleTypeSender, Sender: "a@x.com", Keyword: "hi", Category: "Work"}, model.ErrMixedRule},
		{"unknown type", model.Rule{Type: "body", Keyword: "hi", Category: "Work"}, model.ErrUnknownRuleType},
		{"sender shaped like keyword key", model.NewSenderRule("keyword:promo", "Spam"), model.ErrReservedSender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(ctx, tt.rule)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, s.Len())
}

func TestStore_SenderBeatsKeyword(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Add(ctx, model.NewKeywordRule("invoice", "Shopping"))
	require.NoError(t, err)
	_, err = s.Add(ctx, model.NewSenderRule("a@x.com", "Finance"))
	require.NoError(t, err)

	category, ok := s.Match("a@x.com", "Your INVOICE is ready")
	require.True(t, ok)
	assert.Equal(t, "Finance", category)

	category, ok = s.Match("b@x.com", "Your INVOICE is ready")
	require.True(t, ok)
	assert.Equal(t, "Shopping", category)
}

func TestStore_FirstInsertedKeywordWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Add(ctx, model.NewKeywordRule("order", "Shopping"))
	require.NoError(t, err)
	_, err = s.Add(ctx, model.NewKeywordRule("order shipped", "Logistics"))
	require.NoError(t, err)

	category, ok := s.Match("", "Your order shipped today")
	require.True(t, ok)
	assert.Equal(t, "Shopping", category)
}

func TestStore_AddMatchRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Add(ctx, model.Rule{Type: model.RuleTypeSender, Sender: "a@x.com", Category: "Finance"})
	require.NoError(t, err)

	category, ok := s.Match("a@x.com", "")
	require.True(t, ok)
	assert.Equal(t, "Finance", category)

	require.NoError(t, s.Remove(ctx, "a@x.com"))
	_, ok = s.Match("a@x.com", "")
	assert.False(t, ok)
}

func TestStore_RemoveSenderKeyIgnoresCase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Add(ctx, model.NewSenderRule("a@x.com", "Finance"))
	require.NoError(t, err)
	_, err = s.Add(ctx, model.NewKeywordRule("Order", "Shopping"))
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "A@X.com"))
	_, ok := s.Get("a@x.com")
	assert.False(t, ok)

	var nf *NotFoundError
	assert.ErrorAs(t, s.Remove(ctx, "keyword:order"), &nf)
	assert.NoError(t, s.Remove(ctx, "keyword:Order"))
}

func TestStore_PersistenceFailureLeavesRuleInvisible(t *testing.T) {
	s := NewStore(failingRepo{}, nil, nil)

	_, err := s.Add(context.Background(), model.NewSenderRule("a@x.com", "Finance"))
	require.Error(t, err)

	_, ok := s.Get("a@x.com")
	assert.False(t, ok)
	assert.Empty(t, s.List())
}

func TestStore_LoadRestoresOrder(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRuleRepository()
	first := NewStore(repo, nil, nil)
	_, err := first.Add(ctx, model.NewKeywordRule("sale", "Promotions"))
	require.NoError(t, err)
	_, err = first.Add(ctx, model.NewKeywordRule("flash sale", "Spam"))
	require.NoError(t, err)
	_, err = first.Add(ctx, model.NewSenderRule("boss@corp.com", "Work"))
	require.NoError(t, err)

	second := NewStore(repo, nil, nil)
	require.NoError(t, second.Load(ctx))
	assert.Equal(t, first.List(), second.List())

	category, ok := second.Match("", "FLASH SALE now")
	require.True(t, ok)
	assert.Equal(t, "Promotions", category)
}

func TestStore_ConcurrentAddSameKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Add(ctx, model.NewSenderRule("race@x.com", fmt.Sprintf("Cat%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		var conflict *ConflictError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &conflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 1, s.Len())
}

func TestStore_PublishesLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s := NewStore(repository.NewMemoryRuleRepository(), pub, nil)

	_, err := s.Add(ctx, model.NewSenderRule("a@x.com", "Finance"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, "a@x.com"))

	assert.Equal(t, []string{mqcontracts.RoutingRuleCreated, mqcontracts.RoutingRuleDeleted}, pub.routes)
}
