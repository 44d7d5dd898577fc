package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-archivist/internal/model"
	"mail-archivist/internal/repository"
	"mail-archivist/internal/rules"
)

type fakeCategorizer struct {
	category string
	err      error
	calls    int
	block    bool
}

func (f *fakeCategorizer) Categorize(ctx context.Context, email model.Email) (string, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.category, f.err
}

func newStore(t *testing.T) *rules.Store {
	t.Helper()
	s := rules.NewStore(repository.NewMemoryRuleRepository(), nil, nil)
	_, err := s.Add(context.Background(), model.NewSenderRule("a@x.com", "Finance"))
	require.NoError(t, err)
	return s
}

func TestClassify_RulesBeforeFallback(t *testing.T) {
	fallback := &fakeCategorizer{category: "Spam"}
	c := New(newStore(t), fallback, time.Second)

	res, ok, err := c.Classify(context.Background(), model.Email{Sender: "A@x.com", Subject: "hi"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Result{Category: "Finance", Source: model.SourceRule}, res)
	assert.Zero(t, fallback.calls)
}

func TestClassify_FallbackUsedWhenNoRule(t *testing.T) {
	fallback := &fakeCategorizer{category: "Spam"}
	c := New(newStore(t), fallback, time.Second)

	res, ok, err := c.Classify(context.Background(), model.Email{Sender: "b@x.com"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.SourceAI, res.Source)
	assert.Equal(t, 1, fallback.calls)
}

func TestClassify_NoFallbackNoMatch(t *testing.T) {
	c := New(newStore(t), nil, time.Second)

	_, ok, err := c.Classify(context.Background(), model.Email{Sender: "b@x.com"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassify_UnclassifiedAnswerIsNoMatch(t *testing.T) {
	c := New(newStore(t), &fakeCategorizer{category: model.CategoryUnclassified}, time.Second)

	_, ok, err := c.Classify(context.Background(), model.Email{Sender: "b@x.com"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassify_FallbackErrorAndTimeout(t *testing.T) {
	c := New(newStore(t), &fakeCategorizer{err: errors.New("503")}, time.Second)
	_, ok, err := c.Classify(context.Background(), model.Email{Sender: "b@x.com"})
	assert.Error(t, err)
	assert.False(t, ok)

	c = New(newStore(t), &fakeCategorizer{block: true}, 10*time.Millisecond)
	_, ok, err = c.Classify(context.Background(), model.Email{Sender: "b@x.com"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)
}
