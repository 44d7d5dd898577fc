// Package classifier decides the category of a synced message.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mail-archivist/internal/model"
	"mail-archivist/pkg/metrics"
)

// Matcher is satisfied by *rules.Store.
type Matcher interface {
	Match(sender, subject string) (string, bool)
}

// Categorizer is an external fallback, e.g. an AI model.
type Categorizer interface {
	Categorize(ctx context.Context, email model.Email) (string, error)
}

type Result struct {
	Category string
	Source   string // model.SourceRule or model.SourceAI
}

// Classifier consults the rule table first and only then the fallback.
type Classifier struct {
	rules    Matcher
	fallback Categorizer
	timeout  time.Duration
}

// New returns a Classifier. fallback may be nil; timeout bounds each fallback call.
func New(rules Matcher, fallback Categorizer, timeout time.Duration) *Classifier {
	return &Classifier{rules: rules, fallback: fallback, timeout: timeout}
}

// Classify returns the category for email. ok is false when neither the
// rules nor the fallback placed it; err is set only when the fallback failed.
func (c *Classifier) Classify(ctx context.Context, email model.Email) (res Result, ok bool, err error) {
	if category, matched := c.rules.Match(email.Sender, email.Subject); matched {
		metrics.IncrementEmailClassified(model.SourceRule)
		return Result{Category: category, Source: model.SourceRule}, true, nil
	}

	if c.fallback == nil {
		metrics.IncrementEmailClassified("none")
		return Result{}, false, nil
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	category, err := c.fallback.Categorize(callCtx, email)
	if err != nil {
		metrics.IncrementEmailClassified("none")
		return Result{}, false, fmt.Errorf("fallback categorizer: %w", err)
	}
	category = strings.TrimSpace(category)
	if category == "" || category == model.CategoryUnclassified {
		metrics.IncrementEmailClassified("none")
		return Result{}, false, nil
	}

	metrics.IncrementEmailClassified(model.SourceAI)
	return Result{Category: category, Source: model.SourceAI}, true, nil
}

// HasFallback reports whether a fallback categorizer is configured.
func (c *Classifier) HasFallback() bool {
	return c.fallback != nil
}
