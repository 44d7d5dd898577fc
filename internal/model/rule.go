package model

import (
	"errors"
	"strings"
	"time"
)

// RuleType discriminates which match field of a Rule is populated.
type RuleType string

const (
	RuleTypeSender  RuleType = "sender"
	RuleTypeSubject RuleType = "subject"
)

// KeywordKeyPrefix prefixes the key of subject rules so they never collide with sender keys.
const KeywordKeyPrefix = "keyword:"

// Rule sources
const (
	RuleSourceManual = "Manual"
	RuleSourceAI     = "AI_Generated"
)

var (
	ErrEmptyCategory   = errors.New("category is required")
	ErrEmptySender     = errors.New("sender is required for sender rules")
	ErrEmptyKeyword    = errors.New("keyword is required for subject rules")
	ErrMixedRule       = errors.New("rule must set exactly one of sender or keyword")
	ErrUnknownRuleType = errors.New("rule_type must be sender or subject")
	ErrReservedSender  = errors.New("sender must not start with " + KeywordKeyPrefix)
)

// Rule maps a sender address or a subject keyword to a category.
type Rule struct {
	Category  string    `json:"category"`
	Type      RuleType  `json:"rule_type"`
	Sender    string    `json:"sender,omitempty"`
	Keyword   string    `json:"keyword,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSenderRule builds a normalized sender rule.
func NewSenderRule(sender, category string) Rule {
	return Rule{Type: RuleTypeSender, Sender: NormalizeSender(sender), Category: strings.TrimSpace(category)}
}

// NewKeywordRule builds a normalized subject-keyword rule.
func NewKeywordRule(keyword, category string) Rule {
	return Rule{Type: RuleTypeSubject, Keyword: strings.TrimSpace(keyword), Category: strings.TrimSpace(category)}
}

// NormalizeSender lower-cases and trims an address so it can be used as an exact-match key.
func NormalizeSender(sender string) string {
	return strings.ToLower(strings.TrimSpace(sender))
}

// Normalize returns a copy with trimmed fields and a lower-cased sender.
func (r Rule) Normalize() Rule {
	r.Category = strings.TrimSpace(r.Category)
	r.Sender = NormalizeSender(r.Sender)
	r.Keyword = strings.TrimSpace(r.Keyword)
	return r
}

// Validate checks that exactly the match field of the rule type is set.
func (r Rule) Validate() error {
	if r.Category == "" {
		return ErrEmptyCategory
	}
	switch r.Type {
	case RuleTypeSender:
		if r.Keyword != "" {
			return ErrMixedRule
		}
		if r.Sender == "" {
			return ErrEmptySender
		}
		if strings.HasPrefix(r.Sender, KeywordKeyPrefix) {
			return ErrReservedSender
		}
	case RuleTypeSubject:
		if r.Sender != "" {
			return ErrMixedRule
		}
		if r.Keyword == "" {
			return ErrEmptyKeyword
		}
	default:
		return ErrUnknownRuleType
	}
	return nil
}

// Key is the store-wide identity of the rule.
func (r Rule) Key() string {
	if r.Type == RuleTypeSubject {
		return KeywordKeyPrefix + r.Keyword
	}
	return r.Sender
}

// NormalizeKey maps a caller-supplied key onto the stored form: sender keys
// are case-insensitive, keyword keys are exact.
func NormalizeKey(key string) string {
	if strings.HasPrefix(key, KeywordKeyPrefix) {
		return key
	}
	return NormalizeSender(key)
}

// MatchValue returns the populated match field.
func (r Rule) MatchValue() string {
	if r.Type == RuleTypeSubject {
		return r.Keyword
	}
	return r.Sender
}

// RuleFromRow rebuilds a persisted rule from its rule_type and match_value columns.
func RuleFromRow(ruleType, matchValue, category string) Rule {
	r := Rule{Type: RuleType(ruleType), Category: category}
	if r.Type == RuleTypeSubject {
		r.Keyword = matchValue
	} else {
		r.Sender = matchValue
	}
	return r
}
