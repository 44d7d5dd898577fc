// Package agent calls the Gemini generateContent REST endpoint to propose
// sender rules and categorize single messages.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mail-archivist/internal/model"
	"mail-archivist/pkg/circuitbreaker"
	"mail-archivist/pkg/metrics"
	"mail-archivist/pkg/trace"
)

// ErrNoAPIKey is returned when no key is configured.
var ErrNoAPIKey = errors.New("agent: google api key is not set")

// KeySource is satisfied by *settings.Store so the key can change at runtime.
type KeySource interface {
	APIKey() string
}

type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Categories []string
}

type Client struct {
	baseURL    string
	model      string
	categories []string
	keys       KeySource
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config, keys KeySource) *Client {
	cbConfig := circuitbreaker.Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		HalfOpenMaxRequests: 2,
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		categories: cfg.Categories,
		keys:       keys,
		httpClient: &http.Client{Timeout: timeout},
		cb:         circuitbreaker.NewCircuitBreaker("agent", cbConfig),
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// ProposeRules asks the model for a category per sender. Senders the model
// considers ambiguous come back as model.CategoryUnclassified.
func (c *Client) ProposeRules(ctx context.Context, senders []string) (map[string]string, error) {
	if len(senders) == 0 {
		return map[string]string{}, nil
	}

	cats, _ := json.MarshalIndent(c.categories, "", "  ")
	list, _ := json.Marshal(senders)
	prompt := fmt.Sprintf(`You are an elite email organization consultant.
Objective: Classify the provided list of email sender addresses.

Categories:
%s

Instruction:
- Return a SINGLE JSON object mapping each sender address to its most appropriate category key.
- Example: {"service@paypal.com": "%s"}
- If a sender is highly ambiguous, use "%s".

Senders to Classify:
%s

IMPORTANT: Return ONLY valid JSON. No conversational text.`, cats, c.exampleCategory(), model.CategoryUnclassified, list)

	text, err := c.generate(ctx, "propose_rules", prompt)
	if err != nil {
		return nil, err
	}

	proposals := make(map[string]string)
	if err := json.Unmarshal([]byte(text), &proposals); err != nil {
		return nil, fmt.Errorf("agent: json decode proposals: %w", err)
	}
	return proposals, nil
}

// Categorize asks the model to place a single message.
func (c *Client) Categorize(ctx context.Context, email model.Email) (string, error) {
	prompt := fmt.Sprintf(`You are an intelligent email classifier. Classify the following email into one of these categories:

- %s

Email Details:
- Sender: %s
- Subject: %s
- Snippet: %s

Return ONLY a JSON object of the form {"category": "<category>"}. Use "%s" when no category fits.`,
		strings.Join(c.categories, "\n- "), email.Sender, email.Subject, email.Snippet, model.CategoryUnclassified)

	text, err := c.generate(ctx, "categorize", prompt)
	if err != nil {
		return "", err
	}

	var out struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return "", fmt.Errorf("agent: json decode category: %w", err)
	}
	return out.Category, nil
}

func (c *Client) exampleCategory() string {
	if len(c.categories) > 0 {
		return c.categories[0]
	}
	return "Finance"
}

// generate sends prompt through the circuit breaker and returns the text of
// the first candidate.
func (c *Client) generate(ctx context.Context, endpoint, prompt string) (string, error) {
	key := ""
	if c.keys != nil {
		key = c.keys.APIKey()
	}
	if key == "" {
		return "", ErrNoAPIKey
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return "", err
	}

	var text string
	err = c.cb.ExecuteContext(ctx, func(ctx context.Context) error {
		start := time.Now()
		u := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(key))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if traceID := trace.FromContext(ctx); traceID != "" {
			req.Header.Set(trace.HeaderName(), traceID)
		}

		resp, err := c.httpClient.Do(req)
		latency := time.Since(start)
		if err != nil {
			metrics.RecordAgentCallLatency(endpoint, "error", latency)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			metrics.RecordAgentCallLatency(endpoint, "5xx", latency)
			return fmt.Errorf("agent service 5xx: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			metrics.RecordAgentCallLatency(endpoint, fmt.Sprintf("%d", resp.StatusCode), latency)
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("agent service error: %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		}
		metrics.RecordAgentCallLatency(endpoint, "success", latency)

		var decoded generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("agent: json decode response: %w", err)
		}
		if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
			return errors.New("agent: empty response")
		}
		text = decoded.Candidates[0].Content.Parts[0].Text
		return nil
	})
	return stripFence(text), err
}

// stripFence removes a ```json fence some models wrap around the payload.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
