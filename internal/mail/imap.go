// Package mail syncs and archives messages over IMAP.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"mail-archivist/internal/model"
	"mail-archivist/pkg/circuitbreaker"
	"mail-archivist/pkg/metrics"
)

// ErrNoCredentials is returned when the account is not configured.
var ErrNoCredentials = errors.New("imap: username and password are not configured")

const snippetSize = 200

var snippetSection = &imap.FetchItemBodySection{
	Specifier: imap.PartSpecifierText,
	Peek:      true,
	Partial:   &imap.SectionPartial{Offset: 0, Size: snippetSize},
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Mailbox  string
}

// Client opens one connection per operation. Message ids have the form
// "<uidvalidity>:<uid>" so a stale id is never applied to a recreated mailbox.
type Client struct {
	cfg Config
	cb  *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	return &Client{
		cfg: cfg,
		cb:  circuitbreaker.NewCircuitBreaker("imap", circuitbreaker.DefaultConfig()),
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.Username != "" && c.cfg.Password != ""
}

func (c *Client) connect(ctx context.Context) (*imapclient.Client, func() bool, error) {
	if !c.Configured() {
		return nil, nil, ErrNoCredentials
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	client, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: c.cfg.Host},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("imap: failed to connect: %w", err)
	}
	// imapclient commands are not context aware; closing the connection
	// unblocks any pending Wait.
	stop := context.AfterFunc(ctx, func() { client.Close() })

	if err := client.Login(c.cfg.Username, c.cfg.Password).Wait(); err != nil {
		stop()
		client.Close()
		return nil, nil, fmt.Errorf("imap: failed to login: %w", err)
	}
	return client, stop, nil
}

// Fetch returns the messages of the configured mailbox dated inside window.
func (c *Client) Fetch(ctx context.Context, window model.DateWindow) ([]model.Email, error) {
	var emails []model.Email
	err := c.call(ctx, "fetch", func(ctx context.Context) error {
		client, stop, err := c.connect(ctx)
		if err != nil {
			return err
		}
		defer stop()
		defer client.Close()

		mbox, err := client.Select(c.cfg.Mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
		if err != nil {
			return fmt.Errorf("imap: failed to select %s: %w", c.cfg.Mailbox, err)
		}

		criteria := &imap.SearchCriteria{Since: window.After, Before: window.Before}
		searchData, err := client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return withCtx(ctx, fmt.Errorf("imap: search failed: %w", err))
		}
		uids := searchData.AllUIDs()
		if len(uids) == 0 {
			return nil
		}

		fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
			UID:         true,
			Envelope:    true,
			RFC822Size:  true,
			BodySection: []*imap.FetchItemBodySection{snippetSection},
		})
		for {
			msg := fetchCmd.Next()
			if msg == nil {
				break
			}
			data, err := msg.Collect()
			if err != nil {
				continue
			}
			email := toEmail(mbox.UIDValidity, data)
			if !email.Date.IsZero() && !window.IsZero() && !window.Contains(email.Date) {
				continue
			}
			emails = append(emails, email)
		}
		if err := fetchCmd.Close(); err != nil {
			return withCtx(ctx, fmt.Errorf("imap: fetch failed: %w", err))
		}
		return nil
	})
	return emails, err
}

// Archive moves the message out of the mailbox into label, creating it if needed.
func (c *Client) Archive(ctx context.Context, id, label string) error {
	validity, uid, err := ParseID(id)
	if err != nil {
		return err
	}

	return c.call(ctx, "archive", func(ctx context.Context) error {
		client, stop, err := c.connect(ctx)
		if err != nil {
			return err
		}
		defer stop()
		defer client.Close()

		if err := client.Create(label, nil).Wait(); err != nil && !strings.Contains(err.Error(), "ALREADYEXISTS") {
			return withCtx(ctx, fmt.Errorf("imap: failed to create %s: %w", label, err))
		}

		mbox, err := client.Select(c.cfg.Mailbox, nil).Wait()
		if err != nil {
			return withCtx(ctx, fmt.Errorf("imap: failed to select %s: %w", c.cfg.Mailbox, err))
		}
		if mbox.UIDValidity != validity {
			return fmt.Errorf("imap: message %s not found: uidvalidity changed", id)
		}

		if _, err := client.Move(imap.UIDSetNum(uid), label).Wait(); err != nil {
			return withCtx(ctx, fmt.Errorf("imap: failed to move %s to %s: %w", id, label, err))
		}
		return nil
	})
}

func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := c.cb.ExecuteContext(ctx, fn)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordMailCallLatency(op, status, time.Since(start))
	return err
}

// withCtx prefers the context error over the closed-connection error it caused.
func withCtx(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func toEmail(validity uint32, data *imapclient.FetchMessageBuffer) model.Email {
	email := model.Email{
		ID:           FormatID(validity, data.UID),
		SizeEstimate: data.RFC822Size,
		Category:     model.CategoryUnclassified,
	}
	if env := data.Envelope; env != nil {
		email.Subject = env.Subject
		email.Date = env.Date.UTC()
		if len(env.From) > 0 {
			from := env.From[0]
			email.Sender = model.NormalizeSender(fmt.Sprintf("%s@%s", from.Mailbox, from.Host))
		}
	}
	if body := data.FindBodySection(snippetSection); body != nil {
		email.Snippet = strings.Join(strings.Fields(string(body)), " ")
	}
	return email
}

func FormatID(validity uint32, uid imap.UID) string {
	return strconv.FormatUint(uint64(validity), 10) + ":" + strconv.FormatUint(uint64(uid), 10)
}

// ParseID splits an id produced by FormatID.
func ParseID(id string) (uint32, imap.UID, error) {
	v, u, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0, fmt.Errorf("imap: malformed message id %q", id)
	}
	validity, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("imap: malformed message id %q: %w", id, err)
	}
	uid, err := strconv.ParseUint(u, 10, 32)
	if err != nil || uid == 0 {
		return 0, 0, fmt.Errorf("imap: malformed message id %q", id)
	}
	return uint32(validity), imap.UID(uid), nil
}
