package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"mail-archivist/internal/model"
	"mail-archivist/internal/rules"
	"mail-archivist/pkg/util"
)

// ArchiveLabelPrefix prefixes the mailbox each category is filed under.
const ArchiveLabelPrefix = "Archived/"

const dedupScopeArchive = "archive"

func (o *Orchestrator) syncPhase(ctx context.Context, window model.DateWindow) error {
	o.logger.Info(fmt.Sprintf("Syncing messages for %s", window))

	callCtx, cancel := o.callCtx(ctx)
	emails, err := o.deps.Fetcher.Fetch(callCtx, window)
	cancel()
	if err != nil {
		_, class := util.IsRetryableError(err)
		o.logger.Error("Mail fetch failed", zap.String("error_class", class), zap.Error(err))
		return fmt.Errorf("fetch: %w", err)
	}

	inWindow := make([]model.Email, 0, len(emails))
	for _, e := range emails {
		if !e.Date.IsZero() && !window.Contains(e.Date) {
			continue
		}
		if e.Category == "" {
			e.Category = model.CategoryUnclassified
		}
		inWindow = append(inWindow, e)
	}
	o.logger.Info(fmt.Sprintf("Fetched %d messages", len(inWindow)))

	added, err := o.deps.Emails.UpsertEmails(ctx, inWindow)
	if err != nil {
		o.logger.Error("Failed to store messages", zap.Error(err))
		return fmt.Errorf("store messages: %w", err)
	}
	o.logger.Info(fmt.Sprintf("Sync finished: %d new, %d already known", added, len(inWindow)-added))
	return nil
}

func (o *Orchestrator) rulesPhase(ctx context.Context) error {
	if o.deps.Proposer == nil {
		o.logger.Error("Rule generation unavailable", zap.Error(ErrNoProposer))
		return ErrNoProposer
	}

	counts, err := o.deps.Emails.UnclassifiedSenders(ctx, o.opts.SenderLimit)
	if err != nil {
		o.logger.Error("Failed to list senders", zap.Error(err))
		return fmt.Errorf("list senders: %w", err)
	}
	senders := make([]string, 0, len(counts))
	for _, c := range counts {
		if !o.deps.Rules.HasSender(c.Sender) {
			senders = append(senders, c.Sender)
		}
	}
	if len(senders) == 0 {
		o.logger.Info("No new senders without rules")
		return nil
	}
	o.logger.Info(fmt.Sprintf("Asking AI to categorize %d senders", len(senders)))

	callCtx, cancel := o.callCtx(ctx)
	proposals, err := o.deps.Proposer.ProposeRules(callCtx, senders)
	cancel()
	if err != nil {
		_, class := util.IsRetryableError(err)
		o.logger.Error("Rule generation failed", zap.String("error_class", class), zap.Error(err))
		return fmt.Errorf("propose rules: %w", err)
	}

	var created, skipped, conflicts int
	for _, sender := range senders {
		category, ok := proposals[sender]
		if !ok || category == "" || category == model.CategoryUnclassified {
			skipped++
			continue
		}
		rule := model.NewSenderRule(sender, category)
		rule.Source = model.RuleSourceAI

		_, err := o.deps.Rules.Add(ctx, rule)
		var conflict *rules.ConflictError
		var invalid *rules.ValidationError
		switch {
		case err == nil:
			created++
		case errors.As(err, &conflict):
			conflicts++
			o.logger.Warn(fmt.Sprintf("Rule for %s already exists as %s", sender, conflict.Existing.Category))
		case errors.As(err, &invalid):
			skipped++
			o.logger.Warn(fmt.Sprintf("Skipping invalid rule for %s", sender), zap.Error(err))
		default:
			o.logger.Error("Failed to save rule", zap.String("sender", sender), zap.Error(err))
			return fmt.Errorf("save rule: %w", err)
		}
	}
	o.logger.Info(fmt.Sprintf("Rules finished: %d created, %d conflicts, %d skipped", created, conflicts, skipped))
	return nil
}

func (o *Orchestrator) classifyPhase(ctx context.Context) error {
	emails, err := o.deps.Emails.ListUnclassified(ctx, 0)
	if err != nil {
		o.logger.Error("Failed to list unclassified messages", zap.Error(err))
		return fmt.Errorf("list unclassified: %w", err)
	}
	o.logger.Info(fmt.Sprintf("Classifying %d messages", len(emails)))

	var classified, unmatched, failed int
	for _, e := range emails {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, ok, err := o.deps.Classifier.Classify(ctx, e)
		if err != nil {
			failed++
			_, class := util.IsRetryableError(err)
			o.logger.Error(fmt.Sprintf("Classification failed for %s", e.ID), zap.String("error_class", class), zap.Error(err))
			continue
		}
		if !ok {
			unmatched++
			o.logger.Warn(fmt.Sprintf("No rule matched message from %s: %q", e.Sender, e.Subject))
			continue
		}
		if err := o.deps.Emails.SetCategory(ctx, e.ID, res.Category, res.Source); err != nil {
			o.logger.Error("Failed to store category", zap.String("id", e.ID), zap.Error(err))
			return fmt.Errorf("set category: %w", err)
		}
		classified++
	}
	o.logger.Info(fmt.Sprintf("Classify finished: %d classified, %d unmatched, %d failed", classified, unmatched, failed))
	return nil
}

// archivePhase files every classified message under its category label.
// A failed message is logged and skipped; the phase fails only when every
// attempted message failed.
func (o *Orchestrator) archivePhase(ctx context.Context) error {
	emails, err := o.deps.Emails.ListArchivable(ctx)
	if err != nil {
		o.logger.Error("Failed to list archivable messages", zap.Error(err))
		return fmt.Errorf("list archivable: %w", err)
	}
	if len(emails) == 0 {
		o.logger.Info("Nothing to archive")
		return nil
	}

	groups := make(map[string][]model.Email)
	for _, e := range emails {
		groups[e.Category] = append(groups[e.Category], e)
	}
	categories := make([]string, 0, len(groups))
	for c := range groups {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var archived, skipped, failed int
	var lastErr error
	for _, category := range categories {
		label := ArchiveLabelPrefix + category
		o.logger.Info(fmt.Sprintf("Archiving %d messages to %s", len(groups[category]), label))

		for _, e := range groups[category] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if o.deps.Deduper != nil && !o.deps.Deduper.AcquireOnce(ctx, dedupScopeArchive, e.ID) {
				skipped++
				continue
			}

			callCtx, cancel := o.callCtx(ctx)
			err := o.deps.Archiver.Archive(callCtx, e.ID, label)
			cancel()
			if err != nil {
				failed++
				lastErr = err
				if o.deps.Deduper != nil {
					o.deps.Deduper.Release(ctx, dedupScopeArchive, e.ID)
				}
				_, class := util.IsRetryableError(err)
				o.logger.Error(fmt.Sprintf("Failed to archive %s", e.ID), zap.String("error_class", class), zap.Error(err))
				continue
			}

			if err := o.deps.Emails.MarkArchived(ctx, e.ID); err != nil {
				o.logger.Error(fmt.Sprintf("Archived %s but failed to record it", e.ID), zap.Error(err))
			}
			archived++
		}
	}
	o.logger.Info(fmt.Sprintf("Archive finished: %d archived, %d skipped, %d failed", archived, skipped, failed))

	if failed > 0 && archived == 0 {
		return fmt.Errorf("archive: all %d attempts failed: %w", failed, lastErr)
	}
	return nil
}
