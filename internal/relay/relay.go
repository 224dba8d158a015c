// Package relay drives one run: list the unread items of a mailbox, then
// fetch, parse, deliver and mark each one read in order.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shineum/mail2telegram/internal/email"
	"github.com/shineum/mail2telegram/internal/metrics"
)

const unknownSubject = "(unknown subject)"

// Source is the mailbox the relay reads from.
type Source interface {
	Unread(ctx context.Context) ([]uint32, error)
	Fetch(ctx context.Context, uid uint32) ([]byte, error)
	MarkRead(ctx context.Context, uid uint32) error
	Close() error
}

// Deliverer posts parsed messages and diagnostics to the destination.
type Deliverer interface {
	Deliver(ctx context.Context, msg *email.Message) error
	Notify(ctx context.Context, text string)
}

// ParseFunc turns raw message bytes into a Message.
type ParseFunc func(raw []byte) (*email.Message, error)

// Summary counts the items of one run.
type Summary struct {
	Found     int
	Delivered int
	Failed    int
}

// Relay moves unread mail from a Source to a Deliverer.
type Relay struct {
	source    Source
	parse     ParseFunc
	deliverer Deliverer
	metrics   *metrics.Metrics
	newID     func() string
}

// New creates a Relay. m may be nil.
func New(source Source, parse ParseFunc, deliverer Deliverer, m *metrics.Metrics) *Relay {
	return &Relay{
		source:    source,
		parse:     parse,
		deliverer: deliverer,
		metrics:   m,
		newID:     uuid.NewString,
	}
}

// Run processes every unread item once and closes the source. Failing to
// list unread items is fatal and nothing is posted. Per-item failures are
// reported to the destination and counted; the loop continues. Only
// successfully delivered items are marked read.
func (r *Relay) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	defer func() {
		if err := r.source.Close(); err != nil {
			slog.Warn("failed to close mailbox", "error", err)
		}
	}()

	uids, err := r.source.Unread(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list unread messages: %w", err)
	}
	summary.Found = len(uids)
	slog.Info("found unread messages", "count", len(uids))

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			slog.Warn("run interrupted", "remaining", summary.Found-summary.Delivered-summary.Failed)
			return summary, fmt.Errorf("run interrupted: %w", err)
		}

		if r.process(ctx, uid) {
			summary.Delivered++
			r.metrics.ItemProcessed("delivered")
		} else {
			summary.Failed++
			r.metrics.ItemProcessed("failed")
		}
	}

	slog.Info("run complete",
		"found", summary.Found,
		"delivered", summary.Delivered,
		"failed", summary.Failed,
	)
	return summary, nil
}

// process handles one item and reports whether it was delivered and
// flagged as read.
func (r *Relay) process(ctx context.Context, uid uint32) bool {
	logger := slog.With("delivery_id", r.newID(), "uid", uid)
	logger.Info("processing message")

	raw, err := r.source.Fetch(ctx, uid)
	if err != nil {
		r.fail(ctx, logger, unknownSubject, err)
		return false
	}

	msg, err := r.parse(raw)
	if err != nil {
		r.fail(ctx, logger, unknownSubject, err)
		return false
	}
	msg.UID = uid

	logger = logger.With("subject", msg.Subject)
	logger.Info("parsed message",
		"from", msg.SenderEmail,
		"attachments", len(msg.Attachments),
	)

	if err := r.deliverer.Deliver(ctx, msg); err != nil {
		r.fail(ctx, logger, msg.Subject, err)
		return false
	}

	if err := r.source.MarkRead(ctx, uid); err != nil {
		logger.Error("failed to mark message as read", "error", err)
		return false
	}

	logger.Info("message delivered and marked as read")
	return true
}

// fail logs err and posts a best-effort diagnostic naming the subject.
func (r *Relay) fail(ctx context.Context, logger *slog.Logger, subject string, err error) {
	logger.Error("failed to process message", "error", err)
	r.deliverer.Notify(ctx, fmt.Sprintf("❌ Failed to process email %q: %v", subject, err))
}

// KeepUnread wraps src so MarkRead only logs. Dry runs use it to leave the
// mailbox untouched.
func KeepUnread(src Source) Source {
	return keepUnread{src}
}

type keepUnread struct {
	Source
}

func (k keepUnread) MarkRead(_ context.Context, uid uint32) error {
	slog.Info("dry run, leaving message unread", "uid", uid)
	return nil
}
