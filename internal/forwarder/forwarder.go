// Package forwarder delivers parsed mail into a Telegram topic: it renders
// and chunks the text, batches attachments by media kind and drives the
// retry and fallback policy for each upload.
package forwarder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/mail2telegram/internal/email"
	"github.com/shineum/mail2telegram/internal/metrics"
	"github.com/shineum/mail2telegram/internal/telegram"
)

// defaultMaxAttempts bounds the attempts of one upload under rate limiting.
const defaultMaxAttempts = 3

// Config holds the configuration for creating a Forwarder.
type Config struct {
	Destination telegram.Destination
	// MaxAttempts is the total number of attempts per upload when the API
	// keeps answering 429. Defaults to 3.
	MaxAttempts int
	// DefaultRetryAfter is the wait used when a 429 carries no suggestion.
	// Defaults to telegram.DefaultRetryAfter.
	DefaultRetryAfter time.Duration
	Metrics           *metrics.Metrics
}

// Option customizes a Forwarder.
type Option func(*Forwarder)

// WithSleep replaces the function used to wait between rate-limited attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Forwarder) {
		f.sleep = sleep
	}
}

// Forwarder delivers messages to one Telegram destination.
type Forwarder struct {
	sender      telegram.Sender
	dest        telegram.Destination
	maxAttempts int
	defaultWait time.Duration
	metrics     *metrics.Metrics
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a Forwarder that sends through sender.
func New(sender telegram.Sender, cfg Config, opts ...Option) *Forwarder {
	f := &Forwarder{
		sender:      sender,
		dest:        cfg.Destination,
		maxAttempts: cfg.MaxAttempts,
		defaultWait: cfg.DefaultRetryAfter,
		metrics:     cfg.Metrics,
		sleep:       sleepWithContext,
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = defaultMaxAttempts
	}
	if f.defaultWait <= 0 {
		f.defaultWait = telegram.DefaultRetryAfter
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Deliver posts msg's text, then its attachments. Failed text chunks and
// failed attachment groups are logged and reported to the destination but
// do not fail the delivery; an error is returned only when ctx is already
// done before anything is sent.
func (f *Forwarder) Deliver(ctx context.Context, msg *email.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delivery cancelled: %w", err)
	}

	chunks := Chunk(Render(msg), MaxMessageLength)
	for i, chunk := range chunks {
		st := f.attempt(ctx, "sendMessage", func() error {
			return f.sender.SendMessage(ctx, f.dest, chunk)
		})
		if st.outcome != telegram.OutcomeSent {
			slog.Error("failed to send text chunk",
				"uid", msg.UID,
				"chunk", i+1,
				"chunks", len(chunks),
				"attempts", st.attempt,
				"error", st.err,
			)
		}
	}

	if len(msg.Attachments) == 0 {
		return nil
	}

	batches := Batch(msg.Attachments, func(att email.Attachment) {
		slog.Warn("skipping empty attachment",
			"uid", msg.UID,
			"filename", att.Filename,
		)
		f.metrics.AttachmentsDropped("empty", 1)
		f.Notify(ctx, fmt.Sprintf("⚠️ Skipped empty attachment %q of %q", att.Filename, msg.Subject))
	})

	for _, group := range batches.Groups() {
		f.deliverGroup(ctx, msg, group)
	}
	return nil
}

// Notify posts text to the destination with a single attempt. Failures are
// logged and never returned.
func (f *Forwarder) Notify(ctx context.Context, text string) {
	err := f.sender.SendMessage(ctx, f.dest, truncate(text, MaxMessageLength))
	outcome, _ := telegram.Classify(err, f.defaultWait)
	f.metrics.APIRequest("sendMessage", outcome.String())
	if err != nil {
		slog.Warn("failed to send notification", "error", err)
	}
}

// retryState tracks one upload through the rate-limit retry loop.
type retryState struct {
	attempt int
	wait    time.Duration
	outcome telegram.Outcome
	err     error
}

// attempt calls send until it succeeds, fails for a reason other than rate
// limiting, or maxAttempts is reached, waiting the server-suggested time
// between rate-limited attempts.
func (f *Forwarder) attempt(ctx context.Context, method string, send func() error) retryState {
	var st retryState
	for st.attempt = 1; ; st.attempt++ {
		st.err = send()
		st.outcome, st.wait = telegram.Classify(st.err, f.defaultWait)
		f.metrics.APIRequest(method, st.outcome.String())

		if st.outcome != telegram.OutcomeRateLimited || st.attempt >= f.maxAttempts {
			return st
		}

		slog.Info("rate limited by Telegram, waiting",
			"method", method,
			"attempt", st.attempt,
			"max_attempts", f.maxAttempts,
			"retry_after", st.wait,
		)
		f.metrics.RateLimitWait()
		if err := f.sleep(ctx, st.wait); err != nil {
			st.outcome = telegram.OutcomeFailed
			st.err = fmt.Errorf("context cancelled during retry wait: %w", err)
			return st
		}
	}
}

// deliverGroup uploads one group and applies the outcome policy: rate limit
// exhaustion and other failures drop the group with a report, an empty
// payload rejection falls back to one document upload per item.
func (f *Forwarder) deliverGroup(ctx context.Context, msg *email.Message, group MediaGroup) {
	method := group.method()
	st := f.attempt(ctx, method, func() error {
		return f.sendGroup(ctx, group)
	})

	switch st.outcome {
	case telegram.OutcomeSent:
		slog.Debug("attachment group sent",
			"uid", msg.UID,
			"kind", group.Kind.String(),
			"items", len(group.Items),
		)
	case telegram.OutcomeRateLimited:
		slog.Error("rate limit persisted, dropping attachment group",
			"uid", msg.UID,
			"kind", group.Kind.String(),
			"items", len(group.Items),
			"attempts", st.attempt,
			"error", st.err,
		)
		f.metrics.AttachmentsDropped("rate_limited", len(group.Items))
		f.Notify(ctx, fmt.Sprintf("⚠️ Still rate limited after %d attempts: %d %s attachment(s) of %q were not delivered.\n%v",
			st.attempt, len(group.Items), group.Kind, msg.Subject, st.err))
	case telegram.OutcomeEmptyPayload:
		f.sendIndividually(ctx, msg, group)
	default:
		slog.Error("failed to upload attachment group",
			"uid", msg.UID,
			"kind", group.Kind.String(),
			"items", len(group.Items),
			"error", st.err,
		)
		f.metrics.AttachmentsDropped("failed", len(group.Items))
		f.Notify(ctx, fmt.Sprintf("❌ Failed to upload %d %s attachment(s) of %q.\n%v",
			len(group.Items), group.Kind, msg.Subject, st.err))
	}
}

// sendGroup performs one upload of group. Albums need at least two items,
// so a single item goes through the method for its kind.
func (f *Forwarder) sendGroup(ctx context.Context, group MediaGroup) error {
	if len(group.Items) == 1 {
		item := group.Items[0]
		return f.sender.SendFile(ctx, f.dest, group.Kind, item.File, item.Caption)
	}
	return f.sender.SendMediaGroup(ctx, f.dest, group.Items)
}

// sendIndividually re-checks the group for empty items, which can appear
// when a content reader was already drained, then sends each remaining item
// as a document on its own. Every failure is reported separately.
func (f *Forwarder) sendIndividually(ctx context.Context, msg *email.Message, group MediaGroup) {
	items := group.nonEmpty()
	if dropped := len(group.Items) - len(items); dropped > 0 {
		f.metrics.AttachmentsDropped("empty", dropped)
	}

	slog.Warn("attachment group rejected as empty, sending items individually",
		"uid", msg.UID,
		"kind", group.Kind.String(),
		"items", len(items),
	)

	for _, item := range items {
		err := f.sender.SendFile(ctx, f.dest, telegram.MediaDocument, item.File, nil)
		outcome, _ := telegram.Classify(err, f.defaultWait)
		f.metrics.APIRequest("sendDocument", outcome.String())
		if err == nil {
			continue
		}

		slog.Error("failed to send attachment",
			"uid", msg.UID,
			"filename", item.File.Name,
			"error", err,
		)
		f.metrics.AttachmentsDropped("failed", 1)
		f.Notify(ctx, fmt.Sprintf("❌ Failed to send attachment %q of %q.\n%v", item.File.Name, msg.Subject, err))
	}
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
