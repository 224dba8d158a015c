// Package stdout implements a telegram.Sender that prints requests instead of
// sending them, for dry runs against a real mailbox.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shineum/mail2telegram/internal/telegram"
)

// Sender prints Telegram requests in a human-readable format.
type Sender struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a new stdout Sender that writes to os.Stdout.
func New() *Sender {
	return &Sender{writer: os.Stdout}
}

// NewWithWriter creates a new stdout Sender that writes to the given writer.
func NewWithWriter(w io.Writer) *Sender {
	return &Sender{writer: w}
}

// SendMessage prints the text message. It always returns nil.
func (s *Sender) SendMessage(_ context.Context, dest telegram.Destination, text string) error {
	var b strings.Builder

	writeHeader(&b, "sendMessage", dest)
	b.WriteString(text + "\n")
	b.WriteString("========================================\n")

	s.print(b.String())
	return nil
}

// SendFile prints a single-file upload. It always returns nil.
func (s *Sender) SendFile(_ context.Context, dest telegram.Destination, kind telegram.MediaKind, file telegram.InputFile, caption *string) error {
	var b strings.Builder

	writeHeader(&b, "send "+kind.String(), dest)
	b.WriteString(fmt.Sprintf("File: %s (%s)\n", file.Name, formatSize(len(file.Data))))
	if caption != nil && *caption != "" {
		b.WriteString(fmt.Sprintf("Caption: %s\n", *caption))
	}
	b.WriteString("========================================\n")

	s.print(b.String())
	return nil
}

// SendMediaGroup prints an album upload. It always returns nil.
func (s *Sender) SendMediaGroup(_ context.Context, dest telegram.Destination, media []telegram.InputMedia) error {
	var b strings.Builder

	writeHeader(&b, "sendMediaGroup", dest)
	items := make([]string, 0, len(media))
	for _, m := range media {
		items = append(items, fmt.Sprintf("%s:%s (%s)", m.Kind, m.File.Name, formatSize(len(m.File.Data))))
	}
	b.WriteString(fmt.Sprintf("Media: %s\n", strings.Join(items, ", ")))
	b.WriteString("========================================\n")

	s.print(b.String())
	return nil
}

// Name returns the backend name.
func (s *Sender) Name() string {
	return "stdout"
}

func (s *Sender) print(out string) {
	// Dry runs never fail on output errors.
	_, _ = fmt.Fprint(s.writer, out)
}

func writeHeader(b *strings.Builder, method string, dest telegram.Destination) {
	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("Method: %s\n", method))
	b.WriteString(fmt.Sprintf("Chat: %s  Topic: %d\n", dest.ChatID, dest.TopicID))
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
