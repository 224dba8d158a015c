// Package parser turns raw RFC 5322 messages into email.Message values using
// go-message. Transfer encodings and legacy charsets are decoded on the way.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/shineum/mail2telegram/internal/email"
)

// TimestampLayout renders the Date header for display.
const TimestampLayout = "2006-01-02 03:04 PM (MST)"

const (
	unknownTimestamp   = "Unknown"
	undecodableBody    = "[Unable to decode body]"
	fallbackAttachment = "attachment"
)

func init() {
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
	charset.RegisterEncoding("gbk", simplifiedchinese.GBK)
	charset.RegisterEncoding("gb2312", simplifiedchinese.GBK)
}

// Parse parses a raw message. Dates are rendered in loc (UTC when nil).
// The first text/plain part becomes the body; attachments are every part
// marked as attachment plus inline images.
func Parse(raw []byte, loc *time.Location) (*email.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	if loc == nil {
		loc = time.UTC
	}

	result := &email.Message{}
	header := mr.Header

	result.Subject, err = header.Subject()
	if err != nil {
		slog.Warn("failed to decode subject", "error", err)
	}
	result.MessageID, _ = header.MessageID()

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		result.SenderName = from[0].Name
		result.SenderEmail = from[0].Address
	} else if err != nil {
		slog.Warn("failed to parse From header", "error", err)
		result.SenderName = strings.TrimSpace(header.Get("From"))
	}

	if to, err := header.AddressList("To"); err == nil && len(to) > 0 {
		result.Recipient = to[0].Address
	} else if err != nil {
		result.Recipient = strings.TrimSpace(header.Get("To"))
	}

	result.Timestamp = formatDate(&header, loc)

	if err := readParts(mr, result); err != nil {
		return nil, err
	}
	return result, nil
}

// formatDate renders the Date header in loc, or "Unknown".
func formatDate(h *mail.Header, loc *time.Location) string {
	date, err := h.Date()
	if err != nil {
		slog.Warn("failed to parse date", "date", h.Get("Date"), "error", err)
		return unknownTimestamp
	}
	if date.IsZero() {
		return unknownTimestamp
	}
	return date.In(loc).Format(TimestampLayout)
}

// readParts walks every leaf part of the message, nested multiparts included.
func readParts(mr *mail.Reader, result *email.Message) error {
	bodySeen := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, params, _ := h.ContentType()
			switch {
			case mediaType == "text/plain":
				if bodySeen {
					continue
				}
				bodySeen = true
				result.Body = readBody(part.Body)
			case strings.HasPrefix(mediaType, "image/"):
				content, err := io.ReadAll(part.Body)
				if err != nil {
					slog.Warn("failed to read inline image", "content_type", mediaType, "error", err)
					continue
				}
				_, dispParams, _ := h.ContentDisposition()
				result.Attachments = append(result.Attachments, email.Attachment{
					Filename: filename(mediaType, dispParams["filename"], params["name"]),
					Content:  content,
				})
			default:
				slog.Debug("skipping inline part", "content_type", mediaType)
			}

		case *mail.AttachmentHeader:
			mediaType, params, _ := h.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				slog.Warn("failed to read attachment", "content_type", mediaType, "error", err)
				continue
			}
			name, _ := h.Filename()
			result.Attachments = append(result.Attachments, email.Attachment{
				Filename: filename(mediaType, name, params["name"]),
				Content:  content,
			})
		}
	}
}

// readBody returns the decoded text of a body part, or a placeholder when
// the transfer encoding or charset cannot be decoded.
func readBody(r io.Reader) string {
	body, err := io.ReadAll(r)
	if err != nil {
		slog.Warn("failed to decode body", "error", err)
		return undecodableBody
	}
	if !utf8.Valid(body) {
		slog.Warn("failed to decode body", "error", "invalid UTF-8 after charset conversion")
		return undecodableBody
	}
	return string(body)
}

// filename picks the first non-empty candidate, falling back to a name
// derived from the media type.
func filename(mediaType string, candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
		return fallbackAttachment + "." + sub
	}
	return fallbackAttachment
}
