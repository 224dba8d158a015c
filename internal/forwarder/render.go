package forwarder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/shineum/mail2telegram/internal/email"
)

// Header lines a mail client leaves in the body when a person forwards a
// message by hand.
var (
	forwardedFrom = regexp.MustCompile(`(?im)^from:[ \t]*(.+)$`)
	forwardedTo   = regexp.MustCompile(`(?im)^to:[ \t]*(.+)$`)
)

// Render builds the text posted for msg: subject, sender, optional
// recipient, timestamp, a blank line and the body. When the body contains
// forwarded From:/To: lines, the first of each replaces the envelope sender
// and recipient unless its value is blank.
func Render(msg *email.Message) string {
	senderName, senderEmail := msg.SenderName, msg.SenderEmail
	recipient := msg.Recipient

	if m := forwardedFrom.FindStringSubmatch(msg.Body); m != nil {
		if name, addr := splitAddress(m[1]); name != "" || addr != "" {
			senderName, senderEmail = name, addr
		}
	}
	if m := forwardedTo.FindStringSubmatch(msg.Body); m != nil {
		if to := strings.TrimSpace(m[1]); to != "" {
			recipient = to
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📧 Subject: %s\n", msg.Subject)
	fmt.Fprintf(&b, "👤 From: %s\n", formatAddress(senderName, senderEmail))
	if recipient != "" {
		fmt.Fprintf(&b, "📨 To: %s\n", recipient)
	}
	fmt.Fprintf(&b, "🕒 Sent: %s\n\n", msg.Timestamp)
	b.WriteString(msg.Body)

	return b.String()
}

// splitAddress parses a forwarded "Name <addr>" value. Values that are not
// valid addresses are returned whole as the name.
func splitAddress(raw string) (name, address string) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return raw, ""
	}
	return addr.Name, addr.Address
}

func formatAddress(name, address string) string {
	switch {
	case name != "" && address != "":
		return fmt.Sprintf("%s <%s>", name, address)
	case address != "":
		return address
	default:
		return name
	}
}
