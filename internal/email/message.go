// Package email defines the normalized message model handed from the parser
// to the forwarder.
package email

// Message represents one unread mailbox item after parsing. It is built once
// per item and is not modified after the parser returns it.
type Message struct {
	// UID is the mailbox identifier of the item, used for logging only.
	UID       uint32
	MessageID string

	Subject     string
	SenderName  string
	SenderEmail string
	// Recipient is the first To address, or empty when absent.
	Recipient string
	// Timestamp is the Date header rendered in the configured time zone,
	// or "Unknown" when the header could not be parsed.
	Timestamp   string
	Body        string
	Attachments []Attachment
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Empty reports whether the attachment carries no bytes.
func (a Attachment) Empty() bool {
	return len(a.Content) == 0
}
