// Package telegram defines the interface and request types for delivering
// relayed mail into a Telegram forum topic.
package telegram

import (
	"context"
)

// Destination identifies the forum topic that receives relayed mail.
type Destination struct {
	// ChatID is the supergroup id (e.g. "-1001234567890") or @username.
	ChatID string
	// TopicID is the message_thread_id of the forum topic. Must be non-zero.
	TopicID int64
}

// MediaKind is the Telegram media category an attachment is uploaded as.
type MediaKind int

const (
	MediaPhoto MediaKind = iota
	MediaVideo
	MediaDocument
)

// MediaKinds lists every kind in delivery order.
var MediaKinds = []MediaKind{MediaPhoto, MediaVideo, MediaDocument}

// String returns the Bot API "type" value of the kind.
func (k MediaKind) String() string {
	switch k {
	case MediaPhoto:
		return "photo"
	case MediaVideo:
		return "video"
	default:
		return "document"
	}
}

// InputFile is an in-memory file uploaded in a multipart request.
type InputFile struct {
	Name string
	Data []byte
}

// InputMedia is one entry of a media group upload.
type InputMedia struct {
	Kind MediaKind
	File InputFile
	// Ref names the multipart field holding File; the descriptor refers to
	// it as "attach://<Ref>".
	Ref string
	// Caption is sent only when non-nil. A pointer to "" sends an explicit
	// empty caption.
	Caption *string
}

// Sender is the interface that Telegram delivery backends must implement.
type Sender interface {
	// SendMessage posts a plain text message (at most 4096 characters).
	SendMessage(ctx context.Context, dest Destination, text string) error

	// SendFile uploads a single file as the given kind, with an optional caption.
	SendFile(ctx context.Context, dest Destination, kind MediaKind, file InputFile, caption *string) error

	// SendMediaGroup uploads 2-10 items of the same kind as one album.
	SendMediaGroup(ctx context.Context, dest Destination, media []InputMedia) error

	// Name returns the human-readable name of this backend.
	Name() string
}
