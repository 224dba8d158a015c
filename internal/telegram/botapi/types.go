// Package botapi implements a telegram.Sender that talks to the Telegram Bot HTTP API.
package botapi

import (
	"github.com/shineum/mail2telegram/internal/telegram"
)

// sendMessageRequest is the JSON body of a sendMessage call.
type sendMessageRequest struct {
	ChatID          string `json:"chat_id"`
	MessageThreadID int64  `json:"message_thread_id,omitempty"`
	Text            string `json:"text"`
}

// inputMedia is one descriptor of the sendMediaGroup "media" field.
type inputMedia struct {
	Type    string  `json:"type"`
	Media   string  `json:"media"`
	Caption *string `json:"caption,omitempty"`
}

// apiResponse is the envelope every Bot API response is wrapped in.
type apiResponse struct {
	OK          bool                `json:"ok"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// responseParameters carries machine-readable hints on failed requests.
type responseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// fileField returns the multipart field name the single-file method for
// kind expects, together with the method name.
func fileField(kind telegram.MediaKind) (method, field string) {
	switch kind {
	case telegram.MediaPhoto:
		return "sendPhoto", "photo"
	case telegram.MediaVideo:
		return "sendVideo", "video"
	default:
		return "sendDocument", "document"
	}
}

// buildMediaDescriptors converts group items into the JSON descriptors that
// bind each multipart file field to its media entry.
func buildMediaDescriptors(media []telegram.InputMedia) []inputMedia {
	descriptors := make([]inputMedia, 0, len(media))
	for _, m := range media {
		descriptors = append(descriptors, inputMedia{
			Type:    m.Kind.String(),
			Media:   "attach://" + m.Ref,
			Caption: m.Caption,
		})
	}
	return descriptors
}
