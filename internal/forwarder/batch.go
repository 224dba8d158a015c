package forwarder

import (
	"fmt"

	"github.com/shineum/mail2telegram/internal/email"
	"github.com/shineum/mail2telegram/internal/telegram"
)

// MaxGroupSize is the largest album the Bot API accepts.
const MaxGroupSize = 10

// MediaGroup is one upload of up to MaxGroupSize attachments of one kind.
type MediaGroup struct {
	Kind  telegram.MediaKind
	Items []telegram.InputMedia
}

// Batches holds the groups of each media kind in attachment order.
type Batches map[telegram.MediaKind][]MediaGroup

// Groups returns every group in delivery order: photos, videos, then
// documents, each in attachment order.
func (b Batches) Groups() []MediaGroup {
	var groups []MediaGroup
	for _, kind := range telegram.MediaKinds {
		groups = append(groups, b[kind]...)
	}
	return groups
}

// Batch drops empty attachments (reporting each to onEmpty), classifies the
// rest and splits every kind into groups of at most MaxGroupSize. The first
// item of each group carries an empty caption.
func Batch(attachments []email.Attachment, onEmpty func(email.Attachment)) Batches {
	byKind := make(map[telegram.MediaKind][]email.Attachment)
	for _, att := range attachments {
		if att.Empty() {
			if onEmpty != nil {
				onEmpty(att)
			}
			continue
		}
		kind := Classify(att.Filename)
		byKind[kind] = append(byKind[kind], att)
	}

	batches := make(Batches)
	for kind, list := range byKind {
		for start := 0; start < len(list); start += MaxGroupSize {
			end := min(start+MaxGroupSize, len(list))
			batches[kind] = append(batches[kind], newGroup(kind, list[start:end]))
		}
	}
	return batches
}

func newGroup(kind telegram.MediaKind, attachments []email.Attachment) MediaGroup {
	group := MediaGroup{
		Kind:  kind,
		Items: make([]telegram.InputMedia, 0, len(attachments)),
	}
	for i, att := range attachments {
		item := telegram.InputMedia{
			Kind: kind,
			File: telegram.InputFile{Name: att.Filename, Data: att.Content},
			Ref:  fmt.Sprintf("file%d", i),
		}
		if i == 0 {
			caption := ""
			item.Caption = &caption
		}
		group.Items = append(group.Items, item)
	}
	return group
}

// nonEmpty returns the items of g that still carry content.
func (g MediaGroup) nonEmpty() []telegram.InputMedia {
	items := make([]telegram.InputMedia, 0, len(g.Items))
	for _, item := range g.Items {
		if len(item.File.Data) > 0 {
			items = append(items, item)
		}
	}
	return items
}

// method names the Bot API call used to upload g.
func (g MediaGroup) method() string {
	if len(g.Items) == 1 {
		switch g.Kind {
		case telegram.MediaPhoto:
			return "sendPhoto"
		case telegram.MediaVideo:
			return "sendVideo"
		default:
			return "sendDocument"
		}
	}
	return "sendMediaGroup"
}
