package forwarder

import (
	"context"
	"sync"

	"github.com/shineum/mail2telegram/internal/telegram"
)

// call records one request made to fakeSender.
type call struct {
	method  string
	kind    telegram.MediaKind
	text    string
	files   []string
	caption []*string
}

// fakeSender records every request and answers with respond, or nil.
type fakeSender struct {
	mu      sync.Mutex
	calls   []call
	respond func(c call, n int) error
}

func (s *fakeSender) record(c call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	n := len(s.calls)
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(c, n)
	}
	return nil
}

func (s *fakeSender) SendMessage(_ context.Context, _ telegram.Destination, text string) error {
	return s.record(call{method: "sendMessage", text: text})
}

func (s *fakeSender) SendFile(_ context.Context, _ telegram.Destination, kind telegram.MediaKind, file telegram.InputFile, caption *string) error {
	return s.record(call{
		method:  "send " + kind.String(),
		kind:    kind,
		files:   []string{file.Name},
		caption: []*string{caption},
	})
}

func (s *fakeSender) SendMediaGroup(_ context.Context, _ telegram.Destination, media []telegram.InputMedia) error {
	c := call{method: "sendMediaGroup", kind: media[0].Kind}
	for _, m := range media {
		c.files = append(c.files, m.File.Name)
		c.caption = append(c.caption, m.Caption)
	}
	return s.record(c)
}

func (s *fakeSender) Name() string { return "fake" }

// byMethod returns the recorded calls whose method matches.
func (s *fakeSender) byMethod(method string) []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []call
	for _, c := range s.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}
