package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shineum/mail2telegram/internal/email"
	"github.com/shineum/mail2telegram/internal/metrics"
	"github.com/shineum/mail2telegram/internal/parser"
)

type fakeSource struct {
	unread    []uint32
	unreadErr error
	raw       map[uint32]string
	fetchErr  map[uint32]error
	markErr   map[uint32]error

	fetched []uint32
	marked  []uint32
	closed  bool
}

func (s *fakeSource) Unread(context.Context) ([]uint32, error) {
	return s.unread, s.unreadErr
}

func (s *fakeSource) Fetch(_ context.Context, uid uint32) ([]byte, error) {
	s.fetched = append(s.fetched, uid)
	if err := s.fetchErr[uid]; err != nil {
		return nil, err
	}
	return []byte(s.raw[uid]), nil
}

func (s *fakeSource) MarkRead(_ context.Context, uid uint32) error {
	if err := s.markErr[uid]; err != nil {
		return err
	}
	s.marked = append(s.marked, uid)
	return nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeDeliverer struct {
	failSubjects map[string]error
	cancel       context.CancelFunc

	delivered []*email.Message
	notes     []string
}

func (d *fakeDeliverer) Deliver(_ context.Context, msg *email.Message) error {
	if err := d.failSubjects[msg.Subject]; err != nil {
		return err
	}
	d.delivered = append(d.delivered, msg)
	if d.cancel != nil {
		d.cancel()
	}
	return nil
}

func (d *fakeDeliverer) Notify(_ context.Context, text string) {
	d.notes = append(d.notes, text)
}

func rawMessage(subject string) string {
	return strings.Join([]string{
		"From: Alice <alice@example.com>",
		"To: relay@example.com",
		"Subject: " + subject,
		"Date: Tue, 05 Mar 2024 09:15:00 +0000",
		"",
		"Body of " + subject,
	}, "\r\n")
}

func parseUTC(raw []byte) (*email.Message, error) {
	return parser.Parse(raw, time.UTC)
}

func newTestRelay(src Source, d *fakeDeliverer, parse ParseFunc) *Relay {
	r := New(src, parse, d, metrics.New())
	n := 0
	r.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return r
}

func TestRun_DeliversAndMarksRead(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		unread: []uint32{3, 7},
		raw:    map[uint32]string{3: rawMessage("first"), 7: rawMessage("second")},
	}
	d := &fakeDeliverer{}

	summary, err := newTestRelay(src, d, parseUTC).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary != (Summary{Found: 2, Delivered: 2}) {
		t.Errorf("summary: got %+v", summary)
	}
	if len(d.delivered) != 2 || d.delivered[0].Subject != "first" || d.delivered[1].Subject != "second" {
		t.Fatalf("delivered: got %+v", d.delivered)
	}
	if d.delivered[0].UID != 3 || d.delivered[1].UID != 7 {
		t.Errorf("UIDs not set on parsed messages: %d, %d", d.delivered[0].UID, d.delivered[1].UID)
	}
	if fmt.Sprint(src.marked) != "[3 7]" {
		t.Errorf("marked: got %v, want [3 7]", src.marked)
	}
	if len(d.notes) != 0 {
		t.Errorf("no diagnostics expected, got %v", d.notes)
	}
	if !src.closed {
		t.Error("source should be closed after the run")
	}
}

func TestRun_NoUnread(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	d := &fakeDeliverer{}

	summary, err := newTestRelay(src, d, parseUTC).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != (Summary{}) {
		t.Errorf("summary: got %+v", summary)
	}
	if !src.closed {
		t.Error("source should be closed")
	}
}

func TestRun_UnreadFailureIsFatal(t *testing.T) {
	t.Parallel()

	src := &fakeSource{unreadErr: errors.New("connection lost")}
	d := &fakeDeliverer{}

	_, err := newTestRelay(src, d, parseUTC).Run(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(d.notes) != 0 || len(d.delivered) != 0 {
		t.Error("nothing may be posted when the unread list cannot be read")
	}
	if !src.closed {
		t.Error("source should be closed even on failure")
	}
}

func TestRun_ItemFailuresContinue(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		unread:   []uint32{1, 2, 3, 4, 5},
		raw:      map[uint32]string{2: "unused", 3: rawMessage("rejected"), 4: rawMessage("unflaggable"), 5: rawMessage("fine")},
		fetchErr: map[uint32]error{1: errors.New("fetch timed out")},
		markErr:  map[uint32]error{4: errors.New("store failed")},
	}
	d := &fakeDeliverer{failSubjects: map[string]error{"rejected": context.DeadlineExceeded}}

	parse := func(raw []byte) (*email.Message, error) {
		if string(raw) == "unused" {
			return nil, errors.New("malformed header")
		}
		return parseUTC(raw)
	}

	summary, err := newTestRelay(src, d, parse).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary != (Summary{Found: 5, Delivered: 1, Failed: 4}) {
		t.Errorf("summary: got %+v", summary)
	}
	if fmt.Sprint(src.marked) != "[5]" {
		t.Errorf("marked: got %v, want [5]", src.marked)
	}

	want := []string{
		`❌ Failed to process email "(unknown subject)": fetch timed out`,
		`❌ Failed to process email "(unknown subject)": malformed header`,
		`❌ Failed to process email "rejected": context deadline exceeded`,
	}
	if len(d.notes) != len(want) {
		t.Fatalf("diagnostics: got %q, want %q", d.notes, want)
	}
	for i := range want {
		if d.notes[i] != want[i] {
			t.Errorf("diagnostic %d: got %q, want %q", i, d.notes[i], want[i])
		}
	}
}

func TestRun_StopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		unread: []uint32{1, 2},
		raw:    map[uint32]string{1: rawMessage("one"), 2: rawMessage("two")},
	}
	d := &fakeDeliverer{cancel: cancel}

	summary, err := newTestRelay(src, d, parseUTC).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if summary.Delivered != 1 {
		t.Errorf("Delivered: got %d, want 1", summary.Delivered)
	}
	if fmt.Sprint(src.fetched) != "[1]" {
		t.Errorf("fetched: got %v, second item must not be touched", src.fetched)
	}
}

func TestKeepUnread(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		unread: []uint32{9},
		raw:    map[uint32]string{9: rawMessage("dry")},
	}
	d := &fakeDeliverer{}

	summary, err := newTestRelay(KeepUnread(src), d, parseUTC).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Delivered != 1 {
		t.Errorf("Delivered: got %d, want 1", summary.Delivered)
	}
	if len(src.marked) != 0 {
		t.Errorf("dry run must not flag messages, got %v", src.marked)
	}
	if !src.closed {
		t.Error("wrapped source should still be closed")
	}
}
