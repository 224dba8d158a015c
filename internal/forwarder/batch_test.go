package forwarder

import (
	"fmt"
	"testing"

	"github.com/shineum/mail2telegram/internal/email"
	"github.com/shineum/mail2telegram/internal/telegram"
)

func images(n int) []email.Attachment {
	atts := make([]email.Attachment, 0, n)
	for i := 1; i <= n; i++ {
		atts = append(atts, email.Attachment{
			Filename: fmt.Sprintf("img%02d.jpg", i),
			Content:  []byte{0xff, 0xd8, byte(i)},
		})
	}
	return atts
}

func TestBatch_TwelveImages(t *testing.T) {
	t.Parallel()

	batches := Batch(images(12), nil)

	groups := batches[telegram.MediaPhoto]
	if len(groups) != 2 {
		t.Fatalf("photo groups: got %d, want 2", len(groups))
	}
	if len(groups[0].Items) != 10 || len(groups[1].Items) != 2 {
		t.Fatalf("group sizes: got %d and %d, want 10 and 2", len(groups[0].Items), len(groups[1].Items))
	}
	if groups[0].Items[0].File.Name != "img01.jpg" || groups[1].Items[0].File.Name != "img11.jpg" {
		t.Errorf("unexpected order: %q, %q", groups[0].Items[0].File.Name, groups[1].Items[0].File.Name)
	}

	for gi, g := range groups {
		for i, item := range g.Items {
			if i == 0 {
				if item.Caption == nil || *item.Caption != "" {
					t.Errorf("group %d first item: want explicit empty caption, got %v", gi, item.Caption)
				}
			} else if item.Caption != nil {
				t.Errorf("group %d item %d: caption should be nil", gi, i)
			}
			if want := fmt.Sprintf("file%d", i); item.Ref != want {
				t.Errorf("group %d item %d ref: got %q, want %q", gi, i, item.Ref, want)
			}
		}
	}
}

func TestBatch_DropsEmptyAttachments(t *testing.T) {
	t.Parallel()

	atts := []email.Attachment{
		{Filename: "a.jpg", Content: []byte("a")},
		{Filename: "empty.jpg"},
		{Filename: "b.pdf", Content: []byte("b")},
		{Filename: "empty.pdf", Content: []byte{}},
	}

	var skipped []string
	batches := Batch(atts, func(att email.Attachment) {
		skipped = append(skipped, att.Filename)
	})

	if len(skipped) != 2 || skipped[0] != "empty.jpg" || skipped[1] != "empty.pdf" {
		t.Errorf("skipped: got %v", skipped)
	}
	for _, g := range batches.Groups() {
		for _, item := range g.Items {
			if len(item.File.Data) == 0 {
				t.Errorf("empty attachment %q was batched", item.File.Name)
			}
		}
	}
}

func TestBatch_AllEmptyYieldsNoGroups(t *testing.T) {
	t.Parallel()

	batches := Batch([]email.Attachment{{Filename: "x.jpg"}, {Filename: "y.pdf"}}, nil)
	if groups := batches.Groups(); len(groups) != 0 {
		t.Errorf("got %d groups, want 0", len(groups))
	}
}

func TestBatch_PartitionsByKindPreservingOrder(t *testing.T) {
	t.Parallel()

	atts := []email.Attachment{
		{Filename: "doc1.pdf", Content: []byte("1")},
		{Filename: "pic1.png", Content: []byte("2")},
		{Filename: "vid1.mp4", Content: []byte("3")},
		{Filename: "doc2.txt", Content: []byte("4")},
		{Filename: "pic2.jpg", Content: []byte("5")},
	}

	groups := Batch(atts, nil).Groups()
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}

	want := []struct {
		kind  telegram.MediaKind
		names []string
	}{
		{telegram.MediaPhoto, []string{"pic1.png", "pic2.jpg"}},
		{telegram.MediaVideo, []string{"vid1.mp4"}},
		{telegram.MediaDocument, []string{"doc1.pdf", "doc2.txt"}},
	}
	for i, w := range want {
		g := groups[i]
		if g.Kind != w.kind {
			t.Errorf("group %d kind: got %v, want %v", i, g.Kind, w.kind)
		}
		if len(g.Items) != len(w.names) {
			t.Fatalf("group %d size: got %d, want %d", i, len(g.Items), len(w.names))
		}
		for j, name := range w.names {
			if g.Items[j].File.Name != name {
				t.Errorf("group %d item %d: got %q, want %q", i, j, g.Items[j].File.Name, name)
			}
			if g.Items[j].Kind != w.kind {
				t.Errorf("group %d item %d kind: got %v", i, j, g.Items[j].Kind)
			}
		}
	}
}

func TestBatch_GroupSizeBound(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 9, 10, 11, 20, 21, 35} {
		total := 0
		for _, g := range Batch(images(n), nil).Groups() {
			if len(g.Items) == 0 || len(g.Items) > MaxGroupSize {
				t.Errorf("n=%d: group size %d out of bounds", n, len(g.Items))
			}
			total += len(g.Items)
		}
		if total != n {
			t.Errorf("n=%d: grouped %d items", n, total)
		}
	}
}

func TestMediaGroup_Method(t *testing.T) {
	t.Parallel()

	if got := Batch(images(2), nil).Groups()[0].method(); got != "sendMediaGroup" {
		t.Errorf("two items: got %q", got)
	}
	if got := Batch(images(1), nil).Groups()[0].method(); got != "sendPhoto" {
		t.Errorf("one photo: got %q", got)
	}
	one := Batch([]email.Attachment{{Filename: "a.pdf", Content: []byte("x")}}, nil).Groups()[0]
	if got := one.method(); got != "sendDocument" {
		t.Errorf("one document: got %q", got)
	}
}
