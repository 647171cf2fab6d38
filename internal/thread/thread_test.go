package thread

import (
	"testing"
	"time"

	"github.com/mailpod/mailpod/internal/model"
	"github.com/mailpod/mailpod/internal/testutil"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestReplyJoinsParent(t *testing.T) {
	reply := testutil.NewMessage("1").
		WithSubject("Re: Project Update").
		WithInReplyTo("m0").
		WithDate(t0.Add(time.Hour)).
		Build()
	parent := testutil.NewMessage("2").
		WithSubject("Project Update").
		WithDate(t0).
		Build()
	parent.MessageID = "m0"

	groups := Messages([]model.Message{reply, parent})
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if g.Latest.ID != "1" {
		t.Errorf("Latest.ID = %q, want 1", g.Latest.ID)
	}
	if len(g.Messages) != 2 || g.Messages[0].ID != "1" || g.Messages[1].ID != "2" {
		t.Errorf("members out of order: %v", ids(g.Messages))
	}
}

func TestKeyPriority(t *testing.T) {
	m := testutil.NewMessage("k").
		WithThreadID("provider-thread").
		WithInReplyTo("<p@x>").
		WithReferences("<r@x>").
		WithSubject("Re: hello").
		BuildPtr()

	if got := Key(m); got != "provider-thread" {
		t.Errorf("explicit thread id: got %q", got)
	}
	m.ThreadID = ""
	if got := Key(m); got != "thread-<p@x>" {
		t.Errorf("in-reply-to: got %q", got)
	}
	m.InReplyTo = ""
	if got := Key(m); got != "thread-<r@x>" {
		t.Errorf("references: got %q", got)
	}
	m.References = nil
	if got := Key(m); got != "subject-hello" {
		t.Errorf("subject: got %q", got)
	}
	m.Subject = "hello"
	if got := Key(m); got != "" {
		t.Errorf("unprefixed subject must not thread: got %q", got)
	}
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		changed bool
	}{
		{"Re: Budget", "Budget", true},
		{"RE: Budget", "Budget", true},
		{"Fwd: Budget", "Budget", true},
		{"fw: Budget", "Budget", true},
		{"Budget", "Budget", false},
		{"  Re:   Budget  ", "Budget", true},
		{"Renovation plan", "Renovation plan", false},
	}
	for _, tt := range tests {
		got, changed := normalizeSubject(tt.in)
		if got != tt.want || changed != tt.changed {
			t.Errorf("normalizeSubject(%q) = %q/%v, want %q/%v", tt.in, got, changed, tt.want, tt.changed)
		}
	}
}

func TestSubjectThreadingRequiresPrefix(t *testing.T) {
	a := testutil.NewMessage("a").WithSubject("Weekly sync").WithDate(t0).Build()
	b := testutil.NewMessage("b").WithSubject("Weekly sync").WithDate(t0.Add(time.Minute)).Build()

	groups := Messages([]model.Message{a, b})
	if len(groups) != 2 {
		t.Fatalf("identical unprefixed subjects grouped: %d groups", len(groups))
	}
}

func TestGroupOrdering(t *testing.T) {
	// Old thread with a recent reply, a newer thread, and two standalones.
	oldRoot := testutil.NewMessage("old-root").WithSubject("Old topic").WithDate(t0).Build()
	oldRoot.MessageID = "<old@x>"
	oldReply := testutil.NewMessage("old-reply").
		WithSubject("Re: Old topic").WithInReplyTo("<old@x>").
		WithDate(t0.Add(48 * time.Hour)).Build()

	newReply := testutil.NewMessage("new-reply").
		WithSubject("Re: New topic").WithInReplyTo("<new@x>").
		WithDate(t0.Add(24 * time.Hour)).Build()

	standaloneNew := testutil.NewMessage("solo-new").WithSubject("Solo").
		WithDate(t0.Add(72 * time.Hour)).Build()
	standaloneOld := testutil.NewMessage("solo-old").WithSubject("Also solo").
		WithDate(t0.Add(-time.Hour)).Build()

	groups := Messages([]model.Message{standaloneOld, oldRoot, newReply, oldReply, standaloneNew})
	if len(groups) != 4 {
		t.Fatalf("got %d groups, want 4", len(groups))
	}

	// Thread groups first, by latest date desc; standalones after, even the
	// one newer than every thread.
	if groups[0].Latest.ID != "old-reply" {
		t.Errorf("groups[0] = %q", groups[0].Latest.ID)
	}
	if groups[1].Latest.ID != "new-reply" {
		t.Errorf("groups[1] = %q", groups[1].Latest.ID)
	}
	if groups[2].Latest.ID != "solo-new" || groups[3].Latest.ID != "solo-old" {
		t.Errorf("standalone order: %q, %q", groups[2].Latest.ID, groups[3].Latest.ID)
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
