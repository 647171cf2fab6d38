// Package thread groups cached messages into conversations for rendering.
// Grouping is a pure function over a message slice; no storage access.
package thread

import (
	"sort"
	"strings"

	"github.com/mailpod/mailpod/internal/model"
)

// Group is one conversation. Latest is the most recent member; Messages are
// sorted most recent first.
type Group struct {
	ThreadID string
	Latest   model.Message
	Messages []model.Message
}

// Key returns the grouping key for a message, or "" when the message has no
// threading evidence. Priority: explicit thread id, then the reply chain,
// then the reference chain, then the subject, the last only when a
// Re:/Fwd:/Fw: prefix was actually stripped.
func Key(m *model.Message) string {
	if m.ThreadID != "" {
		return m.ThreadID
	}
	if m.InReplyTo != "" {
		return "thread-" + m.InReplyTo
	}
	if len(m.References) > 0 {
		return "thread-" + m.References[0]
	}
	if normalized, changed := normalizeSubject(m.Subject); changed {
		return "subject-" + normalized
	}
	return ""
}

// normalizeSubject strips one leading Re:/Fwd:/Fw: token and reports whether
// anything was stripped.
func normalizeSubject(subject string) (string, bool) {
	trimmed := strings.TrimSpace(subject)
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"re:", "fwd:", "fw:"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):]), true
		}
	}
	return trimmed, false
}

// Messages organizes a message slice into conversation groups.
//
// Messages without threading evidence of their own still join a thread when
// some other message replies to them: a reply keyed thread-<id> pulls in the
// message whose Message-ID is <id>. Remaining keyless messages become
// singleton groups appended after all thread groups.
func Messages(msgs []model.Message) []Group {
	groups := make(map[string]*Group)
	var order []string
	var keyless []model.Message

	for _, m := range msgs {
		key := Key(&m)
		if key == "" {
			keyless = append(keyless, m)
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &Group{ThreadID: key}
			groups[key] = g
			order = append(order, key)
		}
		g.Messages = append(g.Messages, m)
	}

	// Adopt parents: a keyless message joins the thread that replies to it.
	var standalone []model.Message
	for _, m := range keyless {
		if m.MessageID != "" {
			if g, ok := groups["thread-"+m.MessageID]; ok {
				g.Messages = append(g.Messages, m)
				continue
			}
		}
		standalone = append(standalone, m)
	}

	threaded := make([]Group, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.Messages, func(i, j int) bool {
			return g.Messages[i].Date.After(g.Messages[j].Date)
		})
		g.Latest = g.Messages[0]
		threaded = append(threaded, *g)
	}
	sort.SliceStable(threaded, func(i, j int) bool {
		return threaded[i].Latest.Date.After(threaded[j].Latest.Date)
	})

	sort.SliceStable(standalone, func(i, j int) bool {
		return standalone[i].Date.After(standalone[j].Date)
	})
	for _, m := range standalone {
		threaded = append(threaded, Group{
			ThreadID: "msg-" + m.ID,
			Latest:   m,
			Messages: []model.Message{m},
		})
	}
	return threaded
}
