package mime

import (
	"strings"
	"testing"
	"time"

	"github.com/mailpod/mailpod/internal/testutil"
)

const simpleMessage = `From: Alice Example <Alice@Example.com>
To: bob@example.com, Carol <carol@example.com>
Cc: dave@example.com
Subject: Meeting notes
Date: Mon, 15 Jan 2024 10:30:00 -0500
Message-ID: <notes-1@example.com>
In-Reply-To: <agenda-1@example.com>
References: <root@example.com> <agenda-1@example.com>
Content-Type: text/plain; charset=utf-8

Here are the notes.
`

func TestParseSimpleMessage(t *testing.T) {
	p, err := Parse([]byte(strings.ReplaceAll(simpleMessage, "\n", "\r\n")))
	testutil.MustNoErr(t, err, "parse")

	if p.Subject != "Meeting notes" {
		t.Errorf("Subject = %q", p.Subject)
	}
	if p.MessageID != "<notes-1@example.com>" {
		t.Errorf("MessageID = %q", p.MessageID)
	}
	if p.InReplyTo != "<agenda-1@example.com>" {
		t.Errorf("InReplyTo = %q", p.InReplyTo)
	}
	testutil.AssertStrings(t, p.References, "<root@example.com>", "<agenda-1@example.com>")

	if p.From.Name != "Alice Example" || p.From.Address != "alice@example.com" {
		t.Errorf("From = %+v", p.From)
	}
	if len(p.To) != 2 || p.To[0].Address != "bob@example.com" || p.To[1].Name != "Carol" {
		t.Errorf("To = %+v", p.To)
	}
	if len(p.Cc) != 1 {
		t.Errorf("Cc = %+v", p.Cc)
	}

	want := time.Date(2024, 1, 15, 15, 30, 0, 0, time.UTC)
	if !p.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", p.Date, want)
	}
	if !strings.Contains(p.Text, "Here are the notes.") {
		t.Errorf("Text = %q", p.Text)
	}
}

const multipartMessage = `From: sender@example.com
To: recipient@example.com
Subject: With attachment
Date: Tue, 16 Jan 2024 08:00:00 +0000
Message-ID: <att-1@example.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

See attached.
--BOUNDARY
Content-Type: application/pdf; name="report.pdf"
Content-Disposition: attachment; filename="report.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQ=
--BOUNDARY--
`

func TestParseAttachment(t *testing.T) {
	p, err := Parse([]byte(strings.ReplaceAll(multipartMessage, "\n", "\r\n")))
	testutil.MustNoErr(t, err, "parse")

	if len(p.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(p.Attachments))
	}
	att := p.Attachments[0]
	if att.Filename != "report.pdf" {
		t.Errorf("Filename = %q", att.Filename)
	}
	if att.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", att.ContentType)
	}
	if string(att.Content) != "%PDF-1.4" {
		t.Errorf("Content = %q", att.Content)
	}
	if att.Size != len(att.Content) {
		t.Errorf("Size = %d", att.Size)
	}
	if att.ID == "" {
		t.Error("attachment ID not derived")
	}
}

func TestParseReferencesNormalizesBrackets(t *testing.T) {
	got := parseReferences("<a@x> b@x  <c@x>")
	testutil.AssertStrings(t, got, "<a@x>", "<b@x>", "<c@x>")
}

func TestParseDateFormats(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"Mon, 15 Jan 2024 10:30:00 -0500", time.Date(2024, 1, 15, 15, 30, 0, 0, time.UTC)},
		{"15 Jan 2024 10:30:00 -0500", time.Date(2024, 1, 15, 15, 30, 0, 0, time.UTC)},
		{"Mon, 15 Jan 2024 10:30:00 +0000 (UTC)", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"2024-01-15T10:30:00Z", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"not a date", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseDate(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	in := `<html><head><style>p{color:red}</style></head><body>
<p>Hello &amp; welcome</p><p>Second&nbsp;paragraph</p>
<script>alert("x")</script></body></html>`

	got := StripHTML(in)
	testutil.AssertContainsAll(t, got, []string{"Hello & welcome", "Second paragraph"})
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("script/style content leaked: %q", got)
	}
	if strings.Contains(got, "<") {
		t.Errorf("tags leaked: %q", got)
	}
}

func TestBodyTextFallsBackToHTML(t *testing.T) {
	p := &Parsed{HTML: "<p>only html</p>"}
	if got := p.BodyText(); got != "only html" {
		t.Errorf("BodyText = %q", got)
	}
	p = &Parsed{Text: "plain", HTML: "<p>html</p>"}
	if got := p.BodyText(); got != "plain" {
		t.Errorf("BodyText = %q", got)
	}
}
