// Package mime parses raw RFC 5322 messages fetched over IMAP into the
// entities the store persists, using enmime.
package mime

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/mailpod/mailpod/internal/model"
	"github.com/mailpod/mailpod/internal/textutil"
)

// Parsed is the usable content of one raw message. Header text is already
// forced to valid UTF-8.
type Parsed struct {
	Subject     string
	MessageID   string
	InReplyTo   string
	References  []string
	Date        time.Time
	From        model.Address
	To          []model.Address
	Cc          []model.Address
	Bcc         []model.Address
	Text        string
	HTML        string
	Attachments []model.Attachment
}

// Parse decodes raw MIME data. Parse errors inside individual parts are
// tolerated; enmime records them and still yields what it could decode.
func Parse(raw []byte) (*Parsed, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	p := &Parsed{
		Subject:   textutil.EnsureUTF8(env.GetHeader("Subject")),
		MessageID: strings.TrimSpace(env.GetHeader("Message-ID")),
		InReplyTo: strings.TrimSpace(env.GetHeader("In-Reply-To")),
		Text:      textutil.EnsureUTF8(env.Text),
		HTML:      textutil.EnsureUTF8(env.HTML),
	}

	if dateStr := env.GetHeader("Date"); dateStr != "" {
		p.Date = parseDate(dateStr)
	}

	if from := parseAddressList(env, "From"); len(from) > 0 {
		p.From = from[0]
	}
	p.To = parseAddressList(env, "To")
	p.Cc = parseAddressList(env, "Cc")
	p.Bcc = parseAddressList(env, "Bcc")

	if refs := env.GetHeader("References"); refs != "" {
		p.References = parseReferences(refs)
	}

	for _, part := range env.Attachments {
		p.Attachments = append(p.Attachments, makeAttachment(p.MessageID, part))
	}
	// Inline parts with a filename (pasted images mostly) count as
	// attachments; bare inline text is body content.
	for _, part := range env.Inlines {
		if part.FileName != "" {
			p.Attachments = append(p.Attachments, makeAttachment(p.MessageID, part))
		}
	}

	return p, nil
}

func parseAddressList(env *enmime.Envelope, header string) []model.Address {
	list, err := env.AddressList(header)
	if err != nil || list == nil {
		return nil
	}
	addresses := make([]model.Address, 0, len(list))
	for _, addr := range list {
		if addr.Address == "" {
			continue
		}
		addresses = append(addresses, model.Address{
			Name:    textutil.EnsureUTF8(addr.Name),
			Address: strings.ToLower(addr.Address),
		})
	}
	return addresses
}

func makeAttachment(messageID string, part *enmime.Part) model.Attachment {
	contentType := part.ContentType
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return model.Attachment{
		ID:          model.AttachmentID(messageID, part.FileName),
		Filename:    part.FileName,
		ContentType: contentType,
		ContentID:   strings.Trim(part.ContentID, "<>"),
		Size:        len(part.Content),
		Content:     part.Content,
	}
}

// parseReferences splits the References header into individual message IDs,
// angle brackets kept so they compare equal to Message-ID headers.
func parseReferences(refs string) []string {
	var result []string
	for _, ref := range strings.Fields(refs) {
		if strings.HasPrefix(ref, "<") && strings.HasSuffix(ref, ">") {
			result = append(result, ref)
		} else if ref != "" {
			result = append(result, "<"+strings.Trim(ref, "<>")+">")
		}
	}
	return result
}

// dateFormats lists date formats seen in the wild beyond RFC 5322.
var dateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	"Mon, 02 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
}

// parseDate tries the known formats, stripping a parenthesized timezone name
// when present. Unparseable dates come back zero rather than failing the
// whole message.
func parseDate(s string) time.Time {
	s = strings.Join(strings.Fields(s), " ")

	base := s
	if idx := strings.LastIndex(s, "("); idx > 0 {
		base = strings.TrimSpace(s[:idx])
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, base); err == nil {
			return t.UTC()
		}
	}
	if base != s {
		for _, format := range dateFormats {
			if t, err := time.Parse(format, s); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

var (
	blockTagRe  = regexp.MustCompile(`(?i)<(/?)(p|div|br|hr|h[1-6]|li|tr|td|th|blockquote|pre|table|ul|ol|dl|dt|dd)[^>]*>`)
	scriptTagRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTagRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headTagRe   = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML reduces an HTML body to readable plain text: tags removed,
// entities decoded, block elements turned into line breaks.
func StripHTML(rawHTML string) string {
	text := scriptTagRe.ReplaceAllString(rawHTML, "")
	text = styleTagRe.ReplaceAllString(text, "")
	text = headTagRe.ReplaceAllString(text, "")
	text = blockTagRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\u00a0", " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

// BodyText returns the best available plain text body, falling back to
// stripped HTML.
func (p *Parsed) BodyText() string {
	if p.Text != "" {
		return p.Text
	}
	if p.HTML != "" {
		return StripHTML(p.HTML)
	}
	return ""
}
