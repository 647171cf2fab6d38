package bridge

import (
	"bytes"
	"context"
	"net/mail"
	"net/smtp"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/rotisserie/eris"

	"github.com/mailpod/mailpod/internal/model"
)

func (b *imapBridge) SendEmail(ctx context.Context, account *model.Account, msg Outgoing) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	h, ok := hosts[account.Provider]
	if !ok {
		return eris.Errorf("unknown provider %q", account.Provider)
	}
	if len(msg.To) == 0 {
		return eris.New("no recipients")
	}

	raw, err := buildOutgoing(account, msg)
	if err != nil {
		return eris.Wrap(err, "build message")
	}

	auth := newXoauth2SMTPAuth(account.Email, account.Tokens.AccessToken)
	addr := h.smtpHost + ":" + h.smtpPort
	rcpts := recipients(msg)
	if err := smtp.SendMail(addr, auth, account.Email, rcpts, raw); err != nil {
		return eris.Wrapf(err, "smtp send via %s", addr)
	}
	return nil
}

// buildOutgoing renders the outgoing message as wire-format MIME.
func buildOutgoing(account *model.Account, msg Outgoing) ([]byte, error) {
	builder := enmime.Builder().
		From(account.DisplayName, account.Email).
		Subject(msg.Subject).
		Text([]byte(msg.Text))

	if msg.HTML != "" {
		builder = builder.HTML([]byte(msg.HTML))
	}
	for _, to := range msg.To {
		builder = builder.To(to.Name, to.Address)
	}
	for _, cc := range msg.Cc {
		builder = builder.CC(cc.Name, cc.Address)
	}
	for _, bcc := range msg.Bcc {
		builder = builder.BCC(bcc.Name, bcc.Address)
	}
	if msg.InReplyTo != "" {
		builder = builder.Header("In-Reply-To", msg.InReplyTo)
	}
	if len(msg.References) > 0 {
		builder = builder.Header("References", strings.Join(msg.References, " "))
	}
	for _, att := range msg.Attachments {
		builder = builder.AddAttachment(att.Content, att.ContentType, att.Filename)
	}

	part, err := builder.Build()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// recipients flattens To/Cc/Bcc into SMTP envelope addresses.
func recipients(msg Outgoing) []string {
	var out []string
	for _, lists := range [][]model.Address{msg.To, msg.Cc, msg.Bcc} {
		for _, a := range lists {
			if _, err := mail.ParseAddress(a.Address); err == nil {
				out = append(out, a.Address)
			}
		}
	}
	return out
}
