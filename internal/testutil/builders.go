package testutil

import (
	"time"

	"github.com/mailpod/mailpod/internal/model"
)

// AccountBuilder provides a fluent API for constructing model.Account in tests.
type AccountBuilder struct {
	a model.Account
}

// NewAccount creates a builder with sensible defaults.
func NewAccount(email string) *AccountBuilder {
	provider := model.ProviderGmail
	return &AccountBuilder{
		a: model.Account{
			ID:          model.AccountID(provider, email),
			Email:       email,
			Provider:    provider,
			DisplayName: "Test User",
			Tokens: model.OAuthTokens{
				AccessToken:  "access-" + email,
				RefreshToken: "refresh-" + email,
				ExpiresAt:    time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
				TokenType:    "Bearer",
			},
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func (b *AccountBuilder) WithProvider(p model.Provider) *AccountBuilder {
	b.a.Provider = p
	b.a.ID = model.AccountID(p, b.a.Email)
	return b
}

func (b *AccountBuilder) WithDisplayName(n string) *AccountBuilder {
	b.a.DisplayName = n
	return b
}

func (b *AccountBuilder) WithTokens(tokens model.OAuthTokens) *AccountBuilder {
	b.a.Tokens = tokens
	return b
}

func (b *AccountBuilder) WithExpiresAt(t time.Time) *AccountBuilder {
	b.a.Tokens.ExpiresAt = t
	return b
}

func (b *AccountBuilder) WithCreatedAt(t time.Time) *AccountBuilder {
	b.a.CreatedAt = t
	return b
}

func (b *AccountBuilder) Build() model.Account {
	return b.a
}

func (b *AccountBuilder) BuildPtr() *model.Account {
	a := b.a
	return &a
}

// MessageBuilder provides a fluent API for constructing model.Message in tests.
type MessageBuilder struct {
	m model.Message
}

// NewMessage creates a builder with sensible defaults.
func NewMessage(id string) *MessageBuilder {
	return &MessageBuilder{
		m: model.Message{
			ID:        id,
			AccountID: "gmail-test",
			FolderID:  "gmail-test-inbox",
			UID:       1,
			MessageID: "<" + id + "@example.com>",
			Subject:   "Test Subject",
			From:      model.Address{Name: "Sender", Address: "sender@example.com"},
			To:        []model.Address{{Address: "recipient@example.com"}},
			Date:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Text:      "Test body",
			Flags:     []string{},
			SyncedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func (b *MessageBuilder) WithAccountID(id string) *MessageBuilder {
	b.m.AccountID = id
	return b
}

func (b *MessageBuilder) WithFolderID(id string) *MessageBuilder {
	b.m.FolderID = id
	return b
}

func (b *MessageBuilder) WithUID(uid uint32) *MessageBuilder {
	b.m.UID = uid
	return b
}

func (b *MessageBuilder) WithSubject(s string) *MessageBuilder {
	b.m.Subject = s
	return b
}

func (b *MessageBuilder) WithFrom(name, address string) *MessageBuilder {
	b.m.From = model.Address{Name: name, Address: address}
	return b
}

func (b *MessageBuilder) WithTo(addrs ...model.Address) *MessageBuilder {
	b.m.To = addrs
	return b
}

func (b *MessageBuilder) WithDate(t time.Time) *MessageBuilder {
	b.m.Date = t
	return b
}

func (b *MessageBuilder) WithFlags(flags ...string) *MessageBuilder {
	b.m.Flags = flags
	return b
}

func (b *MessageBuilder) WithRead(read bool) *MessageBuilder {
	b.m.IsRead = read
	return b
}

func (b *MessageBuilder) WithStarred(starred bool) *MessageBuilder {
	b.m.IsStarred = starred
	return b
}

func (b *MessageBuilder) WithThreadID(id string) *MessageBuilder {
	b.m.ThreadID = id
	return b
}

func (b *MessageBuilder) WithInReplyTo(id string) *MessageBuilder {
	b.m.InReplyTo = id
	return b
}

func (b *MessageBuilder) WithReferences(refs ...string) *MessageBuilder {
	b.m.References = refs
	return b
}

func (b *MessageBuilder) WithText(s string) *MessageBuilder {
	b.m.Text = s
	return b
}

func (b *MessageBuilder) Build() model.Message {
	return b.m
}

func (b *MessageBuilder) BuildPtr() *model.Message {
	m := b.m
	return &m
}
