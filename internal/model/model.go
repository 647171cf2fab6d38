// Package model defines the entities persisted by the local mail store.
// Both storage engines must stay structurally compatible with these types:
// the sqlite engine maps them to columns, the badger engine stores them as
// JSON documents keyed by primary ID.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Provider identifies a supported mail provider.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderGmail || p == ProviderOutlook
}

// IMAP flags used by the message cache.
const (
	FlagSeen      = `\Seen`
	FlagFlagged   = `\Flagged`
	FlagDraft     = `\Draft`
	FlagSent      = `\Sent`
	FlagArchive   = `\Archive`
	FlagImportant = `\Important`
	FlagDeleted   = `\Deleted`
)

// OAuthTokens holds the credential set for an account. Access and refresh
// tokens are encrypted before they reach disk; in memory they are plaintext.
type OAuthTokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TokenType    string    `json:"tokenType"`
}

// Account is a configured mail account. ID is derived from provider+email
// and is immutable once created; email is unique across accounts.
type Account struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Provider    Provider    `json:"provider"`
	DisplayName string      `json:"displayName"`
	Tokens      OAuthTokens `json:"tokens"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Folder is a provider folder cached locally. Path is the only value
// meaningful to the remote provider (e.g. "[Gmail]/All Mail"); ID is locally
// generated and stable per account+path.
type Folder struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	UnreadCount int       `json:"unreadCount"`
	TotalCount  int       `json:"totalCount"`
	SyncAt      time.Time `json:"syncAt"`
}

// Address is a mail address with optional display name.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Message is a cached mail message. ID is globally unique and is the upsert
// key; FolderID may change (move) without changing ID.
type Message struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	FolderID    string    `json:"folderId"`
	UID         uint32    `json:"uid"`
	MessageID   string    `json:"messageId"`
	Subject     string    `json:"subject"`
	From        Address   `json:"from"`
	To          []Address `json:"to"`
	Cc          []Address `json:"cc,omitempty"`
	Bcc         []Address `json:"bcc,omitempty"`
	Date        time.Time `json:"date"`
	Text        string    `json:"text,omitempty"`
	HTML        string    `json:"html,omitempty"`
	Flags       []string  `json:"flags"`
	IsRead      bool      `json:"isRead"`
	IsStarred   bool      `json:"isStarred"`
	IsImportant bool      `json:"isImportant"`
	ThreadID    string    `json:"threadId,omitempty"`
	InReplyTo   string    `json:"inReplyTo,omitempty"`
	References  []string  `json:"references,omitempty"`
	SyncedAt    time.Time `json:"syncedAt"`
}

// HasFlag reports whether the message carries the given IMAP flag.
func (m *Message) HasFlag(flag string) bool {
	for _, f := range m.Flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// Attachment is a file attached to a cached message. Attachments are
// replaced wholesale whenever their parent message is re-saved.
type Attachment struct {
	ID          string `json:"id"`
	MessageID   string `json:"messageId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	ContentID   string `json:"contentId,omitempty"`
	Content     []byte `json:"content"`
}

// Settings holds the user preferences blob.
type Settings struct {
	Theme          string `json:"theme"`
	Notifications  bool   `json:"notifications"`
	AutoSync       bool   `json:"autoSync"`
	SyncInterval   int    `json:"syncInterval"` // minutes
	DefaultAccount string `json:"defaultAccount,omitempty"`
}

// DefaultSettings returns the settings created lazily on first read.
func DefaultSettings() Settings {
	return Settings{
		Theme:         "dark",
		Notifications: true,
		AutoSync:      true,
		SyncInterval:  5,
	}
}

// AccountID derives the stable account ID from provider and email.
func AccountID(provider Provider, email string) string {
	return string(provider) + "-" + shortHash(strings.ToLower(email))
}

// FolderID derives the stable local folder ID for a provider path.
func FolderID(accountID, path string) string {
	return accountID + "-" + shortHash(path)
}

// MessageKey derives the stable local message ID from the RFC 5322
// Message-ID header. The key survives folder moves; uid and folder do not
// participate.
func MessageKey(accountID, messageID string) string {
	return accountID + "-" + shortHash(messageID)
}

// AttachmentID derives the stable attachment ID from its parent message and
// filename.
func AttachmentID(messageID, filename string) string {
	return shortHash(messageID + "/" + filename)
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
