// Package store persists accounts, folders, messages, attachments and
// settings on-device. One relational query contract is presented over two
// structurally different engines chosen at open time: a file-backed SQLite
// database (primary) and an embedded badger object store (fallback). A flat
// key/value adapter covers the last-resort case where neither engine can be
// constructed, supporting accounts and settings only.
package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mailpod/mailpod/internal/crypto"
	"github.com/mailpod/mailpod/internal/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStoreUnavailable is returned by Open when every engine failed to
	// construct. Fatal; there is no local database to work with.
	ErrStoreUnavailable = errors.New("store: no database available")

	// ErrTableUnavailable is returned by the key/value adapter for tables
	// it does not support (folders, messages, attachments).
	ErrTableUnavailable = errors.New("store: table unavailable in key/value mode")
)

// Store is the query contract shared by all engines. Writes keyed by primary
// ID are upserts and therefore idempotent. Deleting an account cascades to
// its folders, messages and attachments.
type Store interface {
	SaveAccount(a *model.Account) error
	Account(id string) (*model.Account, error)
	Accounts() ([]model.Account, error)
	DeleteAccount(id string) error
	UpdateAccountTokens(id string, tokens model.OAuthTokens) error

	SaveFolder(f *model.Folder) error
	FoldersByAccount(accountID string) ([]model.Folder, error)
	DeleteFolder(id string) error

	SaveMessage(m *model.Message) error
	Message(id string) (*model.Message, error)
	MessagesByFolder(folderID string, limit, offset int) ([]model.Message, error)
	MessagesByAccount(accountID string) ([]model.Message, error)
	CountMessagesByFolder(folderID string) (int, error)
	MarkMessageRead(id string, read bool) error
	MoveMessage(id, folderID string) error
	DeleteMessage(id string) error

	// ReplaceAttachments replaces a message's attachments wholesale
	// (delete-then-insert). Called whenever the parent message is re-saved
	// with fresh remote content.
	ReplaceAttachments(messageID string, atts []model.Attachment) error
	AttachmentsByMessage(messageID string) ([]model.Attachment, error)

	// Settings returns the preferences blob, creating defaults on first read.
	Settings() (model.Settings, error)
	SaveSettings(s model.Settings) error

	Close() error
}

// Options configures Open.
type Options struct {
	// Dir is the data directory holding the database files.
	Dir string

	// Crypto encrypts token columns at rest. Required.
	Crypto *crypto.Service

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Open constructs the store. Selection order: SQLite, then badger, then the
// flat key/value adapter. An engine construction failure is logged and
// triggers the next fallback; only when every engine is exhausted does Open
// fail, with ErrStoreUnavailable.
func Open(opts Options) (Store, error) {
	if opts.Crypto == nil {
		return nil, fmt.Errorf("store: crypto service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	primary, err := openSQLite(opts.Dir, opts.Crypto)
	if err == nil {
		return primary, nil
	}
	logger.Warn("primary engine unavailable, falling back to object store", "error", err)

	fallback, fbErr := openBadger(opts.Dir, opts.Crypto)
	if fbErr == nil {
		return fallback, nil
	}
	logger.Warn("fallback engine unavailable, degrading to key/value store", "error", fbErr)

	kv, kvErr := openKV(opts.Dir, opts.Crypto)
	if kvErr == nil {
		return kv, nil
	}

	return nil, fmt.Errorf("%w: sqlite: %v; badger: %v; kv: %v", ErrStoreUnavailable, err, fbErr, kvErr)
}
