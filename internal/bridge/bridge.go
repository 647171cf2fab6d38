// Package bridge is the boundary to the remote mail provider. The interface
// carries the six remote operations; the implementation is chosen at
// construction and injected, so nothing above this package knows which
// protocol is underneath.
package bridge

import (
	"context"

	"github.com/mailpod/mailpod/internal/model"
)

// Folder is a mailbox as the provider reports it.
type Folder struct {
	Name        string
	Path        string
	TotalCount  int
	UnreadCount int
}

// Fetched is one remote message with its decoded attachments.
type Fetched struct {
	Message     model.Message
	Attachments []model.Attachment
}

// Outgoing is a message to send.
type Outgoing struct {
	To          []model.Address
	Cc          []model.Address
	Bcc         []model.Address
	Subject     string
	Text        string
	HTML        string
	InReplyTo   string
	References  []string
	Attachments []model.Attachment
}

// Bridge executes remote operations against the account's provider. Every
// call expects account tokens that are already valid; callers go through the
// token guard first.
type Bridge interface {
	SyncFolders(ctx context.Context, account *model.Account) ([]Folder, error)
	SyncMessages(ctx context.Context, account *model.Account, folderPath string, limit int) ([]Fetched, error)
	MarkMessageRead(ctx context.Context, account *model.Account, folderPath string, uid uint32, read bool) error
	MoveMessage(ctx context.Context, account *model.Account, fromPath, toPath string, uid uint32) error
	DeleteMessage(ctx context.Context, account *model.Account, folderPath string, uid uint32) error
	SendEmail(ctx context.Context, account *model.Account, msg Outgoing) error
}
