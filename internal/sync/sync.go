// Package sync reconciles the local cache with the remote provider. All
// remote traffic flows through here: the reconciler gets fresh tokens from
// the guard, calls the bridge, and folds the results into the store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mailpod/mailpod/internal/bridge"
	"github.com/mailpod/mailpod/internal/model"
	"github.com/mailpod/mailpod/internal/store"
)

// ErrStale marks a result discarded because the selected account changed
// while the remote call was in flight. Callers treat it as a quiet no-op.
var ErrStale = errors.New("sync: selection changed, result discarded")

// defaultFetchLimit caps how many messages one folder sync pulls.
const defaultFetchLimit = 50

// Selection reports which account the caller is currently focused on.
// Results that arrive for a different account are thrown away instead of
// overwriting the visible cache.
type Selection interface {
	CurrentAccountID() string
}

// FixedSelection pins the selection to one account, for CLI use where no
// interactive switching exists.
type FixedSelection string

func (s FixedSelection) CurrentAccountID() string { return string(s) }

// TokenGuard yields accounts with usable credentials.
type TokenGuard interface {
	AccountWithValidToken(ctx context.Context, accountID string) (*model.Account, error)
}

// Reconciler coordinates store, bridge and token guard.
type Reconciler struct {
	store      store.Store
	bridge     bridge.Bridge
	guard      TokenGuard
	sel        Selection
	logger     *slog.Logger
	fetchLimit int

	folderSyncs singleflight.Group
}

// New creates a reconciler. sel may be nil, which disables staleness checks.
func New(st store.Store, br bridge.Bridge, guard TokenGuard, sel Selection, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: st, bridge: br, guard: guard, sel: sel, logger: logger, fetchLimit: defaultFetchLimit}
}

// WithFetchLimit overrides how many messages one folder sync pulls.
// Non-positive values keep the default.
func (r *Reconciler) WithFetchLimit(n int) *Reconciler {
	if n > 0 {
		r.fetchLimit = n
	}
	return r
}

func (r *Reconciler) stale(accountID string) bool {
	return r.sel != nil && r.sel.CurrentAccountID() != accountID
}

// SyncFolders refreshes the folder list for an account. Concurrent calls for
// the same account coalesce into a single remote round trip; every caller
// gets the shared result.
func (r *Reconciler) SyncFolders(ctx context.Context, accountID string) ([]model.Folder, error) {
	v, err, _ := r.folderSyncs.Do(accountID, func() (any, error) {
		return r.syncFolders(ctx, accountID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.Folder), nil
}

func (r *Reconciler) syncFolders(ctx context.Context, accountID string) ([]model.Folder, error) {
	if r.stale(accountID) {
		return nil, ErrStale
	}
	account, err := r.guard.AccountWithValidToken(ctx, accountID)
	if err != nil {
		return nil, err
	}

	remote, err := r.bridge.SyncFolders(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("sync folders for %s: %w", account.Email, err)
	}
	if r.stale(accountID) {
		return nil, ErrStale
	}

	now := time.Now().UTC()
	folders := make([]model.Folder, 0, len(remote))
	for _, rf := range remote {
		f := model.Folder{
			ID:          model.FolderID(accountID, rf.Path),
			AccountID:   accountID,
			Name:        rf.Name,
			Path:        rf.Path,
			UnreadCount: rf.UnreadCount,
			TotalCount:  rf.TotalCount,
			SyncAt:      now,
		}
		if err := r.store.SaveFolder(&f); err != nil {
			return nil, fmt.Errorf("save folder %s: %w", rf.Path, err)
		}
		folders = append(folders, f)
	}
	r.logger.Info("folders synced", "account", account.Email, "count", len(folders))
	return folders, nil
}

// SyncMessages returns the messages of a folder, fetching from the provider
// when the local cache for that folder is empty (or force is set). folderRef
// may be a folder ID or one of the virtual names: inbox, sent, drafts,
// archive, favorites.
func (r *Reconciler) SyncMessages(ctx context.Context, accountID, folderRef string, force bool) ([]model.Message, error) {
	if r.stale(accountID) {
		return nil, ErrStale
	}

	folders, err := r.store.FoldersByAccount(accountID)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		if folders, err = r.SyncFolders(ctx, accountID); err != nil {
			return nil, err
		}
	}

	if isFavoritesRef(folderRef) {
		return r.favorites(accountID)
	}

	folder, ok := ResolveFolder(folders, folderRef)
	if !ok {
		return nil, fmt.Errorf("no folder matches %q", folderRef)
	}

	count, err := r.store.CountMessagesByFolder(folder.ID)
	if err != nil {
		return nil, err
	}
	if count > 0 && !force {
		return r.store.MessagesByFolder(folder.ID, 0, 0)
	}

	account, err := r.guard.AccountWithValidToken(ctx, accountID)
	if err != nil {
		return nil, err
	}
	fetched, err := r.bridge.SyncMessages(ctx, account, folder.Path, r.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("sync messages for %s: %w", folder.Path, err)
	}
	if r.stale(accountID) {
		return nil, ErrStale
	}

	now := time.Now().UTC()
	for _, f := range fetched {
		m := f.Message
		m.SyncedAt = now
		if err := r.store.SaveMessage(&m); err != nil {
			return nil, fmt.Errorf("save message %s: %w", m.ID, err)
		}
		if len(f.Attachments) > 0 {
			if err := r.store.ReplaceAttachments(m.ID, f.Attachments); err != nil {
				return nil, fmt.Errorf("save attachments for %s: %w", m.ID, err)
			}
		}
	}

	folder.SyncAt = now
	if err := r.store.SaveFolder(&folder); err != nil {
		return nil, err
	}
	r.logger.Info("messages synced", "folder", folder.Path, "count", len(fetched))

	return r.store.MessagesByFolder(folder.ID, 0, 0)
}

// favorites collects starred messages across every folder of the account.
// The same message cached under two folders (gmail's All Mail duplication)
// appears once.
func (r *Reconciler) favorites(accountID string) ([]model.Message, error) {
	msgs, err := r.store.MessagesByAccount(accountID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(msgs))
	var out []model.Message
	for _, m := range msgs {
		if !m.IsStarred && !m.HasFlag(model.FlagFlagged) {
			continue
		}
		key := m.MessageID
		if key == "" {
			key = m.ID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out, nil
}

// MarkRead flips the read flag remotely and then in the cache.
func (r *Reconciler) MarkRead(ctx context.Context, accountID, messageID string, read bool) error {
	account, msg, folder, err := r.messageContext(ctx, accountID, messageID)
	if err != nil {
		return err
	}
	if err := r.bridge.MarkMessageRead(ctx, account, folder.Path, msg.UID, read); err != nil {
		return err
	}
	return r.store.MarkMessageRead(messageID, read)
}

// Move relocates a message remotely and then in the cache. The local UID
// goes stale until the next folder sync; the message ID does not change.
func (r *Reconciler) Move(ctx context.Context, accountID, messageID, toFolderID string) error {
	account, msg, folder, err := r.messageContext(ctx, accountID, messageID)
	if err != nil {
		return err
	}
	folders, err := r.store.FoldersByAccount(accountID)
	if err != nil {
		return err
	}
	dest, ok := ResolveFolder(folders, toFolderID)
	if !ok {
		return fmt.Errorf("no folder matches %q", toFolderID)
	}
	if err := r.bridge.MoveMessage(ctx, account, folder.Path, dest.Path, msg.UID); err != nil {
		return err
	}
	return r.store.MoveMessage(messageID, dest.ID)
}

// Delete removes a message remotely and then from the cache.
func (r *Reconciler) Delete(ctx context.Context, accountID, messageID string) error {
	account, msg, folder, err := r.messageContext(ctx, accountID, messageID)
	if err != nil {
		return err
	}
	if err := r.bridge.DeleteMessage(ctx, account, folder.Path, msg.UID); err != nil {
		return err
	}
	return r.store.DeleteMessage(messageID)
}

// Send delivers an outgoing message with fresh credentials.
func (r *Reconciler) Send(ctx context.Context, accountID string, out bridge.Outgoing) error {
	account, err := r.guard.AccountWithValidToken(ctx, accountID)
	if err != nil {
		return err
	}
	return r.bridge.SendEmail(ctx, account, out)
}

// messageContext loads everything a remote message mutation needs.
func (r *Reconciler) messageContext(ctx context.Context, accountID, messageID string) (*model.Account, *model.Message, *model.Folder, error) {
	account, err := r.guard.AccountWithValidToken(ctx, accountID)
	if err != nil {
		return nil, nil, nil, err
	}
	msg, err := r.store.Message(messageID)
	if err != nil {
		return nil, nil, nil, err
	}
	folders, err := r.store.FoldersByAccount(accountID)
	if err != nil {
		return nil, nil, nil, err
	}
	for i := range folders {
		if folders[i].ID == msg.FolderID {
			return account, msg, &folders[i], nil
		}
	}
	return nil, nil, nil, fmt.Errorf("folder %s of message %s not cached", msg.FolderID, messageID)
}

func isFavoritesRef(ref string) bool {
	switch strings.ToLower(ref) {
	case "favorites", "favourites", "starred":
		return true
	}
	return false
}

// ResolveFolder maps a folder reference to a cached folder. Exact folder IDs
// win; otherwise the virtual names resolve by provider path conventions.
func ResolveFolder(folders []model.Folder, ref string) (model.Folder, bool) {
	for _, f := range folders {
		if f.ID == ref {
			return f, true
		}
	}

	match := func(pred func(model.Folder) bool) (model.Folder, bool) {
		for _, f := range folders {
			if pred(f) {
				return f, true
			}
		}
		return model.Folder{}, false
	}

	lower := func(f model.Folder) (string, string) {
		return strings.ToLower(f.Path), strings.ToLower(f.Name)
	}

	switch strings.ToLower(ref) {
	case "inbox":
		if f, ok := match(func(f model.Folder) bool {
			path, _ := lower(f)
			return path == "inbox"
		}); ok {
			return f, true
		}
		return match(func(f model.Folder) bool {
			path, name := lower(f)
			return strings.Contains(path, "inbox") || strings.Contains(name, "inbox")
		})
	case "sent":
		return match(func(f model.Folder) bool {
			path, name := lower(f)
			return strings.Contains(path, "sent") || strings.Contains(name, "sent")
		})
	case "draft", "drafts":
		return match(func(f model.Folder) bool {
			path, name := lower(f)
			return strings.Contains(path, "draft") || strings.Contains(name, "draft")
		})
	case "archive":
		return match(func(f model.Folder) bool {
			path, name := lower(f)
			return strings.Contains(path, "archive") || strings.Contains(name, "archive") ||
				strings.Contains(path, "all mail") || strings.Contains(name, "all mail")
		})
	}

	// Last resort: exact path or name.
	return match(func(f model.Folder) bool {
		return strings.EqualFold(f.Path, ref) || strings.EqualFold(f.Name, ref)
	})
}
