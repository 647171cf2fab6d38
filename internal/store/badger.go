package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/mailpod/mailpod/internal/crypto"
	"github.com/mailpod/mailpod/internal/fileutil"
	"github.com/mailpod/mailpod/internal/model"
)

// badgerStore is the fallback engine: an embedded object store keyed
// "table/id" with JSON values. It mirrors the relational contract
// structurally; filters are evaluated in memory against decoded records and
// cascades are performed by explicit prefix scans.
type badgerStore struct {
	db     *badger.DB
	crypto *crypto.Service
}

func openBadger(dir string, svc *crypto.Service) (*badgerStore, error) {
	if err := fileutil.SecureMkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	opts := badger.DefaultOptions(filepath.Join(dir, "objects"))
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	return &badgerStore{db: db, crypto: svc}, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func objectKey(table, id string) []byte {
	return []byte(table + "/" + id)
}

func (s *badgerStore) put(table, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", table, id, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(objectKey(table, id), raw)
	})
}

func (s *badgerStore) get(table, id string, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(table, id))
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			return json.Unmarshal(raw, v)
		})
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	return err
}

func (s *badgerStore) delete(table, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(objectKey(table, id))
	})
}

// scan decodes every record under table's prefix and hands it to fn; fn
// returns false to stop early.
func (s *badgerStore) scan(table string, fn func(raw []byte) (bool, error)) error {
	prefix := []byte(table + "/")
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			var more bool
			err := it.Item().Value(func(raw []byte) error {
				var ferr error
				more, ferr = fn(raw)
				return ferr
			})
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
}

// deleteWhere removes every record in table matched by the filter.
func (s *badgerStore) deleteWhere(table string, f Filter, get func(raw []byte) func(string) (any, bool)) error {
	var ids [][]byte
	prefix := []byte(table + "/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(raw []byte) error {
				if f.Matches(get(raw)) {
					ids = append(ids, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range ids {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func accountColumns(rec *accountRecord) func(string) (any, bool) {
	return func(col string) (any, bool) {
		switch col {
		case colID:
			return rec.ID, true
		case colEmail:
			return rec.Email, true
		}
		return nil, false
	}
}

func folderColumns(f *model.Folder) func(string) (any, bool) {
	return func(col string) (any, bool) {
		switch col {
		case colID:
			return f.ID, true
		case colAccountID:
			return f.AccountID, true
		}
		return nil, false
	}
}

func messageColumns(m *model.Message) func(string) (any, bool) {
	return func(col string) (any, bool) {
		switch col {
		case colID:
			return m.ID, true
		case colAccountID:
			return m.AccountID, true
		case colFolderID:
			return m.FolderID, true
		case colMessageID:
			return m.MessageID, true
		}
		return nil, false
	}
}

func attachmentColumns(a *model.Attachment) func(string) (any, bool) {
	return func(col string) (any, bool) {
		switch col {
		case colID:
			return a.ID, true
		case colMessageID:
			return a.MessageID, true
		}
		return nil, false
	}
}

// Accounts

func (s *badgerStore) SaveAccount(a *model.Account) error {
	rec, err := encodeAccount(s.crypto, a)
	if err != nil {
		return err
	}
	return s.put("accounts", rec.ID, rec)
}

func (s *badgerStore) Account(id string) (*model.Account, error) {
	var rec accountRecord
	if err := s.get("accounts", id, &rec); err != nil {
		return nil, err
	}
	return decodeAccount(s.crypto, &rec)
}

func (s *badgerStore) Accounts() ([]model.Account, error) {
	var recs []accountRecord
	err := s.scan("accounts", func(raw []byte) (bool, error) {
		var rec accountRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return false, err
		}
		recs = append(recs, rec)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt < recs[j].CreatedAt })

	accounts := make([]model.Account, 0, len(recs))
	for i := range recs {
		a, err := decodeAccount(s.crypto, &recs[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return accounts, nil
}

func (s *badgerStore) DeleteAccount(id string) error {
	// No engine-level cascade here; walk the dependent tables explicitly.
	msgs, err := s.MessagesByAccount(id)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := s.DeleteMessage(m.ID); err != nil {
			return err
		}
	}
	byAccount := Eq(colAccountID, id)
	err = s.deleteWhere("folders", byAccount, func(raw []byte) func(string) (any, bool) {
		var f model.Folder
		if json.Unmarshal(raw, &f) != nil {
			return func(string) (any, bool) { return nil, false }
		}
		return folderColumns(&f)
	})
	if err != nil {
		return err
	}
	return s.delete("accounts", id)
}

func (s *badgerStore) UpdateAccountTokens(id string, tokens model.OAuthTokens) error {
	a, err := s.Account(id)
	if err != nil {
		return err
	}
	a.Tokens = tokens
	a.UpdatedAt = nowUTC()
	return s.SaveAccount(a)
}

// Folders

func (s *badgerStore) SaveFolder(f *model.Folder) error {
	return s.put("folders", f.ID, f)
}

func (s *badgerStore) FoldersByAccount(accountID string) ([]model.Folder, error) {
	filter := Eq(colAccountID, accountID)
	var folders []model.Folder
	err := s.scan("folders", func(raw []byte) (bool, error) {
		var f model.Folder
		if err := json.Unmarshal(raw, &f); err != nil {
			return false, err
		}
		if filter.Matches(folderColumns(&f)) {
			folders = append(folders, f)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(folders, func(i, j int) bool {
		return strings.ToLower(folders[i].Name) < strings.ToLower(folders[j].Name)
	})
	return folders, nil
}

func (s *badgerStore) DeleteFolder(id string) error {
	return s.delete("folders", id)
}

// Messages

func (s *badgerStore) SaveMessage(m *model.Message) error {
	return s.put("messages", m.ID, m)
}

func (s *badgerStore) Message(id string) (*model.Message, error) {
	var m model.Message
	if err := s.get("messages", id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *badgerStore) messagesWhere(f Filter) ([]model.Message, error) {
	var msgs []model.Message
	err := s.scan("messages", func(raw []byte) (bool, error) {
		var m model.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return false, err
		}
		if f.Matches(messageColumns(&m)) {
			msgs = append(msgs, m)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Date.After(msgs[j].Date) })
	return msgs, nil
}

func (s *badgerStore) MessagesByFolder(folderID string, limit, offset int) ([]model.Message, error) {
	msgs, err := s.messagesWhere(Eq(colFolderID, folderID))
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return msgs, nil
	}
	if offset >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[offset:]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (s *badgerStore) MessagesByAccount(accountID string) ([]model.Message, error) {
	return s.messagesWhere(Eq(colAccountID, accountID))
}

func (s *badgerStore) CountMessagesByFolder(folderID string) (int, error) {
	msgs, err := s.messagesWhere(Eq(colFolderID, folderID))
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

func (s *badgerStore) MarkMessageRead(id string, read bool) error {
	m, err := s.Message(id)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	m.IsRead = read
	return s.SaveMessage(m)
}

func (s *badgerStore) MoveMessage(id, folderID string) error {
	m, err := s.Message(id)
	if err != nil {
		return err
	}
	m.FolderID = folderID
	return s.SaveMessage(m)
}

func (s *badgerStore) DeleteMessage(id string) error {
	err := s.deleteWhere("attachments", Eq(colMessageID, id), func(raw []byte) func(string) (any, bool) {
		var a model.Attachment
		if json.Unmarshal(raw, &a) != nil {
			return func(string) (any, bool) { return nil, false }
		}
		return attachmentColumns(&a)
	})
	if err != nil {
		return err
	}
	return s.delete("messages", id)
}

// Attachments

func (s *badgerStore) ReplaceAttachments(messageID string, atts []model.Attachment) error {
	err := s.deleteWhere("attachments", Eq(colMessageID, messageID), func(raw []byte) func(string) (any, bool) {
		var a model.Attachment
		if json.Unmarshal(raw, &a) != nil {
			return func(string) (any, bool) { return nil, false }
		}
		return attachmentColumns(&a)
	})
	if err != nil {
		return err
	}
	for i := range atts {
		atts[i].MessageID = messageID
		if err := s.put("attachments", atts[i].ID, &atts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *badgerStore) AttachmentsByMessage(messageID string) ([]model.Attachment, error) {
	filter := Eq(colMessageID, messageID)
	var atts []model.Attachment
	err := s.scan("attachments", func(raw []byte) (bool, error) {
		var a model.Attachment
		if err := json.Unmarshal(raw, &a); err != nil {
			return false, err
		}
		if filter.Matches(attachmentColumns(&a)) {
			atts = append(atts, a)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(atts, func(i, j int) bool { return atts[i].Filename < atts[j].Filename })
	return atts, nil
}

// Settings

func (s *badgerStore) Settings() (model.Settings, error) {
	var out model.Settings
	err := s.get("settings", settingsKey, &out)
	if err == ErrNotFound {
		defaults := model.DefaultSettings()
		if err := s.SaveSettings(defaults); err != nil {
			return defaults, err
		}
		return defaults, nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	return out, nil
}

func (s *badgerStore) SaveSettings(settings model.Settings) error {
	return s.put("settings", settingsKey, settings)
}
