package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mailpod/mailpod/internal/crypto"
	"github.com/mailpod/mailpod/internal/fileutil"
	"github.com/mailpod/mailpod/internal/model"
)

// kvStore is the last-resort adapter: a single JSON file of flat keys. Only
// accounts and settings survive here, enough to keep credentials and
// preferences intact until a real engine comes back. Every other table
// reports ErrTableUnavailable.
type kvStore struct {
	mu     sync.Mutex
	path   string
	crypto *crypto.Service
	data   map[string]json.RawMessage
}

func openKV(dir string, svc *crypto.Service) (*kvStore, error) {
	if err := fileutil.SecureMkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &kvStore{
		path:   filepath.Join(dir, "mailpod.kv.json"),
		crypto: svc,
		data:   make(map[string]json.RawMessage),
	}
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key/value file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode key/value file: %w", err)
	}
	return s, nil
}

func (s *kvStore) Close() error {
	return nil
}

// flush writes the whole map atomically (write temp, rename over).
func (s *kvStore) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := fileutil.SecureWriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func accountKey(id string) string { return "account/" + id }

// Accounts

func (s *kvStore) SaveAccount(a *model.Account) error {
	rec, err := encodeAccount(s.crypto, a)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[accountKey(a.ID)] = raw
	return s.flush()
}

func (s *kvStore) Account(id string) (*model.Account, error) {
	s.mu.Lock()
	raw, ok := s.data[accountKey(id)]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var rec accountRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return decodeAccount(s.crypto, &rec)
}

func (s *kvStore) Accounts() ([]model.Account, error) {
	s.mu.Lock()
	var recs []accountRecord
	for key, raw := range s.data {
		if len(key) < len("account/") || key[:len("account/")] != "account/" {
			continue
		}
		var rec accountRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt < recs[j].CreatedAt })

	var accounts []model.Account
	for i := range recs {
		a, err := decodeAccount(s.crypto, &recs[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, nil
}

func (s *kvStore) DeleteAccount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, accountKey(id))
	return s.flush()
}

func (s *kvStore) UpdateAccountTokens(id string, tokens model.OAuthTokens) error {
	a, err := s.Account(id)
	if err != nil {
		return err
	}
	a.Tokens = tokens
	a.UpdatedAt = nowUTC()
	return s.SaveAccount(a)
}

// Settings

func (s *kvStore) Settings() (model.Settings, error) {
	s.mu.Lock()
	raw, ok := s.data["settings/"+settingsKey]
	s.mu.Unlock()
	if !ok {
		defaults := model.DefaultSettings()
		if err := s.SaveSettings(defaults); err != nil {
			return defaults, err
		}
		return defaults, nil
	}
	var out model.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return model.Settings{}, err
	}
	return out, nil
}

func (s *kvStore) SaveSettings(settings model.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data["settings/"+settingsKey] = raw
	return s.flush()
}

// Unsupported tables

func (s *kvStore) SaveFolder(*model.Folder) error { return ErrTableUnavailable }

func (s *kvStore) FoldersByAccount(string) ([]model.Folder, error) {
	return nil, ErrTableUnavailable
}

func (s *kvStore) DeleteFolder(string) error { return ErrTableUnavailable }

func (s *kvStore) SaveMessage(*model.Message) error { return ErrTableUnavailable }

func (s *kvStore) Message(string) (*model.Message, error) { return nil, ErrTableUnavailable }

func (s *kvStore) MessagesByFolder(string, int, int) ([]model.Message, error) {
	return nil, ErrTableUnavailable
}

func (s *kvStore) MessagesByAccount(string) ([]model.Message, error) {
	return nil, ErrTableUnavailable
}

func (s *kvStore) CountMessagesByFolder(string) (int, error) { return 0, ErrTableUnavailable }

func (s *kvStore) MarkMessageRead(string, bool) error { return ErrTableUnavailable }

func (s *kvStore) MoveMessage(string, string) error { return ErrTableUnavailable }

func (s *kvStore) DeleteMessage(string) error { return ErrTableUnavailable }

func (s *kvStore) ReplaceAttachments(string, []model.Attachment) error {
	return ErrTableUnavailable
}

func (s *kvStore) AttachmentsByMessage(string) ([]model.Attachment, error) {
	return nil, ErrTableUnavailable
}
