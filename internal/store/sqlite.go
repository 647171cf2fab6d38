package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mailpod/mailpod/internal/crypto"
	"github.com/mailpod/mailpod/internal/fileutil"
	"github.com/mailpod/mailpod/internal/model"
)

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"

// schema is the single source of truth for the on-disk column layout. The
// badger engine mirrors these tables structurally; keep the two in sync.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	provider TEXT NOT NULL,
	display_name TEXT NOT NULL,
	access_token BLOB NOT NULL,
	refresh_token BLOB NOT NULL,
	expires_at INTEGER NOT NULL,
	token_type TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS folders (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	unread_count INTEGER DEFAULT 0,
	total_count INTEGER DEFAULT 0,
	sync_at INTEGER
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
	uid INTEGER NOT NULL,
	message_id TEXT NOT NULL,
	subject TEXT NOT NULL,
	from_name TEXT,
	from_address TEXT NOT NULL,
	to_addresses TEXT NOT NULL,
	cc_addresses TEXT,
	bcc_addresses TEXT,
	date INTEGER NOT NULL,
	text TEXT,
	html TEXT,
	flags TEXT NOT NULL,
	is_read INTEGER DEFAULT 0,
	is_starred INTEGER DEFAULT 0,
	is_important INTEGER DEFAULT 0,
	thread_id TEXT,
	in_reply_to TEXT,
	"references" TEXT,
	synced_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size INTEGER NOT NULL,
	content_id TEXT,
	content BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_folder_id ON messages(folder_id);
CREATE INDEX IF NOT EXISTS idx_messages_account_id ON messages(account_id);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
CREATE INDEX IF NOT EXISTS idx_folders_account_id ON folders(account_id);
CREATE INDEX IF NOT EXISTS idx_attachments_message_id ON attachments(message_id);
`

// settingsKey is the row key of the single preferences blob.
const settingsKey = "app"

// sqliteStore is the primary engine: durable WAL journaling, enforced
// foreign keys, idempotent bootstrap at open time.
type sqliteStore struct {
	db     *sql.DB
	crypto *crypto.Service
}

func openSQLite(dir string, svc *crypto.Service) (*sqliteStore, error) {
	if err := fileutil.SecureMkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := filepath.Join(dir, "mailpod.db")
	db, err := sql.Open("sqlite3", dbPath+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &sqliteStore{db: db, crypto: svc}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// withTx executes fn within a transaction, rolling back on error.
func (s *sqliteStore) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Accounts

func (s *sqliteStore) SaveAccount(a *model.Account) error {
	rec, err := encodeAccount(s.crypto, a)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO accounts (
			id, email, provider, display_name, access_token, refresh_token,
			expires_at, token_type, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			token_type = excluded.token_type,
			updated_at = excluded.updated_at
	`, rec.ID, rec.Email, rec.Provider, rec.DisplayName, rec.AccessToken,
		rec.RefreshToken, rec.ExpiresAt, rec.TokenType, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func (s *sqliteStore) Account(id string) (*model.Account, error) {
	where, args := Eq(colID, id).SQL()
	row := s.db.QueryRow(`
		SELECT id, email, provider, display_name, access_token, refresh_token,
			expires_at, token_type, created_at, updated_at
		FROM accounts`+where, args...)
	return s.scanAccount(row)
}

func (s *sqliteStore) Accounts() ([]model.Account, error) {
	rows, err := s.db.Query(`
		SELECT id, email, provider, display_name, access_token, refresh_token,
			expires_at, token_type, created_at, updated_at
		FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *sqliteStore) scanAccount(row rowScanner) (*model.Account, error) {
	var rec accountRecord
	err := row.Scan(&rec.ID, &rec.Email, &rec.Provider, &rec.DisplayName,
		&rec.AccessToken, &rec.RefreshToken, &rec.ExpiresAt, &rec.TokenType,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeAccount(s.crypto, &rec)
}

func (s *sqliteStore) DeleteAccount(id string) error {
	// Foreign keys are ON, so folders, messages and attachments cascade.
	where, args := Eq(colID, id).SQL()
	_, err := s.db.Exec("DELETE FROM accounts"+where, args...)
	return err
}

func (s *sqliteStore) UpdateAccountTokens(id string, tokens model.OAuthTokens) error {
	access, err := s.crypto.Encrypt(tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := s.crypto.Encrypt(tokens.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE accounts SET
			access_token = ?, refresh_token = ?, expires_at = ?,
			token_type = ?, updated_at = ?
		WHERE id = ?
	`, access, refresh, toMillis(tokens.ExpiresAt), tokens.TokenType,
		time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Folders

func (s *sqliteStore) SaveFolder(f *model.Folder) error {
	_, err := s.db.Exec(`
		INSERT INTO folders (id, account_id, name, path, unread_count, total_count, sync_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			unread_count = excluded.unread_count,
			total_count = excluded.total_count,
			sync_at = excluded.sync_at
	`, f.ID, f.AccountID, f.Name, f.Path, f.UnreadCount, f.TotalCount, toMillis(f.SyncAt))
	return err
}

func (s *sqliteStore) FoldersByAccount(accountID string) ([]model.Folder, error) {
	where, args := Eq(colAccountID, accountID).SQL()
	rows, err := s.db.Query(`
		SELECT id, account_id, name, path, unread_count, total_count, sync_at
		FROM folders`+where+` ORDER BY name`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		var syncAt sql.NullInt64
		if err := rows.Scan(&f.ID, &f.AccountID, &f.Name, &f.Path,
			&f.UnreadCount, &f.TotalCount, &syncAt); err != nil {
			return nil, err
		}
		if syncAt.Valid {
			f.SyncAt = fromMillis(syncAt.Int64)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (s *sqliteStore) DeleteFolder(id string) error {
	where, args := Eq(colID, id).SQL()
	_, err := s.db.Exec("DELETE FROM folders"+where, args...)
	return err
}

// Messages

func (s *sqliteStore) SaveMessage(m *model.Message) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (
			id, account_id, folder_id, uid, message_id, subject,
			from_name, from_address, to_addresses, cc_addresses, bcc_addresses,
			date, text, html, flags, is_read, is_starred, is_important,
			thread_id, in_reply_to, "references", synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			folder_id = excluded.folder_id,
			uid = excluded.uid,
			message_id = excluded.message_id,
			subject = excluded.subject,
			from_name = excluded.from_name,
			from_address = excluded.from_address,
			to_addresses = excluded.to_addresses,
			cc_addresses = excluded.cc_addresses,
			bcc_addresses = excluded.bcc_addresses,
			date = excluded.date,
			text = excluded.text,
			html = excluded.html,
			flags = excluded.flags,
			is_read = excluded.is_read,
			is_starred = excluded.is_starred,
			is_important = excluded.is_important,
			thread_id = excluded.thread_id,
			in_reply_to = excluded.in_reply_to,
			"references" = excluded."references",
			synced_at = excluded.synced_at
	`, m.ID, m.AccountID, m.FolderID, m.UID, m.MessageID, m.Subject,
		nullString(m.From.Name), m.From.Address,
		mustJSON(m.To), addressesJSON(m.Cc), addressesJSON(m.Bcc),
		toMillis(m.Date), nullString(m.Text), nullString(m.HTML),
		flagsJSON(m.Flags), boolInt(m.IsRead), boolInt(m.IsStarred), boolInt(m.IsImportant),
		nullString(m.ThreadID), nullString(m.InReplyTo), stringsJSON(m.References),
		toMillis(m.SyncedAt))
	return err
}

func (s *sqliteStore) Message(id string) (*model.Message, error) {
	where, args := Eq(colID, id).SQL()
	row := s.db.QueryRow(selectMessage+where, args...)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *sqliteStore) MessagesByFolder(folderID string, limit, offset int) ([]model.Message, error) {
	where, args := Eq(colFolderID, folderID).SQL()
	query := selectMessage + where + " ORDER BY date DESC"
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	return s.queryMessages(query, args...)
}

func (s *sqliteStore) MessagesByAccount(accountID string) ([]model.Message, error) {
	where, args := Eq(colAccountID, accountID).SQL()
	return s.queryMessages(selectMessage+where+" ORDER BY date DESC", args...)
}

func (s *sqliteStore) CountMessagesByFolder(folderID string) (int, error) {
	where, args := Eq(colFolderID, folderID).SQL()
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM messages"+where, args...).Scan(&count)
	return count, err
}

func (s *sqliteStore) MarkMessageRead(id string, read bool) error {
	where, args := Eq(colID, id).SQL()
	_, err := s.db.Exec("UPDATE messages SET is_read = ?"+where,
		append([]any{boolInt(read)}, args...)...)
	return err
}

func (s *sqliteStore) MoveMessage(id, folderID string) error {
	where, args := Eq(colID, id).SQL()
	res, err := s.db.Exec("UPDATE messages SET folder_id = ?"+where,
		append([]any{folderID}, args...)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteMessage(id string) error {
	where, args := Eq(colID, id).SQL()
	_, err := s.db.Exec("DELETE FROM messages"+where, args...)
	return err
}

const selectMessage = `
	SELECT id, account_id, folder_id, uid, message_id, subject,
		from_name, from_address, to_addresses, cc_addresses, bcc_addresses,
		date, text, html, flags, is_read, is_starred, is_important,
		thread_id, in_reply_to, "references", synced_at
	FROM messages`

func (s *sqliteStore) queryMessages(query string, args ...any) ([]model.Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var fromName, toJSON sql.NullString
	var ccJSON, bccJSON, text, html, threadID, inReplyTo, refsJSON sql.NullString
	var flagsRaw string
	var date, syncedAt int64
	var isRead, isStarred, isImportant int

	err := row.Scan(&m.ID, &m.AccountID, &m.FolderID, &m.UID, &m.MessageID, &m.Subject,
		&fromName, &m.From.Address, &toJSON, &ccJSON, &bccJSON,
		&date, &text, &html, &flagsRaw, &isRead, &isStarred, &isImportant,
		&threadID, &inReplyTo, &refsJSON, &syncedAt)
	if err != nil {
		return nil, err
	}

	m.From.Name = fromName.String
	m.To = addressesFromJSON(toJSON.String)
	m.Cc = addressesFromJSON(ccJSON.String)
	m.Bcc = addressesFromJSON(bccJSON.String)
	m.Date = fromMillis(date)
	m.Text = text.String
	m.HTML = html.String
	m.Flags = stringsFromJSON(flagsRaw)
	m.IsRead = isRead != 0
	m.IsStarred = isStarred != 0
	m.IsImportant = isImportant != 0
	m.ThreadID = threadID.String
	m.InReplyTo = inReplyTo.String
	m.References = stringsFromJSON(refsJSON.String)
	m.SyncedAt = fromMillis(syncedAt)
	return &m, nil
}

// Attachments

func (s *sqliteStore) ReplaceAttachments(messageID string, atts []model.Attachment) error {
	return s.withTx(func(tx *sql.Tx) error {
		where, args := Eq(colMessageID, messageID).SQL()
		if _, err := tx.Exec("DELETE FROM attachments"+where, args...); err != nil {
			return err
		}
		for _, a := range atts {
			_, err := tx.Exec(`
				INSERT INTO attachments (id, message_id, filename, content_type, size, content_id, content)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, a.ID, messageID, a.Filename, a.ContentType, a.Size, nullString(a.ContentID), a.Content)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *sqliteStore) AttachmentsByMessage(messageID string) ([]model.Attachment, error) {
	where, args := Eq(colMessageID, messageID).SQL()
	rows, err := s.db.Query(`
		SELECT id, message_id, filename, content_type, size, content_id, content
		FROM attachments`+where+` ORDER BY filename`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []model.Attachment
	for rows.Next() {
		var a model.Attachment
		var contentID sql.NullString
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Filename, &a.ContentType,
			&a.Size, &contentID, &a.Content); err != nil {
			return nil, err
		}
		a.ContentID = contentID.String
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

// Settings

func (s *sqliteStore) Settings() (model.Settings, error) {
	where, args := Eq(colKey, settingsKey).SQL()
	var raw string
	err := s.db.QueryRow("SELECT value FROM settings"+where, args...).Scan(&raw)
	if err == sql.ErrNoRows {
		defaults := model.DefaultSettings()
		if err := s.SaveSettings(defaults); err != nil {
			return defaults, err
		}
		return defaults, nil
	}
	if err != nil {
		return model.Settings{}, err
	}

	var out model.Settings
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return model.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) SaveSettings(settings model.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, settingsKey, string(raw))
	return err
}

// Column encoding helpers

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

// addressesJSON renders an optional address list, NULL when empty.
func addressesJSON(addrs []model.Address) sql.NullString {
	if len(addrs) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: mustJSON(addrs), Valid: true}
}

func addressesFromJSON(raw string) []model.Address {
	if raw == "" {
		return nil
	}
	var out []model.Address
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// flagsJSON renders the flags list; flags is NOT NULL so empty becomes [].
func flagsJSON(flags []string) string {
	if flags == nil {
		flags = []string{}
	}
	return mustJSON(flags)
}

func stringsJSON(vals []string) sql.NullString {
	if len(vals) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: mustJSON(vals), Valid: true}
}

func stringsFromJSON(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
