package store

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mailpod/mailpod/internal/crypto"
	"github.com/mailpod/mailpod/internal/model"
)

func newCrypto(t *testing.T) *crypto.Service {
	t.Helper()
	svc, err := crypto.New(crypto.BackendSecretbox)
	if err != nil {
		t.Fatalf("new crypto service: %v", err)
	}
	return svc
}

// engines returns both full engines so every contract test runs against each.
func engines(t *testing.T) map[string]Store {
	t.Helper()
	svc := newCrypto(t)

	sq, err := openSQLite(t.TempDir(), svc)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	bd, err := openBadger(t.TempDir(), svc)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { bd.Close() })

	return map[string]Store{"sqlite": sq, "badger": bd}
}

func testAccount(email string) *model.Account {
	return &model.Account{
		ID:          model.AccountID(model.ProviderGmail, email),
		Email:       email,
		Provider:    model.ProviderGmail,
		DisplayName: "Test User",
		Tokens: model.OAuthTokens{
			AccessToken:  "access-" + email,
			RefreshToken: "refresh-" + email,
			ExpiresAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			TokenType:    "Bearer",
		},
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testMessage(id, accountID, folderID string, date time.Time) *model.Message {
	return &model.Message{
		ID:        id,
		AccountID: accountID,
		FolderID:  folderID,
		UID:       42,
		MessageID: "<" + id + "@example.com>",
		Subject:   "Subject " + id,
		From:      model.Address{Name: "Sender", Address: "sender@example.com"},
		To:        []model.Address{{Address: "recipient@example.com"}},
		Date:      date,
		Text:      "body text",
		Flags:     []string{model.FlagSeen},
		IsRead:    true,
		SyncedAt:  date,
	}
}

func TestAccountRoundTrip(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			want := testAccount("alice@example.com")
			if err := st.SaveAccount(want); err != nil {
				t.Fatalf("SaveAccount: %v", err)
			}

			got, err := st.Account(want.ID)
			if err != nil {
				t.Fatalf("Account: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("account mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveAccountIsUpsert(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			a := testAccount("bob@example.com")
			if err := st.SaveAccount(a); err != nil {
				t.Fatal(err)
			}

			a.DisplayName = "Bob Renamed"
			a.Tokens.AccessToken = "rotated"
			if err := st.SaveAccount(a); err != nil {
				t.Fatalf("second SaveAccount: %v", err)
			}

			accounts, err := st.Accounts()
			if err != nil {
				t.Fatal(err)
			}
			if len(accounts) != 1 {
				t.Fatalf("got %d accounts, want 1", len(accounts))
			}
			if accounts[0].DisplayName != "Bob Renamed" {
				t.Errorf("DisplayName = %q", accounts[0].DisplayName)
			}
			if accounts[0].Tokens.AccessToken != "rotated" {
				t.Errorf("AccessToken = %q", accounts[0].Tokens.AccessToken)
			}
		})
	}
}

func TestAccountNotFound(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := st.Account("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("got %v, want ErrNotFound", err)
			}
			if err := st.UpdateAccountTokens("missing", model.OAuthTokens{}); !errors.Is(err, ErrNotFound) {
				t.Errorf("UpdateAccountTokens: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestUpdateAccountTokens(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			a := testAccount("carol@example.com")
			if err := st.SaveAccount(a); err != nil {
				t.Fatal(err)
			}

			fresh := model.OAuthTokens{
				AccessToken:  "new-access",
				RefreshToken: "new-refresh",
				ExpiresAt:    time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC),
				TokenType:    "Bearer",
			}
			if err := st.UpdateAccountTokens(a.ID, fresh); err != nil {
				t.Fatalf("UpdateAccountTokens: %v", err)
			}

			got, err := st.Account(a.ID)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(fresh, got.Tokens); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTokensEncryptedAtRest(t *testing.T) {
	svc := newCrypto(t)
	dir := t.TempDir()
	st, err := openSQLite(dir, svc)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	a := testAccount("dave@example.com")
	if err := st.SaveAccount(a); err != nil {
		t.Fatal(err)
	}

	var access, refresh []byte
	err = st.db.QueryRow("SELECT access_token, refresh_token FROM accounts WHERE id = ?", a.ID).
		Scan(&access, &refresh)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(access, []byte(a.Tokens.AccessToken)) {
		t.Error("access token stored in plaintext")
	}
	if bytes.Contains(refresh, []byte(a.Tokens.RefreshToken)) {
		t.Error("refresh token stored in plaintext")
	}
	if access[0] != byte(crypto.BackendSecretbox) {
		t.Errorf("ciphertext tag = 0x%02x", access[0])
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			a := testAccount("erin@example.com")
			if err := st.SaveAccount(a); err != nil {
				t.Fatal(err)
			}
			folder := &model.Folder{
				ID:        model.FolderID(a.ID, "INBOX"),
				AccountID: a.ID,
				Name:      "INBOX",
				Path:      "INBOX",
			}
			if err := st.SaveFolder(folder); err != nil {
				t.Fatal(err)
			}
			msg := testMessage("m1", a.ID, folder.ID, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
			if err := st.SaveMessage(msg); err != nil {
				t.Fatal(err)
			}
			att := model.Attachment{
				ID:          model.AttachmentID(msg.ID, "doc.pdf"),
				MessageID:   msg.ID,
				Filename:    "doc.pdf",
				ContentType: "application/pdf",
				Size:        4,
				Content:     []byte("%PDF"),
			}
			if err := st.ReplaceAttachments(msg.ID, []model.Attachment{att}); err != nil {
				t.Fatal(err)
			}

			if err := st.DeleteAccount(a.ID); err != nil {
				t.Fatalf("DeleteAccount: %v", err)
			}

			if folders, _ := st.FoldersByAccount(a.ID); len(folders) != 0 {
				t.Errorf("folders survived: %v", folders)
			}
			if _, err := st.Message(msg.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("message survived: %v", err)
			}
			if atts, _ := st.AttachmentsByMessage(msg.ID); len(atts) != 0 {
				t.Errorf("attachments survived: %v", atts)
			}
		})
	}
}

func TestMessagesByFolderOrderAndPagination(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
			for i, id := range []string{"m-old", "m-mid", "m-new"} {
				m := testMessage(id, "acct", "folder", base.Add(time.Duration(i)*time.Hour))
				if err := st.SaveMessage(m); err != nil {
					t.Fatal(err)
				}
			}

			msgs, err := st.MessagesByFolder("folder", 0, 0)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, m := range msgs {
				ids = append(ids, m.ID)
			}
			want := []string{"m-new", "m-mid", "m-old"}
			if diff := cmp.Diff(want, ids); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}

			page, err := st.MessagesByFolder("folder", 1, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(page) != 1 || page[0].ID != "m-mid" {
				t.Errorf("page = %v", page)
			}

			count, err := st.CountMessagesByFolder("folder")
			if err != nil {
				t.Fatal(err)
			}
			if count != 3 {
				t.Errorf("count = %d, want 3", count)
			}
		})
	}
}

func TestSaveMessagePreservesIDOnMove(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			m := testMessage("mv", "acct", "inbox", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
			if err := st.SaveMessage(m); err != nil {
				t.Fatal(err)
			}
			if err := st.MoveMessage(m.ID, "archive"); err != nil {
				t.Fatalf("MoveMessage: %v", err)
			}

			got, err := st.Message(m.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.FolderID != "archive" {
				t.Errorf("FolderID = %q", got.FolderID)
			}
			if got.Subject != m.Subject {
				t.Errorf("Subject changed on move: %q", got.Subject)
			}
		})
	}
}

func TestSaveMessageIsUpsert(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			m := testMessage("up", "acct", "inbox", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
			m.References = []string{"<root@example.com>"}
			if err := st.SaveMessage(m); err != nil {
				t.Fatalf("SaveMessage: %v", err)
			}

			m.Subject = "Edited"
			m.References = []string{"<root@example.com>", "<reply@example.com>"}
			if err := st.SaveMessage(m); err != nil {
				t.Fatalf("second SaveMessage: %v", err)
			}

			msgs, err := st.MessagesByFolder("inbox", 0, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 1 {
				t.Fatalf("got %d messages, want 1", len(msgs))
			}
			if msgs[0].Subject != "Edited" {
				t.Errorf("Subject = %q", msgs[0].Subject)
			}
			wantRefs := []string{"<root@example.com>", "<reply@example.com>"}
			if diff := cmp.Diff(wantRefs, msgs[0].References); diff != "" {
				t.Errorf("references mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMarkMessageRead(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			m := testMessage("rd", "acct", "inbox", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
			m.IsRead = false
			if err := st.SaveMessage(m); err != nil {
				t.Fatal(err)
			}
			if err := st.MarkMessageRead(m.ID, true); err != nil {
				t.Fatal(err)
			}
			got, err := st.Message(m.ID)
			if err != nil {
				t.Fatal(err)
			}
			if !got.IsRead {
				t.Error("IsRead = false after MarkMessageRead")
			}

			// Marking a missing message is a no-op, not an error.
			if err := st.MarkMessageRead("missing", true); err != nil {
				t.Errorf("missing message: %v", err)
			}
		})
	}
}

func TestMessageRoundTripFields(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			want := testMessage("full", "acct", "inbox", time.Date(2024, 2, 14, 9, 30, 0, 0, time.UTC))
			want.Cc = []model.Address{{Name: "Carbon", Address: "cc@example.com"}}
			want.Bcc = []model.Address{{Address: "bcc@example.com"}}
			want.HTML = "<p>hello</p>"
			want.Flags = []string{model.FlagSeen, model.FlagFlagged}
			want.IsStarred = true
			want.ThreadID = "thread-1"
			want.InReplyTo = "<parent@example.com>"
			want.References = []string{"<root@example.com>", "<parent@example.com>"}

			if err := st.SaveMessage(want); err != nil {
				t.Fatal(err)
			}
			got, err := st.Message(want.ID)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplaceAttachmentsIsWholesale(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			m := testMessage("att", "acct", "inbox", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
			if err := st.SaveMessage(m); err != nil {
				t.Fatal(err)
			}

			first := []model.Attachment{
				{ID: "a1", MessageID: m.ID, Filename: "one.txt", ContentType: "text/plain", Size: 3, Content: []byte("one")},
				{ID: "a2", MessageID: m.ID, Filename: "two.txt", ContentType: "text/plain", Size: 3, Content: []byte("two")},
			}
			if err := st.ReplaceAttachments(m.ID, first); err != nil {
				t.Fatal(err)
			}

			second := []model.Attachment{
				{ID: "a3", MessageID: m.ID, Filename: "three.txt", ContentType: "text/plain", Size: 5, Content: []byte("three")},
			}
			if err := st.ReplaceAttachments(m.ID, second); err != nil {
				t.Fatal(err)
			}

			got, err := st.AttachmentsByMessage(m.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].ID != "a3" {
				t.Errorf("attachments = %+v, want only a3", got)
			}
		})
	}
}

func TestSettingsDefaultsOnFirstRead(t *testing.T) {
	for name, st := range engines(t) {
		t.Run(name, func(t *testing.T) {
			got, err := st.Settings()
			if err != nil {
				t.Fatalf("Settings: %v", err)
			}
			if diff := cmp.Diff(model.DefaultSettings(), got); diff != "" {
				t.Errorf("defaults mismatch (-want +got):\n%s", diff)
			}

			got.Theme = "light"
			got.SyncInterval = 15
			if err := st.SaveSettings(got); err != nil {
				t.Fatal(err)
			}
			again, err := st.Settings()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("saved settings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestKVAdapter(t *testing.T) {
	svc := newCrypto(t)
	dir := t.TempDir()
	st, err := openKV(dir, svc)
	if err != nil {
		t.Fatal(err)
	}

	a := testAccount("kv@example.com")
	if err := st.SaveAccount(a); err != nil {
		t.Fatal(err)
	}
	got, err := st.Account(a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, got); diff != "" {
		t.Errorf("account mismatch (-want +got):\n%s", diff)
	}

	// Survives reopen.
	st2, err := openKV(dir, svc)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st2.Account(a.ID); err != nil {
		t.Errorf("account lost on reopen: %v", err)
	}

	if err := st.SaveFolder(&model.Folder{ID: "f"}); !errors.Is(err, ErrTableUnavailable) {
		t.Errorf("SaveFolder: got %v, want ErrTableUnavailable", err)
	}
	if _, err := st.MessagesByFolder("f", 0, 0); !errors.Is(err, ErrTableUnavailable) {
		t.Errorf("MessagesByFolder: got %v, want ErrTableUnavailable", err)
	}
}

func TestOpenFacadeSelectsSQLite(t *testing.T) {
	st, err := Open(Options{Dir: t.TempDir(), Crypto: newCrypto(t)})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*sqliteStore); !ok {
		t.Errorf("Open returned %T, want *sqliteStore", st)
	}
}

func TestOpenRequiresCrypto(t *testing.T) {
	if _, err := Open(Options{Dir: t.TempDir()}); err == nil {
		t.Error("expected error when crypto service is missing")
	}
}
