package bridge

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/mailpod/mailpod/internal/mime"
	"github.com/mailpod/mailpod/internal/model"
)

// providerHosts maps a provider to its IMAP and SMTP endpoints.
type providerHosts struct {
	imapAddr string
	smtpHost string
	smtpPort string
}

var hosts = map[model.Provider]providerHosts{
	model.ProviderGmail: {
		imapAddr: "imap.gmail.com:993",
		smtpHost: "smtp.gmail.com",
		smtpPort: "587",
	},
	model.ProviderOutlook: {
		imapAddr: "outlook.office365.com:993",
		smtpHost: "smtp.office365.com",
		smtpPort: "587",
	},
}

// Options tunes the IMAP bridge.
type Options struct {
	// RateLimitQPS caps remote operations per second. Zero means 2 qps,
	// conservative enough for gmail's per-connection quota.
	RateLimitQPS float64

	Logger *slog.Logger
}

// imapBridge talks IMAP for reads and mutations and SMTP for sending.
// Connections are per-operation: dial, authenticate, act, logout. Mail
// providers drop idle IMAP connections aggressively enough that pooling buys
// little for a local-first client.
type imapBridge struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewIMAP creates the production bridge.
func NewIMAP(opts Options) Bridge {
	qps := opts.RateLimitQPS
	if qps <= 0 {
		qps = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &imapBridge{
		limiter: rate.NewLimiter(rate.Limit(qps), 1),
		logger:  logger,
	}
}

// connect dials the provider and authenticates with XOAUTH2.
func (b *imapBridge) connect(ctx context.Context, account *model.Account) (*imapclient.Client, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	h, ok := hosts[account.Provider]
	if !ok {
		return nil, eris.Errorf("unknown provider %q", account.Provider)
	}

	client, err := imapclient.DialTLS(h.imapAddr, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "dial %s", h.imapAddr)
	}

	auth := newXoauth2Client(account.Email, account.Tokens.AccessToken)
	if err := client.Authenticate(auth); err != nil {
		_ = client.Logout().Wait()
		return nil, eris.Wrapf(err, "authenticate %s", account.Email)
	}
	return client, nil
}

func (b *imapBridge) SyncFolders(ctx context.Context, account *model.Account) ([]Folder, error) {
	client, err := b.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	list, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, eris.Wrap(err, "list mailboxes")
	}

	statusOpts := &imap.StatusOptions{NumMessages: true, NumUnseen: true}
	folders := make([]Folder, 0, len(list))
	for _, mbox := range list {
		if hasAttr(mbox.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		f := Folder{
			Name: displayName(mbox.Mailbox, mbox.Delim),
			Path: mbox.Mailbox,
		}
		if status, err := client.Status(mbox.Mailbox, statusOpts).Wait(); err == nil {
			if status.NumMessages != nil {
				f.TotalCount = int(*status.NumMessages)
			}
			if status.NumUnseen != nil {
				f.UnreadCount = int(*status.NumUnseen)
			}
		} else {
			b.logger.Debug("status failed", "mailbox", mbox.Mailbox, "error", err)
		}
		folders = append(folders, f)
	}
	return folders, nil
}

func (b *imapBridge) SyncMessages(ctx context.Context, account *model.Account, folderPath string, limit int) ([]Fetched, error) {
	client, err := b.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(folderPath, nil).Wait(); err != nil {
		return nil, eris.Wrapf(err, "select %s", folderPath)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, eris.Wrap(err, "search messages")
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	folderID := model.FolderID(account.ID, folderPath)
	var fetched []Fetched
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			b.logger.Warn("collect message failed", "folder", folderPath, "error", err)
			continue
		}
		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			continue
		}
		parsed, err := mime.Parse(raw)
		if err != nil {
			b.logger.Warn("unparseable message skipped", "folder", folderPath,
				"uid", uint32(buf.UID), "error", err)
			continue
		}
		fetched = append(fetched, buildFetched(account.ID, folderID, uint32(buf.UID), buf.Flags, parsed))
	}
	if err := fetchCmd.Close(); err != nil {
		return fetched, eris.Wrap(err, "fetch messages")
	}
	return fetched, nil
}

// buildFetched maps a parsed remote message onto the store entities.
func buildFetched(accountID, folderID string, uid uint32, imapFlags []imap.Flag, parsed *mime.Parsed) Fetched {
	flags := make([]string, 0, len(imapFlags))
	for _, f := range imapFlags {
		flags = append(flags, string(f))
	}

	messageID := parsed.MessageID
	m := model.Message{
		AccountID:  accountID,
		FolderID:   folderID,
		UID:        uid,
		MessageID:  messageID,
		Subject:    parsed.Subject,
		From:       parsed.From,
		To:         parsed.To,
		Cc:         parsed.Cc,
		Bcc:        parsed.Bcc,
		Date:       parsed.Date,
		Text:       parsed.BodyText(),
		HTML:       parsed.HTML,
		Flags:      flags,
		InReplyTo:  parsed.InReplyTo,
		References: parsed.References,
	}
	if messageID == "" {
		// No Message-ID header; fall back to a folder-scoped identity.
		messageID = folderID + "#" + strconv.FormatUint(uint64(uid), 10)
	}
	m.ID = model.MessageKey(accountID, messageID)
	m.IsRead = m.HasFlag(model.FlagSeen)
	m.IsStarred = m.HasFlag(model.FlagFlagged)
	m.IsImportant = m.HasFlag(model.FlagImportant)

	atts := make([]model.Attachment, len(parsed.Attachments))
	copy(atts, parsed.Attachments)
	for i := range atts {
		atts[i].MessageID = m.ID
		atts[i].ID = model.AttachmentID(m.ID, atts[i].Filename)
	}
	return Fetched{Message: m, Attachments: atts}
}

func (b *imapBridge) MarkMessageRead(ctx context.Context, account *model.Account, folderPath string, uid uint32, read bool) error {
	return b.withMailbox(ctx, account, folderPath, func(client *imapclient.Client) error {
		op := imap.StoreFlagsAdd
		if !read {
			op = imap.StoreFlagsDel
		}
		cmd := client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
			Op:     op,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}, nil)
		if err := cmd.Close(); err != nil {
			return eris.Wrapf(err, "store \\Seen uid %d", uid)
		}
		return nil
	})
}

func (b *imapBridge) MoveMessage(ctx context.Context, account *model.Account, fromPath, toPath string, uid uint32) error {
	return b.withMailbox(ctx, account, fromPath, func(client *imapclient.Client) error {
		if _, err := client.Move(imap.UIDSetNum(imap.UID(uid)), toPath).Wait(); err != nil {
			return eris.Wrapf(err, "move uid %d to %s", uid, toPath)
		}
		return nil
	})
}

func (b *imapBridge) DeleteMessage(ctx context.Context, account *model.Account, folderPath string, uid uint32) error {
	return b.withMailbox(ctx, account, folderPath, func(client *imapclient.Client) error {
		cmd := client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagDeleted},
		}, nil)
		if err := cmd.Close(); err != nil {
			return eris.Wrapf(err, "store \\Deleted uid %d", uid)
		}
		if err := client.Expunge().Close(); err != nil {
			return eris.Wrap(err, "expunge")
		}
		return nil
	})
}

// withMailbox runs fn with the given mailbox selected.
func (b *imapBridge) withMailbox(ctx context.Context, account *model.Account, path string, fn func(*imapclient.Client) error) error {
	client, err := b.connect(ctx, account)
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(path, nil).Wait(); err != nil {
		return eris.Wrapf(err, "select %s", path)
	}
	return fn(client)
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}

// displayName returns the leaf of a delimited mailbox path, e.g.
// "[Gmail]/All Mail" -> "All Mail".
func displayName(mailbox string, delim rune) string {
	if delim == 0 {
		return mailbox
	}
	parts := strings.Split(mailbox, string(delim))
	return parts[len(parts)-1]
}
