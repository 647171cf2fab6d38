package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailpod/mailpod/internal/bridge"
	"github.com/mailpod/mailpod/internal/config"
	"github.com/mailpod/mailpod/internal/crypto"
	"github.com/mailpod/mailpod/internal/fileutil"
	"github.com/mailpod/mailpod/internal/model"
	"github.com/mailpod/mailpod/internal/oauth"
	"github.com/mailpod/mailpod/internal/store"
	"github.com/mailpod/mailpod/internal/sync"
	"github.com/mailpod/mailpod/internal/token"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailpod",
	Short: "Local mail store with provider sync",
	Long: `mailpod keeps a local, encrypted cache of your mail accounts and
reconciles it against the provider over IMAP and SMTP.

Accounts are added via OAuth (gmail, outlook); messages, folders and
attachments are cached on-device and stay readable offline.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if err := fileutil.SecureMkdirAll(cfg.DataDir(), 0o700); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.DataDir(), err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// app bundles the handles a command works with. Everything is constructed in
// openApp and passed along explicitly; commands never reach for hidden
// package state beyond cfg and logger.
type app struct {
	store      store.Store
	oauth      *oauth.Manager
	guard      *token.Guard
	bridge     bridge.Bridge
	reconciler *sync.Reconciler
}

// openApp wires crypto, store, oauth, token guard, bridge and reconciler.
// The caller owns the result and must Close it.
func openApp() (*app, error) {
	backend, err := crypto.ParseBackend(cfg.Store.CryptoBackend)
	if err != nil {
		return nil, err
	}
	svc, err := crypto.New(backend)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Options{
		Dir:    cfg.DataDir(),
		Crypto: svc,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	mgr := oauth.NewManager(logger)
	guard := token.NewGuard(st, mgr, logger)
	br := bridge.NewIMAP(bridge.Options{
		RateLimitQPS: cfg.Sync.RateLimitQPS,
		Logger:       logger,
	})

	return &app{
		store:      st,
		oauth:      mgr,
		guard:      guard,
		bridge:     br,
		reconciler: sync.New(st, br, guard, nil, logger).WithFetchLimit(cfg.Sync.FetchLimit),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// resolveAccount maps an account reference (ID or email, case-insensitive)
// to a stored account.
func resolveAccount(st store.Store, ref string) (*model.Account, error) {
	accounts, err := st.Accounts()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == ref || strings.EqualFold(accounts[i].Email, ref) {
			return &accounts[i], nil
		}
	}
	return nil, fmt.Errorf("no account matches %q (run 'mailpod accounts' to list)", ref)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mailpod/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
