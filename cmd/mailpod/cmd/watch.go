package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailpod/mailpod/internal/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run periodic background sync",
	Long: `Keep every account's cache fresh by syncing on the interval from the
stored settings (see 'mailpod settings'). Runs until interrupted. Does
nothing when auto sync is disabled.

Example:
  mailpod watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sched := scheduler.New(func(ctx context.Context, accountID string) error {
			if _, err := a.reconciler.SyncFolders(ctx, accountID); err != nil {
				return err
			}
			_, err := a.reconciler.SyncMessages(ctx, accountID, "inbox", true)
			return err
		}).WithLogger(logger)

		scheduled, err := sched.ApplySettings(a.store)
		if err != nil {
			return err
		}
		if scheduled == 0 {
			fmt.Println("Nothing to watch: no accounts scheduled (is auto sync enabled?).")
			return nil
		}

		sched.Start()
		fmt.Printf("Watching %d account(s). Press Ctrl-C to stop.\n", scheduled)

		<-cmd.Context().Done()
		<-sched.Stop().Done()
		fmt.Println("Stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
