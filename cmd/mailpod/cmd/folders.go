package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var foldersRefresh bool

var foldersCmd = &cobra.Command{
	Use:   "folders <account>",
	Short: "List an account's folders",
	Long: `List the folders of an account. Shows the cached folder list; use
--refresh to fetch the current list from the provider first.

Examples:
  mailpod folders you@gmail.com
  mailpod folders you@gmail.com --refresh`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := resolveAccount(a.store, args[0])
		if err != nil {
			return err
		}

		folders, err := a.store.FoldersByAccount(account.ID)
		if err != nil {
			return err
		}
		if foldersRefresh || len(folders) == 0 {
			folders, err = a.reconciler.SyncFolders(cmd.Context(), account.ID)
			if err != nil {
				return fmt.Errorf("sync folders: %w", err)
			}
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPATH\tTOTAL\tUNREAD")
		fmt.Fprintln(w, "────\t────\t─────\t──────")
		for _, f := range folders {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", f.Name, f.Path, f.TotalCount, f.UnreadCount)
		}
		w.Flush()
		fmt.Printf("\n%d folder(s)\n", len(folders))
		return nil
	},
}

func init() {
	foldersCmd.Flags().BoolVar(&foldersRefresh, "refresh", false, "Fetch the folder list from the provider")
	rootCmd.AddCommand(foldersCmd)
}
