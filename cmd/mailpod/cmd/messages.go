package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailpod/mailpod/internal/model"
	"github.com/mailpod/mailpod/internal/textutil"
	"github.com/mailpod/mailpod/internal/thread"
)

var (
	messagesForce bool
	messagesFlat  bool
)

const subjectWidth = 60

var messagesCmd = &cobra.Command{
	Use:   "messages <account> [folder]",
	Short: "List messages in a folder",
	Long: `List the messages of a folder, grouped into conversations. The folder
argument accepts a folder ID, a path, or one of the virtual names: inbox,
sent, drafts, archive, favorites. Defaults to inbox.

The first listing of a folder fetches from the provider; later listings
serve the local cache. Use --force to refetch.

Examples:
  mailpod messages you@gmail.com
  mailpod messages you@gmail.com sent
  mailpod messages you@gmail.com inbox --force
  mailpod messages you@gmail.com favorites --flat`,
	Args: cobra.RangeArgs(1, 2),
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
		folderRef := "inbox"
		if len(args) == 2 {
			folderRef = args[1]
		}

		msgs, err := a.reconciler.SyncMessages(cmd.Context(), account.ID, folderRef, messagesForce)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}

		if messagesFlat {
			outputMessagesFlat(msgs)
			return nil
		}
		outputMessagesThreaded(thread.Messages(msgs))
		return nil
	},
}

func outputMessagesFlat(msgs []model.Message) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tFROM\tSUBJECT\tID")
	for _, m := range msgs {
		fmt.Fprintf(w, "%s\t%s\t%s%s\t%s\n",
			m.Date.Local().Format("2006-01-02 15:04"),
			senderLabel(m),
			readMarker(m),
			textutil.TruncateRunes(m.Subject, subjectWidth),
			m.ID)
	}
	w.Flush()
	fmt.Printf("\n%d message(s)\n", len(msgs))
}

func outputMessagesThreaded(groups []thread.Group) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tFROM\tSUBJECT\tID")
	total := 0
	for _, g := range groups {
		m := g.Latest
		total += len(g.Messages)
		subject := textutil.TruncateRunes(m.Subject, subjectWidth)
		if n := len(g.Messages); n > 1 {
			subject = fmt.Sprintf("%s (%d)", subject, n)
		}
		fmt.Fprintf(w, "%s\t%s\t%s%s\t%s\n",
			m.Date.Local().Format("2006-01-02 15:04"),
			senderLabel(m),
			readMarker(m),
			subject,
			m.ID)
	}
	w.Flush()
	fmt.Printf("\n%d message(s) in %d conversation(s)\n", total, len(groups))
}

func senderLabel(m model.Message) string {
	if m.From.Name != "" {
		return textutil.TruncateRunes(m.From.Name, 24)
	}
	return textutil.TruncateRunes(m.From.Address, 24)
}

func readMarker(m model.Message) string {
	if m.IsRead {
		return ""
	}
	return "* "
}

func init() {
	messagesCmd.Flags().BoolVar(&messagesForce, "force", false, "Refetch from the provider even when cached")
	messagesCmd.Flags().BoolVar(&messagesFlat, "flat", false, "List messages without conversation grouping")
	rootCmd.AddCommand(messagesCmd)
}
