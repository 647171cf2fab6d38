package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	settingsTheme          string
	settingsNotifications  string
	settingsAutoSync       string
	settingsSyncInterval   int
	settingsDefaultAccount string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change preferences",
	Long: `Show the stored preferences. Flags change individual settings; the
rest keep their values.

Examples:
  mailpod settings
  mailpod settings --theme light
  mailpod settings --auto-sync off --sync-interval 15
  mailpod settings --default-account you@gmail.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.store.Settings()
		if err != nil {
			return err
		}

		changed := false
		if cmd.Flags().Changed("theme") {
			s.Theme = settingsTheme
			changed = true
		}
		if cmd.Flags().Changed("notifications") {
			on, err := parseOnOff(settingsNotifications)
			if err != nil {
				return fmt.Errorf("--notifications: %w", err)
			}
			s.Notifications = on
			changed = true
		}
		if cmd.Flags().Changed("auto-sync") {
			on, err := parseOnOff(settingsAutoSync)
			if err != nil {
				return fmt.Errorf("--auto-sync: %w", err)
			}
			s.AutoSync = on
			changed = true
		}
		if cmd.Flags().Changed("sync-interval") {
			if settingsSyncInterval < 1 {
				return fmt.Errorf("--sync-interval must be at least 1 minute")
			}
			s.SyncInterval = settingsSyncInterval
			changed = true
		}
		if cmd.Flags().Changed("default-account") {
			account, err := resolveAccount(a.store, settingsDefaultAccount)
			if err != nil {
				return err
			}
			s.DefaultAccount = account.ID
			changed = true
		}

		if changed {
			if err := a.store.SaveSettings(s); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
		}

		fmt.Printf("theme:            %s\n", s.Theme)
		fmt.Printf("notifications:    %s\n", onOff(s.Notifications))
		fmt.Printf("auto-sync:        %s\n", onOff(s.AutoSync))
		fmt.Printf("sync-interval:    %dm\n", s.SyncInterval)
		if s.DefaultAccount != "" {
			fmt.Printf("default-account:  %s\n", s.DefaultAccount)
		}
		return nil
	},
}

func parseOnOff(v string) (bool, error) {
	switch v {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", v)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	settingsCmd.Flags().StringVar(&settingsTheme, "theme", "", "UI theme (dark, light)")
	settingsCmd.Flags().StringVar(&settingsNotifications, "notifications", "", "Enable notifications (on, off)")
	settingsCmd.Flags().StringVar(&settingsAutoSync, "auto-sync", "", "Enable periodic sync (on, off)")
	settingsCmd.Flags().IntVar(&settingsSyncInterval, "sync-interval", 0, "Minutes between periodic syncs")
	settingsCmd.Flags().StringVar(&settingsDefaultAccount, "default-account", "", "Account used when none is given")
	rootCmd.AddCommand(settingsCmd)
}
