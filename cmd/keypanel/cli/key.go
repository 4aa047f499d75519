package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/service"
	"github.com/keypanel/keypanel/internal/store"
)

// keyContext is what every key subcommand works on: an open store, the
// services over it, and the app named by --app.
type keyContext struct {
	ctx      context.Context
	store    *store.Store
	services *service.Services
	app      *model.App
}

func (k *keyContext) Close() error {
	return k.store.Close()
}

func openKeyContext(appRef string) (*keyContext, error) {
	if strings.TrimSpace(appRef) == "" {
		return nil, errors.New("--app is required (app id or name)")
	}
	st, services, err := openServices(quietLogger())
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	app, err := services.Apps.Resolve(ctx, appRef)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app %q: %w", appRef, err)
	}
	return &keyContext{ctx: ctx, store: st, services: services, app: app}, nil
}

func newKeyCmd() *cobra.Command {
	var appRef string

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage license keys",
		Long:  "Generate, inspect, validate and administer the license keys of one app.",
		Example: `  keypanel key generate --app launcher --days 30 --note "beta tester"
  keypanel key list --app launcher
  keypanel key ban --app launcher A1B2C3-...`,
	}

	cmd.PersistentFlags().StringVar(&appRef, "app", "", "App id or name (required)")

	// Subcommands read the flag through this closure.
	app := func() string { return appRef }

	cmd.AddCommand(newKeyGenerateCmd(app))
	cmd.AddCommand(newKeyListCmd(app))
	cmd.AddCommand(newKeyStatsCmd(app))
	cmd.AddCommand(newKeyValidateCmd(app))
	cmd.AddCommand(newKeyBanCmd(app, true))
	cmd.AddCommand(newKeyBanCmd(app, false))
	cmd.AddCommand(newKeyNoteCmd(app))
	cmd.AddCommand(newKeyResetHWIDCmd(app))
	cmd.AddCommand(newKeyExtendCmd(app))
	cmd.AddCommand(newKeyDeleteCmd(app))

	return cmd
}

// ---------- key generate ----------

func newKeyGenerateCmd(app func() string) *cobra.Command {
	var (
		days       string
		note       string
		count      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen"},
		Short:   "Generate new license keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()
			return runKeyGenerate(kc, model.ParseDays(days), note, count, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&days, "days", "", "Validity in days (default 1)")
	cmd.Flags().StringVar(&note, "note", "", "Free-form note stored with the key")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of keys to generate")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyGenerate(kc *keyContext, days model.Days, note string, count int, jsonOutput bool) error {
	if count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	keys := make([]*model.LicenseKey, 0, count)
	for i := 0; i < count; i++ {
		key, err := kc.services.Keys.Generate(kc.ctx, kc.app, days, note)
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		keys = append(keys, key)
	}

	if jsonOutput {
		return printJSON(keys)
	}

	for _, k := range keys {
		fmt.Printf("%s  expires %s\n", k.Key, formatTime(k.Expires))
	}
	return nil
}

// ---------- key list ----------

func newKeyListCmd(app func() string) *cobra.Command {
	var (
		jsonOutput bool
		status     string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the keys of an app",
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()
			return runKeyList(kc, model.KeyStatus(status), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&status, "status", "", "Only show keys in this status (active, expired, banned)")

	return cmd
}

func runKeyList(kc *keyContext, status model.KeyStatus, jsonOutput bool) error {
	keys, err := kc.services.Keys.List(kc.ctx, kc.app)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	if status != "" {
		filtered := keys[:0]
		for _, k := range keys {
			if k.Status == status {
				filtered = append(filtered, k)
			}
		}
		keys = filtered
	}

	if jsonOutput {
		return printJSON(keys)
	}

	if len(keys) == 0 {
		fmt.Printf("No keys for %s. Use 'keypanel key generate --app %s' to create one.\n", kc.app.Name, kc.app.Name)
		return nil
	}

	fmt.Printf("%-32s %-8s %-10s %-16s %-8s %s\n", "KEY", "STATUS", "REMAINING", "CREATED", "HWID", "NOTE")
	fmt.Printf("%-32s %-8s %-10s %-16s %-8s %s\n", "---", "------", "---------", "-------", "----", "----")
	for _, k := range keys {
		hwid := "-"
		if k.HWIDLocked() {
			hwid = "locked"
		}
		fmt.Printf("%-32s %-8s %-10s %-16s %-8s %s\n",
			k.Key, k.Status, k.Remaining, formatTime(k.Created), hwid, k.Note)
	}

	return nil
}

// ---------- key stats ----------

func newKeyStatsCmd(app func() string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show key counts for an app",
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()

			stats, err := kc.services.Keys.Stats(kc.ctx, kc.app)
			if err != nil {
				return fmt.Errorf("key stats: %w", err)
			}
			if jsonOutput {
				return printJSON(stats)
			}

			fmt.Printf("Keys for %s\n", kc.app.Name)
			fmt.Printf("  Total:       %d\n", stats.Total)
			fmt.Printf("  Active:      %d\n", stats.Active)
			fmt.Printf("  Expired:     %d\n", stats.Expired)
			fmt.Printf("  Banned:      %d\n", stats.Banned)
			fmt.Printf("  Used:        %d\n", stats.Used)
			fmt.Printf("  HWID locked: %d\n", stats.HWIDLocked)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- key validate ----------

func newKeyValidateCmd(app func() string) *cobra.Command {
	var (
		hwid       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "validate <key>",
		Short: "Validate a key as a client would",
		Long: `Run the same check clients use. A valid key with no bound hardware id
is bound to --hwid, exactly as a client request would do.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()

			result, err := kc.services.Keys.Validate(kc.ctx, kc.app, args[0], hwid)
			if err != nil {
				return fmt.Errorf("validate key: %w", err)
			}
			if jsonOutput {
				return printJSON(result)
			}

			if !result.Valid {
				fmt.Printf("invalid: %s\n", result.Reason)
				if result.ExpiredAt != 0 {
					fmt.Printf("  expired at %s\n", formatTime(result.ExpiredAt))
				}
				return nil
			}
			fmt.Println("valid")
			fmt.Printf("  expires %s (%s)\n", formatTime(result.Expires), model.Remaining(result.Expires, time.Now().Unix()))
			fmt.Printf("  hwid    %s\n", result.HWID)
			return nil
		},
	}

	cmd.Flags().StringVar(&hwid, "hwid", "", "Hardware id presented by the client (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- key ban / unban ----------

func newKeyBanCmd(app func() string, ban bool) *cobra.Command {
	use, short, done := "ban <key>", "Ban a key", "Banned"
	if !ban {
		use, short, done = "unban <key>", "Lift a ban", "Unbanned"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()

			if err := kc.services.Keys.SetBanned(kc.ctx, kc.app, args[0], ban); err != nil {
				return fmt.Errorf("%s: %w", strings.ToLower(short), err)
			}
			fmt.Printf("%s %s\n", done, args[0])
			return nil
		},
	}
}

// ---------- key note ----------

func newKeyNoteCmd(app func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "note <key> [text]",
		Short: "Set or clear the note of a key",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()

			note := ""
			if len(args) == 2 {
				note = args[1]
			}
			if err := kc.services.Keys.UpdateNote(kc.ctx, kc.app, args[0], note); err != nil {
				return fmt.Errorf("update note: %w", err)
			}
			fmt.Println("Note updated.")
			return nil
		},
	}
}

// ---------- key reset-hwid ----------

func newKeyResetHWIDCmd(app func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-hwid <key>",
		Short: "Unbind the hardware id of a key",
		Long:  "Clear the bound hardware id. The next successful validation binds the key again.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()

			if err := kc.services.Keys.ResetHWID(kc.ctx, kc.app, args[0]); err != nil {
				return fmt.Errorf("reset hwid: %w", err)
			}
			fmt.Printf("Hardware id cleared for %s\n", args[0])
			return nil
		},
	}
}

// ---------- key extend ----------

func newKeyExtendCmd(app func() string) *cobra.Command {
	var days string

	cmd := &cobra.Command{
		Use:   "extend <key>",
		Short: "Extend a key's expiry",
		Long:  "Add days to a key. Expired keys are extended from now, active keys from their current expiry.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()

			expires, err := kc.services.Keys.Extend(kc.ctx, kc.app, args[0], model.ParseDays(days))
			if err != nil {
				return fmt.Errorf("extend key: %w", err)
			}
			fmt.Printf("%s now expires %s\n", args[0], formatTime(expires))
			return nil
		},
	}

	cmd.Flags().StringVar(&days, "days", "", "Days to add (default 1)")

	return cmd
}

// ---------- key delete ----------

func newKeyDeleteCmd(app func() string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <key>",
		Aliases: []string{"rm"},
		Short:   "Delete a key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := openKeyContext(app())
			if err != nil {
				return err
			}
			defer kc.Close()

			if !yes {
				ok, err := confirm(fmt.Sprintf("delete key %s", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			deleted, err := kc.services.Keys.Delete(kc.ctx, kc.app, args[0])
			if err != nil {
				return fmt.Errorf("delete key: %w", err)
			}
			if !deleted {
				return service.ErrKeyNotFound
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
