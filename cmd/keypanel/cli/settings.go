package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View and change deployment settings",
	}

	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetFormatCmd())

	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, services, err := openServices(quietLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			settings, err := services.Settings.Get(context.Background())
			if err != nil {
				return fmt.Errorf("read settings: %w", err)
			}
			if jsonOutput {
				return printJSON(settings)
			}
			fmt.Printf("Key format: %s\n", settings.KeyFormat)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newSettingsSetFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-format <format>",
		Short: "Set the template for newly generated keys",
		Long: `Set the template used for new keys. Each X becomes a random uppercase hex
digit and each - is kept; no other characters are allowed. Existing keys
keep their shape.`,
		Example: `  keypanel settings set-format XXXX-XXXX-XXXX-XXXX`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, services, err := openServices(quietLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := services.Settings.SetKeyFormat(context.Background(), args[0]); err != nil {
				return fmt.Errorf("set key format: %w", err)
			}
			fmt.Printf("Key format set to %s\n", args[0])
			return nil
		},
	}
}
