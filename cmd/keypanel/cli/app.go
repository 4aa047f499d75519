package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Manage registered applications",
		Long:  "Create, list, delete and rotate the credentials of the apps that own license keys.",
	}

	cmd.AddCommand(newAppCreateCmd())
	cmd.AddCommand(newAppListCmd())
	cmd.AddCommand(newAppDeleteCmd())
	cmd.AddCommand(newAppRotateCmd())

	return cmd
}

// ---------- app create ----------

func newAppCreateCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new app and print its credentials",
		Long: `Register a new app. The owner id and secret key are printed once and
cannot be recovered later; use 'keypanel app rotate' to issue a new secret.`,
		Example: `  keypanel app create "My Game"
  keypanel app create launcher --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppCreate(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAppCreate(name string, jsonOutput bool) error {
	st, services, err := openServices(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	creds, err := services.Apps.Create(context.Background(), name)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	if jsonOutput {
		return printJSON(creds)
	}

	fmt.Println()
	fmt.Printf("  App created: %s\n", creds.Name)
	fmt.Println()
	fmt.Printf("  ID:          %s\n", creds.ID)
	fmt.Printf("  Owner ID:    %s\n", creds.OwnerID)
	fmt.Printf("  Secret Key:  %s\n", creds.SecretKey)
	fmt.Println()
	fmt.Println("  IMPORTANT: Save the secret key now. It cannot be retrieved later.")
	fmt.Println()
	fmt.Println("  Clients send both as headers:")
	fmt.Printf("    X-Owner-ID: %s\n", creds.OwnerID)
	fmt.Printf("    X-Secret-Key: %s\n", creds.SecretKey)
	fmt.Println()

	return nil
}

// ---------- app list ----------

func newAppListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAppList(jsonOutput bool) error {
	st, services, err := openServices(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	apps, err := services.Apps.List(context.Background())
	if err != nil {
		return fmt.Errorf("list apps: %w", err)
	}

	if jsonOutput {
		return printJSON(apps)
	}

	if len(apps) == 0 {
		fmt.Println("No apps registered. Use 'keypanel app create <name>' to add one.")
		return nil
	}

	fmt.Printf("%-24s %-28s %-36s %-6s %-6s %-16s\n", "NAME", "ID", "OWNER ID", "KEYS", "ACTIVE", "CREATED")
	fmt.Printf("%-24s %-28s %-36s %-6s %-6s %-16s\n", "----", "--", "--------", "----", "------", "-------")
	for _, a := range apps {
		name := a.Name
		if len(name) > 22 {
			name = name[:19] + "..."
		}
		fmt.Printf("%-24s %-28s %-36s %-6d %-6d %-16s\n",
			name, a.ID, a.OwnerID, a.KeyCount, a.ActiveKeys, formatTime(a.Created))
	}

	return nil
}

// ---------- app delete ----------

func newAppDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <id|name>",
		Aliases: []string{"rm"},
		Short:   "Delete an app and all of its keys",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppDelete(args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func runAppDelete(ref string, yes bool) error {
	st, services, err := openServices(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	app, err := services.Apps.Resolve(ctx, ref)
	if err != nil {
		return fmt.Errorf("app %q: %w", ref, err)
	}

	if !yes {
		ok, err := confirm(fmt.Sprintf("delete app %q and all of its keys", app.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted, err := services.Apps.Delete(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("delete app: %w", err)
	}
	if !deleted {
		return fmt.Errorf("app %q was already deleted", app.Name)
	}

	fmt.Printf("Deleted app %q.\n", app.Name)
	return nil
}

// ---------- app rotate ----------

func newAppRotateCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rotate <id|name>",
		Short: "Issue a new secret key for an app",
		Long:  "Replace the app's secret key. The old secret stops working immediately; keys are untouched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAppRotate(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runAppRotate(ref string, jsonOutput bool) error {
	st, services, err := openServices(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	app, err := services.Apps.Resolve(ctx, ref)
	if err != nil {
		return fmt.Errorf("app %q: %w", ref, err)
	}

	creds, err := services.Apps.Rotate(ctx, app.ID)
	if err != nil {
		return fmt.Errorf("rotate secret: %w", err)
	}

	if jsonOutput {
		return printJSON(creds)
	}

	fmt.Printf("New secret key for %q:\n\n", creds.Name)
	fmt.Printf("  Owner ID:    %s\n", creds.OwnerID)
	fmt.Printf("  Secret Key:  %s\n\n", creds.SecretKey)
	fmt.Println("Save it now. Clients using the old secret must be updated.")
	return nil
}
