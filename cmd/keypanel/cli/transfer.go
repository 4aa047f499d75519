package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keypanel/keypanel/internal/model"
)

func newImportCmd() *cobra.Command {
	var (
		replace bool
		yes     bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import apps, keys and settings from a JSON document",
		Long: `Load a panel document ({"apps": [...], "settings": {...}}) into the store
in one transaction. Raw secret keys in the document are hashed on import.
With --replace, all existing apps and keys are removed first.`,
		Example: `  keypanel import data.json
  keypanel import backup.json --replace --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0], replace, yes)
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Remove existing apps and keys before importing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt for --replace")

	return cmd
}

func runImport(path string, replace, yes bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if replace && !yes {
		ok, err := confirm("replace every existing app and key")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	st, services, err := openServices(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := services.Transfer.Import(context.Background(), &doc, replace)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	fmt.Printf("Imported %d app(s), %d key(s), %d setting(s) from %s\n",
		summary.Apps, summary.Keys, summary.Settings, path)
	return nil
}

func newExportCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export apps, keys and settings as a JSON document",
		Long: `Write the whole panel as one JSON document. Secrets are exported as hashes,
so the dump restores working credentials without containing any.`,
		Example: `  keypanel export -o backup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func runExport(outputFile string) error {
	st, services, err := openServices(quietLogger())
	if err != nil {
		return err
	}
	defer st.Close()

	doc, err := services.Transfer.Export(context.Background())
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if outputFile == "" {
		return printJSON(doc)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputFile, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	fmt.Fprintf(os.Stderr, "Exported %d app(s) to %s\n", len(doc.Apps), outputFile)
	return nil
}
