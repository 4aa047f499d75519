package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/keypanel/keypanel/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage keypanel configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default keypanel.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Printf("Created %s\n", path)
			fmt.Println("Set auth.jwt_secret to protect app management, then run 'keypanel serve'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVarP(&path, "output", "o", config.DefaultFileName, "Where to write the file")

	return cmd
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		Long: `Print every setting after defaults, the config file, KEYPANEL_* environment
variables and flags have been layered. Secrets are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(asYAML)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print as YAML")

	return cmd
}

func runConfigShow(asYAML bool) error {
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# Config file: %s\n", used)
	} else {
		fmt.Println("# Config file: (none found, using defaults)")
	}
	if err := config.FromViper(viper.GetViper()).Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Printf("# Invalid: %s\n", line)
		}
	}

	keys := viper.AllKeys()
	sort.Strings(keys)

	if asYAML {
		settings := viper.AllSettings()
		maskSecrets(settings)
		out, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	for _, key := range keys {
		value := viper.Get(key)
		if isSecretKey(key) && viper.GetString(key) != "" {
			value = "********"
		}
		fmt.Printf("%s: %v\n", key, value)
	}
	return nil
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "secret") || strings.HasSuffix(key, "dsn")
}

// maskSecrets replaces secret leaves of a nested settings map in place.
func maskSecrets(m map[string]interface{}) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]interface{}:
			maskSecrets(val)
		case string:
			if isSecretKey(k) && val != "" {
				m[k] = "********"
			}
		}
	}
}
