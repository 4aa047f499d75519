package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keypanel/keypanel/internal/config"
)

var (
	cfgFile    string
	appVersion string // set in Execute, reported by serve and mcp
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keypanel",
		Short: "Issue and validate license keys for your applications",
		Long: `keypanel issues, validates, and manages time-limited license keys for one or
more registered applications, with first-use hardware-id binding.

Run 'keypanel serve' for the JSON API. The other commands work on the same
store directly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./keypanel.yaml)")
	cmd.PersistentFlags().String("data-dir", "", "data directory for the SQLite store (default: ~/.keypanel)")
	cmd.PersistentFlags().String("driver", "", "storage driver: sqlite, postgres or mysql")
	cmd.PersistentFlags().String("dsn", "", "storage DSN for postgres or mysql")
	viper.BindPFlag("storage.data_dir", cmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("storage.driver", cmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("storage.dsn", cmd.PersistentFlags().Lookup("dsn"))

	cobra.OnInitialize(initConfig)

	// Add subcommands
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newAppCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newOpenAPICmd())

	return cmd
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("keypanel")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.keypanel")
	}

	// A .env file in the working directory may carry KEYPANEL_* variables.
	// Variables already set in the environment win.
	_ = godotenv.Load()

	viper.SetEnvPrefix("KEYPANEL")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
