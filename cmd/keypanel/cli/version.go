package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// versionInfo is what `keypanel version` reports. Storage and config tell
// an operator which deployment the binary would act on.
type versionInfo struct {
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	Built      string `json:"built"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	Storage    string `json:"storage"`
	ConfigFile string `json:"config_file,omitempty"`
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:    version,
				Commit:     commit,
				Built:      date,
				GoVersion:  runtime.Version(),
				Platform:   runtime.GOOS + "/" + runtime.GOARCH,
				Storage:    storageDescription(),
				ConfigFile: viper.ConfigFileUsed(),
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			writeVersion(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}

func writeVersion(w io.Writer, info versionInfo) {
	fmt.Fprintf(w, "keypanel %s\n", info.Version)
	fmt.Fprintf(w, "  commit:   %s\n", info.Commit)
	fmt.Fprintf(w, "  built:    %s\n", info.Built)
	fmt.Fprintf(w, "  go:       %s\n", info.GoVersion)
	fmt.Fprintf(w, "  platform: %s\n", info.Platform)
	fmt.Fprintf(w, "  storage:  %s\n", info.Storage)
	if info.ConfigFile != "" {
		fmt.Fprintf(w, "  config:   %s\n", info.ConfigFile)
	}
}

// storageDescription names the configured backend without revealing a DSN.
func storageDescription() string {
	driver := viper.GetString("storage.driver")
	if driver == "" || driver == "sqlite" {
		if viper.GetString("storage.dsn") != "" {
			return "sqlite (custom dsn)"
		}
		return "sqlite at " + resolveDataDir()
	}
	return driver
}
