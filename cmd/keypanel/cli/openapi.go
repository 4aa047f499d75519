package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keypanel/keypanel/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		outputFile string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long: `Generate the OpenAPI 3.1 document for the keypanel HTTP API. Admin bearer
security is included when auth.jwt_secret is configured.`,
		Example: `  keypanel openapi
  keypanel openapi -o openapi.json --base-url https://keys.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOpenAPI(outputFile, baseURL)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL to advertise (default http://localhost:<server.port>)")

	return cmd
}

func runOpenAPI(outputFile, baseURL string) error {
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", viper.GetInt("server.port"))
	}

	doc := openapi.Generate(openapi.Options{
		BaseURL:   baseURL,
		AdminAuth: viper.GetString("auth.jwt_secret") != "",
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}

	if outputFile == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(outputFile, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", outputFile, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", outputFile)
	return nil
}
