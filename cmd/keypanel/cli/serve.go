package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keypanel/keypanel/internal/config"
	"github.com/keypanel/keypanel/internal/janitor"
	"github.com/keypanel/keypanel/internal/server"
)

const banner = `
 _                                    _
| | _____ _   _ _ __   __ _ _ __   ___| |
| |/ / _ \ | | | '_ \ / _' | '_ \ / _ \ |
|   <  __/ |_| | |_) | (_| | | | |  __/ |
|_|\_\___|\__, | .__/ \__,_|_| |_|\___|_|
          |___/|_|
`

func newServeCmd() *cobra.Command {
	var (
		dev        bool
		background bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the keypanel API server",
		Long:  "Start the HTTP server that exposes the app registry, key lifecycle and settings endpoints.",
		Example: `  keypanel serve
  keypanel serve --port 9090 --dev
  keypanel serve --background      # detach, log to <data-dir>/keypanel.log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return runServeBackground()
			}
			return runServe(dev)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().Int("validate-rate-limit", 120, "validate requests per minute per client and app (0 = off)")
	cmd.Flags().Bool("metrics", true, "Expose Prometheus metrics at /metrics")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")
	cmd.Flags().BoolVar(&background, "background", false, "Run the server detached in the background")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	viper.BindPFlag("server.validate_rate_limit", cmd.Flags().Lookup("validate-rate-limit"))
	viper.BindPFlag("server.metrics", cmd.Flags().Lookup("metrics"))

	return cmd
}

// serverConfig builds the HTTP server config from viper.
func serverConfig() (server.Config, error) {
	cfg := server.DefaultConfig()
	cfg.Host = viper.GetString("server.host")
	cfg.Port = viper.GetInt("server.port")
	cfg.ValidateRateLimit = viper.GetInt("server.validate_rate_limit")
	cfg.RateLimit = viper.GetInt("server.rate_limit")
	cfg.Metrics = viper.GetBool("server.metrics")
	if origins := viper.GetStringSlice("server.cors.origins"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}

	size, err := config.ParseByteSize(viper.GetString("server.max_body_size"))
	if err != nil {
		return cfg, fmt.Errorf("server.max_body_size: %w", err)
	}
	cfg.MaxBodySize = size

	if d, err := config.ParseDuration(viper.GetString("server.shutdown_timeout")); err != nil {
		return cfg, fmt.Errorf("server.shutdown_timeout: %w", err)
	} else if d > 0 {
		cfg.ShutdownTimeout = d
	}
	return cfg, nil
}

func runServe(dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(os.Stderr, dev)

	if err := config.FromViper(viper.GetViper()).Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	srvCfg, err := serverConfig()
	if err != nil {
		return err
	}
	pruneAfter, err := config.ParseDuration(viper.GetString("keys.prune_after"))
	if err != nil {
		return fmt.Errorf("keys.prune_after: %w", err)
	}
	pruneInterval, err := config.ParseDuration(viper.GetString("keys.prune_interval"))
	if err != nil {
		return fmt.Errorf("keys.prune_interval: %w", err)
	}

	// 1. Open the store and wire services
	st, services, err := openServices(logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("store opened", "driver", st.Dialect())

	apps, err := st.CountApps(context.Background())
	if err != nil {
		logger.Warn("failed to count apps", "error", err)
	} else if apps == 0 {
		logger.Warn("no apps registered - create one with: keypanel app create <name>")
	}
	if !services.Auth.AdminEnabled() {
		logger.Warn("auth.jwt_secret is not set - app management endpoints are open")
	}

	// 2. Start the expired-key janitor
	jan := janitor.New(st, pruneAfter, pruneInterval, logger)
	jan.Start()
	defer jan.Shutdown()

	// 3. Build and start HTTP server
	srv := server.New(srvCfg, st, services, logger)

	fmt.Printf("→ keypanel %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	if srvCfg.Metrics {
		fmt.Printf("→ Metrics:    http://%s:%d/metrics\n", srvCfg.Host, srvCfg.Port)
	}
	fmt.Printf("→ Apps:       %d\n", apps)
	fmt.Println()

	return srv.ListenAndServe()
}

// runServeBackground re-executes the binary without --background, detached
// from the terminal, and records its PID.
func runServeBackground() error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	args := []string{}
	for _, a := range os.Args[1:] {
		if a != "--background" && a != "--background=true" {
			args = append(args, a)
		}
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	detach(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := writePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}

	// Give the child a moment to fail fast on bad config.
	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()
	select {
	case <-exited:
		removePID()
		return fmt.Errorf("server exited during startup, see %s", logFilePath())
	case <-time.After(500 * time.Millisecond):
	}

	fmt.Printf("keypanel started in background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	fmt.Println("  Stop: keypanel stop")
	return nil
}
