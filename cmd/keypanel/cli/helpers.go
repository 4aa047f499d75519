package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/keypanel/keypanel/internal/service"
	"github.com/keypanel/keypanel/internal/store"
)

// envKeyReplacer maps dotted config keys to env names
// (storage.dsn -> KEYPANEL_STORAGE_DSN).
var envKeyReplacer = strings.NewReplacer(".", "_")

// resolveDataDir returns the data directory from --data-dir, the config
// file, KEYPANEL_STORAGE_DATA_DIR, or ~/.keypanel as fallback.
func resolveDataDir() string {
	if dir := viper.GetString("storage.data_dir"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".keypanel")
}

// openStore opens the configured store. SQLite lives under the data dir.
func openStore() (*store.Store, error) {
	driver := store.Dialect(viper.GetString("storage.driver"))
	if driver == "" {
		driver = store.DialectSQLite
	}
	opts := store.Options{
		Driver: driver,
		DSN:    viper.GetString("storage.dsn"),
	}
	if driver == store.DialectSQLite && opts.DSN == "" {
		opts.DataDir = resolveDataDir()
	}
	st, err := store.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// openServices opens the store and wires the service layer over it. The
// caller closes the returned store.
func openServices(logger *slog.Logger) (*store.Store, *service.Services, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return st, service.New(st, viper.GetString("auth.jwt_secret"), logger), nil
}

// newLogger builds the process logger from log.level and log.format. dev
// forces debug level.
func newLogger(w io.Writer, dev bool) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	if dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if viper.GetString("log.format") == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// quietLogger is used by one-shot commands, which only report warnings.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "keypanel.pid")
}

func writePID(pid int) error {
	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "keypanel.log")
}

// --- Output ---

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatTime renders an epoch second for tables.
func formatTime(epoch int64) string {
	return time.Unix(epoch, 0).Local().Format("2006-01-02 15:04")
}

// confirm asks a yes/no question on the terminal. When stdin is not a
// terminal it refuses, so scripts must pass --yes.
func confirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("refusing to %s without a terminal (use --yes)", prompt)
	}
	fmt.Printf("Really %s? [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
