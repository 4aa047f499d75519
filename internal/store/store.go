package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/keypanel/keypanel/internal/model"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// driverNames maps a dialect to its database/sql driver name.
var driverNames = map[Dialect]string{
	DialectSQLite:   "sqlite",
	DialectPostgres: "pgx",
	DialectMySQL:    "mysql",
}

// Options selects and locates the backing database.
type Options struct {
	Driver  Dialect
	DSN     string // required for postgres and mysql; overrides DataDir for sqlite
	DataDir string // sqlite only; empty means in-memory
}

// Store is the durable owner of apps, license keys, and settings. Every write
// is a single statement or one transaction, so a failed write leaves the
// previously committed state intact.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewStore opens a SQLite store under dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	return Open(Options{Driver: DialectSQLite, DataDir: dataDir})
}

// Open connects to the configured backend and runs migrations.
func Open(opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DialectSQLite
	}
	driverName, ok := driverNames[opts.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}

	dsn := opts.DSN
	if opts.Driver == DialectSQLite && dsn == "" {
		if opts.DataDir == "" {
			dsn = ":memory:"
		} else {
			if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(opts.DataDir, "keypanel.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
	}
	if dsn == "" {
		return nil, fmt.Errorf("storage driver %q requires a dsn", opts.Driver)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if opts.Driver == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, dialect: opts.Driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports the backend in use.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// q rebinds a query written with ? placeholders for the active driver.
func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// ---------------------------------------------------------------------------
// Apps
// ---------------------------------------------------------------------------

const appColumns = "id, name, name_key, owner_id, secret_hash, created"

// CreateApp inserts a new app. NameKey is derived from Name. Returns
// ErrDuplicate if the name or owner id is already taken.
func (s *Store) CreateApp(ctx context.Context, app *model.App) error {
	return insertApp(ctx, s.db, app)
}

func insertApp(ctx context.Context, ext sqlx.ExtContext, app *model.App) error {
	app.NameKey = strings.ToLower(app.Name)

	q := ext.Rebind(`INSERT INTO apps (` + appColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := ext.ExecContext(ctx, q, app.ID, app.Name, app.NameKey, app.OwnerID, app.SecretHash, app.Created)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert app: %w", err)
	}
	return nil
}

// GetApp returns an app by ID.
func (s *Store) GetApp(ctx context.Context, id string) (*model.App, error) {
	return s.getApp(ctx, "id", id)
}

// GetAppByOwner returns the app whose public owner id matches.
func (s *Store) GetAppByOwner(ctx context.Context, ownerID string) (*model.App, error) {
	return s.getApp(ctx, "owner_id", ownerID)
}

// GetAppByName returns an app by name, ignoring case.
func (s *Store) GetAppByName(ctx context.Context, name string) (*model.App, error) {
	return s.getApp(ctx, "name_key", strings.ToLower(name))
}

func (s *Store) getApp(ctx context.Context, column, value string) (*model.App, error) {
	var app model.App
	q := s.q("SELECT " + appColumns + " FROM apps WHERE " + column + " = ?")
	if err := s.db.GetContext(ctx, &app, q, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get app: %w", err)
	}
	return &app, nil
}

// ListApps returns every app in creation order.
func (s *Store) ListApps(ctx context.Context) ([]model.App, error) {
	var apps []model.App
	if err := s.db.SelectContext(ctx, &apps, "SELECT "+appColumns+" FROM apps ORDER BY created, name"); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return apps, nil
}

// ListAppSummaries returns every app with its key counts. A key is active
// when it is not banned and expires after now.
func (s *Store) ListAppSummaries(ctx context.Context, now int64) ([]model.AppSummary, error) {
	q := s.q(`SELECT a.id, a.name, a.owner_id, a.created,
			COUNT(k.id) AS key_count,
			COALESCE(SUM(CASE WHEN k.banned = FALSE AND k.expires > ? THEN 1 ELSE 0 END), 0) AS active_keys
		FROM apps a
		LEFT JOIN license_keys k ON k.app_id = a.id
		GROUP BY a.id, a.name, a.owner_id, a.created
		ORDER BY a.created, a.name`)

	summaries := []model.AppSummary{}
	if err := s.db.SelectContext(ctx, &summaries, q, now); err != nil {
		return nil, fmt.Errorf("list app summaries: %w", err)
	}
	return summaries, nil
}

// UpdateAppSecret replaces the stored secret hash of an app.
func (s *Store) UpdateAppSecret(ctx context.Context, id, secretHash string) error {
	result, err := s.db.ExecContext(ctx, s.q("UPDATE apps SET secret_hash = ? WHERE id = ?"), secretHash, id)
	if err != nil {
		return fmt.Errorf("update app secret: %w", err)
	}
	return requireRow(result, "update app secret")
}

// DeleteApp removes an app and all of its keys in one transaction. It reports
// whether the app existed.
func (s *Store) DeleteApp(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Keys are removed explicitly so the cascade does not depend on the
	// foreign key pragma being active.
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM license_keys WHERE app_id = ?"), id); err != nil {
		return false, fmt.Errorf("delete app keys: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM apps WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("delete app: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete app rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete app: %w", err)
	}
	return n > 0, nil
}

// CountApps returns the number of registered apps.
func (s *Store) CountApps(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM apps"); err != nil {
		return 0, fmt.Errorf("count apps: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// License keys
// ---------------------------------------------------------------------------

const keyColumns = "app_id, license_key, created, expires, banned, note, used, last_used, hwid"

// InsertKey stores a new license key. Returns ErrDuplicate if the app already
// holds the same token and ErrNotFound if the app does not exist.
func (s *Store) InsertKey(ctx context.Context, key *model.LicenseKey) error {
	return insertKey(ctx, s.db, key)
}

func insertKey(ctx context.Context, ext sqlx.ExtContext, key *model.LicenseKey) error {
	q := ext.Rebind(`INSERT INTO license_keys (` + keyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := ext.ExecContext(ctx, q,
		key.AppID, key.Key, key.Created, key.Expires, key.Banned, key.Note, key.Used, key.LastUsed, key.HWID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert license key: %w", err)
	}
	return nil
}

// GetKey returns one key of an app.
func (s *Store) GetKey(ctx context.Context, appID, token string) (*model.LicenseKey, error) {
	var key model.LicenseKey
	q := s.q("SELECT " + keyColumns + " FROM license_keys WHERE app_id = ? AND license_key = ?")
	if err := s.db.GetContext(ctx, &key, q, appID, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get license key: %w", err)
	}
	return &key, nil
}

// ListKeys returns the keys of an app in insertion order.
func (s *Store) ListKeys(ctx context.Context, appID string) ([]model.LicenseKey, error) {
	keys := []model.LicenseKey{}
	q := s.q("SELECT " + keyColumns + " FROM license_keys WHERE app_id = ? ORDER BY id")
	if err := s.db.SelectContext(ctx, &keys, q, appID); err != nil {
		return nil, fmt.Errorf("list license keys: %w", err)
	}
	return keys, nil
}

// Key mutations are single conditional statements so that writers in other
// processes sharing the database never lose each other's changes.

// SetKeyBanned sets or clears the ban flag of a key.
func (s *Store) SetKeyBanned(ctx context.Context, appID, token string, banned bool) error {
	return updateKey(ctx, s.db, "ban license key", appID, token, "banned = ?", banned)
}

// SetKeyNote replaces the note of a key.
func (s *Store) SetKeyNote(ctx context.Context, appID, token, note string) error {
	return updateKey(ctx, s.db, "update license key note", appID, token, "note = ?", note)
}

// ClearKeyHWID removes the hardware binding of a key.
func (s *Store) ClearKeyHWID(ctx context.Context, appID, token string) error {
	return updateKey(ctx, s.db, "reset license key hwid", appID, token, "hwid = NULL")
}

// ExtendKey adds seconds to the later of the key's expiry and now, and
// returns the new expiry.
func (s *Store) ExtendKey(ctx context.Context, appID, token string, now, seconds int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = updateKey(ctx, tx, "extend license key", appID, token,
		"expires = CASE WHEN expires > ? THEN expires ELSE ? END + ?", now, now, seconds)
	if err != nil {
		return 0, err
	}

	var expires int64
	q := tx.Rebind("SELECT expires FROM license_keys WHERE app_id = ? AND license_key = ?")
	if err := tx.GetContext(ctx, &expires, q, appID, token); err != nil {
		return 0, fmt.Errorf("read extended expiry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit extend: %w", err)
	}
	return expires, nil
}

// bindConditions matches a key that is still in the state seen by the
// caller: not banned, same expiry, unexpired at now, and unbound or bound to
// hwid.
const bindConditions = `app_id = ? AND license_key = ? AND banned = ? AND expires = ? AND expires >= ?
	AND (hwid IS NULL OR hwid = '' OR hwid = ?)`

// BindKey records a successful validation of seen: it marks the key used at
// now and binds hwid if no hardware id is bound yet. It reports false,
// writing nothing, when the stored key no longer passes validation as seen
// (banned, extended, expired, deleted or bound to another hwid meanwhile).
func (s *Store) BindKey(ctx context.Context, seen *model.LicenseKey, hwid string, now int64) (bool, error) {
	cond := []any{seen.AppID, seen.Key, false, seen.Expires, now, hwid}

	q := s.q(`UPDATE license_keys SET
		used = ?, last_used = ?, hwid = CASE WHEN hwid IS NULL OR hwid = '' THEN ? ELSE hwid END
		WHERE ` + bindConditions)
	result, err := s.db.ExecContext(ctx, q, append([]any{true, now, hwid}, cond...)...)
	if err != nil {
		return false, fmt.Errorf("bind license key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("bind license key rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// MySQL counts only changed rows, so a repeat within the same second
	// affects nothing. The key already holding exactly these values is a
	// successful bind.
	var same int
	q = s.q(`SELECT COUNT(*) FROM license_keys WHERE ` + bindConditions + `
		AND used = ? AND last_used = ? AND hwid = ?`)
	if err := s.db.GetContext(ctx, &same, q, append(cond, true, now, hwid)...); err != nil {
		return false, fmt.Errorf("bind license key: %w", err)
	}
	return same > 0, nil
}

// updateKey applies set to one key. ErrNotFound means the key does not exist.
func updateKey(ctx context.Context, ext sqlx.ExtContext, op, appID, token, set string, args ...any) error {
	q := ext.Rebind("UPDATE license_keys SET " + set + " WHERE app_id = ? AND license_key = ?")
	result, err := ext.ExecContext(ctx, q, append(args, appID, token)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	// Zero rows can also mean the values were unchanged (MySQL).
	var count int
	q = ext.Rebind("SELECT COUNT(*) FROM license_keys WHERE app_id = ? AND license_key = ?")
	if err := sqlx.GetContext(ctx, ext, &count, q, appID, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteKey removes a key and reports whether it existed.
func (s *Store) DeleteKey(ctx context.Context, appID, token string) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.q("DELETE FROM license_keys WHERE app_id = ? AND license_key = ?"), appID, token)
	if err != nil {
		return false, fmt.Errorf("delete license key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete license key rows affected: %w", err)
	}
	return n > 0, nil
}

// CountKeys returns the number of keys across all apps.
func (s *Store) CountKeys(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM license_keys"); err != nil {
		return 0, fmt.Errorf("count license keys: %w", err)
	}
	return count, nil
}

// PruneExpiredKeys deletes keys that expired before the given time,
// regardless of ban state, and returns how many were removed.
func (s *Store) PruneExpiredKeys(ctx context.Context, before int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.q("DELETE FROM license_keys WHERE expires < ?"), before)
	if err != nil {
		return 0, fmt.Errorf("prune license keys: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune license keys rows affected: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns a setting value, or ErrNotFound if it was never set.
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, s.q("SELECT value FROM settings WHERE name = ?"), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting creates or replaces a setting value.
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	return s.setSetting(ctx, s.db, name, value)
}

func (s *Store) setSetting(ctx context.Context, ext sqlx.ExtContext, name, value string) error {
	q := `INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`
	if s.dialect == DialectMySQL {
		q = `INSERT INTO settings (name, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value)`
	}
	if _, err := ext.ExecContext(ctx, ext.Rebind(q), name, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ListSettings returns every stored setting.
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT name, value FROM settings ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Value
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Bulk import
// ---------------------------------------------------------------------------

// Batch is a set of records written together by Import.
type Batch struct {
	Apps     []model.App
	Keys     []model.LicenseKey
	Settings map[string]string
}

// Import writes a batch in one transaction. With replace set, all existing
// apps and keys are removed first. Any failure rolls the whole batch back.
func (s *Store) Import(ctx context.Context, batch Batch, replace bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM license_keys"); err != nil {
			return fmt.Errorf("clear license keys: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM apps"); err != nil {
			return fmt.Errorf("clear apps: %w", err)
		}
	}

	for i := range batch.Apps {
		if err := insertApp(ctx, tx, &batch.Apps[i]); err != nil {
			return fmt.Errorf("import app %q: %w", batch.Apps[i].Name, err)
		}
	}
	for i := range batch.Keys {
		if err := insertKey(ctx, tx, &batch.Keys[i]); err != nil {
			return fmt.Errorf("import key %q: %w", batch.Keys[i].Key, err)
		}
	}
	for name, value := range batch.Settings {
		if err := s.setSetting(ctx, tx, name, value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashSecret returns the hex-encoded SHA-256 hash of a raw app secret.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

func requireRow(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
