// Package preferences persists dashboard UI settings in a local sqlite
// file. Values are JSON documents, optionally sealed with AES-GCM.
package preferences

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"whatsbot/internal/errors"
	"whatsbot/internal/retry"
	"whatsbot/internal/security"
	"whatsbot/internal/validation"
)

//go:embed schema.sql
var schema string

// Well-known preference keys.
const (
	KeyNotifications = "notifications"
	KeyAIDisplay     = "show_ai_status"
	KeyTheme         = "theme"
	KeyLocale        = "locale"
)

// SecretEnv names the variable holding the encryption secret.
const SecretEnv = "BOTADMIN_PREFS_KEY"

const maxKeyLength = 128

// ErrNotFound is returned by Raw when a key is unset.
var ErrNotFound = errors.New(errors.ErrCodeNotFound, "preference not set")

// Store is a key/value store of JSON preferences.
type Store struct {
	db     *sql.DB
	enc    *encryptor
	logger *logrus.Logger
	retry  retry.BackoffConfig
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	secret    string
	secretSet bool
	logger    *logrus.Logger
}

// WithSecret enables encryption with secret instead of reading SecretEnv.
// An empty secret disables encryption.
func WithSecret(secret string) Option {
	return func(o *storeOptions) {
		o.secret = secret
		o.secretSet = true
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// Open opens or creates the preferences database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := security.ValidateFilePath(path); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "invalid preferences path")
	}

	o := storeOptions{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.secretSet {
		o.secret = os.Getenv(SecretEnv)
	}

	enc, err := newEncryptor(o.secret)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to initialize encryptor")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.NewStorageError("create directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewStorageError("open", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.NewStorageError("ping", fmt.Errorf("%w (close error: %v)", err, closeErr))
		}
		return nil, errors.NewStorageError("ping", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.NewStorageError("initialize schema", fmt.Errorf("%w (close error: %v)", err, closeErr))
		}
		return nil, errors.NewStorageError("initialize schema", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		o.logger.WithError(err).Debug("Could not restrict preferences file permissions")
	}

	return &Store{
		db:     db,
		enc:    enc,
		logger: o.logger,
		retry: retry.BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2,
			MaxAttempts:  3,
		},
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Encrypted reports whether values are sealed at rest.
func (s *Store) Encrypted() bool {
	return s.enc.enabled()
}

// Raw returns the stored JSON for key.
func (s *Store) Raw(ctx context.Context, key string) (json.RawMessage, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var stored string
	var encrypted bool
	err := s.withRetry(ctx, "get", func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT value, encrypted FROM preferences WHERE key = ?`, key).Scan(&stored, &encrypted)
	})
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewStorageError("get", err)
	}

	value := stored
	if encrypted {
		if !s.enc.enabled() {
			return nil, errors.New(errors.ErrCodeStorage, "preference is encrypted but no secret is configured").
				WithContext("key", key)
		}
		if value, err = s.enc.decrypt(key, stored); err != nil {
			return nil, errors.NewStorageError("decrypt", err)
		}
	}

	if !json.Valid([]byte(value)) {
		return nil, errors.New(errors.ErrCodeDecode, "stored preference is not valid JSON").WithContext("key", key)
	}
	return json.RawMessage(value), nil
}

// Set stores value as JSON under key.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "preference value is not JSON-encodable")
	}
	return s.SetRaw(ctx, key, data)
}

// SetRaw stores an already encoded JSON document under key.
func (s *Store) SetRaw(ctx context.Context, key string, data json.RawMessage) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !json.Valid(data) {
		return errors.NewValidationError("value", "", "preference value must be valid JSON")
	}

	stored, err := s.enc.encrypt(key, string(data))
	if err != nil {
		return errors.NewStorageError("encrypt", err)
	}

	err = s.withRetry(ctx, "set", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO preferences (key, value, encrypted, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				encrypted = excluded.encrypted,
				updated_at = excluded.updated_at`,
			key, stored, s.enc.enabled())
		return err
	})
	if err != nil {
		return errors.NewStorageError("set", err)
	}
	return nil
}

// Remove deletes key. Removing an unset key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := s.withRetry(ctx, "remove", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return errors.NewStorageError("remove", err)
	}
	return nil
}

// Keys lists every stored key in ascending order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM preferences ORDER BY key`)
	if err != nil {
		return nil, errors.NewStorageError("list", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.NewStorageError("list", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageError("list", err)
	}
	return keys, nil
}

// Get returns the preference stored under key decoded as T, or def when it
// is unset or unreadable. Read failures are logged, never returned.
func Get[T any](ctx context.Context, s *Store, key string, def T) T {
	raw, err := s.Raw(ctx, key)
	if err != nil {
		if !stderrors.Is(err, ErrNotFound) {
			s.logger.WithField("key", key).WithError(err).Warn("Error reading preference, using default")
		}
		return def
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		s.logger.WithField("key", key).WithError(err).Warn("Error decoding preference, using default")
		return def
	}
	return value
}

func (s *Store) withRetry(ctx context.Context, operation string, fn func() error) error {
	backoff := retry.NewBackoff(s.retry).WithNotify(func(attempt int, err error, delay time.Duration) {
		s.logger.WithFields(logrus.Fields{
			"operation": operation,
			"attempt":   attempt,
		}).WithError(err).Debug("Retrying preferences operation")
	})
	return backoff.RetryWithPredicate(ctx, fn, isRetryableDBError)
}

// isRetryableDBError reports whether a sqlite error is transient.
func isRetryableDBError(err error) bool {
	if err == nil || stderrors.Is(err, sql.ErrNoRows) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "disk I/O error")
}

func validateKey(key string) error {
	if err := validation.ValidateStringLength(key, "key", 1, maxKeyLength); err != nil {
		return err
	}
	if strings.TrimSpace(key) != key {
		return errors.NewValidationError("key", key, "key must not have surrounding whitespace")
	}
	return nil
}
