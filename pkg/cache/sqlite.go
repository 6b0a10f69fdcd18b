package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version. Bump it when adding
// migrations.
const CurrentSchemaVersion = 1

// SQLiteStore persists recipes in a single SQLite file so the cache survives
// restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates, if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.Wrap(err, "failed to create cache directory")
		}
	}

	// pragmas in the DSN apply to every pooled connection
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open recipe database")
	}

	if err := verifyWALMode(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("Opened sqlite recipe cache")
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS recipes (
		  fingerprint   TEXT PRIMARY KEY,
		  payload_json  TEXT NOT NULL,
		  created_at_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_recipes_created_at
		ON recipes(created_at_ms DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return errors.Wrap(err, "migration 1 failed")
		}
		if _, err := db.Exec("PRAGMA user_version = 1;"); err != nil {
			return errors.Wrap(err, "failed to set user_version")
		}
	}

	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to verify journal mode")
	}
	if journalMode != "wal" {
		return errors.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, errors.Wrap(err, "failed to get user_version")
	}
	return version, nil
}

// SchemaVersion returns the user_version of the open database.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	return userVersion(s.db)
}

func (s *SQLiteStore) Get(ctx context.Context, fingerprint string) (*recipes.Recipe, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload_json FROM recipes WHERE fingerprint = ?", fingerprint,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to read recipe %s", fingerprint)
	}

	recipe := &recipes.Recipe{}
	if err := json.Unmarshal([]byte(payload), recipe); err != nil {
		return nil, false, errors.Wrapf(err, "stored recipe %s is corrupt", fingerprint)
	}
	return recipe, true, nil
}

func (s *SQLiteStore) PutIfAbsent(ctx context.Context, fingerprint string, recipe *recipes.Recipe) (bool, error) {
	payload, err := json.Marshal(recipe)
	if err != nil {
		return false, errors.Wrap(err, "failed to encode recipe")
	}

	createdAt := recipe.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO recipes (fingerprint, payload_json, created_at_ms) VALUES (?, ?, ?) ON CONFLICT(fingerprint) DO NOTHING",
		fingerprint, string(payload), createdAt.UnixMilli(),
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to store recipe %s", fingerprint)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*recipes.Recipe, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload_json FROM recipes ORDER BY created_at_ms DESC, fingerprint ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recipes")
	}
	defer func() {
		_ = rows.Close()
	}()

	ret := []*recipes.Recipe{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "failed to scan recipe")
		}
		recipe := &recipes.Recipe{}
		if err := json.Unmarshal([]byte(payload), recipe); err != nil {
			return nil, errors.Wrap(err, "stored recipe is corrupt")
		}
		ret = append(ret, recipe)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
