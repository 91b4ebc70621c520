package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/logang-di/dsx-connect/internal/config"
	"github.com/logang-di/dsx-connect/internal/dclog"
)

// MustApplyBlankTestDbConfig applies a test database configuration to the specified
// config root. The database is guaranteed to be blank and migrated. This method uses a
// temp file so that the database will be eventually cleaned up after the process exits.
// Note that the configuration in the root will be modified for the database and populated
// for the GlobalAESKey if it is not already populated.
//
// To support debugging tests by inspecting the SQLite database, if the
// SQLITE_TEST_DATABASE_PATH env var is set this method uses the database at that path,
// deleting any existing file unless SQLITE_TEST_DATABASE_PATH_CLEAR is set to false.
func MustApplyBlankTestDbConfig(t testing.TB, cfg config.C) (config.C, DB) {
	t.Helper()

	// Optionally load the dotenv file to pick up test database overrides while debugging
	_ = godotenv.Load()

	if cfg == nil {
		cfg = config.FromRoot(&config.Root{})
	}

	root := cfg.GetRoot()
	if root == nil {
		panic("no root in config")
	}

	if root.SystemAuth.GlobalAESKey == nil {
		root.SystemAuth.GlobalAESKey = &config.KeyDataRandomBytes{}
	}

	testName := t.Name()
	if testName != "" {
		testName = testName + "-"
	}

	tempFilePath := os.Getenv("SQLITE_TEST_DATABASE_PATH")
	if tempFilePath != "" {
		clearEnv := os.Getenv("SQLITE_TEST_DATABASE_PATH_CLEAR")
		if clearEnv != "false" {
			_ = os.Remove(tempFilePath)
		}
	} else {
		tempFilePath = filepath.Join(
			os.TempDir(),
			fmt.Sprintf("dsx-connect-tests/db/%s-%d-%s%s.sqlite3", time.Now().Format("2006-01-02T15-04-05"), os.Getpid(), testName, uuid.New().String()),
		)
	}

	dirPath := filepath.Dir(tempFilePath)
	if err := os.MkdirAll(dirPath, os.ModePerm); err != nil {
		t.Fatalf("failed to create sqlite test directory: %v", err)
	}

	if _, err := os.Create(tempFilePath); err != nil {
		t.Fatalf("failed to create sqlite test database: %v", err)
	}

	root.Database = &config.DatabaseSqlite{
		Path: tempFilePath,
	}

	db, err := NewConnectionForRoot(root, dclog.NewNoopLogger())
	if err != nil {
		t.Fatalf("failed to connect sqlite test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.(*service).db.Close()
	})

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate sqlite test database: %v", err)
	}

	return cfg, db
}
