// Package testutil holds helpers shared by storage-backed tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/localcart/pkg/db"
	"github.com/angelmondragon/localcart/pkg/migrate"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewSQLite opens a private in-memory sqlite database with the cart schema
// applied. The handle is closed when the test ends.
func NewSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := db.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if _, err := migrate.Apply(context.Background(), sqlDB, "sqlite"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return conn
}
