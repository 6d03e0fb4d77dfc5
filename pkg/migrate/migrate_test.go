package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemorySQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	require.NoError(t, ValidateFS(Migrations()))
}

func TestApplyCreatesCartSchema(t *testing.T) {
	ctx := context.Background()
	db := openMemorySQLite(t)

	version, err := Apply(ctx, db, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, int64(20260301090200), version)

	for _, table := range []string{"cart_line_items", "cart_metadata", "local_orders", "local_payments"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoErrorf(t, err, "table %s missing", table)
	}

	again, err := Apply(ctx, db, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, version, again, "re-applying should be a no-op")
}

func TestCartLineItemsRejectsZeroQuantity(t *testing.T) {
	ctx := context.Background()
	db := openMemorySQLite(t)
	_, err := Apply(ctx, db, "sqlite")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO cart_line_items
		(item_id, product_id, title, quantity, unit_price_minor_units, currency_code, last_modified_at)
		VALUES ('a', 'p', 't', 0, 100, 'USD', 1)`)
	require.Error(t, err)
}

func TestGooseDialect(t *testing.T) {
	_, err := GooseDialect("mysql")
	require.Error(t, err)

	d, err := GooseDialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", string(d))
}

func TestCreateSQLMigrationPassesValidation(t *testing.T) {
	dir := t.TempDir()
	path, err := createSQLMigration(dir, "Add Cart Notes!", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "20260501120000_add_cart_notes.sql"), path)

	require.NoError(t, ValidateDir(dir))

	_, err = createSQLMigration(dir, "Add Cart Notes!", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	require.Error(t, err, "existing migration must not be overwritten")
}

func TestValidateDirRejectsNonPortableTypes(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nCREATE TABLE x (payload JSONB);\n-- +goose Down\nDROP TABLE x;\n"
	require.NoError(t, os.WriteFile(dir+"/20260501120000_x.sql", []byte(body), 0o644))

	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jsonb")
}
