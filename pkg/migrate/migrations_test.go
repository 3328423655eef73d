package migrate_test

import (
	"io/fs"
	"path"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Embedded, path.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration found", suffix)
	}
	data, err := fs.ReadFile(migrate.Embedded, matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func requireStatements(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded, "migrations"); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
}

func TestLedgerMigrationGuardsBalances(t *testing.T) {
	requireStatements(t, readMigration(t, "create_users_and_ledger"), []string{
		"CREATE TABLE IF NOT EXISTS accounts",
		"CONSTRAINT accounts_balance_non_negative CHECK (balance >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS accounts_user_id_key ON accounts (user_id)",
		"CONSTRAINT ledger_transactions_amount_non_negative CHECK (amount >= 0)",
		"DROP TABLE IF EXISTS ledger_transactions",
	})
}

func TestOrdersMigrationEnforcesSingleCart(t *testing.T) {
	requireStatements(t, readMigration(t, "create_orders"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS orders_one_unpaid_per_buyer ON orders (buyer_id) WHERE paid_status = false",
		"CREATE UNIQUE INDEX IF NOT EXISTS order_items_order_product_key ON order_items (order_id, product_id)",
		"product_id uuid REFERENCES products(id) ON DELETE SET NULL",
		"CONSTRAINT order_items_quantity_positive CHECK (quantity >= 1)",
		"DROP TABLE IF EXISTS orders",
	})
}

var (
	createTableRe = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)
	cascadeRe     = regexp.MustCompile(`REFERENCES (\w+)\(\w+\) ON DELETE CASCADE`)
)

// cascadeParents maps each table to the tables whose deletes cascade into it.
func cascadeParents(t *testing.T) map[string][]string {
	t.Helper()
	files, err := fs.Glob(migrate.Embedded, path.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	parents := make(map[string][]string)
	for _, name := range files {
		data, err := fs.ReadFile(migrate.Embedded, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		up, _, _ := strings.Cut(string(data), "-- +goose Down")
		for _, table := range createTableRe.FindAllStringSubmatch(up, -1) {
			for _, ref := range cascadeRe.FindAllStringSubmatch(table[2], -1) {
				parents[table[1]] = append(parents[table[1]], ref[1])
			}
		}
	}
	return parents
}

func cascadesFrom(parents map[string][]string, table, root string, seen map[string]bool) bool {
	if seen[table] {
		return false
	}
	seen[table] = true
	for _, parent := range parents[table] {
		if parent == root || cascadesFrom(parents, parent, root, seen) {
			return true
		}
	}
	return false
}

func TestDeletingUsersNeverCascadesIntoMoneyTables(t *testing.T) {
	parents := cascadeParents(t)
	if len(parents) == 0 {
		t.Fatal("expected cascading references in the schema")
	}
	for _, table := range []string{"accounts", "ledger_transactions", "orders", "order_items", "reconciliation_issues"} {
		if cascadesFrom(parents, table, "users", map[string]bool{}) {
			t.Errorf("deleting a user cascades into %s", table)
		}
	}
	if !cascadesFrom(parents, "wishlist_items", "users", map[string]bool{}) {
		t.Error("expected wishlist_items to cascade from users")
	}
}

func TestCatalogMigrationContainsSchemas(t *testing.T) {
	requireStatements(t, readMigration(t, "create_catalog"), []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE TABLE IF NOT EXISTS product_tags",
		"CONSTRAINT product_reviews_rating_range CHECK (rating BETWEEN 1 AND 5)",
		"CREATE INDEX IF NOT EXISTS products_status_idx",
	})
}

func TestValidateFSRejectsBadNames(t *testing.T) {
	fsys := fstest.MapFS{
		"m/001_bad.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
	}
	if err := migrate.ValidateFS(fsys, "m"); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestValidateFSRejectsMissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20260101000000_only_up.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
	}
	if err := migrate.ValidateFS(fsys, "m"); err == nil {
		t.Fatal("expected missing down marker error")
	}
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"m/20260101000000_orders.sql":  {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"m/20260101000000_wallets.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"m/20260102000000_orders.sql":  {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		"m/README.md":                  {Data: []byte("notes")},
	}
	err := migrate.ValidateFS(fsys, "m")
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"duplicate migration version", "duplicate migration name", "Down section before Up"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateFSRejectsEmptyDir(t *testing.T) {
	fsys := fstest.MapFS{"m/README.md": {Data: []byte("notes")}}
	if err := migrate.ValidateFS(fsys, "m"); err == nil {
		t.Fatal("expected error for a directory without migrations")
	}
}
