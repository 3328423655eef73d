package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:dbclient?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)

	var before int64
	if err := db.Model(&testModel{}).Count(&before).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicky"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var after int64
	if err := db.Model(&testModel{}).Count(&after).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if after != before {
		t.Fatalf("expected panic rollback, before=%d after=%d", before, after)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "accounts_user_id_key"}
	if !IsUniqueViolation(pgErr, "") {
		t.Fatal("expected pg unique violation to match")
	}
	if !IsUniqueViolation(pgErr, "accounts_user_id_key") {
		t.Fatal("expected constraint name to match")
	}
	if IsUniqueViolation(pgErr, "other_key") {
		t.Fatal("expected constraint mismatch")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: tags.slug"), "") {
		t.Fatal("expected sqlite unique violation to match")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: products.sku"), "products_sku_key") {
		t.Fatal("expected sqlite column to map onto the postgres constraint name")
	}
	if IsUniqueViolation(errors.New("UNIQUE constraint failed: products.slug"), "products_sku_key") {
		t.Fatal("expected sqlite constraint mismatch")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is never a violation")
	}
}

func TestIsUniqueViolationOnSQLiteInsert(t *testing.T) {
	db := newTestDB(t)
	if err := db.Exec("CREATE TABLE IF NOT EXISTS skus (sku TEXT UNIQUE)").Error; err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := db.Exec("INSERT INTO skus (sku) VALUES ('A-1')").Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.Exec("INSERT INTO skus (sku) VALUES ('A-1')").Error
	if !IsUniqueViolation(err, "skus_sku_key") {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("unique violations are not retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) || !IsRetryable(&pgconn.PgError{Code: "40P01"}) {
		t.Fatal("expected serialization failures and deadlocks to be retryable")
	}
	if !IsRetryable(sqlite3.Error{Code: sqlite3.ErrBusy}) {
		t.Fatal("expected busy sqlite to be retryable")
	}
	if IsRetryable(errors.New("boom")) || IsRetryable(nil) {
		t.Fatal("plain errors are not retryable")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("expected foreign key violation")
	}
}

func TestWithTxRetriesConflicts(t *testing.T) {
	client := Wrap(newTestDB(t))
	attempts := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if attempts < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return tx.Create(&testModel{Name: "retried"}).Error
	})
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}

	attempts = 0
	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})
	if !IsRetryable(err) || attempts != maxTxAttempts {
		t.Fatalf("expected %d attempts ending in conflict, got %d err=%v", maxTxAttempts, attempts, err)
	}
}

func TestDialectorFor(t *testing.T) {
	if d, err := dialectorFor(config.DBConfig{DSN: "file::memory:", Driver: "sqlite"}); err != nil || d.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %v err=%v", d, err)
	}
	if d, err := dialectorFor(config.DBConfig{DSN: "postgres://x"}); err != nil || d.Name() != "postgres" {
		t.Fatalf("expected postgres default, got %v err=%v", d, err)
	}
	if _, err := dialectorFor(config.DBConfig{DSN: "x", Driver: "mysql"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}
