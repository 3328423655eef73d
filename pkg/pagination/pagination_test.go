package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC), ID: uuid.New()}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || out.ID != in.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", out, in)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor(""); err != nil || c != nil {
		t.Fatalf("empty cursor should be nil, got %+v err=%v", c, err)
	}
	if _, err := ParseCursor("not-base64!"); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
	legacy := base64.RawURLEncoding.EncodeToString([]byte("v0:1:" + uuid.NewString()))
	if _, err := ParseCursor(legacy); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("expected version mismatch to fail, got %v", err)
	}
}

func TestEncodeCursorIsQuerySafe(t *testing.T) {
	token := EncodeCursor(Cursor{CreatedAt: time.Now(), ID: uuid.New()})
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("cursor %q needs escaping in a query string", token)
	}
}

func TestAfterScope(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{DryRun: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	var rows []map[string]any

	stmt := db.Table("orders").Scopes(After(nil, "")).Find(&rows).Statement
	if sql := stmt.SQL.String(); strings.Contains(sql, "WHERE") || !strings.Contains(sql, "ORDER BY created_at DESC,id DESC") {
		t.Fatalf("unexpected first page sql: %s", sql)
	}

	cursor := &Cursor{CreatedAt: time.Now().UTC(), ID: uuid.New()}
	stmt = db.Table("wishlist_items").Scopes(After(cursor, "wishlist_items")).Find(&rows).Statement
	sql := stmt.SQL.String()
	if !strings.Contains(sql, "wishlist_items.created_at < ?") || !strings.Contains(sql, "wishlist_items.id < ?") {
		t.Fatalf("expected qualified keyset predicate, got %s", sql)
	}
	if len(stmt.Vars) != 3 {
		t.Fatalf("expected 3 bind vars, got %d", len(stmt.Vars))
	}
}

func TestTrim(t *testing.T) {
	type row struct {
		at time.Time
		id uuid.UUID
	}
	now := time.Now().UTC()
	rows := []row{{now, uuid.New()}, {now.Add(-time.Minute), uuid.New()}, {now.Add(-2 * time.Minute), uuid.New()}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Trim(rows, 2, cursorOf)
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	parsed, err := ParseCursor(next)
	if err != nil || parsed == nil || parsed.ID != rows[1].id {
		t.Fatalf("expected cursor for second row, got %+v err=%v", parsed, err)
	}

	page, next = Trim(rows, 5, cursorOf)
	if len(page) != 3 || next != "" {
		t.Fatalf("expected final page without cursor, got %d rows next=%q", len(page), next)
	}
}

func TestNormalizeLimit(t *testing.T) {
	if NormalizeLimit(0) != DefaultLimit || NormalizeLimit(1000) != MaxLimit || NormalizeLimit(7) != 7 {
		t.Fatal("unexpected limit normalization")
	}
}
