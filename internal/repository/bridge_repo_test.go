package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"system_bridge/internal/models"
	"system_bridge/internal/repository"
	sqlitedb "system_bridge/internal/repository/db"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestBridgeSQLite_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"key", "name", "host", "port", "api_key"}).
		AddRow("u-1", "alpha (10.0.0.2)", "10.0.0.2", 9170, "").
		AddRow("u-2", "beta (10.0.0.3)", "10.0.0.3", 9170, "secret")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT key, name, host, port, api_key FROM bridges ORDER BY")).
		WillReturnRows(rows)

	got, err := repository.NewBridgeSQLite(db).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Configured() || !got[1].Configured() {
		t.Fatalf("configured flags wrong: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBridgeSQLite_Get_NotFoundReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("FROM bridges WHERE key = ?")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	b, err := repository.NewBridgeSQLite(db).Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if b != nil {
		t.Fatalf("expected nil bridge, got %+v", b)
	}
}

func TestBridgeSQLite_UpsertDiscovered_DoesNotTouchAPIKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT(key) DO UPDATE SET")).
		WithArgs("u-1", "alpha (10.0.0.2)", "10.0.0.2", 9170).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repository.NewBridgeSQLite(db).UpsertDiscovered(context.Background(), models.Bridge{
		Key: "u-1", Name: "alpha (10.0.0.2)", Host: "10.0.0.2", Port: 9170, APIKey: "ignored",
	})
	if err != nil {
		t.Fatalf("UpsertDiscovered: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBridgeSQLite_Delete_ReportsMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bridges WHERE key = ?")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repository.NewBridgeSQLite(db).Delete(context.Background(), "gone")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok {
		t.Fatal("expected false for missing row")
	}
}

func TestBridgeSQLite_Create_WrapsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	boom := errors.New("constraint failed")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bridges")).WillReturnError(boom)

	err = repository.NewBridgeSQLite(db).Create(context.Background(), models.Bridge{Key: "k"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// Against a real SQLite file: repeated discovery of one uuid keeps one row
// and preserves the api key a user supplied in between.
func TestBridgeSQLite_RediscoveryIsUpsert(t *testing.T) {
	conn, err := sqlitedb.InitDB(filepath.Join(t.TempDir(), "bridges.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer func() { _ = conn.Close() }()

	repo := repository.NewBridgeSQLite(conn)
	ctx := context.Background()

	first := models.Bridge{Key: "peer-uuid", Name: "desk (10.0.0.5)", Host: "10.0.0.5", Port: 9170}
	if err := repo.UpsertDiscovered(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	withKey := first
	withKey.APIKey = "peer-secret"
	if err := repo.Save(ctx, withKey); err != nil {
		t.Fatalf("save: %v", err)
	}

	moved := models.Bridge{Key: "peer-uuid", Name: "desk (10.0.0.9)", Host: "10.0.0.9", Port: 9171}
	if err := repo.UpsertDiscovered(ctx, moved); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one row, got %d: %+v", len(all), all)
	}
	got := all[0]
	if got.Host != "10.0.0.9" || got.Port != 9171 || got.Name != "desk (10.0.0.9)" {
		t.Fatalf("addressing not refreshed: %+v", got)
	}
	if got.APIKey != "peer-secret" {
		t.Fatalf("api key lost on rediscovery: %+v", got)
	}
}
