package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestSQLBackendPopLosesRaceCleanly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewSQLBackend(db, "postgres")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT v FROM kv_entries WHERE k = $1`)).
		WithArgs("transfer_a").
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow([]byte(`{}`)))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kv_entries WHERE k = $1`)).
		WithArgs("transfer_a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err = b.Pop(context.Background(), "transfer_a")
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendPopCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewSQLBackend(db, "mysql")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT v FROM kv_entries WHERE k = ?`)).
		WithArgs("transfer_b").
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow([]byte(`payload`)))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM kv_entries WHERE k = ?`)).
		WithArgs("transfer_b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	v, err := b.Pop(context.Background(), "transfer_b")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendKeysEscapesPrefix(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewSQLBackend(db, "sqlite3")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT k FROM kv_entries WHERE k LIKE ? ESCAPE '!'`)).
		WithArgs(`transfer!_%`).
		WillReturnRows(sqlmock.NewRows([]string{"k"}).AddRow("transfer_1").AddRow("transfer_2"))

	keys, err := b.Keys(context.Background(), "transfer_")
	require.NoError(t, err)
	require.Equal(t, []string{"transfer_1", "transfer_2"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendSetWrapsDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	b := NewSQLBackend(db, "postgres")
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO kv_entries (k, v, updated_at) VALUES ($1, $2, $3)`)).
		WillReturnError(errors.New("read-only transaction"))

	s := New(b, 0)
	err = s.SetFlag(context.Background(), "welcomed")
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, "flag", serr.Op)
}
