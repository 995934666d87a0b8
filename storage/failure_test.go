package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/artificer/artifact"
	"github.com/teranos/artificer/errors"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewSQLStore(mockDB, nil), mock
}

func TestPersistBusyIsRetryable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO artifacts").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})
	mock.ExpectRollback()

	err := s.PersistArtifact(context.Background(), artifact.New("Service", "svc"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, "repository.busy", errors.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRollsBackOnChildFailure(t *testing.T) {
	s, mock := newMockStore(t)
	a := artifact.New("Service", "svc")
	a.Properties.Set("owner", "ops")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO artifacts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM artifact_properties").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO artifact_properties").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := s.PersistArtifact(context.Background(), a, nil)
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
	assert.Equal(t, "repository.store", errors.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(sqlite3.Error{Code: sqlite3.ErrLocked})

	err := s.InTx(context.Background(), func(*Tx) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetArtifactQueryFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT uuid, name").WithArgs("u-1").WillReturnError(sql.ErrConnDone)

	_, err := s.GetArtifact(context.Background(), "u-1")
	require.Error(t, err)
	assert.Equal(t, "repository.store", errors.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountFailureSurfacesFromExecute(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(sql.ErrConnDone)

	q := mustCompile(t, "/s-ramp/soa/Service")
	_, err := s.Execute(context.Background(), q, Page{})
	require.Error(t, err)
	assert.Equal(t, errors.KindRepository, errors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
