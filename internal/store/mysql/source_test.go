package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const activeQuery = "SELECT server_url, instance_name FROM dispatch_configs WHERE api_type = ? AND enabled = TRUE ORDER BY updated_at DESC LIMIT 1"

func newMockSource(t *testing.T) (*Source, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, ""), mock
}

func TestActiveConfig(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(regexp.QuoteMeta(activeQuery)).
		WithArgs("evolution").
		WillReturnRows(sqlmock.NewRows([]string{"server_url", "instance_name"}).
			AddRow(" https://gw.example.com/ ", "sales"))

	cfg, err := src.ActiveConfig(context.Background(), "evolution")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "https://gw.example.com/", cfg.ServerURL)
	assert.Equal(t, "sales", cfg.Instance)
	assert.Equal(t, "evolution", cfg.APIType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveConfigNullInstance(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(regexp.QuoteMeta(activeQuery)).
		WithArgs("evolution").
		WillReturnRows(sqlmock.NewRows([]string{"server_url", "instance_name"}).
			AddRow("https://gw.example.com", nil))

	cfg, err := src.ActiveConfig(context.Background(), "evolution")
	require.NoError(t, err)
	assert.Empty(t, cfg.Instance)
}

func TestActiveConfigNoRows(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(regexp.QuoteMeta(activeQuery)).
		WithArgs("evolution").
		WillReturnRows(sqlmock.NewRows([]string{"server_url", "instance_name"}))

	cfg, err := src.ActiveConfig(context.Background(), "evolution")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestActiveConfigQueryError(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectQuery(regexp.QuoteMeta(activeQuery)).
		WithArgs("evolution").
		WillReturnError(errors.New("table missing"))

	_, err := src.ActiveConfig(context.Background(), "evolution")
	assert.ErrorContains(t, err, "table missing")
}

func TestEnsureSchema(t *testing.T) {
	src, mock := newMockSource(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS dispatch_configs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, src.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRejectsBadInput(t *testing.T) {
	_, err := Open(context.Background(), "user:pass@tcp(localhost:3306)/db", "configs; DROP TABLE x")
	assert.Error(t, err)

	_, err = Open(context.Background(), "not a dsn", "")
	assert.Error(t, err)
}
