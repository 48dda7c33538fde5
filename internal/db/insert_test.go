package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestCopyFrom(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectCopyFrom(pgx.Identifier{"seen_markers"}, []string{"org_id", "url"}).
		WillReturnResult(2)

	n, err := CopyFrom(context.Background(), mock, "seen_markers", []string{"org_id", "url"},
		[][]any{{"org-1", "https://a"}, {"org-1", "https://b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFromEmptyRows(t *testing.T) {
	mock := newMockPool(t)

	n, err := CopyFrom(context.Background(), mock, "seen_markers", []string{"org_id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkInsertIgnore(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE _tmp_insert_seen_markers`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_insert_seen_markers"}, []string{"org_id", "url"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO seen_markers .* ON CONFLICT \(org_id, url\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkInsertIgnore(context.Background(), mock, "seen_markers",
		[]string{"org_id", "url"}, []string{"org_id", "url"},
		[][]any{{"org-1", "https://a"}, {"org-1", "https://a"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertIgnoreValidation(t *testing.T) {
	mock := newMockPool(t)

	_, err := BulkInsertIgnore(context.Background(), mock, "t", nil, []string{"k"}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns")

	_, err = BulkInsertIgnore(context.Background(), mock, "t", []string{"c"}, nil, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys")

	n, err := BulkInsertIgnore(context.Background(), mock, "t", []string{"c"}, []string{"k"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
