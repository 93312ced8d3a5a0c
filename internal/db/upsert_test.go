package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountsUpsert = UpsertConfig{
	Table:        "list_accounts",
	Columns:      []string{"list_id", "domain", "company_name"},
	ConflictKeys: []string{"list_id", "domain"},
	UpdateCols:   []string{"company_name"},
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, accountsUpsert, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{Table: "t", Columns: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_StagesAndMerges(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_stage_list_accounts"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_list_accounts"}, accountsUpsert.Columns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("list_id", "domain"\) DO UPDATE SET "company_name" = EXCLUDED."company_name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, accountsUpsert, [][]any{
		{"l1", "acme.io", "Acme"},
		{"l1", "beta.com", "Beta"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, accountsUpsert, [][]any{{"l1", "acme.io", "Acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictAction(t *testing.T) {
	assert.Equal(t, "DO NOTHING", conflictAction(nil))
	assert.Equal(t, `DO UPDATE SET "a" = EXCLUDED."a", "b" = EXCLUDED."b"`, conflictAction([]string{"a", "b"}))
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"simple"`, sanitizeTable("simple"))
	assert.Equal(t, `"signals"."leads"`, sanitizeTable("signals.leads"))
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
