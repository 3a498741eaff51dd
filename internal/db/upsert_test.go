package db

import (
	"context"
	"fmt"
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
	t.Cleanup(func() { mock.Close() })
	return mock
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "entities",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_MissingConfig(t *testing.T) {
	rows := [][]any{{"e1"}}

	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "entities", ConflictKeys: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")

	_, err = BulkUpsert(context.TODO(), nil, UpsertConfig{Table: "entities", Columns: []string{"id"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys")
}

func TestBulkUpsert_UpdateOnConflict(t *testing.T) {
	mock := newMockPool(t)

	cols := []string{"id", "entity_type", "external_key"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_entities"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_entities"}, cols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "entities" .* ON CONFLICT \("id"\) DO UPDATE SET "entity_type" = EXCLUDED\."entity_type", "external_key" = EXCLUDED\."external_key"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "entities",
		Columns:      cols,
		ConflictKeys: []string{"id"},
	}, [][]any{
		{"e1", "product", "SKU-1"},
		{"e2", "product", "SKU-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_EmptyUpdateColsDoesNothingOnConflict(t *testing.T) {
	mock := newMockPool(t)

	cols := []string{"id", "entity_type", "external_key", "created_at"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_entities"}, cols).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("entity_type", "external_key"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "entities",
		Columns:      cols,
		ConflictKeys: []string{"entity_type", "external_key"},
		UpdateCols:   []string{},
	}, [][]any{{"e1", "product", "SKU-1", nil}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock := newMockPool(t)

	cols := []string{"id"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_entities"}, cols).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	_, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "entities",
		Columns:      cols,
		ConflictKeys: []string{"id"},
	}, [][]any{{"e1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}
