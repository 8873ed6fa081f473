package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const consumer = "storefront-payment-succeeded"

func TestGetLastSequence(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT last_sequence\s+FROM consumer_checkpoints`).
		WithArgs(consumer, "order-1").
		WillReturnRows(pgxmock.NewRows([]string{"last_sequence"}).AddRow(int64(7)))
	mock.ExpectQuery(`SELECT last_sequence`).
		WithArgs(consumer, "order-2").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT last_sequence`).
		WithArgs(consumer, "order-3").
		WillReturnError(errors.New("boom"))

	last, ok, err := repo.GetLastSequence(ctx, consumer, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), last)

	_, ok, err = repo.GetLastSequence(ctx, consumer, "order-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = repo.GetLastSequence(ctx, consumer, "order-3")
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLastSequence_WithTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO consumer_checkpoints .* WHERE consumer_checkpoints.last_sequence < EXCLUDED.last_sequence`).
		WithArgs(consumer, "order-1", int64(8)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	repo := NewRepository(mock).WithTx(tx)
	require.NoError(t, repo.UpsertLastSequence(ctx, consumer, "order-1", 8))
	require.NoError(t, tx.Commit(ctx))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLastSequence_RejectsNonPositive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	err = NewRepository(mock).UpsertLastSequence(context.Background(), consumer, "order-1", 0)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
