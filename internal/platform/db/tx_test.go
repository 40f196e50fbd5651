package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type stubTx struct {
	pgx.Tx
	commits   *int
	rollbacks *int
}

func (t stubTx) Commit(ctx context.Context) error {
	*t.commits++
	return nil
}

func (t stubTx) Rollback(ctx context.Context) error {
	*t.rollbacks++
	return nil
}

type stubBeginner struct {
	begins    int
	commits   int
	rollbacks int
}

func (b *stubBeginner) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	return stubTx{commits: &b.commits, rollbacks: &b.rollbacks}, nil
}

func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	pool := &stubBeginner{}

	err := WithTx(context.Background(), pool, func(tx pgx.Tx) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 1, pool.begins)
	require.Equal(t, 1, pool.commits)
}

func TestWithTxRetriesSerializationFailure(t *testing.T) {
	pool := &stubBeginner{}

	attempts := 0
	err := WithTx(context.Background(), pool, func(tx pgx.Tx) error {
		attempts++
		if attempts < 3 {
			return serializationFailure()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, 1, pool.commits)
}

func TestWithTxGivesUpAfterMaxAttempts(t *testing.T) {
	pool := &stubBeginner{}

	attempts := 0
	err := WithTx(context.Background(), pool, func(tx pgx.Tx) error {
		attempts++
		return serializationFailure()
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, "40001", pgErr.Code)
	require.Equal(t, txAttempts, attempts)
	require.Equal(t, 0, pool.commits)
}

func TestWithTxDoesNotRetryOrdinaryErrors(t *testing.T) {
	pool := &stubBeginner{}
	boom := errors.New("boom")

	attempts := 0
	err := WithTx(context.Background(), pool, func(tx pgx.Tx) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, attempts)
	require.Equal(t, 0, pool.commits)
	require.Equal(t, 1, pool.rollbacks)
}
