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

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "entries", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"entries"}, []string{"id", "payload"}).WillReturnResult(3)

	rows := [][]any{{"a", "{}"}, {"b", "{}"}, {"c", "{}"}}
	n, err := CopyFrom(context.Background(), mock, "entries", []string{"id", "payload"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"entries"}, []string{"id", "payload"}).
		WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"a", "{}"}}
	_, err = CopyFrom(context.Background(), mock, "entries", []string{"id", "payload"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO entries")
	assert.NoError(t, mock.ExpectationsWereMet())
}
