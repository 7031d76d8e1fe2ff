package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewFromRDB(db)
	ctx := context.Background()

	mock.ExpectSet("terms:a", "value", time.Hour).SetVal("OK")
	mock.ExpectGet("terms:a").SetVal("value")
	mock.ExpectGet("terms:b").RedisNil()

	require.NoError(t, c.Set(ctx, "terms:a", "value", time.Hour))
	got, err := c.Get(ctx, "terms:a")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	_, err = c.Get(ctx, "terms:b")
	assert.True(t, IsNilError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlushByPatternPages(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewFromRDB(db)

	mock.ExpectScan(0, "terms:*", 100).SetVal([]string{"terms:a", "terms:b"}, 7)
	mock.ExpectDel("terms:a", "terms:b").SetVal(2)
	mock.ExpectScan(7, "terms:*", 100).SetVal([]string{"terms:c"}, 0)
	mock.ExpectDel("terms:c").SetVal(1)

	deleted, err := c.FlushByPattern(context.Background(), "terms:*")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlushByPatternScanError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewFromRDB(db)

	mock.ExpectScan(0, "terms:*", 100).SetErr(errors.New("connection reset"))

	_, err := c.FlushByPattern(context.Background(), "terms:*")
	assert.ErrorContains(t, err, "scanning pattern terms:*")
}

func TestIsNilError(t *testing.T) {
	assert.False(t, IsNilError(nil))
	assert.False(t, IsNilError(errors.New("other")))
}
