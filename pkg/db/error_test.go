package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type uniqueRow struct {
	ID   int64  `gorm:"primaryKey"`
	Code string `gorm:"uniqueIndex"`
}

func TestIsDuplicateKeyErrSQLite(t *testing.T) {
	conn, err := NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&uniqueRow{}))

	require.NoError(t, conn.Create(&uniqueRow{ID: 1, Code: "A"}).Error)

	err = conn.Create(&uniqueRow{ID: 2, Code: "A"}).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyErr(err))

	err = conn.Create(&uniqueRow{ID: 1, Code: "B"}).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyErr(err))
}

func TestIsDuplicateKeyErrMessages(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "ux_billing_summaries" (SQLSTATE 23505)`)))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062 (23000): Duplicate entry 'A' for key 'code'")))
	assert.True(t, IsDuplicateKeyErr(errors.New("constraint failed: UNIQUE constraint failed: unique_rows.code (2067)")))

	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(gorm.ErrRecordNotFound))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}
