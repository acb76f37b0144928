package db

import (
	"testing"

	"github.com/smallbiznis/pricedesk/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type lockedRow struct {
	ID int64
}

func TestForUpdateSkipsLockingOnSQLite(t *testing.T) {
	conn := dbtest.Open(t, &lockedRow{})

	var row lockedRow
	stmt := ForUpdate(conn).Session(&gorm.Session{DryRun: true}).First(&row).Statement
	assert.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
}
