package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	contractdomain "github.com/smallbiznis/pricedesk/internal/contract/domain"
	"github.com/smallbiznis/pricedesk/pkg/db/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return gormDB, mock, mockDB
}

func event() *contractdomain.EventDetail {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &contractdomain.EventDetail{
		Base:               model.Base{ID: 10, TenantID: 1, CreatedAt: now, UpdatedAt: now},
		SignatureRequestID: "sr_1",
		RelatedSignatureID: "s_a",
		EventType:          "signature_request_signed",
		EventTime:          "1777636800",
		EventHash:          "abc",
		OccurredAt:         now,
	}
}

func TestInsertEventReportsDuplicates(t *testing.T) {
	t.Run("new delivery", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()

		mock.ExpectExec(`(?s)INSERT INTO event_details .* ON CONFLICT \(event_hash, related_signature_id\) DO NOTHING`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		inserted, err := Provide().InsertEvent(context.Background(), db, event())
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate delivery", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()

		mock.ExpectExec(`INSERT INTO event_details`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		inserted, err := Provide().InsertEvent(context.Background(), db, event())
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLinkEventsOnlyTouchesUnlinkedRows(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	mock.ExpectExec(`UPDATE event_details SET contract_signature_id = \$1\s+WHERE tenant_id = \$2 AND signature_request_id = \$3 AND contract_signature_id IS NULL`).
		WithArgs(int64(20), int64(1), "sr_1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := Provide().LinkEvents(context.Background(), db, snowflake.ID(1), snowflake.ID(20), "sr_1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventProcessed(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE event_details SET processed_at = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(at, at, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, Provide().MarkEventProcessed(context.Background(), db, 10, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
