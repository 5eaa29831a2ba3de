package fulfillment

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/marketplace-backend/internal/domain/shared"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestClaimKey_SkipsLockedRowsOnPostgres(t *testing.T) {
	db, mock := newMockDB(t)
	buyer := buyerID

	mock.ExpectQuery(`SELECT \* FROM "digital_keys" WHERE product_id = \$1 AND is_used = \$2 ORDER BY id.* FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "key_code", "is_used"}).
			AddRow(7, gameID, "KEY-7", false))
	mock.ExpectExec(`UPDATE "digital_keys" SET .* WHERE id = \$\d+ AND is_used = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key, err := ClaimKey(db, gameID, &buyer, time.Now())
	require.NoError(t, err)
	assert.Equal(t, uint(7), key.ID)
	assert.True(t, key.IsUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimKey_LostRaceIsOutOfStock(t *testing.T) {
	db, mock := newMockDB(t)
	buyer := buyerID

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "key_code", "is_used"}).
			AddRow(7, gameID, "KEY-7", false))
	mock.ExpectExec(`UPDATE "digital_keys"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := ClaimKey(db, gameID, &buyer, time.Now())
	assert.ErrorIs(t, err, shared.ErrKeysOutOfStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimKey_NoRowsIsOutOfStock(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "key_code", "is_used"}))

	_, err := ClaimKey(db, gameID, nil, time.Now())
	assert.ErrorIs(t, err, shared.ErrKeysOutOfStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}
