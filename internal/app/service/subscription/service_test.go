package subscription

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/types"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	silent := gormlogger.New(log.New(io.Discard, "", log.LstdFlags), gormlogger.Config{LogLevel: gormlogger.Silent})
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, DriverName: "postgres"}), &gorm.Config{Logger: silent})
	require.NoError(t, err)

	return NewService(&config.Config{}, zap.NewNop().Sugar(), db), mock
}

func TestPinPostRequiresActiveSubscription(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "plan_id", "status"}))
	mock.ExpectRollback()

	_, err := svc.PinPost(context.Background(), "u1", "post-1")
	require.ErrorIs(t, err, errs.ErrStateConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPinPostRejectsClosedEntitlementWindow(t *testing.T) {
	svc, mock := newTestService(t)

	start := time.Now().Add(-48 * time.Hour)
	end := time.Now().Add(-time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "plan_id", "status", "start_date", "end_date"}).
			AddRow("sub-1", "u1", "monthly", string(types.SubscriptionStatusActive), start, end))
	mock.ExpectRollback()

	_, err := svc.PinPost(context.Background(), "u1", "post-1")
	require.ErrorIs(t, err, errs.ErrStateConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPinPostRejectsEmptyPostID(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.PinPost(context.Background(), "u1", "")
	require.ErrorIs(t, err, errs.ErrValidation)
}
