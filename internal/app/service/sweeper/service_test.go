package sweeper

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

	"github.com/fatflowers/teller/internal/app/service/subscription"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/types"
)

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	silent := gormlogger.New(log.New(io.Discard, "", log.LstdFlags), gormlogger.Config{LogLevel: gormlogger.Silent})
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, DriverName: "postgres"}), &gorm.Config{Logger: silent})
	require.NoError(t, err)
	return db, mock
}

// stubIngestor flips event status per a scripted outcome map.
type stubIngestor struct {
	outcomes map[string]types.WebhookEventStatus
	calls    int
}

func (s *stubIngestor) Ingest(context.Context, types.PaymentProvider, string, string, []byte) (*models.WebhookEvent, error) {
	panic("not used")
}
func (s *stubIngestor) Dispatch(_ context.Context, event *models.WebhookEvent) error {
	s.calls++
	event.Status = s.outcomes[event.EventID]
	return nil
}
func (s *stubIngestor) GetEvent(context.Context, string) (*models.WebhookEvent, error) {
	panic("not used")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Sweep = config.SweepConfig{
		PaymentRetentionDays: 90,
		WebhookRetentionDays: 30,
		WebhookRetryWindow:   time.Hour,
		WebhookRetryBatch:    50,
		ExpiryReminderDays:   3,
	}
	return cfg
}

func newTestService(t *testing.T, ingestor *stubIngestor) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newTestDB(t)
	cfg := testConfig()
	subSvc := subscription.NewService(cfg, zap.NewNop().Sugar(), db)
	return NewService(cfg, zap.NewNop().Sugar(), db, ingestor, subSvc), mock
}

func TestCleanupWebhookEventsDeletesTerminalOnly(t *testing.T) {
	svc, mock := newTestService(t, &stubIngestor{})

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "webhook_events"`).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	res, err := svc.CleanupWebhookEvents(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupPaymentsNothingToDo(t *testing.T) {
	svc, mock := newTestService(t, &stubIngestor{})

	mock.ExpectQuery(`SELECT "id" FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	res, err := svc.CleanupPayments(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupPaymentsCascadesAttempts(t *testing.T) {
	svc, mock := newTestService(t, &stubIngestor{})

	mock.ExpectQuery(`SELECT "id" FROM "payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("pay-1").AddRow("pay-2"))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "payment_attempts"`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM "payments"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	res, err := svc.CleanupPayments(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Scanned)
	require.Equal(t, int64(2), res.Affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryFailedWebhooksCountsOutcomes(t *testing.T) {
	ingestor := &stubIngestor{outcomes: map[string]types.WebhookEventStatus{
		"evt_1": types.WebhookEventStatusProcessed,
		"evt_2": types.WebhookEventStatusFailed,
	}}
	svc, mock := newTestService(t, ingestor)

	// Only recent failures (and stuck pendings) are eligible; old ones
	// stay put for manual review.
	mock.ExpectQuery(`SELECT \* FROM "webhook_events" WHERE status IN \(\$1,\$2\) AND created_at >= \$3 AND created_at <= \$4`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "event_type", "status", "data"}).
			AddRow("we-1", "evt_1", types.EventTypePaymentSucceeded, string(types.WebhookEventStatusFailed), []byte(`{}`)).
			AddRow("we-2", "evt_2", types.EventTypePaymentSucceeded, string(types.WebhookEventStatusFailed), []byte(`{}`)))

	res, err := svc.RetryFailedWebhooks(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Scanned)
	require.Equal(t, int64(1), res.Affected)
	require.Equal(t, int64(1), res.Failed)
	require.Equal(t, 2, ingestor.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExpiryRemindersListsCandidates(t *testing.T) {
	svc, mock := newTestService(t, &stubIngestor{})

	mock.ExpectQuery(`SELECT .* FROM "subscriptions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "plan_id", "status"}).
			AddRow("sub-1", "u1", "monthly", string(types.SubscriptionStatusActive)))

	res, subs, err := svc.ExpiryReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Affected)
	require.Len(t, subs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
