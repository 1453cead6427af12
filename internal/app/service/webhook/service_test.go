package webhook

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/teller/internal/app/service/gateway"
	"github.com/fatflowers/teller/internal/app/service/payment"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/config"
	"github.com/fatflowers/teller/pkg/errs"
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

// stubOrchestrator records which payment operations a handler invoked.
type stubOrchestrator struct {
	succeededIDs []string
	failedIDs    []string
	handleCalls  int
	attempts     []*payment.AttemptRecord
	err          error
}

func (s *stubOrchestrator) CreateSubscriptionPayment(context.Context, *payment.CreatePaymentRequest) (*models.Payment, *models.Subscription, error) {
	panic("not used")
}
func (s *stubOrchestrator) InitiateCheckout(context.Context, *payment.CheckoutRequest) (*gateway.CheckoutSession, error) {
	panic("not used")
}
func (s *stubOrchestrator) ApplySuccessfulPayment(_ context.Context, paymentID string) error {
	s.succeededIDs = append(s.succeededIDs, paymentID)
	return s.err
}
func (s *stubOrchestrator) ApplyFailedPayment(_ context.Context, paymentID, _ string) error {
	s.failedIDs = append(s.failedIDs, paymentID)
	return s.err
}
func (s *stubOrchestrator) CancelPayment(context.Context, string, string) error { panic("not used") }
func (s *stubOrchestrator) RefreshFromSession(context.Context, string, string) (*models.Payment, error) {
	panic("not used")
}
func (s *stubOrchestrator) GetPayment(context.Context, string) (*models.Payment, error) {
	panic("not used")
}
func (s *stubOrchestrator) GetUserPayment(context.Context, string, string) (*models.Payment, error) {
	panic("not used")
}
func (s *stubOrchestrator) ListUserPayments(context.Context, string) ([]*models.Payment, error) {
	panic("not used")
}
func (s *stubOrchestrator) ScanPayments(context.Context, *payment.ScanPaymentsRequest) (*payment.ScanPaymentsResponse, error) {
	panic("not used")
}
func (s *stubOrchestrator) SetProviderHandles(_ context.Context, _, _, _, _ string) error {
	s.handleCalls++
	return s.err
}
func (s *stubOrchestrator) RecordAttempt(_ context.Context, rec *payment.AttemptRecord) error {
	s.attempts = append(s.attempts, rec)
	return nil
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock, *stubOrchestrator) {
	t.Helper()
	db, mock := newTestDB(t)
	stub := &stubOrchestrator{}
	svc := NewService(&config.Config{}, zap.NewNop().Sugar(), db, stub).(*Service)
	return svc, mock, stub
}

func TestDispatchUnknownEventTypeIgnored(t *testing.T) {
	svc, mock, stub := newTestService(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "webhook_events"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event := &models.WebhookEvent{
		ID: "we-1", EventID: "evt_1", EventType: "customer.created",
		Status: types.WebhookEventStatusPending, Data: []byte(`{}`),
	}
	require.NoError(t, svc.Dispatch(context.Background(), event))
	require.Equal(t, types.WebhookEventStatusIgnored, event.Status)
	require.Empty(t, stub.succeededIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchMissingPaymentIDFails(t *testing.T) {
	svc, mock, stub := newTestService(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "webhook_events"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event := &models.WebhookEvent{
		ID: "we-2", EventID: "evt_2", EventType: types.EventTypePaymentSucceeded,
		Status: types.WebhookEventStatusPending, Data: []byte(`{"id":"pi_1","metadata":{}}`),
	}
	require.NoError(t, svc.Dispatch(context.Background(), event))
	require.Equal(t, types.WebhookEventStatusFailed, event.Status)
	require.NotNil(t, event.ErrorMessage)
	require.Contains(t, *event.ErrorMessage, "payment_id")
	require.Empty(t, stub.succeededIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchCheckoutCompleted(t *testing.T) {
	svc, mock, stub := newTestService(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "webhook_events"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event := &models.WebhookEvent{
		ID: "we-3", EventID: "evt_3", EventType: types.EventTypeCheckoutCompleted,
		Status: types.WebhookEventStatusPending,
		Data:   []byte(`{"id":"cs_1","customer":"cus_1","payment_intent":"pi_1","metadata":{"payment_id":"pay-1"}}`),
	}
	require.NoError(t, svc.Dispatch(context.Background(), event))
	require.Equal(t, types.WebhookEventStatusProcessed, event.Status)
	require.Equal(t, []string{"pay-1"}, stub.succeededIDs)
	require.Equal(t, 1, stub.handleCalls)
	require.Len(t, stub.attempts, 1)
	require.Equal(t, "pay-1", stub.attempts[0].PaymentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchPaymentFailedUsesProviderReason(t *testing.T) {
	svc, mock, stub := newTestService(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "webhook_events"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	event := &models.WebhookEvent{
		ID: "we-4", EventID: "evt_4", EventType: types.EventTypePaymentFailed,
		Status: types.WebhookEventStatusPending,
		Data:   []byte(`{"id":"pi_2","metadata":{"payment_id":"pay-2"},"last_payment_error":{"message":"card declined"}}`),
	}
	require.NoError(t, svc.Dispatch(context.Background(), event))
	require.Equal(t, types.WebhookEventStatusProcessed, event.Status)
	require.Equal(t, []string{"pay-2"}, stub.failedIDs)
	require.Len(t, stub.attempts, 1)
	require.Equal(t, "card declined", stub.attempts[0].ErrorMessage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestDuplicateDeliveryIsNoOp(t *testing.T) {
	svc, mock, stub := newTestService(t)

	// The conflict-tolerant insert loses: zero rows land, so the event
	// was already recorded and nothing may be dispatched.
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "webhook_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "processed_at"}))
	mock.ExpectCommit()

	event, err := svc.Ingest(context.Background(), types.PaymentProviderStripe,
		"evt_dup", types.EventTypeCheckoutCompleted, []byte(`{"id":"cs_1","metadata":{"payment_id":"pay-1"}}`))
	require.ErrorIs(t, err, errs.ErrDuplicateEvent)
	require.Nil(t, event)
	require.Zero(t, stub.handleCalls)
	require.Empty(t, stub.succeededIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestRejectsEmptyEventID(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Ingest(context.Background(), types.PaymentProviderStripe, "", "t", []byte(`{}`))
	require.Error(t, err)
}
