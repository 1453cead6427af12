package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	mw "github.com/fatflowers/teller/internal/app/api/middleware"
	"github.com/fatflowers/teller/internal/app/service/gateway"
	"github.com/fatflowers/teller/internal/app/service/payment"
	"github.com/fatflowers/teller/internal/models"
	"github.com/fatflowers/teller/pkg/errs"
	"github.com/fatflowers/teller/pkg/types"
)

type stubOrchestrator struct {
	createErr error
	cancelErr error
	payment   *models.Payment
	getErr    error
}

func (s *stubOrchestrator) CreateSubscriptionPayment(_ context.Context, req *payment.CreatePaymentRequest) (*models.Payment, *models.Subscription, error) {
	if s.createErr != nil {
		return nil, nil, s.createErr
	}
	return &models.Payment{ID: "pay-1", UserID: req.UserID, Status: types.PaymentStatusPending},
		&models.Subscription{ID: "sub-1", UserID: req.UserID}, nil
}
func (s *stubOrchestrator) InitiateCheckout(context.Context, *payment.CheckoutRequest) (*gateway.CheckoutSession, error) {
	return &gateway.CheckoutSession{SessionID: "cs_1", RedirectURL: "https://pay.example/cs_1"}, nil
}
func (s *stubOrchestrator) ApplySuccessfulPayment(context.Context, string) error { panic("not used") }
func (s *stubOrchestrator) ApplyFailedPayment(context.Context, string, string) error {
	panic("not used")
}
func (s *stubOrchestrator) CancelPayment(context.Context, string, string) error { return s.cancelErr }
func (s *stubOrchestrator) RefreshFromSession(context.Context, string, string) (*models.Payment, error) {
	return s.payment, s.getErr
}
func (s *stubOrchestrator) GetPayment(context.Context, string) (*models.Payment, error) {
	panic("not used")
}
func (s *stubOrchestrator) GetUserPayment(context.Context, string, string) (*models.Payment, error) {
	return s.payment, s.getErr
}
func (s *stubOrchestrator) ListUserPayments(context.Context, string) ([]*models.Payment, error) {
	return []*models.Payment{}, nil
}
func (s *stubOrchestrator) ScanPayments(context.Context, *payment.ScanPaymentsRequest) (*payment.ScanPaymentsResponse, error) {
	panic("not used")
}
func (s *stubOrchestrator) SetProviderHandles(context.Context, string, string, string, string) error {
	panic("not used")
}
func (s *stubOrchestrator) RecordAttempt(context.Context, *payment.AttemptRecord) error {
	panic("not used")
}

func newPaymentRouter(stub *stubOrchestrator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(mw.ContextKeyUserID, "u1") })
	RegisterPaymentRoutes(r, stub)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestApiCreatePaymentOK(t *testing.T) {
	r := newPaymentRouter(&stubOrchestrator{})

	w := doJSON(t, r, http.MethodPost, "/payments", map[string]any{"plan_id": "monthly"})
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeEnvelope(t, w)
	require.EqualValues(t, 0, out["code"])
	data := out["data"].(map[string]any)
	require.Equal(t, "pay-1", data["payment_id"])
	require.Equal(t, "sub-1", data["subscription_id"])
}

func TestApiCreatePaymentConflictCode(t *testing.T) {
	r := newPaymentRouter(&stubOrchestrator{createErr: errs.Conflictf("already subscribed")})

	w := doJSON(t, r, http.MethodPost, "/payments", map[string]any{"plan_id": "monthly"})
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 40900, decodeEnvelope(t, w)["code"])
}

func TestApiCancelPaymentNotFoundCode(t *testing.T) {
	r := newPaymentRouter(&stubOrchestrator{cancelErr: errs.ErrNotFound})

	w := doJSON(t, r, http.MethodPost, "/payments/pay-9/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 40400, decodeEnvelope(t, w)["code"])
}

func TestApiGetPaymentRefreshFlag(t *testing.T) {
	stub := &stubOrchestrator{payment: &models.Payment{ID: "pay-1", UserID: "u1", Status: types.PaymentStatusSucceeded}}
	r := newPaymentRouter(stub)

	w := doJSON(t, r, http.MethodGet, "/payments/pay-1?refresh=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	out := decodeEnvelope(t, w)
	require.EqualValues(t, 0, out["code"])
	data := out["data"].(map[string]any)
	require.Equal(t, string(types.PaymentStatusSucceeded), data["status"])
}
