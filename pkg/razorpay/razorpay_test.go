package razorpay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestVerifyPaymentSignature(t *testing.T) {
	sig := Sign("secret", []byte("order_1|pay_1"))

	assert.True(t, VerifyPaymentSignature("secret", "order_1", "pay_1", sig))
	assert.True(t, VerifyPaymentSignature("secret", "order_1", "pay_1", strings.ToUpper(sig)))
	assert.False(t, VerifyPaymentSignature("secret", "order_1", "pay_2", sig))
	assert.False(t, VerifyPaymentSignature("other", "order_1", "pay_1", sig))
	assert.False(t, VerifyPaymentSignature("secret", "order_1", "pay_1", ""))
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		Sign("Jefe", []byte("what do ya want for nothing?")))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := Sign("whsec", body)

	assert.True(t, VerifyWebhookSignature("whsec", body, sig))
	assert.False(t, VerifyWebhookSignature("whsec", []byte(`{"event":"payment.failed"}`), sig))
}

func TestClient_CreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_secret", pass)

		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(50000), req.Amount)
		assert.Equal(t, "INR", req.Currency)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":50000,"currency":"INR","status":"created"}`))
	}))
	defer server.Close()

	client := NewClient("rzp_test_key", "rzp_secret", server.URL, testLogger())
	order, err := client.CreateOrder(context.Background(), OrderRequest{Amount: 50000, Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(50000), order.Amount)
}

func TestClient_CreateOrderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer server.Close()

	client := NewClient("k", "s", server.URL, testLogger())
	_, err := client.CreateOrder(context.Background(), OrderRequest{Amount: 1, Currency: "INR"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
}

func TestMockGateway(t *testing.T) {
	order, err := MockGateway{}.CreateOrder(context.Background(), OrderRequest{Amount: 100, Currency: "INR"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(order.ID, "order_mock_"))
	assert.Equal(t, int64(100), order.Amount)
}

func TestParseWebhook(t *testing.T) {
	ev, err := ParseWebhook([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","amount":50000}}}}`))
	require.NoError(t, err)
	assert.Equal(t, "payment.captured", ev.Event)
	assert.Equal(t, "order_1", ev.Payload.Payment.Entity.OrderID)
	assert.Equal(t, "pay_1", ev.Payload.Payment.Entity.ID)

	_, err = ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}
