// Package razorpay is a minimal client for the Razorpay orders API and its
// payment and webhook signature schemes.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the production API root
const DefaultBaseURL = "https://api.razorpay.com/v1"

// Order is the gateway's view of a created order
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// OrderRequest is the body of POST /orders. Amount is in minor units.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Gateway creates orders
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// APIError is a non-2xx answer from the gateway
type APIError struct {
	StatusCode  int
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay returned status %d: %s %s", e.StatusCode, e.Code, e.Description)
}

// Client talks to the Razorpay REST API with basic auth
type Client struct {
	keyID     string
	keySecret string
	baseURL   string
	http      *http.Client
	logger    *logrus.Logger
}

// NewClient creates a client. An empty baseURL uses DefaultBaseURL.
func NewClient(keyID, keySecret, baseURL string, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

// CreateOrder registers an order with the gateway
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		c.logger.WithFields(logrus.Fields{
			"status_code": resp.StatusCode,
			"code":        apiErr.Code,
		}).Error("Razorpay order creation failed")
		return nil, apiErr
	}

	var order Order
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"amount":   order.Amount,
	}).Info("Razorpay order created")
	return &order, nil
}

// MockGateway creates orders locally; used when PAYMENT_MODE=mock
type MockGateway struct{}

// CreateOrder implements Gateway
func (MockGateway) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate order id: %w", err)
	}
	return &Order{
		ID:       "order_mock_" + hex.EncodeToString(buf),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}

// Sign returns the hex HMAC-SHA256 of message under secret
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks the checkout signature over "orderID|paymentID"
func VerifyPaymentSignature(keySecret, orderID, paymentID, signature string) bool {
	return verify(keySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header over the raw body
func VerifyWebhookSignature(webhookSecret string, rawBody []byte, signature string) bool {
	return verify(webhookSecret, rawBody, signature)
}

func verify(secret string, message []byte, signature string) bool {
	expected := Sign(secret, message)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// WebhookEvent is the subset of the webhook envelope reconciliation needs
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseWebhook decodes a webhook body
func ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	return &ev, nil
}
