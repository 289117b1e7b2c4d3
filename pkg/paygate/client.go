package paygate

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/putrabttart/dropstore-backend/pkg/config"
	"github.com/putrabttart/dropstore-backend/pkg/enums"
	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

var (
	errBaseURLRequired   = errors.New("paygate base url is required")
	errServerKeyRequired = errors.New("paygate server key is required")
	errLoggerRequired    = errors.New("paygate logger is required")
)

// LineItem describes one charge line sent to the gateway.
type LineItem struct {
	Name      string          `json:"name"`
	Qty       int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Charge is the gateway's answer to a charge creation request.
type Charge struct {
	QRPayload  string   `json:"qr_string"`
	ActionURLs []string `json:"actions"`
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the QR-payment gateway with centralized auth, logging, and
// error mapping.
type Client struct {
	http      httpDoer
	baseURL   string
	serverKey string
	logger    *logger.Logger
}

// NewClient initializes the gateway wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PaygateConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	serverKey := strings.TrimSpace(cfg.ServerKey)
	if serverKey == "" {
		return nil, errServerKeyRequired
	}

	timeout := cfg.ChargeTimeout
	if cfg.PollTimeout > timeout {
		timeout = cfg.PollTimeout
	}

	c := &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   baseURL,
		serverKey: serverKey,
		logger:    logg,
	}

	logg.Info(ctx, "paygate client initialized")
	return c, nil
}

// ServerKey returns the configured gateway secret used for webhook signatures.
func (c *Client) ServerKey() string {
	if c == nil {
		return ""
	}
	return c.serverKey
}

type chargeRequest struct {
	OrderID     string          `json:"order_id"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	LineItems   []LineItem      `json:"line_items"`
}

// CreateCharge opens a QR charge with the gateway for the given order.
func (c *Client) CreateCharge(ctx context.Context, orderID string, amount decimal.Decimal, lineItems []LineItem) (*Charge, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive")
	}

	body, err := json.Marshal(chargeRequest{OrderID: orderID, GrossAmount: amount, LineItems: lineItems})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode charge request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/charge", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build charge request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.serverKey, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "charge creation failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("charge creation failed with status %d", resp.StatusCode))
	}

	var charge Charge
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge response")
	}
	if charge.QRPayload == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "charge response missing qr payload")
	}
	return &charge, nil
}

type statusResponse struct {
	TransactionStatus string `json:"transaction_status"`
}

// PollStatus asks the gateway for the current charge status. Transient
// transport failures surface as PaymentStatusUnknown so the caller can retry.
func (c *Client) PollStatus(ctx context.Context, orderID string) (enums.PaymentStatus, error) {
	if orderID == "" {
		return enums.PaymentStatusUnknown, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/"+orderID+"/status", nil)
	if err != nil {
		return enums.PaymentStatusUnknown, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build status request")
	}
	req.SetBasicAuth(c.serverKey, "")

	resp, err := c.http.Do(req)
	if err != nil {
		return enums.PaymentStatusUnknown, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return enums.PaymentStatusUnknown, nil
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return enums.PaymentStatusUnknown, nil
	}
	return enums.StatusFromTransaction(status.TransactionStatus), nil
}

// VerifySignature checks the gateway's SHA-512 notification signature:
// hex(sha512(order_id + status_code + gross_amount + secret)). Missing fields
// always reject; absence is never treated as a valid signature.
func VerifySignature(orderID, statusCode, grossAmount, signature, secret string) bool {
	if orderID == "" || statusCode == "" || grossAmount == "" || signature == "" || secret == "" {
		return false
	}
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + secret))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}
