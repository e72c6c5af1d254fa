// Package gateway talks to the ToyyibPay API and runs the verification worker pool.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	errors "github.com/frahmantamala/billpay-relay/internal"
	paymentgatewaytypes "github.com/frahmantamala/billpay-relay/internal/core/datamodel/paymentgateway"
)

const (
	billTransactionsPath = "/index.php/api/getBillTransactions"
	maxResponseBytes     = 1 << 20
)

type Config struct {
	BaseURL        string
	UserSecretKey  string
	RequestTimeout time.Duration
}

type Client struct {
	baseURL       string
	userSecretKey string
	timeout       time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:       strings.TrimRight(config.BaseURL, "/"),
		userSecretKey: config.UserSecretKey,
		timeout:       timeout,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// WithHTTPClient swaps the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// GetBillTransactions lists the payment attempts recorded for a bill.
// An empty list means the gateway knows the bill but nobody paid yet.
func (c *Client) GetBillTransactions(ctx context.Context, billCode string) ([]paymentgatewaytypes.BillTransaction, error) {
	req := &paymentgatewaytypes.BillTransactionsRequest{BillCode: billCode}
	if err := req.Validate(); err != nil {
		return nil, errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}

	form := url.Values{}
	form.Set("billCode", req.BillCode)
	if req.BillPaymentStatus != "" {
		form.Set("billpaymentStatus", req.BillPaymentStatus)
	}
	if c.userSecretKey != "" {
		form.Set("userSecretKey", c.userSecretKey)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+billTransactionsPath, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, errors.NewInternalError("failed to create gateway request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("toyyibpay: fetching bill transactions", "bill_code", billCode)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewExternalError("gateway request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.NewExternalError("failed to read gateway response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewExternalError("gateway request failed",
			fmt.Errorf("toyyibpay returned status %d", resp.StatusCode))
	}

	txns, err := decodeTransactions(body)
	if err != nil {
		return nil, errors.NewExternalError("failed to decode gateway response", err)
	}

	c.logger.Debug("toyyibpay: bill transactions fetched", "bill_code", billCode, "count", len(txns))
	return txns, nil
}

// decodeTransactions accepts the JSON array the API returns. Rows without a
// payment status (such as the "no data" marker) are dropped.
func decodeTransactions(body []byte) ([]paymentgatewaytypes.BillTransaction, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("unexpected response: %.80s", string(trimmed))
	}

	var rows []paymentgatewaytypes.BillTransaction
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, err
	}

	txns := rows[:0]
	for _, row := range rows {
		if row.BillPaymentStatus != "" {
			txns = append(txns, row)
		}
	}
	return txns, nil
}
