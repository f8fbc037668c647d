package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

type TransferConfig struct {
	Endpoint            string
	APIKey              string
	SourceAccountNumber string
	SourceAccountName   string
	HTTPTimeout         time.Duration
}

type TransferInput struct {
	Destination entity.BankAccount
	Amount      int64
	Description string
}

type TransferOutput struct {
	Reference     string
	TransactionID string
}

// TransferClient submits payouts to the external bank-transfer
// endpoint from the platform's settlement account.
type TransferClient struct {
	cfg    TransferConfig
	client *http.Client
}

func NewTransferClient(cfg TransferConfig) *TransferClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TransferClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether the operator has provisioned the payout
// integration. Unconfigured clients must never be called.
func (c *TransferClient) Configured() bool {
	return strings.TrimSpace(c.cfg.Endpoint) != "" &&
		strings.TrimSpace(c.cfg.APIKey) != "" &&
		strings.TrimSpace(c.cfg.SourceAccountNumber) != "" &&
		strings.TrimSpace(c.cfg.SourceAccountName) != ""
}

func (c *TransferClient) Transfer(ctx context.Context, input *TransferInput) (*TransferOutput, error) {
	if !c.Configured() {
		return nil, errors.New("bank transfer integration is not configured")
	}

	reference := uuid.NewString()
	payload := map[string]interface{}{
		"reference":         reference,
		"fromAccountNumber": c.cfg.SourceAccountNumber,
		"fromAccountName":   c.cfg.SourceAccountName,
		"toAccountNumber":   input.Destination.AccountNumber,
		"toAccountName":     input.Destination.AccountName,
		"amount":            input.Amount,
		"description":       input.Description,
	}
	if input.Destination.BankBin != nil {
		payload["toBin"] = *input.Destination.BankBin
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bank transfer failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var result struct {
		Code string `json:"code"`
		Desc string `json:"desc"`
		Data struct {
			TransactionID string `json:"transactionId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Data.TransactionID) == "" {
		return nil, fmt.Errorf("bank transfer response missing transaction id: code=%s desc=%s", result.Code, result.Desc)
	}

	return &TransferOutput{
		Reference:     reference,
		TransactionID: result.Data.TransactionID,
	}, nil
}
