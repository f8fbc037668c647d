package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

var ErrBadSignature = errors.New("invalid webhook signature")

type Credentials struct {
	ClientID    string
	APIKey      string
	ChecksumKey string
}

func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" &&
		strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.ChecksumKey) != ""
}

type LinkClientConfig struct {
	Channel     entity.Channel
	BaseURL     string
	Credentials Credentials
	HTTPTimeout time.Duration
}

// LinkClient talks to the gateway's payment-link API under a single
// merchant credential set.
type LinkClient struct {
	cfg     LinkClientConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewLinkClient(cfg LinkClientConfig) *LinkClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var st gobreaker.Settings
	st.Name = "payment-link-" + string(cfg.Channel)
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= 3 && failureRatio >= 0.6
	}

	return &LinkClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](st),
	}
}

func (c *LinkClient) Channel() entity.Channel {
	return c.cfg.Channel
}

type createLinkRequest struct {
	OrderCode   int64      `json:"orderCode"`
	Amount      int64      `json:"amount"`
	Description string     `json:"description"`
	Items       []LinkItem `json:"items"`
	ReturnURL   string     `json:"returnUrl"`
	CancelURL   string     `json:"cancelUrl"`
	Signature   string     `json:"signature"`
}

type linkEnvelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

func (c *LinkClient) CreatePaymentLink(ctx context.Context, input *CreateLinkInput) (*CreateLinkOutput, error) {
	if !c.cfg.Credentials.Configured() {
		return nil, errors.New("gateway credentials are not configured")
	}

	payload := createLinkRequest{
		OrderCode:   input.OrderCode,
		Amount:      input.Amount,
		Description: input.Description,
		Items:       input.Items,
		ReturnURL:   input.ReturnURL,
		CancelURL:   input.CancelURL,
		Signature:   c.signCreateRequest(input),
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v2/payment-requests", payload)
	if err != nil {
		return nil, err
	}

	var envelope linkEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	if envelope.Code != "00" {
		return nil, fmt.Errorf("gateway rejected payment link: code=%s desc=%s", envelope.Code, envelope.Desc)
	}

	var data struct {
		PaymentLinkID string `json:"paymentLinkId"`
		CheckoutURL   string `json:"checkoutUrl"`
		QRCode        string `json:"qrCode"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, err
	}
	if strings.TrimSpace(data.PaymentLinkID) == "" {
		return nil, errors.New("gateway response missing payment link id")
	}

	return &CreateLinkOutput{
		PaymentLinkID: data.PaymentLinkID,
		CheckoutURL:   data.CheckoutURL,
		QRCode:        data.QRCode,
	}, nil
}

func (c *LinkClient) GetPaymentLinkStatus(ctx context.Context, orderCode int64) (LinkStatus, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v2/payment-requests/"+strconv.FormatInt(orderCode, 10), nil)
	if err != nil {
		return "", err
	}

	var envelope linkEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", err
	}
	if envelope.Code != "00" {
		return "", fmt.Errorf("gateway status query failed: code=%s desc=%s", envelope.Code, envelope.Desc)
	}

	var data struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return "", err
	}

	return LinkStatus(strings.ToUpper(strings.TrimSpace(data.Status))), nil
}

func (c *LinkClient) CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error {
	payload := map[string]string{"cancellationReason": strings.TrimSpace(reason)}

	body, err := c.doRequest(ctx, http.MethodPost, "/v2/payment-requests/"+strconv.FormatInt(orderCode, 10)+"/cancel", payload)
	if err != nil {
		return err
	}

	var envelope linkEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	if envelope.Code != "00" {
		return fmt.Errorf("gateway cancel failed: code=%s desc=%s", envelope.Code, envelope.Desc)
	}

	return nil
}

// VerifyWebhook checks the payload checksum against this channel's key
// and extracts the canonical event data. ErrBadSignature means the
// payload was signed by some other credential set (or not at all).
func (c *LinkClient) VerifyWebhook(payload []byte) (*WebhookEvent, error) {
	var envelope struct {
		Code      string          `json:"code"`
		Data      json.RawMessage `json:"data"`
		Signature string          `json:"signature"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Data) == 0 || strings.TrimSpace(envelope.Signature) == "" {
		return nil, ErrBadSignature
	}

	canonical, err := canonicalizeJSON(envelope.Data)
	if err != nil {
		return nil, err
	}
	if !verifyChecksum(canonical, envelope.Signature, c.cfg.Credentials.ChecksumKey) {
		return nil, ErrBadSignature
	}

	var data struct {
		OrderCode     int64  `json:"orderCode"`
		PaymentLinkID string `json:"paymentLinkId"`
		Status        string `json:"status"`
		Reference     string `json:"reference"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, err
	}

	return &WebhookEvent{
		OrderCode:     data.OrderCode,
		PaymentLinkID: data.PaymentLinkID,
		Status:        LinkStatus(strings.ToUpper(strings.TrimSpace(data.Status))),
		Reference:     data.Reference,
	}, nil
}

func (c *LinkClient) signCreateRequest(input *CreateLinkInput) string {
	canonical := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		input.Amount, input.CancelURL, input.Description, input.OrderCode, input.ReturnURL)
	return checksum(canonical, c.cfg.Credentials.ChecksumKey)
}

func (c *LinkClient) doRequest(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var reqBody io.Reader
		if payload != nil {
			encoded, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			reqBody = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-client-id", c.cfg.Credentials.ClientID)
		req.Header.Set("x-api-key", c.cfg.Credentials.APIKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("gateway request failed: path=%s status=%d body=%s", path, resp.StatusCode, string(body))
		}

		return body, nil
	})
}

func checksum(canonical, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyChecksum(canonical, signature, key string) bool {
	expected := checksum(canonical, key)
	candidate, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	decoded, err := hex.DecodeString(expected)
	if err != nil {
		return false
	}
	return hmac.Equal(candidate, decoded)
}

// canonicalizeJSON renders a JSON object as sorted key=value pairs
// joined with &, the form the gateway signs webhook data in. Nulls
// render empty, nested values as compact JSON.
func canonicalizeJSON(raw json.RawMessage) (string, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var object map[string]interface{}
	if err := decoder.Decode(&object); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+canonicalValue(object[key]))
	}

	return strings.Join(parts, "&"), nil
}

func canonicalValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
