package types

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

func TestNewCreateOrderRequestFromContextNormalizesFields(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/orders", bytes.NewBufferString(`{"buyer_id":" buyer-1 ","event_id":"evt-1","channel":"MOBILE","items":[{"zone":"A","seat":"A-12","price":125,"quantity":2}],"payee":{"account_number":" 0011002233 ","account_name":" ACME EVENTS "}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewCreateOrderRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.BuyerID != "buyer-1" {
		t.Fatalf("expected trimmed buyer id, got %q", parsed.BuyerID)
	}
	if parsed.Channel != "mobile" {
		t.Fatalf("expected lower-cased channel, got %q", parsed.Channel)
	}
	if parsed.Payee == nil || parsed.Payee.AccountNumber != "0011002233" || parsed.Payee.AccountName != "ACME EVENTS" {
		t.Fatalf("unexpected payee normalization: %+v", parsed.Payee)
	}
	if err = parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCreateOrderValidate(t *testing.T) {
	req := &CreateOrderRequest{}
	if err := req.Validate(); err == nil {
		t.Fatal("expected buyer_id validation error")
	}

	req = &CreateOrderRequest{
		BuyerID: "buyer-1",
		EventID: "evt-1",
		Items:   []LineItemRequest{{Zone: "A", Price: 100, Quantity: 0}},
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected quantity validation error")
	}

	req.Items[0].Quantity = 1
	req.Channel = "kiosk"
	if err := req.Validate(); err == nil {
		t.Fatal("expected channel validation error")
	}

	req.Channel = ""
	req.Payee = &BankAccountRequest{AccountNumber: "0011002233"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected payee account_name validation error")
	}

	req.Payee.AccountName = "ACME EVENTS"
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewListOrdersRequestFromContextAndValidate(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/orders?buyer_id=buyer-1&status=paid&limit=20&offset=3", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewListOrdersRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !parsed.HasStatus || parsed.Status != entity.OrderStatusPaid {
		t.Fatalf("unexpected status parse: %+v", parsed)
	}
	if parsed.Limit != 20 || parsed.Offset != 3 {
		t.Fatalf("unexpected pagination parse: %+v", parsed)
	}
	if err = parsed.Validate(); err != nil {
		t.Fatalf("expected valid list request, got %v", err)
	}
}

func TestListOrdersValidateDefaultLimit(t *testing.T) {
	req := &ListOrdersRequest{}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected zero-values request to apply default limit, got %v", err)
	}
	if req.Limit != 100 {
		t.Fatalf("expected default limit 100, got %d", req.Limit)
	}
}

func TestListOrdersValidateRejectsUnknownStatus(t *testing.T) {
	req := &ListOrdersRequest{HasStatus: true, Status: "archived"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected status validation error")
	}
}

func TestNewCancelOrderRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/orders/9100245123/cancel", bytes.NewBufferString(`{"reason":" changed plans "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("code")
	ctx.SetParamValues("9100245123")

	parsed, err := NewCancelOrderRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.OrderCode != 9100245123 || parsed.Reason != "changed plans" {
		t.Fatalf("unexpected parsed cancel request: %+v", parsed)
	}
}

func TestNewCancelOrderRequestFromContextAllowsEmptyBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/orders/9100245123/cancel", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("code")
	ctx.SetParamValues("9100245123")

	parsed, err := NewCancelOrderRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.OrderCode != 9100245123 || parsed.Reason != "" {
		t.Fatalf("unexpected parsed cancel request: %+v", parsed)
	}
}

func TestNewGetOrderRequestFromContextRejectsNonNumericCode(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/orders/not-a-code", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("code")
	ctx.SetParamValues("not-a-code")

	if _, err := NewGetOrderRequestFromContext(ctx); err == nil {
		t.Fatal("expected parse error for non-numeric order code")
	}
}
