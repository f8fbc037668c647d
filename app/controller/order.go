package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/venuetix-solutions/ms-go-orders/app/factory"
	"github.com/venuetix-solutions/ms-go-orders/app/mapper"
	"github.com/venuetix-solutions/ms-go-orders/app/service"
	"github.com/venuetix-solutions/ms-go-orders/app/types"
)

type OrderController struct {
	orderService *service.OrderService
	logger       logrus.FieldLogger
}

func NewOrderController(orderService *service.OrderService) *OrderController {
	return &OrderController{
		orderService: orderService,
		logger:       factory.NewModuleLogger("orders-controller"),
	}
}

// requestLogger tags the module logger with the request method, path,
// and id so handler errors can be correlated with access logs.
func (c *OrderController) requestLogger(ctx echo.Context) logrus.FieldLogger {
	return factory.LoggerWithContext(c.logger, ctx)
}

func (c *OrderController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *OrderController) CreateOrder(ctx echo.Context) error {
	req, err := types.NewCreateOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.orderService.CreateOrder(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrOrderAlreadyExists):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrGateway):
			c.requestLogger(ctx).WithError(err).Error("Create order failed at gateway")
			return c.writeError(ctx, http.StatusBadGateway, "payment gateway unavailable")
		default:
			c.requestLogger(ctx).WithError(err).Error("Create order failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(item)})
}

func (c *OrderController) GetOrder(ctx echo.Context) error {
	req, err := types.NewGetOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.orderService.GetOrder(ctx.Request().Context(), req.OrderCode)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "order not found")
		}
		c.requestLogger(ctx).WithError(err).Error("Get order failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(item)})
}

func (c *OrderController) ListOrders(ctx echo.Context) error {
	req, err := types.NewListOrdersRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.orderService.ListOrders(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.requestLogger(ctx).WithError(err).Error("List orders failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListOrdersResponse{Orders: mapper.OrdersToResponse(items)})
}

func (c *OrderController) VerifyOrder(ctx echo.Context) error {
	req, err := types.NewVerifyOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.orderService.VerifyOrder(ctx.Request().Context(), req.OrderCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			return c.writeError(ctx, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrGateway):
			c.requestLogger(ctx).WithError(err).Error("Verify order failed at gateway")
			return c.writeError(ctx, http.StatusBadGateway, "payment gateway unavailable")
		default:
			c.requestLogger(ctx).WithError(err).Error("Verify order failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(item)})
}

func (c *OrderController) CancelOrder(ctx echo.Context) error {
	req, err := types.NewCancelOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.orderService.CancelOrder(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			return c.writeError(ctx, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrInvalidStatus):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			c.requestLogger(ctx).WithError(err).Error("Cancel order failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.OrderEnvelopeResponse{Order: mapper.OrderToResponse(item)})
}

// HandleWebhook accepts gateway payment notifications. The raw body is
// handed to the service untouched so checksum verification sees exactly
// the bytes the gateway signed.
func (c *OrderController) HandleWebhook(ctx echo.Context) error {
	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if len(payload) == 0 {
		return c.writeError(ctx, http.StatusBadRequest, "empty webhook payload")
	}

	if err = c.orderService.HandleWebhook(ctx.Request().Context(), payload); err != nil {
		if errors.Is(err, service.ErrWebhookRejected) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		c.requestLogger(ctx).WithError(err).Error("Handle webhook failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Webhook processed"})
}

func (c *OrderController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
