package service

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrGateway            = errors.New("payment gateway request failed")
	ErrWebhookRejected    = errors.New("webhook rejected")
)
