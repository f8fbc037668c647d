package gateway

import (
	"errors"

	"github.com/venuetix-solutions/ms-go-orders/app/entity"
)

var (
	ErrChannelNotConfigured = errors.New("channel is not configured")
	ErrSignatureMismatch    = errors.New("webhook signature matched no configured channel")
)

// ChannelSet holds the configured gateway credential sets in fixed
// priority order (primary first). Webhook verification tries each in
// turn; the first whose checksum validates wins.
type ChannelSet struct {
	ordered []PaymentGateway
}

func NewChannelSet(gateways ...PaymentGateway) *ChannelSet {
	return &ChannelSet{ordered: gateways}
}

func (s *ChannelSet) Get(channel entity.Channel) (PaymentGateway, error) {
	for _, gw := range s.ordered {
		if gw.Channel() == channel {
			return gw, nil
		}
	}
	return nil, ErrChannelNotConfigured
}

// Verify attempts each configured credential set in priority order and
// returns the winning channel tag alongside the decoded event. A
// payload no channel can validate yields ErrSignatureMismatch; the
// caller must not mutate any order in that case.
func (s *ChannelSet) Verify(payload []byte) (entity.Channel, *WebhookEvent, error) {
	for _, gw := range s.ordered {
		event, err := gw.VerifyWebhook(payload)
		if err != nil {
			continue
		}
		return gw.Channel(), event, nil
	}
	return "", nil, ErrSignatureMismatch
}
