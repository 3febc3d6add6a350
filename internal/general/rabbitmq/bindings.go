package rabbitmq

import (
	"fmt"

	"shipease/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

type exchangeDecl struct {
	name string
	kind string
}

type bindingDecl struct {
	queue      string
	exchange   string
	routingKey string
}

// topology of the dispatch service. Driver responses and driver status changes
// travel on driver_topic, booking outcomes on booking_topic.
var (
	topologyExchanges = []exchangeDecl{
		{contracts.ExchangeBookingTopic, amqp.ExchangeTopic},
		{contracts.ExchangeDriverTopic, amqp.ExchangeTopic},
	}

	topologyQueues = []string{
		contracts.QueueBookingStatus,
		contracts.QueueDriverResponses,
		contracts.QueueDriverStatus,
	}

	topologyBindings = []bindingDecl{
		{contracts.QueueBookingStatus, contracts.ExchangeBookingTopic, contracts.RouteBookingStatusPrefix + "*"},
		{contracts.QueueDriverResponses, contracts.ExchangeDriverTopic, contracts.RouteDriverRespPrefix + "*"},
		{contracts.QueueDriverStatus, contracts.ExchangeDriverTopic, contracts.RouteDriverStatusPrefix + "*"},
	}
)

func declareTopology(ch *amqp.Channel) error {
	for _, ex := range topologyExchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	for _, q := range topologyQueues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	for _, b := range topologyBindings {
		if err := ch.QueueBind(b.queue, b.routingKey, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
