package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shipease/internal/general/contracts"
	"shipease/internal/general/rabbitmq"
	"shipease/internal/matching"

	amqp "github.com/rabbitmq/amqp091-go"
)

const responseConsumerTag = "dispatch-service-driver-responses"

// HandleDriverResponse routes one driver answer to its attempt. Answers for
// bookings without a live attempt are dropped.
func (service *dispatchService) HandleDriverResponse(ctx context.Context, msg contracts.DriverMatchResponse) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	ctx = service.logger.WithBookingID(ctx, msg.BookingID)

	err := service.dispatcher.Respond(ctx, matching.Response{
		BookingID: msg.BookingID,
		DriverID:  msg.DriverID,
		OfferID:   msg.OfferID,
		Accepted:  msg.Accepted,
	})
	if errors.Is(err, matching.ErrAttemptNotFound) {
		service.logger.Info(ctx, "driver_response_dropped", "No live attempt for driver response", map[string]any{
			"driver_id": msg.DriverID,
			"offer_id":  msg.OfferID,
			"accepted":  msg.Accepted,
		})
		return nil
	}
	return err
}

// RunResponseConsumer consumes driver_responses until ctx is done.
func (service *dispatchService) RunResponseConsumer(ctx context.Context) error {
	if service.consumer == nil {
		return errors.New("dispatchservice: no response consumer configured")
	}
	return service.consumer.ConsumeForever(ctx, contracts.QueueDriverResponses, responseConsumerTag, service.prefetch,
		service.handleResponseDelivery)
}

func (service *dispatchService) handleResponseDelivery(ctx context.Context, d amqp.Delivery) error {
	var msg contracts.DriverMatchResponse
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		service.logger.Error(ctx, "mq_message_parse_failed", "Failed to parse driver response", err, map[string]any{
			"routing_key": d.RoutingKey,
		})
		return err
	}
	if msg.CorrelationID != "" {
		ctx = service.logger.WithRequestID(ctx, msg.CorrelationID)
	}

	err := service.HandleDriverResponse(ctx, msg)
	if err == nil {
		return nil
	}
	service.logger.Error(ctx, "driver_response_failed", "Failed to handle driver response", err, map[string]any{
		"booking_id": msg.BookingID,
		"driver_id":  msg.DriverID,
	})
	if isClientError(err) || errors.Is(err, contracts.ErrInvalidMessage) {
		return err
	}
	return fmt.Errorf("%w: %w", rabbitmq.ErrRequeue, err)
}
