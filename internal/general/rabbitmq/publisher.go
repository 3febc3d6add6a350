package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrNotConnected = errors.New("rabbitmq: connection is not open")
	ErrNotAcked     = errors.New("rabbitmq: publish not acknowledged")
)

// MQPublisher publishes JSON messages through the Client.
type MQPublisher struct {
	Client *Client
}

// NewMQPublisher constructs an MQPublisher using the provided RabbitMQ client.
func NewMQPublisher(client *Client) *MQPublisher {
	return &MQPublisher{Client: client}
}

// PublishJSON marshals v and publishes it to exchange with routingKey.
func (publisher *MQPublisher) PublishJSON(ctx context.Context, exchange, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message for %s: %w", routingKey, err)
	}
	return publisher.Client.PublishMessage(ctx, exchange, routingKey, body)
}

// PublishMessage publishes a persistent JSON message and waits for the broker confirm.
func (client *Client) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}
	if ch == nil || ch.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ch.PublishWithContext(ctx, exchange, routingKey, true /* mandatory */, false, /* immediate */
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		return err
	}

	select {
	case c, ok := <-confirms:
		if !ok {
			return ErrNotConnected
		}
		if !c.Ack {
			return ErrNotAcked
		}
	case <-ctx.Done():
		// keep the confirm stream aligned with the next publish
		select {
		case c, ok := <-confirms:
			if ok && !c.Ack {
				return fmt.Errorf("%w after timeout", ErrNotAcked)
			}
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}

	return nil
}
