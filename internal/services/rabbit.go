package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// LocationEvent is the message published for every broadcast write
type LocationEvent struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted"`
	At      int64           `json:"at"`
}

// RabbitMirror publishes broadcast writes to a fanout exchange
type RabbitMirror struct {
	connection *amqp.Connection
	exchange   string

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewRabbitMirror dials amqpURL and declares the exchange
func NewRabbitMirror(amqpURL, exchange string) (*RabbitMirror, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"fanout", // type
		false,    // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.Printf("✅ RabbitMQ mirror connected (exchange: %s)", exchange)
	return &RabbitMirror{connection: conn, channel: ch, exchange: exchange}, nil
}

func (r *RabbitMirror) Name() string {
	return "rabbitmq"
}

func (r *RabbitMirror) MirrorPut(ctx context.Context, key string, value json.RawMessage) error {
	return r.publish(LocationEvent{Key: key, Value: value, At: time.Now().UnixMilli()})
}

func (r *RabbitMirror) MirrorDelete(ctx context.Context, key string) error {
	return r.publish(LocationEvent{Key: key, Deleted: true, At: time.Now().UnixMilli()})
}

func (r *RabbitMirror) publish(ev LocationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.channel.Publish(
		r.exchange, // exchange
		"",         // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.UnixMilli(ev.At),
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Key, err)
	}
	return nil
}

// Close shuts the channel and connection
func (r *RabbitMirror) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel != nil {
		r.channel.Close()
	}
	if r.connection != nil {
		r.connection.Close()
	}
	log.Println("🔴 RabbitMQ mirror stopped")
}
