// Package queue is the rabbitmq side of the ingestion job queue. Three
// queues per logical queue name: the main queue dead-letters rejected
// messages to the DLQ, and the retry queue holds delayed messages whose
// per-message TTL dead-letters them back onto the main queue.
package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type JobMessage struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// DeclareTopology declares the main/retry/dlq queue triple. Both publisher
// and worker call it so either side can start first.
func DeclareTopology(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	if _, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	); err != nil {
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// PublishJob enqueues a job for immediate delivery. The message is
// persistent: it survives a broker restart before a worker picks it up.
func (p *Publisher) PublishJob(ctx context.Context, msg JobMessage) error {
	return p.publish(ctx, p.queue, msg, 0)
}

// PublishRetry parks a job on the retry queue for delay, after which it
// dead-letters back onto the main queue.
func (p *Publisher) PublishRetry(ctx context.Context, msg JobMessage, delay time.Duration) error {
	return p.publish(ctx, p.queue+".retry", msg, delay)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msg JobMessage, ttl time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if ttl > 0 {
		pub.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	return p.ch.PublishWithContext(cctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,
		false,
		pub,
	)
}

// Backoff returns the delay before the given attempt is retried:
// base, base*2, base*4, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return d
}
