package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
)

const sendQueueName = "coldfront.sends"

// AMQPQueue is a RabbitMQ-backed Publisher and Consumer over one durable
// queue. Messages are persistent JSON jobs with manual acknowledgement.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		sendQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", sendQueueName, err)
	}

	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Publish(_ context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return q.ch.Publish(
		"",
		sendQueueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (q *AMQPQueue) Consume(ctx context.Context, handler func(ctx context.Context, job Job) error) error {
	msgs, err := q.ch.Consume(
		sendQueueName,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			var job Job
			if err := json.Unmarshal(d.Body, &job); err != nil {
				slog.Error("dropping malformed delivery job", "error", err)
				d.Ack(false)
				continue
			}

			if err := handler(ctx, job); err != nil {
				// One broker-level retry; after that the database
				// scheduled-retry path owns the job.
				if d.Redelivered {
					slog.Warn("delivery job failed twice, dropping from queue",
						"planned_send_id", job.PlannedSendID, "error", err)
					d.Ack(false)
				} else {
					d.Nack(false, true)
				}
				continue
			}

			d.Ack(false)
		}
	}
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
