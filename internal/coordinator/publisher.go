package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeStartFlow    MessageType = "flow.start"
	MessageTypeCancelRun    MessageType = "run.cancel"
	MessageTypeSignal       MessageType = "event.signal"
	MessageTypeTimer        MessageType = "event.timer"
	MessageTypeRunCompleted MessageType = "run.completed"
	MessageTypeWorkerHello  MessageType = "worker.hello"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// StartFlowPayload — команда запуска flow.
type StartFlowPayload struct {
	FlowName string         `json:"flow_name"`
	Params   map[string]any `json:"params,omitempty"`
}

// CancelRunPayload — команда отмены run.
type CancelRunPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// SignalPayload — доставка именованного сигнала в run.
type SignalPayload struct {
	RunID      uuid.UUID      `json:"run_id"`
	SignalName string         `json:"signal_name"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// TimerPayload — срабатывание durable-таймера.
type TimerPayload struct {
	RunID    uuid.UUID `json:"run_id"`
	TimerKey string    `json:"timer_key"`
}

// RunCompletedPayload — уведомление о терминальном run.
type RunCompletedPayload struct {
	RunID    uuid.UUID `json:"run_id"`
	FlowName string    `json:"flow_name"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// WorkerHelloPayload — объявление воркера о себе и его обработчиках.
type WorkerHelloPayload struct {
	ServiceName string   `json:"service_name"`
	Version     string   `json:"version"`
	Handlers    []string `json:"handlers"`
	Flows       []string `json:"flows,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в обменник с ключом маршрутизации.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

func (p *Publisher) publish(ctx context.Context, exchange Exchange, key RoutingKey, msgType MessageType, payload any) error {
	return p.Publish(ctx, exchange, key, &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// PublishTimer публикует срабатывание durable-таймера.
// Доставка at-least-once: движок поглощает дубликаты.
func (p *Publisher) PublishTimer(ctx context.Context, runID uuid.UUID, timerKey string) error {
	return p.publish(ctx, ExchangeEvents, RoutingKeyTimer, MessageTypeTimer,
		TimerPayload{RunID: runID, TimerKey: timerKey})
}

// PublishRunCompleted публикует уведомление о завершении run.
func (p *Publisher) PublishRunCompleted(ctx context.Context, payload RunCompletedPayload) error {
	return p.publish(ctx, ExchangeRuns, RoutingKeyCompleted, MessageTypeRunCompleted, payload)
}

// PublishWorkerHello публикует объявление воркера.
func (p *Publisher) PublishWorkerHello(ctx context.Context, payload WorkerHelloPayload) error {
	return p.publish(ctx, ExchangeTriggers, RoutingKeyHello, MessageTypeWorkerHello, payload)
}
