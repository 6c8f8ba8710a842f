package coordinator

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeTriggers — команды движку: запуск flow, отмена run.
	ExchangeTriggers Exchange = "relay.triggers"

	// ExchangeEvents — внешние события: сигналы и срабатывания таймеров.
	ExchangeEvents Exchange = "relay.events"

	// ExchangeRuns — уведомления о завершении runs.
	ExchangeRuns Exchange = "relay.runs"

	// ExchangeDLQ — dead letter queue.
	ExchangeDLQ Exchange = "relay.dlq"
)

// Queues — имена очередей.
const (
	QueueTriggersStart  Queue = "triggers.start"
	QueueTriggersCancel Queue = "triggers.cancel"
	QueueEventsSignal   Queue = "events.signal"
	QueueEventsTimer    Queue = "events.timer"
	QueueRunsCompleted  Queue = "runs.completed"
	QueueWorkersHello   Queue = "workers.hello"
	QueueDLQEvents      Queue = "dlq.events"
)

// Routing keys.
const (
	RoutingKeyStart     RoutingKey = "start"
	RoutingKeyCancel    RoutingKey = "cancel"
	RoutingKeySignal    RoutingKey = "signal"
	RoutingKeyTimer     RoutingKey = "timer"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyHello     RoutingKey = "hello"
	RoutingKeyDLQEvents RoutingKey = "events"
)

// SetupTopology объявляет обменники, очереди и привязки.
// Объявления идемпотентны: безопасно вызывать при каждом старте.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTriggers, "direct"},
		{ExchangeEvents, "direct"},
		{ExchangeRuns, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name),
			ex.kind,
			true,  // durable
			false, // auto-deleted
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

func declareQueues(ch *amqp.Channel) error {
	// Событийные очереди получают DLQ: повторная доставка событий
	// идемпотентна, но ядовитое сообщение не должно крутиться вечно
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueTriggersStart, nil},
		{QueueTriggersCancel, nil},
		{QueueEventsSignal, dlqArgs},
		{QueueEventsTimer, dlqArgs},
		{QueueRunsCompleted, nil},
		{QueueWorkersHello, nil},
		{QueueDLQEvents, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name),
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			q.args,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTriggersStart, RoutingKeyStart, ExchangeTriggers},
		{QueueTriggersCancel, RoutingKeyCancel, ExchangeTriggers},
		{QueueEventsSignal, RoutingKeySignal, ExchangeEvents},
		{QueueEventsTimer, RoutingKeyTimer, ExchangeEvents},
		{QueueRunsCompleted, RoutingKeyCompleted, ExchangeRuns},
		{QueueWorkersHello, RoutingKeyHello, ExchangeTriggers},
		{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),
			string(b.routingKey),
			string(b.exchange),
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
