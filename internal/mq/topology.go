package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Deployer/internal/domain"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeEvents Exchange = "deployer.events"
)

// Шаблоны подписки.
const (
	PatternAll         RoutingKey = "#"
	PatternServices    RoutingKey = "service.*"
	PatternDeployments RoutingKey = "deployment.*"
)

// ServiceKey возвращает routing key события сервиса: service.<state>.
func ServiceKey(state domain.ServiceState) RoutingKey {
	return RoutingKey("service." + strings.ToLower(string(state)))
}

// DeploymentKey возвращает routing key итога deployment: deployment.<status>.
func DeploymentKey(status domain.DeploymentStatus) RoutingKey {
	return RoutingKey("deployment." + strings.ToLower(string(status)))
}

// DeclareTopology объявляет обменник событий на канале.
// Используется как ConnectionConfig.OnConnect: после переподключения к
// перезапущенному брокеру обменник объявляется заново.
func DeclareTopology(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		string(ExchangeEvents), // name
		"topic",                // type
		true,                   // durable
		false,                  // auto-deleted
		false,                  // internal
		false,                  // no-wait
		nil,                    // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeEvents, err)
	}
	return nil
}

// DeclareSubscription создаёт временную очередь, привязанную к ExchangeEvents
// по каждому из patterns. Очередь эксклюзивна и удаляется вместе с соединением.
func DeclareSubscription(ctx context.Context, conn *Connection, patterns ...RoutingKey) (Queue, error) {
	if len(patterns) == 0 {
		patterns = []RoutingKey{PatternAll}
	}

	var name Queue
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // name (server-generated)
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare subscription queue: %w", err)
		}

		for _, p := range patterns {
			if err := ch.QueueBind(q.Name, string(p), string(ExchangeEvents), false, nil); err != nil {
				return fmt.Errorf("bind %s to %s: %w", q.Name, p, err)
			}
		}
		name = Queue(q.Name)
		return nil
	})
	return name, err
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Deployer RabbitMQ Topology:

    deployer.events (topic)
    ├── service.<state>       [down|starting|up|stopping|failed]
    └── deployment.<status>   [deployed|failed|undeployed]
            Consumers: deployerctl events (exclusive queues)
  `
}
