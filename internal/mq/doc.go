// Package mq публикует события deployer в RabbitMQ и читает их.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, OnConnect для топологии)
//   - topology.go   — обменник deployer.events, routing keys, временные подписки
//   - publisher.go  — публикация сообщений
//   - events.go     — EventPublisher: container.Observer и pipeline.Recorder
//   - consumer.go   — потребление сообщений (deployerctl events)
//
// Типы сообщений:
//   - service.state_changed — смена состояния сервиса (payload: domain.ServiceEvent)
//   - deployment.finished   — итог deployment (payload: domain.Deployment)
//
// Routing keys: service.<state>, deployment.<status> в нижнем регистре.
package mq
