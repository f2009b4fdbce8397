// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики контейнера и pipeline
//
// Все компоненты используют единый формат логирования,
// сервер экспортирует метрики на /metrics endpoint.
package telemetry
