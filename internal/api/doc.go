// Package api содержит HTTP API сервера deployer.
//
// Структура:
//   - handler.go            — Handler с DI (pipeline, журнал, диагностика, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects
//   - service_handler.go    — /services, /capabilities, /diagnostics
//   - deployment_handler.go — /deployments
//
// Развёрнутые через API units хранятся в Handler до DELETE; журнал
// (repo.DeploymentStore) хранит итоги всех запусков.
package api
