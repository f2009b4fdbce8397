// Package connector — подсистема resource adapters: базовые сервисы
// и processors для rar deployments.
package connector
