// Package cli реализует инструмент командной строки deployerctl.
//
// # Обзор
//
// CLI — клиентская утилита для Deployer API. Работает через HTTP и не
// импортирует internal/api: типы ответов продублированы в client.go.
// Исключение — команда events, которая читает шину событий RabbitMQ
// напрямую через internal/mq.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Deployer API. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Ошибки API возвращаются как *APIError; для
// упавшего deployment APIError.FailedDeployment отдаёт его итог.
//
//	client := cli.NewClient("http://localhost:8080")
//	services, err := client.ListServices(cli.ListServicesOpts{State: "FAILED"})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: deployerctl service list --json | jq .
//
// ## Commands
//
//   - service: list, show, start, stop, retry
//   - deployment: deploy, list, show, undeploy
//   - capabilities
//   - diagnostics
//   - events
//
// Каждая группа создаётся через фабричную функцию (NewServiceCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
//
// Архив для deploy описывается YAML или JSON файлом в формате
// connector.Archive:
//
//	name: mail.rar
//	version: 1.2.0
//	entries:
//	  META-INF/ra.xml: "<connector/>"
//	descriptor:
//	  administered_objects:
//	    - name: mail/Queue
//	      resource_adapter: mail
package cli
