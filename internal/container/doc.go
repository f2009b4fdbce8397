// Package container реализует контейнер сервисов с графом зависимостей.
//
// # Обзор
//
// Сервис — именованный экземпляр с необязательными hooks Start/Stop.
// Сервис объявляет зависимости на другие сервисы или на capabilities;
// контейнер запускает его, только когда все зависимости в UP:
//
//	c := container.New(container.Config{Workers: 8})
//
//	repo := connector.NewRaRepository()
//	err := c.AddService("connector.ra-repository", repo).
//	    AddDependency(container.Service("connector.ironjacamar.mdr"), repo.MDR).
//	    AddDependency(container.Capability("org.wildfly.transactions.transaction-integration"), repo.TransactionIntegration).
//	    Install()
//
// # Жизненный цикл
//
//	DOWN → STARTING → UP → STOPPING → DOWN
//	           ↘ FAILED
//
// Install не запускает сервис синхронно: после каждой мутации resolver
// переводит в STARTING все готовые сервисы и отдаёт их пулу воркеров.
// Зависимость, цель которой ещё не установлена, ожидает (сервис остаётся
// DOWN); Unresolved сообщает такие цели.
//
// # Внедрение
//
// Slot[T] получает экземпляр зависимости непосредственно перед Start
// и сбрасывается при переходе в STOPPING или при ошибке запуска.
// Requires задаёт зависимость без внедрения: только порядок.
//
// # Остановка
//
// Stop, Remove и Shutdown останавливают сначала транзитивных зависимых.
// TrackedTarget запоминает установленные через него сервисы, Rollback
// удаляет их в обратном порядке.
//
// # Файлы пакета
//
//   - container.go — Container, resolver, остановка, события
//   - service.go   — ServiceBuilder, Target, Slot, hooks
//   - tracked.go   — TrackedTarget
//   - errors.go    — ошибки
package container
