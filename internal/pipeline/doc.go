// Package pipeline проводит deployment units через фиксированные фазы.
//
// Активаторы регистрируют processors в Chain, Build замораживает
// цепочку. Run вызывает processors по фазам, внутри фазы по приоритету:
//
//	chain := pipeline.NewChain()
//	activator.ActivateProcessors(chain)
//	p := chain.Build(pipeline.Config{Container: c})
//
//	res, err := p.Run(ctx, pipeline.NewUnit("mail.rar", archive))
//
// Processors передают данные через типизированные вложения (Key, Attach,
// Value) и устанавливают сервисы через Unit.ServiceTarget. При ошибке
// processor обработка прерывается, а сервисы unit откатываются.
package pipeline
