package ports

import "context"

// UnitOfWork - граница транзакции для use case.
//
// Репозитории внутри fn обязаны использовать переданный им context:
// транзакция живёт в нём.
//
//	err := uow.Execute(ctx, func(txCtx context.Context) error {
//	    inserted, err := applications.Insert(txCtx, app)
//	    ...
//	})
type UnitOfWork interface {
	// Execute коммитит, если fn вернула nil, иначе откатывает.
	Execute(ctx context.Context, fn func(context.Context) error) error
}
