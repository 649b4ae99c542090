// Package ports определяет интерфейсы (порты) для внешних зависимостей.
// Эти интерфейсы реализуются в Infrastructure Layer.
//
// Pattern: Repository Pattern + Ports & Adapters (Hexagonal Architecture)
package ports

import (
	"context"

	"github.com/Haleralex/jobboard/internal/domain/entities"
)

// JobRepository определяет контракт для хранения вакансий.
type JobRepository interface {
	// Create сохраняет новую вакансию и присваивает ей ID.
	Create(ctx context.Context, job *entities.Job) error

	// FindByID загружает вакансию по ID.
	// Возвращает errors.ErrJobNotFound если не найдена.
	FindByID(ctx context.Context, id int64) (*entities.Job, error)

	// Exists проверяет существование без загрузки всей entity.
	Exists(ctx context.Context, id int64) (bool, error)

	// List возвращает вакансии, новые первыми.
	List(ctx context.Context, offset, limit int) ([]*entities.Job, error)

	// Count возвращает общее количество вакансий (для пагинации).
	Count(ctx context.Context) (int, error)
}

// ApplicationRepository определяет контракт для хранения откликов.
//
// Все методы безопасны при конкурентном вызове из нескольких
// обработчиков сообщений: уникальность ключа идемпотентности
// гарантируется на уровне хранилища (UNIQUE constraint).
type ApplicationRepository interface {
	// NextID резервирует идентификатор отклика до публикации события.
	NextID(ctx context.Context) (int64, error)

	// ExistsByKey проверяет, существует ли отклик с данным ключом идемпотентности.
	ExistsByKey(ctx context.Context, key entities.ApplicationKey) (bool, error)

	// Insert сохраняет новый отклик.
	// Возвращает inserted=false, если запись с таким ключом уже существует
	// (конкурентная доставка дубликата), это не ошибка.
	Insert(ctx context.Context, app *entities.Application) (inserted bool, err error)

	// ListByJob возвращает отклики на вакансию в порядке подачи.
	ListByJob(ctx context.Context, jobID int64) ([]*entities.Application, error)
}
