// Package postgres - ApplicationRepository implementation.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/entities"
	domainErrors "github.com/Haleralex/jobboard/internal/domain/errors"
)

// Compile-time check: ApplicationRepository implements ports.ApplicationRepository
var _ ports.ApplicationRepository = (*ApplicationRepository)(nil)

// idempotencyConstraint - UNIQUE (job_id, applicant_email, applied_at).
const idempotencyConstraint = "uq_job_applications_idempotency"

// ApplicationRepository реализует ports.ApplicationRepository.
//
// Идемпотентность обеспечивается constraint uq_job_applications_idempotency:
// Insert с уже существующим ключом ничего не пишет и возвращает inserted=false.
type ApplicationRepository struct {
	pool *pgxpool.Pool
}

// NewApplicationRepository создаёт новый ApplicationRepository.
func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{pool: pool}
}

// getQuerier возвращает querier из context (transaction) или pool.
func (r *ApplicationRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const applicationColumns = `id, job_id, applicant_name, applicant_email, applied_at`

// NextID резервирует следующее значение sequence таблицы job_applications.
func (r *ApplicationRepository) NextID(ctx context.Context) (int64, error) {
	q := r.getQuerier(ctx)

	var id int64
	err := q.QueryRow(ctx, `SELECT nextval(pg_get_serial_sequence('job_applications', 'id'))`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve application id: %w", err)
	}

	return id, nil
}

// ExistsByKey проверяет наличие отклика по ключу идемпотентности.
func (r *ApplicationRepository) ExistsByKey(ctx context.Context, key entities.ApplicationKey) (bool, error) {
	q := r.getQuerier(ctx)

	query := `
		SELECT EXISTS(
			SELECT 1 FROM job_applications
			WHERE job_id = $1 AND applicant_email = $2 AND applied_at = $3
		)
	`

	var exists bool
	err := q.QueryRow(ctx, query, key.JobID, key.ApplicantEmail, key.AppliedAt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check application existence: %w", err)
	}

	return exists, nil
}

// Insert сохраняет отклик.
//
// - ID > 0 (зарезервирован через NextID): пишется как есть
// - ID == 0: назначается bigserial и возвращается через AssignID
// - Конфликт по ключу идемпотентности: inserted=false, ошибки нет
// - Нет вакансии (FK): ErrJobNotFound
func (r *ApplicationRepository) Insert(ctx context.Context, app *entities.Application) (bool, error) {
	q := r.getQuerier(ctx)

	if app.ID() > 0 {
		query := `
			INSERT INTO job_applications (id, job_id, applicant_name, applicant_email, applied_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT ON CONSTRAINT ` + idempotencyConstraint + ` DO NOTHING
		`
		tag, err := q.Exec(ctx, query,
			app.ID(),
			app.JobID(),
			app.ApplicantName(),
			app.ApplicantEmail(),
			app.AppliedAt(),
		)
		if err != nil {
			return false, r.mapInsertError(err)
		}
		return tag.RowsAffected() == 1, nil
	}

	query := `
		INSERT INTO job_applications (job_id, applicant_name, applicant_email, applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT ` + idempotencyConstraint + ` DO NOTHING
		RETURNING id
	`
	rows, err := q.Query(ctx, query,
		app.JobID(),
		app.ApplicantName(),
		app.ApplicantEmail(),
		app.AppliedAt(),
	)
	if err != nil {
		return false, r.mapInsertError(err)
	}
	defer rows.Close()

	var (
		id       int64
		inserted bool
	)
	for rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return false, fmt.Errorf("failed to scan application id: %w", err)
		}
		inserted = true
	}
	if err := rows.Err(); err != nil {
		return false, r.mapInsertError(err)
	}

	if inserted {
		app.AssignID(id)
	}
	return inserted, nil
}

func (r *ApplicationRepository) mapInsertError(err error) error {
	switch {
	case isForeignKeyViolation(err):
		return domainErrors.ErrJobNotFound
	case isUniqueViolation(err, "job_applications_pkey"):
		// ID уже занят другим откликом
		return fmt.Errorf("%w: %v", domainErrors.ErrEntityAlreadyExists, err)
	case isDataViolation(err):
		// для 22001 PostgreSQL не сообщает колонку
		pgErr, _ := asPgError(err)
		field := pgErr.ColumnName
		if field == "" {
			field = "application"
		}
		return domainErrors.ValidationError{Field: field, Message: pgErr.Message}
	default:
		return fmt.Errorf("failed to insert application: %w", err)
	}
}

// ListByJob возвращает отклики на вакансию в порядке подачи.
func (r *ApplicationRepository) ListByJob(ctx context.Context, jobID int64) ([]*entities.Application, error) {
	q := r.getQuerier(ctx)

	query := `SELECT ` + applicationColumns + ` FROM job_applications WHERE job_id = $1 ORDER BY applied_at, id`

	rows, err := q.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*entities.Application
	for rows.Next() {
		var (
			id, jobIDCol int64
			name, email  string
			appliedAt    time.Time
		)
		if err := rows.Scan(&id, &jobIDCol, &name, &email, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, entities.ReconstructApplication(id, jobIDCol, name, email, appliedAt.UTC()))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}

	return apps, nil
}
