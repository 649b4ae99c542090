// Package postgres - JobRepository implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/entities"
	domainErrors "github.com/Haleralex/jobboard/internal/domain/errors"
)

// Compile-time check: JobRepository implements ports.JobRepository
var _ ports.JobRepository = (*JobRepository)(nil)

// JobRepository реализует ports.JobRepository с использованием PostgreSQL.
//
// Thread-safe: использует connection pool.
// Transaction-aware: автоматически использует транзакцию из context если есть.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository создаёт новый JobRepository.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// getQuerier возвращает querier из context (transaction) или pool.
func (r *JobRepository) getQuerier(ctx context.Context) querier {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const jobColumns = `id, title, description, posted_at`

// Create сохраняет вакансию, ID назначает bigserial.
func (r *JobRepository) Create(ctx context.Context, job *entities.Job) error {
	q := r.getQuerier(ctx)

	query := `
		INSERT INTO jobs (title, description, posted_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id int64
	err := q.QueryRow(ctx, query, job.Title(), job.Description(), job.PostedAt()).Scan(&id)
	if err != nil {
		if isCheckViolation(err) {
			return domainErrors.ValidationError{
				Field:   "title",
				Message: domainErrors.ErrInvalidJobTitle.Error(),
			}
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}

	job.AssignID(id)
	return nil
}

// scanJob сканирует строку в domain entity Job.
func scanJob(scanner interface{ Scan(dest ...any) error }) (*entities.Job, error) {
	var (
		id          int64
		title       string
		description string
		postedAt    time.Time
	)

	if err := scanner.Scan(&id, &title, &description, &postedAt); err != nil {
		return nil, err
	}

	return entities.ReconstructJob(id, title, description, postedAt.UTC()), nil
}

// FindByID загружает вакансию по ID.
func (r *JobRepository) FindByID(ctx context.Context, id int64) (*entities.Job, error) {
	q := r.getQuerier(ctx)

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find job by id: %w", err)
	}

	return job, nil
}

// Exists проверяет существование вакансии.
func (r *JobRepository) Exists(ctx context.Context, id int64) (bool, error) {
	q := r.getQuerier(ctx)

	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}

	return exists, nil
}

// List возвращает вакансии с пагинацией, новые первыми.
func (r *JobRepository) List(ctx context.Context, offset, limit int) ([]*entities.Job, error) {
	q := r.getQuerier(ctx)

	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY posted_at DESC, id DESC OFFSET $1 LIMIT $2`

	rows, err := q.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*entities.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// Count возвращает общее количество вакансий.
func (r *JobRepository) Count(ctx context.Context) (int, error) {
	q := r.getQuerier(ctx)

	var count int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	return count, nil
}
