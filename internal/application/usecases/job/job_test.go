package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/jobboard/internal/application/dtos"
	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/entities"
	domainErrors "github.com/Haleralex/jobboard/internal/domain/errors"
)

// Mock repositories and services
type mockJobRepo struct {
	createFunc   func(ctx context.Context, job *entities.Job) error
	findByIDFunc func(ctx context.Context, id int64) (*entities.Job, error)
	listFunc     func(ctx context.Context, offset, limit int) ([]*entities.Job, error)
	countFunc    func(ctx context.Context) (int, error)
}

func (m *mockJobRepo) Create(ctx context.Context, job *entities.Job) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, job)
	}
	job.AssignID(1)
	return nil
}

func (m *mockJobRepo) FindByID(ctx context.Context, id int64) (*entities.Job, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, domainErrors.ErrJobNotFound
}

func (m *mockJobRepo) Exists(ctx context.Context, id int64) (bool, error) {
	return false, nil
}

func (m *mockJobRepo) List(ctx context.Context, offset, limit int) ([]*entities.Job, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, offset, limit)
	}
	return nil, nil
}

func (m *mockJobRepo) Count(ctx context.Context) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

type mockUnitOfWork struct {
	executeFunc func(ctx context.Context, fn func(context.Context) error) error
}

func (m *mockUnitOfWork) Execute(ctx context.Context, fn func(context.Context) error) error {
	if m.executeFunc != nil {
		return m.executeFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockNotifier struct {
	notifications []ports.Notification
	err           error
}

func (m *mockNotifier) Notify(ctx context.Context, n ports.Notification) error {
	m.notifications = append(m.notifications, n)
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateJobUseCase_Success(t *testing.T) {
	notifier := &mockNotifier{}
	uc := NewCreateJobUseCase(&mockJobRepo{}, &mockUnitOfWork{}, notifier, testLogger())

	result, err := uc.Execute(context.Background(), dtos.CreateJobCommand{
		Title:       "  Senior Go Engineer ",
		Description: "Build the pipeline",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.ID)
	assert.Equal(t, "Senior Go Engineer", result.Title)
	assert.Equal(t, "Build the pipeline", result.Description)
	assert.False(t, result.PostedAt.IsZero())

	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, ports.NotificationJobCreated, notifier.notifications[0].Type)
	assert.Equal(t, *result, notifier.notifications[0].Payload)
}

func TestCreateJobUseCase_ValidationError(t *testing.T) {
	repoCalled := false
	repo := &mockJobRepo{createFunc: func(context.Context, *entities.Job) error {
		repoCalled = true
		return nil
	}}
	uc := NewCreateJobUseCase(repo, &mockUnitOfWork{}, nil, testLogger())

	tests := []string{"", "   ", strings.Repeat("x", entities.MaxJobTitleLength+1)}
	for _, title := range tests {
		_, err := uc.Execute(context.Background(), dtos.CreateJobCommand{Title: title})
		require.Error(t, err)
		assert.True(t, domainErrors.IsValidationError(err))
	}
	assert.False(t, repoCalled)
}

func TestCreateJobUseCase_SaveError(t *testing.T) {
	notifier := &mockNotifier{}
	repo := &mockJobRepo{createFunc: func(context.Context, *entities.Job) error {
		return errors.New("connection reset")
	}}
	uc := NewCreateJobUseCase(repo, &mockUnitOfWork{}, notifier, testLogger())

	_, err := uc.Execute(context.Background(), dtos.CreateJobCommand{Title: "Go Engineer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save job")
	assert.Empty(t, notifier.notifications)
}

func TestCreateJobUseCase_NotificationErrorIgnored(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("no subscribers")}
	uc := NewCreateJobUseCase(&mockJobRepo{}, &mockUnitOfWork{}, notifier, testLogger())

	result, err := uc.Execute(context.Background(), dtos.CreateJobCommand{Title: "Go Engineer"})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestGetJobUseCase(t *testing.T) {
	postedAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := &mockJobRepo{findByIDFunc: func(_ context.Context, id int64) (*entities.Job, error) {
		if id == 7 {
			return entities.ReconstructJob(7, "Go Engineer", "desc", postedAt), nil
		}
		return nil, domainErrors.ErrJobNotFound
	}}
	uc := NewGetJobUseCase(repo)

	t.Run("found", func(t *testing.T) {
		result, err := uc.Execute(context.Background(), dtos.GetJobQuery{JobID: 7})
		require.NoError(t, err)
		assert.Equal(t, int64(7), result.ID)
		assert.Equal(t, postedAt, result.PostedAt)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := uc.Execute(context.Background(), dtos.GetJobQuery{JobID: 8})
		require.Error(t, err)
		assert.True(t, domainErrors.IsNotFound(err))

		var domainErr *domainErrors.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "JOB_NOT_FOUND", domainErr.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := uc.Execute(context.Background(), dtos.GetJobQuery{JobID: 0})
		assert.True(t, domainErrors.IsValidationError(err))
	})
}

func TestListJobsUseCase(t *testing.T) {
	var gotOffset, gotLimit int
	repo := &mockJobRepo{
		listFunc: func(_ context.Context, offset, limit int) ([]*entities.Job, error) {
			gotOffset, gotLimit = offset, limit
			return []*entities.Job{
				entities.ReconstructJob(2, "Newer", "", time.Now()),
				entities.ReconstructJob(1, "Older", "", time.Now().Add(-time.Hour)),
			}, nil
		},
		countFunc: func(context.Context) (int, error) { return 12, nil },
	}
	uc := NewListJobsUseCase(repo)

	result, err := uc.Execute(context.Background(), dtos.ListJobsQuery{Offset: 10, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 10, gotOffset)
	assert.Equal(t, 2, gotLimit)
	assert.Equal(t, 12, result.TotalCount)
	require.Len(t, result.Jobs, 2)
	assert.Equal(t, "Newer", result.Jobs[0].Title)
}

func TestListJobsUseCase_CountError(t *testing.T) {
	repo := &mockJobRepo{countFunc: func(context.Context) (int, error) {
		return 0, errors.New("timeout")
	}}
	_, err := NewListJobsUseCase(repo).Execute(context.Background(), dtos.ListJobsQuery{Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count jobs")
}
