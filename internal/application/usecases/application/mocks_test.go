package application

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Haleralex/jobboard/internal/application/ports"
	"github.com/Haleralex/jobboard/internal/domain/entities"
	domainErrors "github.com/Haleralex/jobboard/internal/domain/errors"
	"github.com/Haleralex/jobboard/internal/domain/events"
)

// ============================================
// Mock Application Repository
// ============================================

// memoryAppRepo хранит отклики в памяти с уникальным ключом, как UNIQUE constraint.
type memoryAppRepo struct {
	mu      sync.Mutex
	seq     int64
	byKey   map[entities.ApplicationKey]*entities.Application
	inserts int

	existsByKeyFunc func(ctx context.Context, key entities.ApplicationKey) (bool, error)
	insertFunc      func(ctx context.Context, app *entities.Application) (bool, error)
	nextIDFunc      func(ctx context.Context) (int64, error)
}

func newMemoryAppRepo() *memoryAppRepo {
	return &memoryAppRepo{byKey: make(map[entities.ApplicationKey]*entities.Application)}
}

func (m *memoryAppRepo) NextID(ctx context.Context) (int64, error) {
	if m.nextIDFunc != nil {
		return m.nextIDFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *memoryAppRepo) ExistsByKey(ctx context.Context, key entities.ApplicationKey) (bool, error) {
	if m.existsByKeyFunc != nil {
		return m.existsByKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byKey[key]
	return ok, nil
}

func (m *memoryAppRepo) Insert(ctx context.Context, app *entities.Application) (bool, error) {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, app)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[app.Key()]; ok {
		return false, nil
	}
	if app.ID() == 0 {
		m.seq++
		app.AssignID(m.seq)
	}
	m.byKey[app.Key()] = app
	m.inserts++
	return true, nil
}

func (m *memoryAppRepo) ListByJob(ctx context.Context, jobID int64) ([]*entities.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entities.Application
	for _, app := range m.byKey {
		if app.JobID() == jobID {
			result = append(result, app)
		}
	}
	return result, nil
}

func (m *memoryAppRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}

// ============================================
// Mock Job Repository
// ============================================

type mockJobRepo struct {
	existsFunc func(ctx context.Context, id int64) (bool, error)
}

func (m *mockJobRepo) Create(ctx context.Context, job *entities.Job) error {
	return nil
}

func (m *mockJobRepo) FindByID(ctx context.Context, id int64) (*entities.Job, error) {
	return nil, domainErrors.ErrJobNotFound
}

func (m *mockJobRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if m.existsFunc != nil {
		return m.existsFunc(ctx, id)
	}
	return true, nil
}

func (m *mockJobRepo) List(ctx context.Context, offset, limit int) ([]*entities.Job, error) {
	return nil, nil
}

func (m *mockJobRepo) Count(ctx context.Context) (int, error) {
	return 0, nil
}

// ============================================
// Mock Unit of Work
// ============================================

type mockUnitOfWork struct {
	calls atomic.Int32
}

func (m *mockUnitOfWork) Execute(ctx context.Context, fn func(context.Context) error) error {
	m.calls.Add(1)
	return fn(ctx)
}

// ============================================
// Mock Notifier / Publisher
// ============================================

type mockNotifier struct {
	mu            sync.Mutex
	notifications []ports.Notification
	notifyFunc    func(ctx context.Context, n ports.Notification) error
}

func (m *mockNotifier) Notify(ctx context.Context, n ports.Notification) error {
	m.mu.Lock()
	m.notifications = append(m.notifications, n)
	m.mu.Unlock()
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, n)
	}
	return nil
}

func (m *mockNotifier) sent() []ports.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.Notification(nil), m.notifications...)
}

type mockPublisher struct {
	mu          sync.Mutex
	published   []*events.ApplicationSubmitted
	publishFunc func(ctx context.Context, event *events.ApplicationSubmitted) error
}

func (m *mockPublisher) Publish(ctx context.Context, event *events.ApplicationSubmitted) error {
	event.EnsureMessageID()
	m.mu.Lock()
	m.published = append(m.published, event)
	m.mu.Unlock()
	if m.publishFunc != nil {
		return m.publishFunc(ctx, event)
	}
	return nil
}
