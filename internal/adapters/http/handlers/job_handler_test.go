package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haleralex/jobboard/internal/adapters/http/middleware"
	"github.com/Haleralex/jobboard/internal/application/dtos"
	domerrors "github.com/Haleralex/jobboard/internal/domain/errors"
)

// ============================================
// Mock Use Cases
// ============================================

type mockCreateJobUseCase struct {
	ExecuteFn func(ctx context.Context, cmd dtos.CreateJobCommand) (*dtos.JobDTO, error)
}

func (m *mockCreateJobUseCase) Execute(ctx context.Context, cmd dtos.CreateJobCommand) (*dtos.JobDTO, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, cmd)
	}
	return nil, nil
}

type mockGetJobUseCase struct {
	ExecuteFn func(ctx context.Context, query dtos.GetJobQuery) (*dtos.JobDTO, error)
}

func (m *mockGetJobUseCase) Execute(ctx context.Context, query dtos.GetJobQuery) (*dtos.JobDTO, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, query)
	}
	return nil, nil
}

type mockListJobsUseCase struct {
	ExecuteFn func(ctx context.Context, query dtos.ListJobsQuery) (*dtos.JobListDTO, error)
}

func (m *mockListJobsUseCase) Execute(ctx context.Context, query dtos.ListJobsQuery) (*dtos.JobListDTO, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, query)
	}
	return &dtos.JobListDTO{}, nil
}

// ============================================
// Helper Functions
// ============================================

func setupJobTestRouter(handler *JobHandler, employerOnly ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	SetupValidator()
	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/v1"), employerOnly...)
	return router
}

func postJSON(router http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code   string `json:"code"`
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	} `json:"error"`
	Meta *struct {
		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		Total      int `json:"total"`
		TotalPages int `json:"total_pages"`
	} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// ============================================
// Test Cases
// ============================================

func TestJobHandler_CreateJob(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var got dtos.CreateJobCommand
		uc := &mockCreateJobUseCase{
			ExecuteFn: func(_ context.Context, cmd dtos.CreateJobCommand) (*dtos.JobDTO, error) {
				got = cmd
				return &dtos.JobDTO{ID: 7, Title: cmd.Title, Description: cmd.Description, PostedAt: time.Now()}, nil
			},
		}
		router := setupJobTestRouter(NewJobHandler(uc, nil, nil))

		w := postJSON(router, "/api/v1/jobs", CreateJobRequest{Title: "Go Engineer", Description: "Build pipelines"}, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "Go Engineer", got.Title)

		var job dtos.JobDTO
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &job))
		assert.Equal(t, int64(7), job.ID)
	})

	t.Run("BlankTitle", func(t *testing.T) {
		router := setupJobTestRouter(NewJobHandler(&mockCreateJobUseCase{}, nil, nil))

		w := postJSON(router, "/api/v1/jobs", CreateJobRequest{Title: "   "}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		env := decode(t, w)
		require.NotNil(t, env.Error)
		require.NotEmpty(t, env.Error.Fields)
		assert.Equal(t, "title", env.Error.Fields[0].Field)
	})

	t.Run("TitleTooLong", func(t *testing.T) {
		router := setupJobTestRouter(NewJobHandler(&mockCreateJobUseCase{}, nil, nil))

		w := postJSON(router, "/api/v1/jobs", CreateJobRequest{Title: strings.Repeat("x", 201)}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("EmployerOnly", func(t *testing.T) {
		uc := &mockCreateJobUseCase{
			ExecuteFn: func(_ context.Context, cmd dtos.CreateJobCommand) (*dtos.JobDTO, error) {
				return &dtos.JobDTO{ID: 1, Title: cmd.Title}, nil
			},
		}
		const secret = "s3cret"
		router := setupJobTestRouter(NewJobHandler(uc, nil, &mockListJobsUseCase{}),
			middleware.Auth(&middleware.AuthConfig{TokenValidator: middleware.JWTValidator(secret, "")}),
			middleware.RequireRole(middleware.RoleEmployer),
		)
		body := CreateJobRequest{Title: "Go Engineer"}

		w := postJSON(router, "/api/v1/jobs", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		applicant, err := middleware.GenerateJWT(secret, "", "u-1", "", "applicant", time.Hour)
		require.NoError(t, err)
		w = postJSON(router, "/api/v1/jobs", body, map[string]string{"Authorization": "Bearer " + applicant})
		assert.Equal(t, http.StatusForbidden, w.Code)

		employer, err := middleware.GenerateJWT(secret, "", "u-2", "", middleware.RoleEmployer, time.Hour)
		require.NoError(t, err)
		w = postJSON(router, "/api/v1/jobs", body, map[string]string{"Authorization": "Bearer " + employer})
		assert.Equal(t, http.StatusCreated, w.Code)

		// Чтение открыто
		assert.Equal(t, http.StatusOK, get(router, "/api/v1/jobs").Code)
	})
}

func TestJobHandler_GetJob(t *testing.T) {
	uc := &mockGetJobUseCase{
		ExecuteFn: func(_ context.Context, query dtos.GetJobQuery) (*dtos.JobDTO, error) {
			if query.JobID == 7 {
				return &dtos.JobDTO{ID: 7, Title: "Go Engineer"}, nil
			}
			return nil, domerrors.NewDomainError("JOB_NOT_FOUND", "job not found", domerrors.ErrJobNotFound)
		},
	}
	router := setupJobTestRouter(NewJobHandler(nil, uc, nil))

	tests := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"Found", "/api/v1/jobs/7", http.StatusOK},
		{"NotFound", "/api/v1/jobs/8", http.StatusNotFound},
		{"NotANumber", "/api/v1/jobs/abc", http.StatusBadRequest},
		{"Zero", "/api/v1/jobs/0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, get(router, tt.path).Code)
		})
	}
}

func TestJobHandler_ListJobs(t *testing.T) {
	t.Run("Pagination", func(t *testing.T) {
		var got dtos.ListJobsQuery
		uc := &mockListJobsUseCase{
			ExecuteFn: func(_ context.Context, query dtos.ListJobsQuery) (*dtos.JobListDTO, error) {
				got = query
				return &dtos.JobListDTO{
					Jobs:       []dtos.JobDTO{{ID: 3}, {ID: 2}},
					TotalCount: 12,
					Offset:     query.Offset,
					Limit:      query.Limit,
				}, nil
			},
		}
		router := setupJobTestRouter(NewJobHandler(nil, nil, uc))

		w := get(router, "/api/v1/jobs?page=2&per_page=5")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, dtos.ListJobsQuery{Offset: 5, Limit: 5}, got)

		env := decode(t, w)
		require.NotNil(t, env.Meta)
		assert.Equal(t, 12, env.Meta.Total)
		assert.Equal(t, 3, env.Meta.TotalPages)

		var jobs []dtos.JobDTO
		require.NoError(t, json.Unmarshal(env.Data, &jobs))
		assert.Len(t, jobs, 2)
	})

	t.Run("StoreError", func(t *testing.T) {
		uc := &mockListJobsUseCase{
			ExecuteFn: func(context.Context, dtos.ListJobsQuery) (*dtos.JobListDTO, error) {
				return nil, errors.New("connection reset")
			},
		}
		router := setupJobTestRouter(NewJobHandler(nil, nil, uc))

		w := get(router, "/api/v1/jobs")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})
}
