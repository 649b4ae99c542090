package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panicRouter(config *RecoveryConfig, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery(config))
	router.POST("/api/v1/jobs/:id/apply", handler)
	return router
}

func TestRecovery_PanicValues(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name  string
		value any
	}{
		{"string", "submit failed"},
		{"error", assert.AnError},
		{"int", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := panicRouter(nil, func(c *gin.Context) { panic(tt.value) })

			w := serve(router, http.MethodPost, "/api/v1/jobs/7/apply", nil)

			require.Equal(t, http.StatusInternalServerError, w.Code)

			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
				RequestID string `json:"request_id"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
			assert.Equal(t, "An unexpected error occurred", body.Error.Message)
			assert.Equal(t, w.Header().Get(RequestIDHeader), body.RequestID)
		})
	}
}

func TestRecovery_CountsPanicsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := panicRouter(nil, func(c *gin.Context) { panic("boom") })
	counter := httpPanics.WithLabelValues("/api/v1/jobs/:id/apply")
	before := testutil.ToFloat64(counter)

	serve(router, http.MethodPost, "/api/v1/jobs/1/apply", nil)
	serve(router, http.MethodPost, "/api/v1/jobs/2/apply", nil)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestRecovery_LogsStackTraceWhenEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		withStack bool
	}{
		{"enabled", true},
		{"disabled", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			config := &RecoveryConfig{
				Logger:           slog.New(slog.NewJSONHandler(&buf, nil)),
				EnableStackTrace: tt.withStack,
			}
			router := panicRouter(config, func(c *gin.Context) { panic("boom") })

			serve(router, http.MethodPost, "/api/v1/jobs/7/apply", nil)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, "Panic recovered", entry["msg"])
			assert.Equal(t, "panic: boom", entry["error"])
			assert.Equal(t, "/api/v1/jobs/:id/apply", entry["route"])
			_, hasStack := entry["stack"]
			assert.Equal(t, tt.withStack, hasStack)
		})
	}
}

func TestRecovery_ResponseAlreadyWritten(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := panicRouter(nil, func(c *gin.Context) {
		c.String(http.StatusAccepted, "partial")
		panic("after write")
	})

	w := serve(router, http.MethodPost, "/api/v1/jobs/7/apply", nil)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestRecovery_RepanicsOnAbortHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := panicRouter(nil, func(c *gin.Context) { panic(http.ErrAbortHandler) })

	assert.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		serve(router, http.MethodPost, "/api/v1/jobs/7/apply", nil)
	})
}

func TestRecovery_NormalRequestUntouched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := panicRouter(DefaultRecoveryConfig(), func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	})

	w := serve(router, http.MethodPost, "/api/v1/jobs/7/apply", nil)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "queued")
}

func TestDefaultRecoveryConfig(t *testing.T) {
	config := DefaultRecoveryConfig()

	assert.NotNil(t, config.Logger)
	assert.True(t, config.EnableStackTrace)
}
