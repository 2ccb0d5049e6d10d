package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate/vaultgate/internal/ledger"
	"github.com/vaultgate/vaultgate/internal/logging"
)

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger, err := logging.NewDefaultLogger()
	require.NoError(t, err)

	svc := ledger.NewService(ledger.NewMemoryStore(), 100<<20, 50<<20)
	h := &handlers{svc: svc, log: logger}

	return setupRouter(h, logger)
}

func postUsage(t *testing.T, router *gin.Engine, body string) (int, int) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/usage", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		return w.Code, -1
	}

	var out struct {
		Response int `json:"response"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out.Response
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdmitUsage(t *testing.T) {
	router := newTestRouter(t)

	code, decision := postUsage(t, router, `{"userId":"alice","fileSizeMB":30}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, decision)

	// 30 + 30 = 60 exceeds the 50MB storage limit
	code, decision = postUsage(t, router, `{"userId":"alice","fileSizeMB":30}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, decision)

	// Releasing frees capacity again
	code, decision = postUsage(t, router, `{"userId":"alice","fileSizeMB":-30}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, decision)

	code, decision = postUsage(t, router, `{"userId":"alice","fileSizeMB":30}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, decision)
}

func TestAdmitUsageDailyLimit(t *testing.T) {
	router := newTestRouter(t)

	// Churn through uploads and deletes until the 100MB daily budget runs out
	for i := 0; i < 3; i++ {
		code, decision := postUsage(t, router, `{"userId":"bob","fileSizeMB":30}`)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, 0, decision)

		code, decision = postUsage(t, router, `{"userId":"bob","fileSizeMB":-30}`)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, 0, decision)
	}

	// 90MB of bandwidth spent; another 30MB breaks the daily limit
	code, decision := postUsage(t, router, `{"userId":"bob","fileSizeMB":30}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decision)
}

func TestAdmitUsageValidation(t *testing.T) {
	router := newTestRouter(t)

	code, _ := postUsage(t, router, `{"fileSizeMB":30}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = postUsage(t, router, `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestQueryUsage(t *testing.T) {
	router := newTestRouter(t)

	code, decision := postUsage(t, router, `{"userId":"alice","fileSizeMB":20}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 0, decision)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/usage?userId=alice", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		RemainingStorage   float64 `json:"remainingStorage"`
		RemainingBandwidth float64 `json:"remainingBandwidth"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.InDelta(t, 30.0, out.RemainingStorage, 0.01)
	assert.InDelta(t, 80.0, out.RemainingBandwidth, 0.01)
}

func TestQueryUsageMissingUserID(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/usage", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueryUsageUnknownPrincipal(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/usage?userId=nobody", nil)
	router.ServeHTTP(w, req)

	// Unknown principals report full quotas without creating a record
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		RemainingStorage   float64 `json:"remainingStorage"`
		RemainingBandwidth float64 `json:"remainingBandwidth"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.InDelta(t, 50.0, out.RemainingStorage, 0.01)
	assert.InDelta(t, 100.0, out.RemainingBandwidth, 0.01)
}

func TestSetAbsolute(t *testing.T) {
	router := newTestRouter(t)

	code, decision := postUsage(t, router, `{"userId":"alice","fileSizeMB":40}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 0, decision)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/usage/absolute", strings.NewReader(`{"userId":"alice","totalMB":10}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/usage?userId=alice", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		RemainingStorage float64 `json:"remainingStorage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.InDelta(t, 40.0, out.RemainingStorage, 0.01)
}
