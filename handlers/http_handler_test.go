package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ggstvfer/psd-covert-sub000/caching"
	"github.com/ggstvfer/psd-covert-sub000/config"
	"github.com/ggstvfer/psd-covert-sub000/extract"
	"github.com/ggstvfer/psd-covert-sub000/format"
	"github.com/ggstvfer/psd-covert-sub000/logging"
	"github.com/ggstvfer/psd-covert-sub000/queues"
	"github.com/ggstvfer/psd-covert-sub000/services"
	"github.com/ggstvfer/psd-covert-sub000/store"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := services.NewUploadServiceImpl(
		store.NewMemorySessionStoreImpl(),
		store.NewMemoryChunkStoreImpl(),
		store.NewMemoryChunkStoreImpl(),
		services.NewTieringPolicy(config.DefaultTierThreshold),
		extract.NewEngine(extract.NewHeaderDecoderImpl(), logging.NewNop()),
		caching.NewNullCachingService(),
		queues.NewNullCompletionNotifier(),
		config.ServiceConfig{},
		logging.NewNop(),
	)

	var ready atomic.Bool
	ready.Store(true)

	router := gin.New()
	NewHttpHandler(svc, &ready, logging.NewNop()).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", gin.H{"file_name": "hero.psd"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		SessionId string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionId)

	chunk := append([]byte(nil), format.Signature...)
	chunk = append(chunk, make([]byte, 100)...)

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionId+"/chunks", gin.H{
		"chunk": base64.StdEncoding.EncodeToString(chunk),
	})
	require.Equal(t, http.StatusOK, w.Code)

	var appended struct {
		CumulativeSize uint64 `json:"cumulative_size"`
		ChunkIndex     uint32 `json:"chunk_index"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &appended))
	require.Equal(t, uint64(104), appended.CumulativeSize)
	require.Equal(t, uint32(0), appended.ChunkIndex)

	w = doJSON(t, router, http.MethodGet, "/v1/sessions/"+created.SessionId, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionId+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var completed struct {
		Result struct {
			Truncated bool `json:"truncated"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &completed))
	require.False(t, completed.Result.Truncated)
}

func TestErrorEnvelopeAndStatusMapping(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/sessions/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "NO_SESSION", envelope.Error.Code)

	// Bad signature maps to 422 and tombstones the session.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions", gin.H{"file_name": "bad.psd"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		SessionId string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionId+"/chunks", gin.H{
		"chunk": base64.StdEncoding.EncodeToString([]byte("not a psd at all")),
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/chunks", created.SessionId), gin.H{
		"chunk": base64.StdEncoding.EncodeToString(format.Signature),
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAbortEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", gin.H{"file_name": "gone.psd"})
	var created struct {
		SessionId string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodDelete, "/v1/sessions/"+created.SessionId, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"aborted":true`)

	// Idempotent.
	w = doJSON(t, router, http.MethodDelete, "/v1/sessions/"+created.SessionId, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestInitRequiresFileName(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", gin.H{"encoding": "gzip"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "INVALID_REQUEST", envelope.Error.Code)
}

func TestAppendAcceptsExplicitIndex(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/sessions", gin.H{"file_name": "retry.psd"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		SessionId string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	chunk := base64.StdEncoding.EncodeToString(append(append([]byte(nil), format.Signature...), make([]byte, 60)...))

	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionId+"/chunks", gin.H{"chunk": chunk, "index": 0})
	require.Equal(t, http.StatusOK, w.Code)

	// Retransmitting index 0 is acknowledged with the same counters.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionId+"/chunks", gin.H{"chunk": chunk, "index": 0})
	require.Equal(t, http.StatusOK, w.Code)

	var acked struct {
		CumulativeSize uint64 `json:"cumulative_size"`
		ChunkIndex     uint32 `json:"chunk_index"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &acked))
	require.Equal(t, uint64(64), acked.CumulativeSize)
	require.Equal(t, uint32(0), acked.ChunkIndex)

	// A gap is a missing-chunk conflict carrying the next index.
	w = doJSON(t, router, http.MethodPost, "/v1/sessions/"+created.SessionId+"/chunks", gin.H{"chunk": chunk, "index": 5})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), `"index":1`)
}

func TestHealthzFollowsReadiness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var ready atomic.Bool
	router := gin.New()
	NewHttpHandler(nil, &ready, logging.NewNop()).RegisterRoutes(router)

	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	ready.Store(true)
	w = doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
