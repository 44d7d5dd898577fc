package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mail-archivist/internal/handler"
	"mail-archivist/internal/logstream"
	"mail-archivist/internal/model"
	"mail-archivist/internal/pipeline"
	"mail-archivist/internal/repository"
	"mail-archivist/internal/rules"
	"mail-archivist/internal/settings"
)

type stubRunner struct {
	running bool
	last    pipeline.Params
}

func (s *stubRunner) Start(action model.Action, params pipeline.Params) (model.RunInfo, error) {
	if !action.Valid() {
		return model.RunInfo{}, &pipeline.ValidationError{Field: "action", Msg: "unknown"}
	}
	if s.running {
		return model.RunInfo{}, &pipeline.AlreadyRunningError{Current: model.RunInfo{RunID: "r0", Action: model.ActionSync}}
	}
	if _, err := pipeline.ParseWindow(params, time.Now()); err != nil {
		return model.RunInfo{}, err
	}
	s.running = true
	s.last = params
	return model.RunInfo{RunID: "r1", Status: model.StatusRunning, Action: action}, nil
}

func (s *stubRunner) Status() model.RunInfo {
	if s.running {
		return model.RunInfo{RunID: "r1", Status: model.StatusRunning}
	}
	return model.RunInfo{Status: model.StatusIdle}
}

type testServer struct {
	router *Router
	store  *rules.Store
	emails *repository.MemoryEmailRepository
	stream *logstream.Stream
	runner *stubRunner
}

func newTestServer(t *testing.T, checks ...ReadinessCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &testServer{
		store:  rules.NewStore(repository.NewMemoryRuleRepository(), nil, nil),
		emails: repository.NewMemoryEmailRepository(),
		stream: logstream.New(10),
		runner: &stubRunner{},
	}
	logger := zap.NewNop()
	s.router = NewRouter(Handlers{
		Rules:    handler.NewRuleHandler(s.store, logger),
		Pipeline: handler.NewPipelineHandler(s.runner, logger),
		Logs:     handler.NewLogHandler(s.stream),
		Stats:    handler.NewStatsHandler(s.emails, s.store, logger),
		Settings: handler.NewSettingsHandler(settings.New("secret-key-1234", false)),
	}, checks...)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestRules_CreateConflictDelete(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/rules", gin.H{"sender": "A@X.com", "category": "Finance"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Status string `json:"status"`
		Rule   struct {
			Key      string `json:"key"`
			RuleType string `json:"rule_type"`
		} `json:"rule"`
	}
	decode(t, w, &created)
	assert.Equal(t, "success", created.Status)
	assert.Equal(t, "a@x.com", created.Rule.Key)
	assert.Equal(t, "sender", created.Rule.RuleType)

	w = s.do(t, http.MethodPost, "/api/rules", gin.H{"rule_type": "sender", "sender": "a@x.com", "category": "Spam"})
	require.Equal(t, http.StatusConflict, w.Code)
	var conflict struct {
		Detail struct {
			Existing struct {
				Key      string `json:"key"`
				Category string `json:"category"`
			} `json:"existing_rule"`
		} `json:"detail"`
	}
	decode(t, w, &conflict)
	assert.Equal(t, "a@x.com", conflict.Detail.Existing.Key)
	assert.Equal(t, "Finance", conflict.Detail.Existing.Category)

	w = s.do(t, http.MethodPost, "/api/rules", gin.H{"rule_type": "subject", "category": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/rules/"+url.PathEscape("a@x.com"), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/api/rules/"+url.PathEscape("a@x.com"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRules_DeleteEncodedKeywordKey(t *testing.T) {
	s := newTestServer(t)
	_, err := s.store.Add(context.Background(), model.NewKeywordRule("order/shipped now", "Logistics"))
	require.NoError(t, err)

	w := s.do(t, http.MethodDelete, "/api/rules/"+url.PathEscape("keyword:order/shipped now"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, s.store.Len())
}

func TestRules_ListInInsertionOrder(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.store.Add(ctx, model.NewKeywordRule("sale", "Promo"))
	require.NoError(t, err)
	_, err = s.store.Add(ctx, model.NewSenderRule("a@x.com", "Finance"))
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []struct {
		Key string `json:"key"`
	}
	decode(t, w, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "keyword:sale", list[0].Key)
	assert.Equal(t, "a@x.com", list[1].Key)
}

func TestPipeline_StartAndConflict(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/pipeline", gin.H{"action": "sync", "year": 2024})
	require.Equal(t, http.StatusAccepted, w.Code)
	var started map[string]any
	decode(t, w, &started)
	assert.Equal(t, "started", started["status"])
	assert.Equal(t, "r1", started["run_id"])
	assert.Equal(t, "2024", s.runner.last.Year)

	w = s.do(t, http.MethodPost, "/api/pipeline", gin.H{"action": "auto"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/pipeline/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info model.RunInfo
	decode(t, w, &info)
	assert.Equal(t, model.StatusRunning, info.Status)
}

func TestPipeline_Invalid(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/pipeline", gin.H{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/pipeline", gin.H{"action": "sync", "after": "2024/02/01", "before": "2024/01/01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogs_CursorAndGap(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 15; i++ {
		s.stream.Append(model.LevelInfo, "line")
	}

	w := s.do(t, http.MethodGet, "/api/logs?since=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "15", w.Header().Get(handler.HeaderLogCursor))
	assert.Equal(t, "true", w.Header().Get(handler.HeaderLogGap))
	var entries []model.LogEntry
	decode(t, w, &entries)
	require.Len(t, entries, 10)
	assert.Equal(t, uint64(6), entries[0].Seq)

	w = s.do(t, http.MethodGet, "/api/logs?since=15", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", w.Header().Get(handler.HeaderLogGap))
	assert.JSONEq(t, "[]", w.Body.String())

	w = s.do(t, http.MethodGet, "/api/logs?since=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDatabase_StatsAndClear(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.emails.UpsertEmails(ctx, []model.Email{
		{ID: "1", Sender: "a@x.com", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), SizeEstimate: 2_000_000},
		{ID: "2", Sender: "b@x.com", Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), SizeEstimate: 1000},
	})
	require.NoError(t, err)
	_, err = s.store.Add(ctx, model.NewSenderRule("a@x.com", "Finance"))
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.EmailStats
	decode(t, w, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.TrashFound)
	assert.Len(t, stats.ChartData, 2)

	w = s.do(t, http.MethodGet, "/api/database/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var counts model.DatabaseStats
	decode(t, w, &counts)
	assert.Equal(t, model.DatabaseStats{Emails: 2, Rules: 1}, counts)

	w = s.do(t, http.MethodPost, "/api/database/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"cleared","deleted":2}`, w.Body.String())
	assert.Equal(t, 1, s.store.Len())
}

func TestSettings_MaskedKey(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"google_api_key":"***********1234","has_credentials":false}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/settings", gin.H{"google_api_key": "new-key-9876"})
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	decode(t, w, &body)
	assert.Equal(t, "********9876", body["google_api_key"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, ReadinessCheck{Name: "db", Check: func(ctx context.Context) error { return errors.New("down") }})

	w := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "db_not_ready")
}
