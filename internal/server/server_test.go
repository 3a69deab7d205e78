package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/creatorbot/intent-kernel/internal/dialogue"
	"github.com/creatorbot/intent-kernel/internal/intent"
	"github.com/creatorbot/intent-kernel/internal/jsonx"
	"github.com/creatorbot/intent-kernel/internal/pipeline"
)

func newTestServer(t *testing.T, store Pinger) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := intent.DefaultConfig()
	cfg.ContextualLogicEnabled = true
	engine := intent.NewEngine(cfg, logger, intent.WithPicker(func(int) int { return 0 }))

	deduper, err := pipeline.NewDeduper(64, time.Minute)
	require.NoError(t, err)

	p, err := pipeline.New(pipeline.Deps{
		Engine:  engine,
		States:  dialogue.NewRedisStore(client, nil, dialogue.DefaultStoreConfig(), logger),
		History: dialogue.NewHistoryStore(client, 20, time.Second, logger),
		Usage:   dialogue.NewUsageCounter(client, time.Second, logger),
		Deduper: deduper,
	}, pipeline.Config{}, logger)
	require.NoError(t, err)

	if store == nil {
		store = PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}
	srv := httptest.NewServer(NewServer(p, store, logger).Handler(nil))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, []byte(buf.String())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body := do(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
	assert.Contains(t, string(body), `"store":"ok"`)

	down := newTestServer(t, PingFunc(func(context.Context) error { return errors.New("down") }))
	status, body = do(t, down, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"degraded"`)
}

func TestPostMessage(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := do(t, srv, "POST", "/v1/messages",
		`{"id":"m1","userId":"u1","text":"quais os melhores horários para postar?"}`)
	require.Equal(t, http.StatusOK, status, string(body))

	var out pipeline.Outcome
	require.NoError(t, jsonx.Unmarshal(body, &out))
	assert.Equal(t, intent.AskBestTime, out.Result.Intent)
	assert.Equal(t, 0.75, out.Result.Confidence)

	status, _ = do(t, srv, "POST", "/v1/messages",
		`{"id":"m1","userId":"u1","text":"quais os melhores horários para postar?"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, srv, "POST", "/v1/messages", `{"id":"m2","text":"oi"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, srv, "POST", "/v1/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, srv, "GET", "/v1/users/u1/usage", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"userId":"u1","count":1}`, string(body))

	status, body = do(t, srv, "GET", "/v1/users/u1/history", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"userId":"u1","turns":[{"role":"user","content":"quais os melhores horários para postar?"}]}`, string(body))
}

func TestClassifyIsStateless(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := do(t, srv, "POST", "/v1/classify",
		`{"text":"sim","state":{"lastAIQuestionType":"confirm_fetch_day_stats","pendingActionContext":{"day":"monday"}}}`)
	require.Equal(t, http.StatusOK, status)

	var res intent.Result
	require.NoError(t, jsonx.Unmarshal(body, &res))
	assert.Equal(t, intent.UserConfirmsPendingAction, res.Intent)
	assert.JSONEq(t, `{"day":"monday"}`, string(res.PendingActionContext))

	status, body = do(t, srv, "POST", "/v1/classify", `{"text":"oi","userName":"Ana"}`)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, jsonx.Unmarshal(body, &res))
	assert.Equal(t, intent.SpecialHandled, res.Type)
	assert.Equal(t, "Olá, Ana! Como posso te ajudar com seu conteúdo hoje?", res.Response)

	_, body = do(t, srv, "GET", "/v1/stats", "")
	var stats intent.Stats
	require.NoError(t, jsonx.Unmarshal(body, &stats))
	assert.EqualValues(t, 2, stats.Total)
}

func TestStateEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := do(t, srv, "GET", "/v1/users/u1/state", "")
	require.Equal(t, http.StatusOK, status)
	var st dialogue.State
	require.NoError(t, jsonx.Unmarshal(body, &st))
	assert.Equal(t, dialogue.DefaultState(), st)
	assert.Nil(t, st.PendingActionContext)

	status, body = do(t, srv, "PATCH", "/v1/users/u1/state", `{"conversationSummary":"Falamos de reels.","summaryTurnCounter":3}`)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, jsonx.Unmarshal(body, &st))
	assert.Equal(t, "Falamos de reels.", st.Summary())
	assert.Equal(t, 3, st.SummaryTurnCounter)
	assert.NotZero(t, st.LastInteraction)

	status, _ = do(t, srv, "PATCH", "/v1/users/u1/state", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, srv, "POST", "/v1/users/u1/responses",
		`{"content":"Seu alcance caiu 5%.","topic":"métricas de alcance"}`)
	require.Equal(t, http.StatusOK, status)
	st = dialogue.State{}
	require.NoError(t, jsonx.Unmarshal(body, &st))
	assert.Equal(t, "métricas de alcance", st.LastResponseContext.TopicOrEmpty())
	assert.Equal(t, 3, st.SummaryTurnCounter)

	status, body = do(t, srv, "POST", "/v1/messages", `{"id":"m1","userId":"u1","text":"quero mais detalhes"}`)
	require.Equal(t, http.StatusOK, status)
	var out pipeline.Outcome
	require.NoError(t, jsonx.Unmarshal(body, &out))
	assert.Equal(t, intent.RequestMetricDetailsFromContext, out.Result.Intent)
	assert.Equal(t, "métricas de alcance", out.Result.ResolvedContextTopic)
}

func TestOversizedBodyIsRejected(t *testing.T) {
	srv := newTestServer(t, nil)
	text := strings.Repeat("não ", maxBodyBytes/4)

	for _, path := range []string{"/v1/messages", "/v1/classify"} {
		status, _ := do(t, srv, "POST", path, `{"id":"m1","userId":"u1","text":"`+text+`"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, status, path)
	}

	status, _ := do(t, srv, "GET", "/v1/users/u1/usage", "")
	assert.Equal(t, http.StatusOK, status)
}
