package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugtriage/internal/mocks"
	"bugtriage/pkg/chatlog"
	"bugtriage/pkg/config"
	"bugtriage/pkg/fixtures"
	"bugtriage/pkg/issues"
	"bugtriage/pkg/logx"
	"bugtriage/pkg/metrics"
	"bugtriage/pkg/persistence"
	"bugtriage/pkg/server"
	"bugtriage/pkg/tools"
	"bugtriage/pkg/tracker"
	"bugtriage/pkg/triage"
)

type stack struct {
	srv   *httptest.Server
	store *persistence.Store
}

func newStack(t *testing.T, opts server.Options) *stack {
	t.Helper()
	data := &config.DataConfig{Dir: t.TempDir(), TicketsFile: "tickets.json", ChatFile: "chat.json", IssuesFile: "issues.json"}
	require.NoError(t, fixtures.Seed(data, "CSE"))
	catalog, err := tools.NewTriageCatalog(time.Second,
		tracker.NewStore(data.TicketsPath(), "CSE"),
		chatlog.NewStore(data.ChatPath()),
		issues.NewFileSource(data.IssuesPath()))
	require.NoError(t, err)

	store, err := persistence.Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"), "serve", "policy")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	orch := triage.New(mocks.NewPolicyDecider("CSE"), catalog, triage.Options{
		Observer: triage.Observers{store, metrics.NewRunRecorder(reg)},
	})
	opts.Gatherer = reg

	srv := httptest.NewServer(server.New(orch, store.Ops(), opts).Handler())
	t.Cleanup(srv.Close)
	return &stack{srv: srv, store: store}
}

func postTriage(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url+"/v1/triage", bytes.NewReader(raw))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestTriageThenHistory(t *testing.T) {
	s := newStack(t, server.Options{})

	resp := postTriage(t, s.srv.URL, "", server.TriageRequest{Query: "Login failure in production", Trace: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[server.TriageResponse](t, resp)
	require.NotNil(t, out.Output)
	assert.Equal(t, triage.StatusComplete, out.Output.Status)
	assert.Equal(t, "CSE-1", out.Output.TicketID)
	require.NotNil(t, out.Trace)
	assert.NotEmpty(t, out.Trace.ToolCalls)

	resp, err := http.Get(s.srv.URL + "/v1/runs?limit=5")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	runs := decode[[]persistence.Run](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, out.RunID, runs[0].RunID)

	resp, err = http.Get(s.srv.URL + "/v1/runs/" + out.RunID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decode[persistence.Run](t, resp)
	assert.Equal(t, triage.ActionFoundDuplicate, run.ActionTaken)
	assert.Len(t, run.ToolCalls, 3)

	resp, err = http.Get(s.srv.URL + "/v1/runs/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `triage_runs_total{action="found_duplicate",severity="high",status="complete"} 1`)
}

func TestTriageValidation(t *testing.T) {
	s := newStack(t, server.Options{})

	resp := postTriage(t, s.srv.URL, "", server.TriageRequest{Query: "   "})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r, err := http.Post(s.srv.URL+"/v1/triage", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)

	r, err = http.Get(s.srv.URL + "/v1/runs?limit=zero")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)

	r, err = http.Get(s.srv.URL + "/v1/triage")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, r.StatusCode)
}

func TestTokenRequired(t *testing.T) {
	s := newStack(t, server.Options{Token: "s3cret"})

	resp := postTriage(t, s.srv.URL, "", server.TriageRequest{Query: "Typo in footer"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postTriage(t, s.srv.URL, "wrong", server.TriageRequest{Query: "Typo in footer"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postTriage(t, s.srv.URL, "s3cret", server.TriageRequest{Query: "Typo in footer"})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	r, err := http.Get(s.srv.URL + "/healthz")
	require.NoError(t, err)
	health := decode[map[string]any](t, r)
	assert.Equal(t, "ok", health["status"])
}

type blockingTriager struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTriager) RunWithTrace(ctx context.Context, _ string) (*triage.Trace, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &triage.Trace{RunID: "blocked", Output: &triage.FinalOutput{Status: triage.StatusComplete}}, nil
}

func TestConcurrencyLimit(t *testing.T) {
	b := &blockingTriager{started: make(chan struct{}, 1), release: make(chan struct{})}
	srv := httptest.NewServer(server.New(b, nil, server.Options{MaxConcurrency: 1, Gatherer: prometheus.NewRegistry()}).Handler())
	defer srv.Close()

	done := make(chan int, 1)
	go func() {
		resp := postTriage(t, srv.URL, "", server.TriageRequest{Query: "first"})
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-b.started

	resp := postTriage(t, srv.URL, "", server.TriageRequest{Query: "second"})
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))

	close(b.release)
	assert.Equal(t, http.StatusOK, <-done)

	r, err := http.Get(srv.URL + "/v1/runs")
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, r.StatusCode, "history disabled")
}

type failingTriager struct{ err error }

func (f failingTriager) RunWithTrace(context.Context, string) (*triage.Trace, error) {
	return &triage.Trace{RunID: "r-fail"}, f.err
}

func TestTriageErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&triage.RunError{RunID: "r", State: triage.StateAgentTurn, Err: fmt.Errorf("%w: 503", triage.ErrDecisionMaker)}, http.StatusBadGateway},
		{&triage.RunError{RunID: "r", State: triage.StateToolExec, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{fmt.Errorf("%w: disk full", triage.ErrTool), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(server.New(failingTriager{tt.err}, nil, server.Options{Gatherer: prometheus.NewRegistry()}).Handler())
		resp := postTriage(t, srv.URL, "", server.TriageRequest{Query: "q"})
		assert.Equal(t, tt.want, resp.StatusCode, tt.err.Error())
		out := decode[server.TriageResponse](t, resp)
		assert.Equal(t, "r-fail", out.RunID)
		assert.NotEmpty(t, out.Error)
		srv.Close()
	}
}

func TestLogsEndpoint(t *testing.T) {
	s := newStack(t, server.Options{})
	logx.NewLogger("server-test").Info("hello from the log buffer")

	resp, err := http.Get(s.srv.URL + "/v1/logs?component=server-test&since=1m")
	require.NoError(t, err)
	entries := decode[[]logx.LogEntry](t, resp)
	require.NotEmpty(t, entries)
	assert.Equal(t, "hello from the log buffer", entries[len(entries)-1].Message)

	resp, err = http.Get(s.srv.URL + "/v1/logs?since=soon")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
