package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenwatch/internal/config"
	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/accounting"
	healthuc "github.com/kailas-cloud/tokenwatch/internal/usecase/health"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/ledger"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/notify"
	reportuc "github.com/kailas-cloud/tokenwatch/internal/usecase/report"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/threshold"
)

const adminID = "1001"

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type failingStore struct{}

func (failingStore) Load(context.Context) (*usage.State, error) { return nil, errors.New("unused") }
func (failingStore) Save(context.Context, *usage.State) error   { return errors.New("disk full") }

type testEnv struct {
	router http.Handler
	ledger *ledger.Ledger
}

func newTestEnv(t *testing.T, store ledger.Store, opts Options, limits threshold.Limits) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	l := ledger.New(logger)
	if store != nil {
		l.WithStore(store)
	}
	engine := accounting.New(l, threshold.New(limits), notify.New(notify.NewLogSender(logger), logger),
		[]string{adminID}, logger).WithClock(func() time.Time { return time.Unix(1700000000, 0) })
	report := reportuc.New(l, limits.CostPerToken)
	health := healthuc.New(stubPinger{}, l)

	r := gochi.NewRouter()
	NewServer(engine, report, health, opts, logger).Register(r)
	return &testEnv{router: r, ledger: l}
}

func (e *testEnv) do(t *testing.T, method, path, body, sender string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	if sender != "" {
		req.Header.Set(SenderHeader, sender)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func defaultOpts() Options {
	return Options{Admins: &config.Config{AdminIDs: []string{adminID}}}
}

func TestRecordEvent(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	rr := env.do(t, "POST", "/v1/events",
		`{"scope":"private","scope_id":"42","user_id":"u1","prompt_tokens":100,"completion_tokens":50}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[EventResponse](t, rr)
	if !resp.Recorded || resp.SessionID != "private_42" || resp.SessionTokens != 150 || resp.TotalTokens != 150 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(resp.Alerts))
	}
}

func TestRecordEvent_Ignored(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	rr := env.do(t, "POST", "/v1/events", `{"user_id":"u1"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if resp := decode[EventResponse](t, rr); resp.Recorded {
		t.Error("event without tokens must not be recorded")
	}
	if env.ledger.Snapshot().Total() != 0 {
		t.Error("ignored event changed the total")
	}
}

func TestRecordEvent_BadBody(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	rr := env.do(t, "POST", "/v1/events", `{`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestRecordEvent_MalformedTokensIgnored(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	for _, body := range []string{
		`{"user_id":"u1","prompt_tokens":-5}`,
		`{"user_id":"u1","prompt_tokens":"many","completion_tokens":1.5}`,
		`{"user_id":"u1","total_tokens":null}`,
	} {
		rr := env.do(t, "POST", "/v1/events", body, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", body, rr.Code)
		}
		if resp := decode[EventResponse](t, rr); resp.Recorded {
			t.Errorf("%s: expected recorded=false", body)
		}
	}
	if env.ledger.Snapshot().Total() != 0 {
		t.Error("malformed events must not change counters")
	}
}

func TestRecordEvent_MalformedPartFallsBack(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	rr := env.do(t, "POST", "/v1/events", `{"user_id":"u1","prompt_tokens":-5,"total_tokens":40}`, "")
	resp := decode[EventResponse](t, rr)
	if !resp.Recorded || resp.SessionTokens != 40 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRecordEvent_OverflowAlert(t *testing.T) {
	limits := threshold.Limits{MaxTokens: map[usage.Scope]uint64{usage.ScopePrivate: 150}}
	env := newTestEnv(t, nil, defaultOpts(), limits)

	rr := env.do(t, "POST", "/v1/events",
		`{"scope":"private","scope_id":"42","user_id":"u1","prompt_tokens":100,"completion_tokens":50}`, "")
	resp := decode[EventResponse](t, rr)
	if len(resp.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(resp.Alerts))
	}
	a := resp.Alerts[0]
	if a.Kind != "overflow" || a.Observed != 150 || a.Limit != 150 {
		t.Errorf("unexpected alert: %+v", a)
	}
	if !a.Delivered || a.Recipient != adminID {
		t.Errorf("expected delivery to %s, got %+v", adminID, a)
	}
}

func TestRecordCompletion(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	body := `{"group_id":"7","user_id":"u1","completion":{"id":"c1","object":"chat.completion",` +
		`"usage":{"prompt_tokens":20,"completion_tokens":10,"total_tokens":30}}}`
	resp := decode[EventResponse](t, env.do(t, "POST", "/v1/events/completion", body, ""))
	if !resp.Recorded || resp.SessionID != "group_7" || resp.SessionTokens != 30 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGetSession(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{CostPerToken: 0.5})
	env.do(t, "POST", "/v1/events", `{"group_id":"2","user_id":"u1","total_tokens":20}`, "")

	resp := decode[SessionResponse](t, env.do(t, "GET", "/v1/sessions/group_2", "", ""))
	if !resp.Known || resp.Tokens != 20 || resp.LastUsage != 20 || resp.Scope != "group" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Cost == nil || *resp.Cost != 10 {
		t.Errorf("expected cost 10, got %v", resp.Cost)
	}

	unknown := decode[SessionResponse](t, env.do(t, "GET", "/v1/sessions/private_9", "", ""))
	if unknown.Known || unknown.Tokens != 0 {
		t.Errorf("unknown session must be zero-valued: %+v", unknown)
	}
}

func TestToggleDisplay(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	first := decode[DisplayResponse](t, env.do(t, "POST", "/v1/sessions/private_1/display", "", ""))
	second := decode[DisplayResponse](t, env.do(t, "POST", "/v1/sessions/private_1/display", "", ""))
	if !first.Display || second.Display {
		t.Errorf("toggle sequence = %v, %v, want true, false", first.Display, second.Display)
	}
}

func TestAdminRoutes_Forbidden(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	routes := []struct{ method, path string }{
		{"GET", "/v1/sessions"},
		{"DELETE", "/v1/sessions/private_1"},
		{"GET", "/v1/export"},
		{"GET", "/v1/summary"},
		{"GET", "/v1/series"},
	}
	for _, rt := range routes {
		for _, sender := range []string{"", "someone"} {
			rr := env.do(t, rt.method, rt.path, "", sender)
			if rr.Code != http.StatusForbidden {
				t.Errorf("%s %s sender=%q: got %d, want 403", rt.method, rt.path, sender, rr.Code)
				continue
			}
			if resp := decode[ErrorResponse](t, rr); resp.Code != ErrorCodeForbidden {
				t.Errorf("%s %s: code = %s", rt.method, rt.path, resp.Code)
			}
		}
	}
}

func TestAdminRoutes_NoAdminsConfigured(t *testing.T) {
	env := newTestEnv(t, nil, Options{}, threshold.Limits{})

	if rr := env.do(t, "GET", "/v1/summary", "", adminID); rr.Code != http.StatusForbidden {
		t.Errorf("got %d, want 403", rr.Code)
	}
}

func TestSeries_Open(t *testing.T) {
	opts := defaultOpts()
	opts.OpenSeries = true
	env := newTestEnv(t, nil, opts, threshold.Limits{})
	env.do(t, "POST", "/v1/events", `{"user_id":"u1","total_tokens":5}`, "")

	rr := env.do(t, "GET", "/v1/series", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[SeriesResponse](t, rr)
	if len(resp.Points) != 1 || resp.Points[0].Tokens != 5 || resp.Points[0].At.Unix() != 1700000000 {
		t.Errorf("unexpected series: %+v", resp.Points)
	}
}

func TestResetSession(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})
	env.do(t, "POST", "/v1/events", `{"user_id":"1","total_tokens":10}`, "")
	env.do(t, "POST", "/v1/events", `{"group_id":"2","user_id":"1","total_tokens":20}`, "")

	rr := env.do(t, "DELETE", "/v1/sessions/group_2", "", adminID)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[ResetResponse](t, rr)
	if !resp.Found || resp.RemovedTokens != 20 || resp.TotalTokens != 10 {
		t.Errorf("unexpected reset: %+v", resp)
	}

	again := decode[ResetResponse](t, env.do(t, "DELETE", "/v1/sessions/group_2", "", adminID))
	if again.Found || again.TotalTokens != 10 {
		t.Errorf("second reset must be a no-op: %+v", again)
	}
}

func TestResetSession_PersistenceFailure(t *testing.T) {
	env := newTestEnv(t, failingStore{}, defaultOpts(), threshold.Limits{})
	env.do(t, "POST", "/v1/events", `{"user_id":"1","total_tokens":10}`, "")

	rr := env.do(t, "DELETE", "/v1/sessions/private_1", "", adminID)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	resp := decode[ErrorResponse](t, rr)
	if resp.Code != ErrorCodePersistence || resp.Message != "operation failed, check logs" {
		t.Errorf("unexpected error: %+v", resp)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})
	env.do(t, "POST", "/v1/events", `{"user_id":"1","total_tokens":10}`, "")
	env.do(t, "POST", "/v1/events", `{"group_id":"2","user_id":"1","total_tokens":20}`, "")

	resp := decode[SessionListResponse](t, env.do(t, "GET", "/v1/sessions", "", adminID))
	if len(resp.Sessions) != 2 || resp.Sessions[0].SessionID != "group_2" || resp.TotalTokens != 30 {
		t.Errorf("unexpected listing: %+v", resp)
	}
}

func TestExport(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})
	env.do(t, "POST", "/v1/events", `{"user_id":"1","total_tokens":10}`, "")
	env.do(t, "POST", "/v1/events", `{"group_id":"2","user_id":"1","total_tokens":20}`, "")

	t.Run("csv", func(t *testing.T) {
		rr := env.do(t, "GET", "/v1/export?format=csv", "", adminID)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
			t.Errorf("Content-Type = %s", ct)
		}
		want := "session_id,tokens\ngroup_2,20\nprivate_1,10\n"
		if rr.Body.String() != want {
			t.Errorf("body = %q, want %q", rr.Body.String(), want)
		}
	})

	t.Run("json default", func(t *testing.T) {
		rr := env.do(t, "GET", "/v1/export", "", adminID)
		if rr.Body.String() != "{\"group_2\":20,\"private_1\":10}\n" {
			t.Errorf("body = %q", rr.Body.String())
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		rr := env.do(t, "GET", "/v1/export?format=xml", "", adminID)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rr.Code)
		}
		resp := decode[ErrorResponse](t, rr)
		if resp.Code != ErrorCodeUnsupportedFormat ||
			!strings.Contains(resp.Message, "json") || !strings.Contains(resp.Message, "csv") {
			t.Errorf("unexpected error: %+v", resp)
		}
	})
}

func TestSummary(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})
	env.do(t, "POST", "/v1/events", `{"user_id":"1","total_tokens":10}`, "")
	env.do(t, "POST", "/v1/events", `{"group_id":"2","user_id":"3","total_tokens":20}`, "")

	resp := decode[SummaryResponse](t, env.do(t, "GET", "/v1/summary", "", adminID))
	if resp.TotalTokens != 30 || resp.Sessions != 2 || resp.Users != 2 || resp.Cost != nil {
		t.Errorf("unexpected summary: %+v", resp)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, nil, defaultOpts(), threshold.Limits{})

	rr := env.do(t, "GET", "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[HealthResponse](t, rr)
	if resp.Status != "ok" || resp.Checks["storage"] != "ok" {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestHealthCheck_PendingWrites(t *testing.T) {
	env := newTestEnv(t, failingStore{}, defaultOpts(), threshold.Limits{})
	env.do(t, "POST", "/v1/events", `{"user_id":"1","total_tokens":10}`, "")

	rr := env.do(t, "GET", "/health", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	if resp := decode[HealthResponse](t, rr); resp.Checks["persistence"] != "pending" {
		t.Errorf("unexpected health: %+v", resp)
	}
}
