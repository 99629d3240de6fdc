package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tokenwatch/internal/domain"
	domusage "github.com/kailas-cloud/tokenwatch/internal/domain/usage"
	openaitr "github.com/kailas-cloud/tokenwatch/internal/transport/openai"
	accountinguc "github.com/kailas-cloud/tokenwatch/internal/usecase/accounting"
	healthuc "github.com/kailas-cloud/tokenwatch/internal/usecase/health"
	reportuc "github.com/kailas-cloud/tokenwatch/internal/usecase/report"
)

// SenderHeader carries the platform identity of the calling user.
const SenderHeader = "X-Sender-ID"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// AdminChecker decides whether a sender may issue privileged commands.
type AdminChecker interface {
	IsAdmin(id string) bool
}

// Options configures access rules of the command surface.
type Options struct {
	Admins     AdminChecker // nil rejects every privileged command
	OpenSeries bool         // series readable without admin identity
}

// Server serves usage ingestion and the command surface.
type Server struct {
	engine        *accountinguc.Engine
	report        *reportuc.Service
	health        *healthuc.Service
	admins        AdminChecker
	openSeries    bool
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	engine *accountinguc.Engine,
	report *reportuc.Service,
	health *healthuc.Service,
	opts Options,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine:     engine,
		report:     report,
		health:     health,
		admins:     opts.Admins,
		openSeries: opts.OpenSeries,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		unsupportedFormatHandler,
		sentinelHandler(domain.ErrForbidden, http.StatusForbidden, ErrorCodeForbidden),
		sentinelHandler(domain.ErrPersistence, http.StatusInternalServerError, ErrorCodePersistence),
	}
	return s
}

// Register mounts all routes on r.
func (s *Server) Register(r gochi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r gochi.Router) {
		r.Post("/events", s.RecordEvent)
		r.Post("/events/completion", s.RecordCompletion)
		r.Get("/sessions/{session}", s.GetSession)
		r.Post("/sessions/{session}/display", s.ToggleDisplay)
		if s.openSeries {
			r.Get("/series", s.Series)
		}

		r.Group(func(r gochi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/sessions", s.ListSessions)
			r.Delete("/sessions/{session}", s.ResetSession)
			r.Get("/export", s.Export)
			r.Get("/summary", s.Summary)
			if !s.openSeries {
				r.Get("/series", s.Series)
			}
		})
	})
}

// RecordEvent handles POST /v1/events.
func (s *Server) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res := s.engine.Record(r.Context(), domusage.Event{
		Scope:            domusage.Scope(req.Scope),
		ScopeID:          req.ScopeID,
		GroupID:          req.GroupID,
		UserID:           req.UserID,
		PromptTokens:     req.PromptTokens.Value(),
		CompletionTokens: req.CompletionTokens.Value(),
		TotalTokens:      req.TotalTokens.Value(),
	})
	writeJSON(w, http.StatusOK, eventResponse(res))
}

// RecordCompletion handles POST /v1/events/completion.
func (s *Server) RecordCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res := s.engine.Record(r.Context(), openaitr.EventFromCompletion(req.Completion, req.GroupID, req.UserID))
	writeJSON(w, http.StatusOK, eventResponse(res))
}

// GetSession handles GET /v1/sessions/{session}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionParam(w, r)
	if !ok {
		return
	}

	rep := s.report.Session(session)
	resp := SessionResponse{
		SessionID:    rep.Session,
		Scope:        string(rep.Scope),
		Tokens:       rep.Tokens,
		ScopedTokens: rep.ScopedTokens,
		LastUsage:    rep.LastUsage,
		Display:      rep.Display,
		Known:        rep.Known,
	}
	if s.report.CostEnabled() {
		resp.Cost = &rep.Cost
	}
	writeJSON(w, http.StatusOK, resp)
}

// ToggleDisplay handles POST /v1/sessions/{session}/display.
func (s *Server) ToggleDisplay(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionParam(w, r)
	if !ok {
		return
	}

	// A persistence failure is logged by the engine; the flag is live in memory.
	on, _ := s.engine.ToggleDisplay(r.Context(), session)
	writeJSON(w, http.StatusOK, DisplayResponse{SessionID: session, Display: on})
}

// ResetSession handles DELETE /v1/sessions/{session}.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionParam(w, r)
	if !ok {
		return
	}

	rm, err := s.engine.Reset(r.Context(), session)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResetResponse{
		SessionID:     session,
		RemovedTokens: rm.Removed,
		TotalTokens:   rm.Total,
		Found:         rm.Found,
	})
}

// ListSessions handles GET /v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	snap := s.report.Snapshot()
	ranked := snap.Ranked()

	items := make([]RankedSession, len(ranked))
	for i, row := range ranked {
		items[i] = RankedSession{SessionID: row.Session, Tokens: row.Tokens}
	}
	writeJSON(w, http.StatusOK, SessionListResponse{Sessions: items, TotalTokens: snap.Total()})
}

// Export handles GET /v1/export.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	format := string(reportuc.FormatJSON)
	if err := runtime.BindQueryParameter("form", true, false, "format", r.URL.Query(), &format); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid format parameter")
		return
	}

	f, err := reportuc.ParseFormat(format)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	body, err := s.report.ExportBytes(string(f))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "token_usage."+string(f)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Series handles GET /v1/series.
func (s *Server) Series(w http.ResponseWriter, r *http.Request) {
	points := []SeriesPoint{}
	for at, tokens := range s.report.Series() {
		points = append(points, SeriesPoint{At: at.UTC(), Tokens: tokens})
	}
	writeJSON(w, http.StatusOK, SeriesResponse{Points: points})
}

// Summary handles GET /v1/summary.
func (s *Server) Summary(w http.ResponseWriter, r *http.Request) {
	sum := s.report.Summary()
	resp := SummaryResponse{
		TotalTokens: sum.TotalTokens,
		Sessions:    sum.Sessions,
		Users:       sum.Users,
	}
	if s.report.CostEnabled() {
		resp.Cost = &sum.Cost
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// requireAdmin rejects requests whose sender is not in admin_ids.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sender := r.Header.Get(SenderHeader)
		if sender == "" || s.admins == nil || !s.admins.IsAdmin(sender) {
			s.handleDomainError(w, fmt.Errorf("%w: sender %q is not an admin", domain.ErrForbidden, sender))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var session string
	err := runtime.BindStyledParameterWithOptions("simple", "session", gochi.URLParam(r, "session"), &session,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil || session == "" {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid session parameter")
		return "", false
	}
	return session, true
}

func eventResponse(res accountinguc.Result) EventResponse {
	if !res.Recorded {
		return EventResponse{}
	}
	resp := EventResponse{
		Recorded:      true,
		SessionID:     res.Counters.Session,
		SessionTokens: res.Counters.SessionTokens,
		UserTokens:    res.Counters.UserTokens,
		TotalTokens:   res.Counters.TotalTokens,
		Display:       res.Display,
	}
	for i, a := range res.Alerts {
		item := AlertItem{
			ID:       a.ID(),
			Kind:     string(a.Kind()),
			Message:  a.Message(),
			Observed: a.Observed(),
			Limit:    a.Limit(),
			Cost:     a.Cost(),
		}
		if i < len(res.Notifications) {
			item.Delivered = res.Notifications[i].Delivered
			item.Recipient = res.Notifications[i].Recipient
		}
		resp.Alerts = append(resp.Alerts, item)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-facing message without exposing internals.
func safeDomainMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrPersistence):
		return "operation failed, check logs"
	case errors.Is(err, domain.ErrForbidden):
		return "admin identity required"
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return domain.ErrUnsupportedFormat.Error()
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// unsupportedFormatHandler answers with the rejected format and the valid ones.
func unsupportedFormatHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		return false
	}
	var ufe *domain.UnsupportedFormatError
	if errors.As(err, &ufe) {
		msg = ufe.Error()
	}
	writeError(w, http.StatusBadRequest, ErrorCodeUnsupportedFormat, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("Domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
