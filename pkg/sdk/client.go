package tokenwatch

import (
	"context"
	"fmt"
	"io"
	"iter"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/tokenwatch/internal/domain/usage"
	"github.com/kailas-cloud/tokenwatch/internal/repository/snapshot"
	openaitr "github.com/kailas-cloud/tokenwatch/internal/transport/openai"
	"github.com/kailas-cloud/tokenwatch/internal/transport/webhook"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/accounting"
	healthuc "github.com/kailas-cloud/tokenwatch/internal/usecase/health"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/ledger"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/notify"
	reportuc "github.com/kailas-cloud/tokenwatch/internal/usecase/report"
	"github.com/kailas-cloud/tokenwatch/internal/usecase/threshold"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the tokenwatch SDK entry point. It is safe for concurrent use.
type Client struct {
	backend snapshot.Backend // nil in memory-only mode
	ledger  *ledger.Ledger
	engine  *accounting.Engine
	report  *reportuc.Service
	health  *healthuc.Service
	chat    *openaitr.Client // nil unless WithChat
	obs     *observer
}

// New creates a Client and restores persisted counters, if any.
// The provided context is used for connecting and the initial load.
// An unreadable snapshot is returned as an error wrapping ErrPersistence.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var backend snapshot.Backend
	if cfg.storage != nil {
		sc := *cfg.storage
		if sc.ReadinessTimeout <= 0 {
			sc.ReadinessTimeout = defaultReadinessTimeout
		}
		backend, err = snapshot.Open(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("tokenwatch: open storage: %w", err)
		}
	}

	c, err := wireClient(backend, cfg, obs)
	if err != nil {
		closeBackend(backend)
		return nil, err
	}
	if backend != nil {
		if err := c.ledger.Load(ctx); err != nil {
			closeBackend(backend)
			return nil, fmt.Errorf("tokenwatch: load counters: %w", err)
		}
	}
	return c, nil
}

func wireClient(backend snapshot.Backend, cfg *clientConfig, obs *observer) (*Client, error) {
	zl := zapLogger(cfg.logger)

	l := ledger.New(zl)
	if backend != nil {
		l.WithStore(backend)
	}

	sender, err := buildSender(cfg)
	if err != nil {
		return nil, err
	}

	maxTokens := make(map[usage.Scope]uint64, len(cfg.maxTokens))
	for s, n := range cfg.maxTokens {
		maxTokens[usage.Scope(s)] = n
	}
	eval := threshold.New(threshold.Limits{
		MaxTokens:        maxTokens,
		UserLimits:       cfg.userLimits,
		AnomalyThreshold: cfg.anomalyThreshold,
		CostPerToken:     cfg.costPerToken,
	})

	var pinger healthuc.StoragePinger = memoryPinger{}
	if backend != nil {
		pinger = backend
	}

	engine := accounting.New(l, eval, notify.New(sender, zl), cfg.recipients, zl)

	var chat *openaitr.Client
	if cfg.chat != nil {
		chat = openaitr.NewClient(&openaitr.Config{
			APIKey:   cfg.chat.apiKey,
			BaseURL:  cfg.chat.baseURL,
			Recorder: engine,
			Logger:   zl,
		})
	}

	return &Client{
		backend: backend,
		ledger:  l,
		engine:  engine,
		report:  reportuc.New(l, cfg.costPerToken),
		health:  healthuc.New(pinger, l),
		chat:    chat,
		obs:     obs,
	}, nil
}

func buildSender(cfg *clientConfig) (notify.Sender, error) {
	switch {
	case cfg.notifier != nil:
		return &notifierAdapter{inner: cfg.notifier}, nil
	case cfg.webhookURL != "":
		s, err := webhook.NewSender(webhook.Config{URL: cfg.webhookURL, Token: cfg.webhookToken})
		if err != nil {
			return nil, fmt.Errorf("tokenwatch: webhook: %w", err)
		}
		return s, nil
	default:
		return &logNotifier{logger: cfg.logger}, nil
	}
}

func closeBackend(b snapshot.Backend) {
	if b != nil {
		_ = b.Close()
	}
}

// Close releases the storage connection.
func (c *Client) Close() error {
	if c.backend == nil {
		return nil
	}
	if err := c.backend.Close(); err != nil {
		return fmt.Errorf("tokenwatch: close: %w", err)
	}
	return nil
}

// Record accounts one event. Events without a token figure or identity are
// ignored (Result.Recorded is false). Persistence failures are not returned:
// counters stay authoritative in memory and Health reports pending writes.
func (c *Client) Record(ctx context.Context, ev Event) Result {
	start := time.Now()
	res := fromResult(c.engine.Record(ctx, toDomainEvent(ev)))
	c.obs.observe("record", start, nil)
	c.obs.recorded(res)
	return res
}

// RecordCompletion accounts the usage block of a chat completion against the
// group (if groupID is set) or the user's private session.
func (c *Client) RecordCompletion(
	ctx context.Context, groupID, userID string, resp openai.ChatCompletionResponse,
) Result {
	start := time.Now()
	res := fromResult(c.engine.Record(ctx, openaitr.EventFromCompletion(resp, groupID, userID)))
	c.obs.observe("record_completion", start, nil)
	c.obs.recorded(res)
	return res
}

// Chat sends a chat completion request to the provider configured by WithChat
// and records its usage like RecordCompletion. Provider failures wrap
// ErrProviderError and record nothing.
func (c *Client) Chat(
	ctx context.Context, groupID, userID string, req openai.ChatCompletionRequest,
) (resp openai.ChatCompletionResponse, res Result, err error) {
	if c.chat == nil {
		return openai.ChatCompletionResponse{}, Result{}, ErrChatNotConfigured
	}
	start := time.Now()
	defer func() { c.obs.observe("chat", start, err) }()

	resp, r, err := c.chat.CreateChatCompletion(ctx, groupID, userID, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, Result{}, err
	}
	res = fromResult(r)
	c.obs.recorded(res)
	return resp, res, nil
}

// Session returns the counters of one session. Unknown sessions are zero-valued.
func (c *Client) Session(key string) SessionStats {
	return fromSessionReport(c.report.Session(key))
}

// Reset removes a session's counters and takes them off the global total.
// A non-nil error means the reset applied in memory but was not persisted.
func (c *Client) Reset(ctx context.Context, key string) (rm Removal, err error) {
	start := time.Now()
	defer func() { c.obs.observe("reset", start, err) }()

	r, err := c.engine.Reset(ctx, key)
	rm = Removal{Session: r.Session, Removed: r.Removed, Total: r.Total, Found: r.Found}
	if err != nil {
		return rm, fmt.Errorf("reset %s: %w", key, err)
	}
	return rm, nil
}

// ToggleDisplay flips the per-session display preference and returns it.
func (c *Client) ToggleDisplay(ctx context.Context, key string) (on bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("toggle_display", start, err) }()

	on, err = c.engine.ToggleDisplay(ctx, key)
	if err != nil {
		return on, fmt.Errorf("toggle display %s: %w", key, err)
	}
	return on, nil
}

// Sessions returns sessions by tokens descending, ties in first-seen order.
func (c *Client) Sessions() []RankedSession {
	ranked := c.report.RankedListing()
	out := make([]RankedSession, len(ranked))
	for i, r := range ranked {
		out[i] = RankedSession{Session: r.Session, Tokens: r.Tokens}
	}
	return out
}

// Export writes the session counters as "json" or "csv".
func (c *Client) Export(w io.Writer, format string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("export", start, err) }()

	if err = c.report.Export(w, format); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// Series returns the token history as (timestamp, tokens) pairs.
func (c *Client) Series() iter.Seq2[time.Time, uint64] {
	return c.report.Series()
}

// Summary returns global totals.
func (c *Client) Summary() Summary {
	s := c.report.Summary()
	return Summary{TotalTokens: s.TotalTokens, Sessions: s.Sessions, Users: s.Users, Cost: s.Cost}
}

// Flush retries persisting the counters after an earlier failed write.
func (c *Client) Flush(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("flush", start, err) }()

	if err = c.ledger.Save(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// memoryPinger stands in for storage in memory-only mode.
type memoryPinger struct{}

func (memoryPinger) Ping(context.Context) error { return nil }
