package tokenwatch

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/tokenwatch/internal/repository/snapshot"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	storage *snapshot.Config // nil keeps counters in memory only

	maxTokens        map[Scope]uint64
	userLimits       map[string]uint64
	anomalyThreshold uint64
	costPerToken     float64

	recipients   []string
	notifier     Notifier
	webhookURL   string
	webhookToken string

	chat *chatConfig // nil disables Chat

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func (c *clientConfig) setStorage(driver string) *snapshot.Config {
	if c.storage == nil {
		c.storage = &snapshot.Config{}
	}
	c.storage.Driver = driver
	return c.storage
}

// WithFile persists counters to a JSON file. A path ending in .zst is
// zstd-compressed.
func WithFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.setStorage(snapshot.DriverFile).Path = path
	})
}

// WithSQLite persists counters to a SQLite database.
func WithSQLite(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.setStorage(snapshot.DriverSQLite).Path = path
	})
}

// WithRedis persists counters under one key of a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		s := c.setStorage(snapshot.DriverRedis)
		s.Addrs = []string{addr}
		s.Password = password
	})
}

// WithRedisKey overrides the key holding the counters (default "tokenwatch:state").
func WithRedisKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.storage == nil {
			c.storage = &snapshot.Config{Driver: snapshot.DriverRedis}
		}
		c.storage.Key = key
	})
}

// WithMaxTokens sets the per-session ceiling for one scope. 0 disables it.
func WithMaxTokens(scope Scope, limit uint64) Option {
	return optionFunc(func(c *clientConfig) {
		if c.maxTokens == nil {
			c.maxTokens = make(map[Scope]uint64)
		}
		c.maxTokens[scope] = limit
	})
}

// WithUserLimit sets the lifetime ceiling of one user.
func WithUserLimit(user string, limit uint64) Option {
	return optionFunc(func(c *clientConfig) {
		if c.userLimits == nil {
			c.userLimits = make(map[string]uint64)
		}
		c.userLimits[user] = limit
	})
}

// WithAnomalyThreshold flags single events at or above n tokens. 0 disables it.
func WithAnomalyThreshold(n uint64) Option {
	return optionFunc(func(c *clientConfig) {
		c.anomalyThreshold = n
	})
}

// WithCostPerToken enables cost figures in alerts and reports.
func WithCostPerToken(cost float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.costPerToken = cost
	})
}

// WithRecipients sets the ordered list of alert recipients. Each alert goes
// to the first recipient that accepts it.
func WithRecipients(ids ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.recipients = append([]string(nil), ids...)
	})
}

// WithNotifier delivers alerts through n. Takes precedence over WithWebhook.
func WithNotifier(n Notifier) Option {
	return optionFunc(func(c *clientConfig) {
		c.notifier = n
	})
}

// WithWebhook delivers alerts by POSTing JSON to a bot gateway.
func WithWebhook(url, token string) Option {
	return optionFunc(func(c *clientConfig) {
		c.webhookURL = url
		c.webhookToken = token
	})
}

type chatConfig struct {
	apiKey  string
	baseURL string
}

// WithChat enables Client.Chat against an OpenAI-compatible provider.
// An empty baseURL uses the OpenAI default.
func WithChat(apiKey, baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.chat = &chatConfig{apiKey: apiKey, baseURL: baseURL}
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts, durations and
// recorded tokens) on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
