package consumer

// ProxyConfig is the global configuration snapshot every Read Task is
// constructed against, per spec.md §6. Per-instance overrides shadow the
// global value for that instance only and are carried on InstanceConfig.
type ProxyConfig struct {
	// FetchMaxWaitMs is proxy.fetch.max.wait.ms: the request deadline
	// applied to each read task.
	FetchMaxWaitMs int64
	// FetchMinBytes is proxy.fetch.min.bytes: threshold above which a task
	// returns early. Negative disables the shortcut.
	FetchMinBytes int64
	// IteratorBackoffMs is consumer.iterator.backoff.ms: idle backoff
	// between broker polls when the iterator is empty.
	IteratorBackoffMs int64
	// IteratorTimeoutMs is consumer.iterator.timeout.ms: the broker-level
	// per-poll wait bounding the inner pull loop.
	IteratorTimeoutMs int64
	// ResponseMaxBytes is consumer.response.max.bytes: the server-side cap
	// on maxResponseBytes.
	ResponseMaxBytes int64
	// RequestMaxBytes is consumer.request.max.bytes: the caller-side cap;
	// effective is min(per-request, this).
	RequestMaxBytes int64
}

// Option mutates a ProxyConfig at construction, following the teacher's
// functional-options pattern.
type Option func(*ProxyConfig)

func WithFetchMaxWaitMs(ms int64) Option {
	return func(c *ProxyConfig) { c.FetchMaxWaitMs = ms }
}

func WithFetchMinBytes(b int64) Option {
	return func(c *ProxyConfig) { c.FetchMinBytes = b }
}

func WithIteratorBackoffMs(ms int64) Option {
	return func(c *ProxyConfig) { c.IteratorBackoffMs = ms }
}

func WithIteratorTimeoutMs(ms int64) Option {
	return func(c *ProxyConfig) { c.IteratorTimeoutMs = ms }
}

func WithResponseMaxBytes(b int64) Option {
	return func(c *ProxyConfig) { c.ResponseMaxBytes = b }
}

func WithRequestMaxBytes(b int64) Option {
	return func(c *ProxyConfig) { c.RequestMaxBytes = b }
}

// DefaultProxyConfig mirrors kafka-rest's own defaults: a one-second
// request deadline, no minimum-bytes shortcut, and generous byte caps.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		FetchMaxWaitMs:    1000,
		FetchMinBytes:     -1,
		IteratorBackoffMs: 50,
		IteratorTimeoutMs: 1,
		ResponseMaxBytes:  64 * 1024,
		RequestMaxBytes:   64 * 1024,
	}
}

// NewProxyConfig builds a ProxyConfig from DefaultProxyConfig with opts
// applied on top.
func NewProxyConfig(opts ...Option) ProxyConfig {
	cfg := DefaultProxyConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// InstanceOverrides holds the per-consumer overrides spec.md §6 allows:
// response.min.bytes and request.wait.ms, shadowing the global config for
// one instance only. Nil means "no override, use the global value".
type InstanceOverrides struct {
	ResponseMinBytes *int64
	RequestWaitMs    *int64
}

// effectiveFetchMaxWaitMs resolves the per-task requestTimeoutMs: the
// instance's request.wait.ms override if present, else the global
// proxy.fetch.max.wait.ms.
func (o InstanceOverrides) effectiveFetchMaxWaitMs(global ProxyConfig) int64 {
	if o.RequestWaitMs != nil {
		return *o.RequestWaitMs
	}
	return global.FetchMaxWaitMs
}

// effectiveFetchMinBytes resolves the per-task responseMinBytes: the
// instance's response.min.bytes override if present, else the global
// proxy.fetch.min.bytes.
func (o InstanceOverrides) effectiveFetchMinBytes(global ProxyConfig) int64 {
	if o.ResponseMinBytes != nil {
		return *o.ResponseMinBytes
	}
	return global.FetchMinBytes
}
