// Package config loads the properties spec.md §6 enumerates from a YAML
// file, with flag-based overrides and a Normalize defaulting pass, the
// same load-then-override-then-normalize shape
// downfa11-org/go-broker's pkg/config/properties.go uses for its own
// broker-wide Config.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend selects which broker.Client implementation the bootstrap wires
// up.
type Backend string

const (
	BackendKafka   Backend = "kafka"
	BackendKinesis Backend = "kinesis"
)

// InstanceOverride is the YAML shape of a per-consumer override: response
// min bytes and request wait ms shadow the global values for one instance,
// per spec.md §6.
type InstanceOverride struct {
	Group            string `yaml:"group"`
	ID               string `yaml:"id"`
	ResponseMinBytes *int64 `yaml:"response_min_bytes"`
	RequestWaitMs    *int64 `yaml:"request_wait_ms"`
}

// Config is the whole process's bootstrap configuration: the proxy-wide
// read task defaults, the broker backend to dial, and the HTTP listen
// address.
type Config struct {
	ListenAddress string `yaml:"listen_address" json:"listen_address"`

	// proxy.fetch.max.wait.ms
	FetchMaxWaitMs int64 `yaml:"fetch_max_wait_ms" json:"proxy.fetch.max.wait.ms"`
	// proxy.fetch.min.bytes
	FetchMinBytes int64 `yaml:"fetch_min_bytes" json:"proxy.fetch.min.bytes"`
	// consumer.iterator.backoff.ms
	IteratorBackoffMs int64 `yaml:"iterator_backoff_ms" json:"consumer.iterator.backoff.ms"`
	// consumer.iterator.timeout.ms
	IteratorTimeoutMs int64 `yaml:"iterator_timeout_ms" json:"consumer.iterator.timeout.ms"`
	// consumer.response.max.bytes
	ResponseMaxBytes int64 `yaml:"response_max_bytes" json:"consumer.response.max.bytes"`
	// consumer.request.max.bytes
	RequestMaxBytes int64 `yaml:"request_max_bytes" json:"consumer.request.max.bytes"`

	Backend        Backend  `yaml:"backend" json:"backend"`
	KafkaBrokers   []string `yaml:"kafka_brokers" json:"kafka_brokers"`
	KinesisRegion  string   `yaml:"kinesis_region" json:"kinesis_region"`
	WorkerPoolSize int      `yaml:"worker_pool_size" json:"worker_pool_size"`

	InstanceOverrides []InstanceOverride `yaml:"instance_overrides" json:"instance_overrides"`
}

// Load parses flags (including -config), applies a YAML file over the
// defaults if -config was given, re-applies any flags the caller set
// explicitly so flags win over the file, and normalizes. args is normally
// os.Args[1:].
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("krestproxy", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	listenAddr := fs.String("listen-address", cfg.ListenAddress, "HTTP listen address")
	fetchMaxWaitMs := fs.Int64("fetch-max-wait-ms", cfg.FetchMaxWaitMs, "proxy.fetch.max.wait.ms")
	fetchMinBytes := fs.Int64("fetch-min-bytes", cfg.FetchMinBytes, "proxy.fetch.min.bytes (negative disables)")
	iteratorBackoffMs := fs.Int64("iterator-backoff-ms", cfg.IteratorBackoffMs, "consumer.iterator.backoff.ms")
	iteratorTimeoutMs := fs.Int64("iterator-timeout-ms", cfg.IteratorTimeoutMs, "consumer.iterator.timeout.ms")
	responseMaxBytes := fs.Int64("response-max-bytes", cfg.ResponseMaxBytes, "consumer.response.max.bytes")
	requestMaxBytes := fs.Int64("request-max-bytes", cfg.RequestMaxBytes, "consumer.request.max.bytes")
	backend := fs.String("backend", string(cfg.Backend), "broker backend: kafka or kinesis")
	kafkaBrokers := fs.String("kafka-brokers", strings.Join(cfg.KafkaBrokers, ","), "comma-separated Kafka broker addresses")
	kinesisRegion := fs.String("kinesis-region", cfg.KinesisRegion, "AWS region for the Kinesis backend")
	workerPoolSize := fs.Int("worker-pool-size", cfg.WorkerPoolSize, "number of scheduler workers")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", *configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", *configPath, err)
		}
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if explicit["listen-address"] {
		cfg.ListenAddress = *listenAddr
	}
	if explicit["fetch-max-wait-ms"] {
		cfg.FetchMaxWaitMs = *fetchMaxWaitMs
	}
	if explicit["fetch-min-bytes"] {
		cfg.FetchMinBytes = *fetchMinBytes
	}
	if explicit["iterator-backoff-ms"] {
		cfg.IteratorBackoffMs = *iteratorBackoffMs
	}
	if explicit["iterator-timeout-ms"] {
		cfg.IteratorTimeoutMs = *iteratorTimeoutMs
	}
	if explicit["response-max-bytes"] {
		cfg.ResponseMaxBytes = *responseMaxBytes
	}
	if explicit["request-max-bytes"] {
		cfg.RequestMaxBytes = *requestMaxBytes
	}
	if explicit["backend"] {
		cfg.Backend = Backend(*backend)
	}
	if explicit["kafka-brokers"] {
		cfg.KafkaBrokers = splitNonEmpty(*kafkaBrokers)
	}
	if explicit["kinesis-region"] {
		cfg.KinesisRegion = *kinesisRegion
	}
	if explicit["worker-pool-size"] {
		cfg.WorkerPoolSize = *workerPoolSize
	}

	cfg.Normalize()
	return cfg, nil
}

// Default returns the same defaults consumer.DefaultProxyConfig encodes,
// plus process-level defaults for the listen address and backend.
func Default() *Config {
	return &Config{
		ListenAddress:     ":8082",
		FetchMaxWaitMs:    1000,
		FetchMinBytes:     -1,
		IteratorBackoffMs: 50,
		IteratorTimeoutMs: 1,
		ResponseMaxBytes:  64 * 1024,
		RequestMaxBytes:   64 * 1024,
		Backend:           BackendKafka,
		WorkerPoolSize:    4,
	}
}

// Normalize fills in zero-value fields a YAML file left unset, the same
// clamp-don't-silently-drop pass go-broker's Config.Normalize runs.
// Negative FetchMinBytes is deliberately left alone: it is the documented
// way to disable the min-bytes shortcut (spec.md §9), not an invalid value
// to clamp to a default.
func (c *Config) Normalize() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8082"
	}
	if c.FetchMaxWaitMs <= 0 {
		c.FetchMaxWaitMs = 1000
	}
	if c.IteratorBackoffMs <= 0 {
		c.IteratorBackoffMs = 50
	}
	if c.IteratorTimeoutMs <= 0 {
		c.IteratorTimeoutMs = 1
	}
	if c.ResponseMaxBytes <= 0 {
		c.ResponseMaxBytes = 64 * 1024
	}
	if c.RequestMaxBytes <= 0 {
		c.RequestMaxBytes = 64 * 1024
	}
	if c.Backend == "" {
		c.Backend = BackendKafka
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 4
	}
}

// OverrideFor returns the InstanceOverride configured for (group, id), if
// any.
func (c *Config) OverrideFor(group, id string) (InstanceOverride, bool) {
	for _, o := range c.InstanceOverrides {
		if o.Group == group && o.ID == id {
			return o, true
		}
	}
	return InstanceOverride{}, false
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
