// krestproxy bootstraps the REST-to-message-bus consumer proxy: it loads
// config, dials the configured broker backend, wires the Manager Facade
// and its scheduler, and serves the HTTP surface until a termination
// signal arrives. The flag-parse-then-signal-then-Start/Stop/Done shape
// follows src/pop/main.go; the embedded-etcd leader election the
// teacher's own root main.go performs has no role here — this is a
// single-process proxy with no cluster state to elect a leader over (see
// DESIGN.md).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/relaykit/krest/internal/broker"
	"github.com/relaykit/krest/internal/clock"
	"github.com/relaykit/krest/internal/config"
	"github.com/relaykit/krest/internal/consumer"
	"github.com/relaykit/krest/internal/offsetcommit"
	"github.com/relaykit/krest/internal/restapi"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error: build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, committer, err := dialBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("dial broker backend", zap.Error(err))
	}

	proxyCfg := toProxyConfig(cfg)
	mgr := consumer.NewManager(proxyCfg, cfg.WorkerPoolSize, clock.Real(), logger)

	go mgr.Run(ctx)

	srv := restapi.NewServer(mgr, client, committer, cfg, logger)
	httpServer := &http.Server{Addr: cfg.ListenAddress, Handler: srv.Handler()}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGTERM, syscall.SIGINT)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", cfg.ListenAddress))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCh:
		logger.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", zap.Error(err))
	}

	mgr.Stop()
	cancel()
	_ = client.Close()
}

// dialBackend constructs the broker.Client and offsetcommit.Committer for
// cfg.Backend. Exactly one backend is dialed per process; every created
// consumer instance shares it.
func dialBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (broker.Client, offsetcommit.Committer, error) {
	switch cfg.Backend {
	case config.BackendKinesis:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KinesisRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		api := kinesis.NewFromConfig(awsCfg)
		client := broker.NewKinesisClient(api, 200*time.Millisecond, logger)
		committer := offsetcommit.NewKinesisCheckpointer(nil)
		return client, committer, nil

	case config.BackendKafka, "":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, nil, fmt.Errorf("kafka backend requires at least one broker address")
		}
		client := broker.NewKafkaClient(cfg.KafkaBrokers, nil, logger)

		saramaCfg := sarama.NewConfig()
		saramaClient, err := sarama.NewClient(cfg.KafkaBrokers, saramaCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("new sarama client: %w", err)
		}
		committer := &lazyKafkaCommitter{client: saramaClient}
		return client, committer, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// lazyKafkaCommitter defers building a per-group sarama.OffsetManager
// until the first commit for that group, since the Manager Facade only
// learns a consumer's group at CreateConsumer time, after the Committer
// has already been constructed once for the whole process.
type lazyKafkaCommitter struct {
	client sarama.Client

	mu   sync.Mutex
	mgrs map[string]offsetcommit.Committer
}

func (l *lazyKafkaCommitter) Commit(ctx context.Context, group, topic string, offsets offsetcommit.Offsets) error {
	l.mu.Lock()
	if l.mgrs == nil {
		l.mgrs = make(map[string]offsetcommit.Committer)
	}
	c, ok := l.mgrs[group]
	if !ok {
		built, err := offsetcommit.NewKafkaOffsetManager(l.client, group)
		if err != nil {
			l.mu.Unlock()
			return err
		}
		l.mgrs[group] = built
		c = built
	}
	l.mu.Unlock()
	return c.Commit(ctx, group, topic, offsets)
}

func (l *lazyKafkaCommitter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.mgrs {
		_ = c.Close()
	}
	return l.client.Close()
}

func toProxyConfig(cfg *config.Config) consumer.ProxyConfig {
	return consumer.NewProxyConfig(
		consumer.WithFetchMaxWaitMs(cfg.FetchMaxWaitMs),
		consumer.WithFetchMinBytes(cfg.FetchMinBytes),
		consumer.WithIteratorBackoffMs(cfg.IteratorBackoffMs),
		consumer.WithIteratorTimeoutMs(cfg.IteratorTimeoutMs),
		consumer.WithResponseMaxBytes(cfg.ResponseMaxBytes),
		consumer.WithRequestMaxBytes(cfg.RequestMaxBytes),
	)
}
