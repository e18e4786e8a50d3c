package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/you-humble/pdftrack/internal/domain"
	"github.com/you-humble/pdftrack/internal/infra/config"
	filestore "github.com/you-humble/pdftrack/internal/infra/store/file"
	"github.com/you-humble/pdftrack/internal/infra/view"
	mio "github.com/you-humble/pdftrack/internal/libs/minio"
	natsq "github.com/you-humble/pdftrack/internal/libs/nats"
	rediscli "github.com/you-humble/pdftrack/internal/libs/redis"
	"github.com/you-humble/pdftrack/internal/metrics"
	"github.com/you-humble/pdftrack/internal/transport"
	"github.com/you-humble/pdftrack/internal/usecase"
	"github.com/you-humble/pdftrack/internal/widget"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	uiEventsMaxAge      = 24 * time.Hour
	mirrorRenderTimeout = 500 * time.Millisecond
)

type Client interface {
	widget.Client
	usecase.Client
	Resolve(ref string) string
}

type Usecase interface {
	Convert(ctx context.Context, path string, save bool) (widget.Model, error)
	Watch(ctx context.Context, in io.Reader) error
	SaveArtifact(ctx context.Context, downloadURL string) (domain.Artifact, error)
	Artifacts(ctx context.Context) ([]domain.Artifact, error)
	Status(ctx context.Context, jobID string) (domain.StatusSnapshot, error)
	Health(ctx context.Context) (domain.HealthResponse, error)
}

type dependencyInjector struct {
	cfgPath   string
	serverURL string
	out       io.Writer

	cfg     *config.Config
	logger  *slog.Logger
	session string

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	httpClient *http.Client
	client     Client

	redis    *redis.Client
	natsConn *nats.Conn
	js       nats.JetStreamContext

	view      widget.View
	widget    *widget.Widget
	artifacts usecase.ArtifactStore
	usecase   Usecase

	closers []func(context.Context) error
}

func newDI(out io.Writer) *dependencyInjector {
	return &dependencyInjector{out: out}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(di.cfgPath)
		if di.serverURL != "" {
			di.cfg.ServerURL = di.serverURL
		}
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		var level slog.Level
		if err := level.UnmarshalText([]byte(di.Config().LogLevel)); err != nil {
			level = slog.LevelInfo
		}

		// stdout belongs to the terminal view.
		di.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(di.logger)
	}

	return di.logger
}

// Session names this process in the Redis and NATS mirrors.
func (di *dependencyInjector) Session() string {
	if di.session == "" {
		di.session = uuid.NewString()
	}
	return di.session
}

func (di *dependencyInjector) Registry() *prometheus.Registry {
	if di.registry == nil {
		di.registry = prometheus.NewRegistry()
		di.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return di.registry
}

func (di *dependencyInjector) Metrics() *metrics.Metrics {
	if di.metrics == nil {
		di.metrics = metrics.New(di.Registry())
	}
	return di.metrics
}

func (di *dependencyInjector) HTTPClient() *http.Client {
	if di.httpClient == nil {
		di.httpClient = &http.Client{
			Timeout: di.Config().RequestTimeout,
			Transport: transport.WithRequestID(
				di.Metrics().InstrumentRoundTripper(
					transport.LogTransport(http.DefaultTransport),
				),
			),
		}
	}
	return di.httpClient
}

func (di *dependencyInjector) Client() Client {
	if di.client == nil {
		cfg := di.Config()
		c, err := transport.NewClient(cfg.ServerURL,
			transport.WithHTTPClient(di.HTTPClient()),
			transport.WithPaths(transport.Paths{
				Upload: cfg.UploadPath,
				Status: cfg.StatusPath,
				Health: cfg.HealthPath,
			}),
		)
		if err != nil {
			log.Fatalf("DI client: %+v", err)
		}
		di.client = c
	}
	return di.client
}

func (di *dependencyInjector) RedisClient(ctx context.Context) (*redis.Client, error) {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			return nil, err
		}

		di.redis = client
		di.closers = append(di.closers, func(context.Context) error { return client.Close() })
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis, nil
}

func (di *dependencyInjector) JetStream(ctx context.Context) (nats.JetStreamContext, error) {
	if di.js == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			return nil, err
		}

		js, err := natsq.NewJetStream(nc, natsq.EventStream(cfg.Stream, cfg.Subject, uiEventsMaxAge))
		if err != nil {
			nc.Close()
			return nil, err
		}

		di.natsConn = nc
		di.js = js
		di.closers = append(di.closers, func(context.Context) error { return nc.Drain() })
		di.Logger().Info("connected to nats",
			slog.String("url", cfg.URL),
			slog.String("stream", cfg.Stream),
		)
	}
	return di.js, nil
}

// View combines the terminal with whatever mirrors are configured. A mirror
// that cannot connect is skipped.
func (di *dependencyInjector) View(ctx context.Context) widget.View {
	if di.view == nil {
		cfg := di.Config()
		bc := view.NewBroadcast(
			view.NewTerminal(di.out, di.Client().Resolve),
			di.Metrics().View(),
		)

		if cfg.Redis.Addr != "" {
			rdb, err := di.RedisClient(ctx)
			if err != nil {
				di.Logger().Warn("redis mirror disabled", slog.String("error", err.Error()))
			} else {
				bc.Add(view.WithTimeout(view.NewRedisView(rdb, di.Session(), cfg.Redis.ScreenTTL), mirrorRenderTimeout))
			}
		}

		if cfg.NATS.URL != "" {
			js, err := di.JetStream(ctx)
			if err != nil {
				di.Logger().Warn("nats mirror disabled", slog.String("error", err.Error()))
			} else {
				bc.Add(view.WithTimeout(view.NewNATSView(js, cfg.NATS.Subject, di.Session()), mirrorRenderTimeout))
			}
		}

		di.view = bc
	}
	return di.view
}

func (di *dependencyInjector) Widget(ctx context.Context) *widget.Widget {
	if di.widget == nil {
		cfg := di.Config()
		di.widget = widget.New(di.Client(), di.View(ctx),
			widget.WithPollInterval(cfg.PollInterval),
			widget.WithPollTimeout(cfg.PollTimeout),
			widget.WithLogger(di.Logger().With(slog.String("session", di.Session()))),
		)
		di.Logger().Debug("widget ready", slog.String("session", di.Session()))
	}
	return di.widget
}

// Artifacts is the disk store, mirrored to MinIO when an endpoint is set.
func (di *dependencyInjector) Artifacts(ctx context.Context) usecase.ArtifactStore {
	if di.artifacts == nil {
		cfg := di.Config()

		disk, err := filestore.NewDiskStore(cfg.Artifacts.Dir)
		if err != nil {
			log.Fatalf("DI artifacts: %+v", err)
		}
		di.artifacts = disk

		if cfg.MinIO.Endpoint == "" {
			return di.artifacts
		}

		bucket, err := filestore.NewBucketStore(ctx, mio.Config{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			UseSSL:          cfg.MinIO.UseSSL,
			Bucket:          cfg.MinIO.Bucket,
			BasePath:        cfg.MinIO.BasePath,
		})
		if err != nil {
			di.Logger().Warn("minio mirror disabled", slog.String("error", err.Error()))
			return di.artifacts
		}

		mirrored := filestore.NewMirroredStore(ctx, disk, bucket, filestore.MirrorOptions{
			QueueSize:  cfg.Artifacts.QueueCapacity,
			Workers:    cfg.Artifacts.PoolSize,
			MaxRetries: cfg.Artifacts.MaxRetries,
			OnResult:   di.Metrics().ObserveMirror,
		})
		di.artifacts = mirrored
		di.closers = append(di.closers, mirrored.Close)
		di.Logger().Info("mirroring artifacts to MinIO",
			slog.String("endpoint", cfg.MinIO.Endpoint),
			slog.String("bucket", cfg.MinIO.Bucket),
			slog.Int("queue_size", cfg.Artifacts.QueueCapacity),
			slog.Int("workers", cfg.Artifacts.PoolSize),
		)
	}

	return di.artifacts
}

func (di *dependencyInjector) Usecase(ctx context.Context) Usecase {
	if di.usecase == nil {
		di.usecase = usecase.New(
			di.Widget(ctx),
			di.Client(),
			di.Artifacts(ctx),
			di.out,
		)
	}
	return di.usecase
}

// Close releases what was opened, newest first.
func (di *dependencyInjector) Close(ctx context.Context) error {
	var errs []error
	for i := len(di.closers) - 1; i >= 0; i-- {
		if err := di.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	di.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
