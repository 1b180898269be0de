package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"aircx/internal/api"
	"aircx/internal/config"
	"aircx/internal/db"
	"aircx/internal/ingest"
	"aircx/internal/metrics"
	"aircx/internal/results"
	"aircx/internal/transport"
	"aircx/internal/worker"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume the sample stream and serve the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(flags.envFiles...)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			logger := newLogger(os.Stdout, cfg.LogLevel)
			logger.Info("aircx engine starting",
				"environment", cfg.Environment,
				"version", cfg.Build.Version,
				"commit", cfg.Build.Commit,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runEngine(ctx, cfg, logger)
		},
	}
}

// engine holds everything runEngine opens, so it can be closed in reverse.
type engine struct {
	stores     []results.RowStore
	commanders []results.Commander
	history    api.History
	probes     []api.HealthProbe
	cw         *metrics.CloudWatchRecorder
	closers    []func()
}

func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func runEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	units, err := config.LoadEquipment(cfg.Equipment.Path)
	if err != nil {
		return err
	}

	e := &engine{}
	defer e.close()

	recorder := results.NewRecorder(cfg.Server.RecentRows)
	e.stores = append(e.stores, recorder)
	if err := e.openStores(ctx, cfg, logger); err != nil {
		return err
	}
	if err := e.openCommanders(ctx, cfg, logger); err != nil {
		return err
	}

	fanoutOpts := []results.FanoutOption{
		results.WithStores(e.stores...),
		results.WithCommanders(e.commanders...),
	}
	var runnerOpts []worker.Option
	if e.cw != nil {
		fanoutOpts = append(fanoutOpts, results.WithMetrics(e.cw))
		runnerOpts = append(runnerOpts, worker.WithMetrics(e.cw))
	}
	sink := results.NewFanout(logger, fanoutOpts...)

	apps, err := buildApplications(units, sink, logger)
	if err != nil {
		return err
	}
	runner, err := worker.NewRunner(apps, logger, runnerOpts...)
	if err != nil {
		return err
	}

	kafkaSrc, err := ingest.NewKafkaSource(ingest.KafkaConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		GroupID:     cfg.Kafka.GroupID,
		PollTimeout: cfg.Kafka.PollTimeout,
	}, logger)
	if err != nil {
		return err
	}
	e.closers = append(e.closers, func() { _ = kafkaSrc.Close() })

	var src ingest.Source = kafkaSrc
	if cfg.Archive.Path != "" {
		archive, err := ingest.CreateArchive(cfg.Archive.Path)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, func() {
			if err := archive.Close(); err != nil {
				logger.Error("failed to close sample archive", "error", err)
			}
		})
		src = teeSource{src: kafkaSrc, archive: archive, logger: logger}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gCtx, src)
	})
	if e.cw != nil {
		g.Go(func() error {
			return e.cw.Run(gCtx, cfg.Observability.FlushInterval)
		})
	}
	if cfg.Server.Enabled {
		srv, err := api.NewServer(logger, equipmentIDs(units), recorder)
		if err != nil {
			return err
		}
		srv.Stats = runner
		srv.History = e.history
		srv.HealthProbes = e.probes
		g.Go(func() error {
			return srv.Serve(gCtx, cfg.Server.Addr, cfg.Server.ReadHeaderTimeout)
		})
	}

	err = g.Wait()
	logger.Info("aircx engine stopped", "run_id", runner.RunID())
	return err
}

func (e *engine) openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if url := cfg.Database.URL.Unmask(); url != "" {
		pool, err := db.NewPool(ctx, url, cfg.Database.MaxConns)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, pool.Close)
		repo := db.NewResultRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		e.stores = append(e.stores, repo)
		e.history = repo
		e.probes = append(e.probes, api.NewProbe("postgres", pool.Ping))
		logger.Info("postgres result store enabled", "max_conns", cfg.Database.MaxConns)
	}

	if len(cfg.ClickHouse.Addr) > 0 {
		conn, err := db.OpenClickHouse(ctx, db.ClickHouseOptions{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password.Unmask(),
		})
		if err != nil {
			return err
		}
		e.closers = append(e.closers, func() { _ = conn.Close() })
		store := db.NewClickHouseStore(conn)
		if err := store.EnsureTable(ctx, cfg.ClickHouse.Table); err != nil {
			return err
		}
		e.stores = append(e.stores, tableOverride{store: store, table: cfg.ClickHouse.Table})
		e.probes = append(e.probes, api.NewProbe("clickhouse", conn.Ping))
		logger.Info("clickhouse result store enabled", "table", cfg.ClickHouse.Table)
	}
	return nil
}

func (e *engine) openCommanders(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var awsCfg aws.Config
	needAWS := cfg.Commands.Transport == config.TransportSQS || cfg.Observability.EnableMetrics
	if needAWS {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		if cfg.AWS.EndpointURL != "" {
			awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	}

	if cfg.Observability.EnableMetrics {
		e.cw = metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), logger)
	}

	policy := transport.RetryPolicy{
		MaxRetries: cfg.Commands.MaxRetries,
		MinWait:    cfg.Commands.BaseDelay,
		MaxWait:    cfg.Commands.MaxDelay,
	}
	switch cfg.Commands.Transport {
	case config.TransportMQTT:
		client, err := transport.NewMQTTClient(transport.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password.Unmask(),
		}, logger)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, func() { client.Disconnect(250) })
		e.probes = append(e.probes, api.NewProbe("mqtt", func(context.Context) error {
			if !client.IsConnectionOpen() {
				return fmt.Errorf("not connected to %s", cfg.MQTT.Broker)
			}
			return nil
		}))
		mq := transport.NewMQTTCommander(client, cfg.MQTT.Topic, cfg.MQTT.Timeout, logger)
		e.commanders = append(e.commanders, transport.NewBreakerCommander("mqtt", mq, policy))
	case config.TransportSQS:
		sq := transport.NewSQSCommander(sqs.NewFromConfig(awsCfg), cfg.AWS.CommandQueue, logger)
		e.commanders = append(e.commanders, transport.NewBreakerCommander("sqs", sq, policy))
	default:
		logger.Warn("no command transport configured; corrections are recorded but not sent")
	}
	return nil
}

// tableOverride sends every row to a fixed table, for stores whose table name
// is set by deployment rather than by equipment definitions.
type tableOverride struct {
	store results.RowStore
	table string
}

func (t tableOverride) InsertTableRow(ctx context.Context, _ string, row results.TableRow) error {
	return t.store.InsertTableRow(ctx, t.table, row)
}

// teeSource archives every sample before it is dispatched.
type teeSource struct {
	src     ingest.Source
	archive *ingest.ArchiveWriter
	logger  *slog.Logger
}

func (t teeSource) Run(ctx context.Context, handle ingest.Handler) error {
	return t.src.Run(ctx, t.archive.Tee(handle, t.logger))
}
