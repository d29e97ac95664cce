package main

import (
	"context"
	"fmt"

	config "github.com/NordCoder/pingerus-adhoc/internal/config/adhoc-engine"
	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
	"github.com/NordCoder/pingerus-adhoc/internal/obs/retry"
	"github.com/NordCoder/pingerus-adhoc/internal/repository/checkapi"
	"github.com/NordCoder/pingerus-adhoc/internal/repository/kafka"
	"github.com/NordCoder/pingerus-adhoc/internal/repository/loki"
	pg "github.com/NordCoder/pingerus-adhoc/internal/repository/postgres"
	"github.com/NordCoder/pingerus-adhoc/internal/repository/probes"
	"go.uber.org/zap"
)

// deps owns the external resources the engine talks to.
type deps struct {
	db       *pg.DB
	producer *kafka.Producer

	probes   domain.ProbeDirectory
	dispatch domain.DispatchAPI
	logs     domain.LogQuery
}

func initDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pg.DB, error) {
	var db *pg.DB
	err := retry.Do(ctx, retry.StartupPolicy("postgres", logger), func(ctx context.Context) error {
		var err error
		db, err = pg.NewDB(ctx, cfg.DB)
		return err
	})
	return db, err
}

func initProbes(ctx context.Context, cfg *config.Config, logger *zap.Logger, d *deps) error {
	switch cfg.Probes.Source {
	case config.ProbesFile:
		dir, err := probes.LoadFile(cfg.Probes.File)
		if err != nil {
			return err
		}
		d.probes = dir
	default:
		db, err := initDB(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		d.db = db
		d.probes = pg.NewProbeRepo(db)
	}
	logger.Info("probe directory ready", zap.String("source", cfg.Probes.Source))
	return nil
}

func initDispatch(ctx context.Context, cfg *config.Config, logger *zap.Logger, d *deps) error {
	switch cfg.Dispatch.Mode {
	case config.DispatchKafka:
		spec := kafka.TopicSpec{
			Name:              cfg.Kafka.Topic,
			NumPartitions:     cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
		}
		err := retry.Do(ctx, retry.StartupPolicy("kafka", logger), func(ctx context.Context) error {
			return kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, spec, logger)
		})
		if err != nil {
			return fmt.Errorf("ensure topic: %w", err)
		}
		d.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(logger)
		d.dispatch = kafka.NewAdHocRequestsKafka(d.producer)
	default:
		d.dispatch = checkapi.New(checkapi.Config{
			URL:     cfg.Dispatch.URL,
			Token:   cfg.Dispatch.Token,
			Timeout: cfg.Dispatch.Timeout,
		})
	}
	logger.Info("dispatch ready", zap.String("mode", cfg.Dispatch.Mode))
	return nil
}

func initDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*deps, error) {
	d := &deps{}
	if err := initProbes(ctx, cfg, logger, d); err != nil {
		return nil, err
	}
	if err := initDispatch(ctx, cfg, logger, d); err != nil {
		d.close(logger)
		return nil, err
	}
	d.logs = loki.New(loki.Config{
		URL:      cfg.Logs.URL,
		Tenant:   cfg.Logs.Tenant,
		Selector: cfg.Logs.Selector,
		Limit:    cfg.Logs.Limit,
		Timeout:  cfg.Logs.Timeout,
	}, logger)
	return d, nil
}

func (d *deps) health(ctx context.Context) error {
	if d.db == nil {
		return nil
	}
	return d.db.Ping(ctx)
}

func (d *deps) close(logger *zap.Logger) {
	if d.producer != nil {
		if err := d.producer.Close(); err != nil {
			logger.Warn("kafka producer close", zap.Error(err))
		}
	}
	if d.db != nil {
		d.db.Close()
	}
}
