package domainfx

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
	"github.com/yurykabanov/jfrkeeper/pkg/eventbus"
	"github.com/yurykabanov/jfrkeeper/pkg/http/handler"
	"github.com/yurykabanov/jfrkeeper/pkg/matchexpr"
	"github.com/yurykabanov/jfrkeeper/pkg/metrics"
	"github.com/yurykabanov/jfrkeeper/pkg/rules"
	"github.com/yurykabanov/jfrkeeper/pkg/scheduler"
	"github.com/yurykabanov/jfrkeeper/pkg/worker"
)

const (
	ConfigWorkersCount       = "workers.count"
	ConfigWorkersQueueSize   = "workers.queue_size"
	ConfigWorkersTaskTimeout = "workers.task_timeout"
	ConfigWorkersStopTimeout = "workers.stop_timeout"
)

func EventBus(logger *logrus.Logger) (*eventbus.Bus, domain.EventBus) {
	bus := eventbus.New(logger)

	return bus, bus
}

func CloseEventBus(lc fx.Lifecycle, bus *eventbus.Bus) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			bus.Close()
			return nil
		},
	})
}

func Evaluator(logger *logrus.Logger, targets domain.TargetSource) (*matchexpr.Evaluator, domain.ExpressionEvaluator, error) {
	evaluator, err := matchexpr.New(logger, targets)
	if err != nil {
		return nil, nil, err
	}

	return evaluator, evaluator, nil
}

type WorkerPoolConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	StopTimeout time.Duration
}

func WorkerPoolConfigProvider(v *viper.Viper) *WorkerPoolConfig {
	config := &WorkerPoolConfig{
		Workers:     v.GetInt(ConfigWorkersCount),
		QueueSize:   v.GetInt(ConfigWorkersQueueSize),
		TaskTimeout: v.GetDuration(ConfigWorkersTaskTimeout),
		StopTimeout: v.GetDuration(ConfigWorkersStopTimeout),
	}

	if config.TaskTimeout <= 0 {
		config.TaskTimeout = time.Minute
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 10 * time.Second
	}

	return config
}

func WorkerPool(logger *logrus.Logger, config *WorkerPoolConfig, m *metrics.Metrics) *worker.Pool {
	return worker.NewPool(logger, config.Workers, config.QueueSize, m.QueueDepth)
}

func Scheduler(logger *logrus.Logger, m scheduler.Metrics) *scheduler.Scheduler {
	return scheduler.New(logger, m)
}

func ArchiveScheduler(
	logger *logrus.Logger,
	registry *rules.JobRegistry,
	s *scheduler.Scheduler,
	repo domain.RuleRepository,
	targets domain.TargetSource,
	recordings domain.RecordingLifecycle,
	storage domain.ArchiveStorage,
	m rules.Metrics,
) *rules.ArchiveScheduler {
	return rules.NewArchiveScheduler(logger, registry, s, repo, targets, recordings, storage, m)
}

func Coordinator(
	logger *logrus.Logger,
	repo domain.RuleRepository,
	evaluator domain.ExpressionEvaluator,
	recordings domain.RecordingLifecycle,
	templates domain.TemplateResolver,
	archiver *rules.ArchiveScheduler,
	pool *worker.Pool,
	m rules.Metrics,
	config *WorkerPoolConfig,
) *rules.Coordinator {
	return rules.NewCoordinator(logger, repo, evaluator, recordings, templates, archiver, pool, m, config.TaskTimeout)
}

func RuleRegistry(
	logger *logrus.Logger,
	repo domain.RuleRepository,
	evaluator domain.ExpressionEvaluator,
	templates domain.TemplateResolver,
	bus domain.EventBus,
) (*rules.Registry, handler.RuleService) {
	registry := rules.NewRegistry(logger, repo, evaluator, templates, bus)

	return registry, registry
}

// Subscribe wires event consumers. The evaluator goes first on every topic so
// the coordinator never sees results cached for a previous state.
func Subscribe(bus *eventbus.Bus, evaluator *matchexpr.Evaluator, coordinator *rules.Coordinator) {
	bus.Subscribe(domain.TopicRules, evaluator.HandleRuleEvent)
	bus.Subscribe(domain.TopicTargets, evaluator.HandleDiscoveryEvent)

	bus.Subscribe(domain.TopicRulesClean, coordinator.HandleRuleCleanEvent)
	bus.Subscribe(domain.TopicRules, coordinator.HandleRuleEvent)
	bus.Subscribe(domain.TopicTargets, coordinator.HandleDiscoveryEvent)
}

// RunEngine starts the worker pool before the scheduler and stops them in the
// same order, so queued activations drain before jobs are cancelled.
func RunEngine(
	lc fx.Lifecycle,
	logger *logrus.Logger,
	config *WorkerPoolConfig,
	pool *worker.Pool,
	s *scheduler.Scheduler,
	archiver *rules.ArchiveScheduler,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Start(context.Background()); err != nil {
				return err
			}
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			var result error

			if err := pool.Stop(config.StopTimeout); err != nil {
				logger.WithError(err).Warn("Worker pool did not drain in time")
				result = multierr.Append(result, err)
			}

			return multierr.Append(result, archiver.Shutdown(ctx))
		},
	})
}
