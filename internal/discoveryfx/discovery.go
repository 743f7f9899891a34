package discoveryfx

import (
	"context"
	"time"

	docker "github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/jfrkeeper/pkg/discovery"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const (
	ConfigDiscoveryStatic         = "discovery.static"
	ConfigDiscoveryInterval       = "discovery.interval"
	ConfigDiscoveryDockerLabel    = "discovery.docker.label"
	ConfigDiscoveryDockerInterval = "discovery.docker.interval"
)

type DiscoveryConfig struct {
	Static         []discovery.StaticEndpoint
	Interval       time.Duration
	DockerLabel    string
	DockerInterval time.Duration
}

func DiscoveryConfigProvider(v *viper.Viper) (*DiscoveryConfig, error) {
	config := &DiscoveryConfig{
		Interval:       v.GetDuration(ConfigDiscoveryInterval),
		DockerLabel:    v.GetString(ConfigDiscoveryDockerLabel),
		DockerInterval: v.GetDuration(ConfigDiscoveryDockerInterval),
	}

	if err := v.UnmarshalKey(ConfigDiscoveryStatic, &config.Static); err != nil {
		return nil, errors.Wrap(err, "Unable to unmarshal static targets")
	}

	return config, nil
}

func TargetRegistry(logger *logrus.Logger, bus domain.EventBus) (*discovery.Registry, domain.TargetSource) {
	registry := discovery.NewRegistry(logger, bus)

	return registry, registry
}

// Watchers builds one watcher per polling interval. The docker watcher is
// left out when the docker client is disabled.
func Watchers(
	logger *logrus.Logger,
	config *DiscoveryConfig,
	registry *discovery.Registry,
	resolver discovery.IdentityResolver,
	client *docker.Client,
) []*discovery.Watcher {
	var watchers []*discovery.Watcher

	if len(config.Static) > 0 {
		watchers = append(watchers, discovery.NewWatcher(
			logger, registry, resolver,
			[]discovery.Source{discovery.NewStaticSource(config.Static)},
			config.Interval,
		))
	}

	if client != nil {
		watchers = append(watchers, discovery.NewWatcher(
			logger, registry, resolver,
			[]discovery.Source{discovery.NewDockerSource(logger, client, config.DockerLabel)},
			config.DockerInterval,
		))
	}

	return watchers
}

func RunWatchers(lc fx.Lifecycle, logger *logrus.Logger, watchers []*discovery.Watcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if len(watchers) == 0 {
				logger.Warn("No discovery source is configured, rules will match nothing")
			}

			for _, w := range watchers {
				w.Start()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			for _, w := range watchers {
				w.Stop()
			}
			return nil
		},
	})
}
