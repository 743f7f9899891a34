package dockerfx

import (
	"context"
	"time"

	docker "github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const (
	ConfigDockerEnabled = "discovery.docker.enabled"
	ConfigDockerHost    = "discovery.docker.host"
	ConfigDockerVersion = "discovery.docker.version"
)

type DockerConnectionConfig struct {
	Enabled bool
	Host    string
	Version string
}

func DockerConnectionConfigProvider(v *viper.Viper) (*DockerConnectionConfig, error) {
	return &DockerConnectionConfig{
		Enabled: v.GetBool(ConfigDockerEnabled),
		Host:    v.GetString(ConfigDockerHost),
		Version: v.GetString(ConfigDockerVersion),
	}, nil
}

// DockerClient returns nil when docker discovery is disabled.
func DockerClient(config *DockerConnectionConfig, logger *logrus.Logger) (*docker.Client, error) {
	if !config.Enabled {
		logger.Debug("Docker discovery is disabled")
		return nil, nil
	}

	if config.Host == "" {
		config.Host = docker.DefaultDockerHost
	}

	logger.WithField("host", config.Host).Debug("Connecting to docker via")

	client, err := docker.NewClient(config.Host, config.Version, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create docker client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = client.Ping(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to ping docker")
	}

	return client, nil
}

func CloseDockerClient(lc fx.Lifecycle, client *docker.Client) {
	if client == nil {
		return
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}
