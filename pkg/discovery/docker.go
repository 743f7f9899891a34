package discovery

import (
	"context"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/sirupsen/logrus"
)

const DefaultJolokiaPort = 8778

type ContainerLister interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
}

// DockerSource reports running containers carrying the discovery label. The
// label value is the Jolokia port of the container, empty means the default.
type DockerSource struct {
	logger logrus.FieldLogger
	client ContainerLister
	label  string
}

func NewDockerSource(logger logrus.FieldLogger, client ContainerLister, label string) *DockerSource {
	return &DockerSource{
		logger: logger,
		client: client,
		label:  label,
	}
}

func (s *DockerSource) Name() string {
	return "docker"
}

func (s *DockerSource) Endpoints(ctx context.Context) ([]Endpoint, error) {
	args := filters.NewArgs()
	args.Add("label", s.label)
	args.Add("status", "running")

	containers, err := s.client.ContainerList(ctx, types.ContainerListOptions{Filters: args})
	if err != nil {
		return nil, err
	}

	var result []Endpoint

	for _, c := range containers {
		logger := s.logger.WithField("container_id", c.ID)

		port := DefaultJolokiaPort
		if value := strings.TrimSpace(c.Labels[s.label]); value != "" {
			port, err = strconv.Atoi(value)
			if err != nil || port <= 0 || port > 65535 {
				logger.WithField("label", value).Warn("Skipping container with invalid Jolokia port label")
				continue
			}
		}

		ip := containerAddress(c)
		if ip == "" {
			logger.Warn("Skipping container without network address")
			continue
		}

		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		result = append(result, Endpoint{
			ConnectUrl: "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + "/jolokia",
			Alias:      name,
			Labels:     c.Labels,
			PlatformAnnotations: map[string]string{
				"SOURCE":         "docker",
				"CONTAINER_ID":   c.ID,
				"CONTAINER_NAME": name,
				"IMAGE":          c.Image,
			},
		})
	}

	return result, nil
}

// containerAddress picks the address on the first network by name so that
// the choice is stable across polls.
func containerAddress(c types.Container) string {
	if c.NetworkSettings == nil {
		return ""
	}

	names := make([]string, 0, len(c.NetworkSettings.Networks))
	for name := range c.NetworkSettings.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if n := c.NetworkSettings.Networks[name]; n != nil && n.IPAddress != "" {
			return n.IPAddress
		}
	}

	return ""
}
