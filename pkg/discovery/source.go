package discovery

import (
	"context"
)

// Endpoint is a JVM reachable through Jolokia whose identity is not known yet.
type Endpoint struct {
	ConnectUrl          string
	Alias               string
	Labels              map[string]string
	PlatformAnnotations map[string]string
}

type Source interface {
	Name() string
	Endpoints(ctx context.Context) ([]Endpoint, error)
}

// StaticEndpoint is a configured target.
type StaticEndpoint struct {
	Alias      string            `mapstructure:"alias"`
	ConnectUrl string            `mapstructure:"connect_url"`
	Labels     map[string]string `mapstructure:"labels"`
}

type StaticSource struct {
	endpoints []StaticEndpoint
}

func NewStaticSource(endpoints []StaticEndpoint) *StaticSource {
	return &StaticSource{endpoints: endpoints}
}

func (s *StaticSource) Name() string {
	return "static"
}

func (s *StaticSource) Endpoints(context.Context) ([]Endpoint, error) {
	result := make([]Endpoint, 0, len(s.endpoints))

	for _, e := range s.endpoints {
		result = append(result, Endpoint{
			ConnectUrl:          e.ConnectUrl,
			Alias:               e.Alias,
			Labels:              e.Labels,
			PlatformAnnotations: map[string]string{"SOURCE": "static"},
		})
	}

	return result, nil
}
