package jolokiafx

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/jfrkeeper/pkg/archive"
	"github.com/yurykabanov/jfrkeeper/pkg/discovery"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
	"github.com/yurykabanov/jfrkeeper/pkg/jolokia"
)

const (
	ConfigJolokiaUsername    = "jolokia.username"
	ConfigJolokiaPassword    = "jolokia.password"
	ConfigConnectionTimeout  = "connection.timeout"
	ConfigTemplatesDirectory = "templates.directory"
)

func JolokiaConfigProvider(v *viper.Viper) jolokia.Config {
	return jolokia.Config{
		Username:           v.GetString(ConfigJolokiaUsername),
		Password:           v.GetString(ConfigJolokiaPassword),
		Timeout:            v.GetDuration(ConfigConnectionTimeout),
		TemplatesDirectory: v.GetString(ConfigTemplatesDirectory),
	}
}

func JolokiaClient(logger *logrus.Logger, config jolokia.Config) (
	*jolokia.Client,
	domain.RecordingLifecycle,
	domain.TemplateResolver,
	archive.RecordingStreamer,
	discovery.IdentityResolver,
) {
	// requests are bounded per call by the client, streams must not be
	// cut by a client-wide timeout
	client := jolokia.New(logger, &http.Client{}, config)

	return client, client, client, client, client
}
