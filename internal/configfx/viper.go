package configfx

import (
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix              = "jfrkeeper"
	DefaultConfigDirectory = "jfrkeeper"
	DefaultConfigFile      = "jfrkeeper"

	defaultServerAddress = ":8181"
)

var (
	defaultConfigPaths = []string{
		".",
		"./config",
		path.Join("/etc", DefaultConfigDirectory),
	}

	defaults = map[string]interface{}{
		"log.level":                 "info",
		"log.format":                "json",
		"database.dsn":              "./db/jfrkeeper.db",
		"database.name":             "jfrkeeper",
		"database.migrations":       "file://migrations/",
		"server.address":            defaultServerAddress,
		"server.timeout.read":       10 * time.Second,
		"server.timeout.write":      30 * time.Second,
		"workers.count":             4,
		"workers.queue_size":        1000,
		"workers.task_timeout":      time.Minute,
		"workers.stop_timeout":      10 * time.Second,
		"connection.timeout":        10 * time.Second,
		"archive.driver":            "fs",
		"archive.fs.directory":      "./archive",
		"archive.s3.region":         "us-east-1",
		"archive.s3.bucket":         "jfrkeeper",
		"discovery.interval":        30 * time.Second,
		"discovery.docker.label":    "jfrkeeper.jolokia.port",
		"discovery.docker.interval": 30 * time.Second,
	}
)

func ViperProvider(logger *logrus.Logger, flagSet *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	err := v.BindPFlags(flagSet)
	if err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// An explicitly given config file MUST exist and be valid, while a missing
	// default one only produces a warning.
	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName(DefaultConfigFile)

		for _, dir := range defaultConfigPaths {
			v.AddConfigPath(dir)
		}

		if err := v.ReadInConfig(); err != nil {
			logger.WithError(err).Warn("Couldn't read config file")
		}
	}

	return v, nil
}
