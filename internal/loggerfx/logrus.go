package loggerfx

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	ConfigLogLevel  = "log.level"
	ConfigLogFormat = "log.format"
)

var logger *logrus.Logger

func init() {
	logger = logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{})
}

// Logger is the process logger. It is configured once config is loaded, so
// anything logged before that uses the JSON defaults.
func Logger() *logrus.Logger {
	return logger
}

func ConfigureLogger(logger *logrus.Logger, v *viper.Viper) {
	level, err := logrus.ParseLevel(v.GetString(ConfigLogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	switch v.GetString(ConfigLogFormat) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if err != nil {
		logger.WithField("level", v.GetString(ConfigLogLevel)).Warn("Unknown log level, using info")
	}
}
