package loggerfx

import (
	"log"

	"github.com/sirupsen/logrus"
)

// DefaultLoggerAdapter routes standard library log output, such as net/http
// server errors, into logrus at error level.
func DefaultLoggerAdapter(logger *logrus.Logger) *log.Logger {
	return log.New(logger.WriterLevel(logrus.ErrorLevel), "", 0)
}
