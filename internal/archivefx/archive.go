package archivefx

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/jfrkeeper/pkg/archive"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const (
	ConfigArchiveDriver      = "archive.driver"
	ConfigArchiveFSDirectory = "archive.fs.directory"
	ConfigArchiveS3Endpoint  = "archive.s3.endpoint"
	ConfigArchiveS3Region    = "archive.s3.region"
	ConfigArchiveS3Bucket    = "archive.s3.bucket"
	ConfigArchiveS3AccessKey = "archive.s3.access_key"
	ConfigArchiveS3SecretKey = "archive.s3.secret_key"
	ConfigArchiveS3PathStyle = "archive.s3.path_style"
)

const (
	DriverFS = "fs"
	DriverS3 = "s3"
)

type ArchiveConfig struct {
	Driver    string
	Directory string
	S3        archive.S3Config
}

func ArchiveConfigProvider(v *viper.Viper) (*ArchiveConfig, error) {
	return &ArchiveConfig{
		Driver:    v.GetString(ConfigArchiveDriver),
		Directory: v.GetString(ConfigArchiveFSDirectory),
		S3: archive.S3Config{
			Endpoint:     v.GetString(ConfigArchiveS3Endpoint),
			Region:       v.GetString(ConfigArchiveS3Region),
			Bucket:       v.GetString(ConfigArchiveS3Bucket),
			AccessKey:    v.GetString(ConfigArchiveS3AccessKey),
			SecretKey:    v.GetString(ConfigArchiveS3SecretKey),
			UsePathStyle: v.GetBool(ConfigArchiveS3PathStyle),
		},
	}, nil
}

func ObjectStore(config *ArchiveConfig, logger *logrus.Logger) (archive.ObjectStore, error) {
	switch config.Driver {
	case DriverFS:
		logger.WithField("directory", config.Directory).Debug("Archiving recordings to filesystem")

		return archive.NewFSStore(config.Directory)

	case DriverS3:
		logger.WithFields(logrus.Fields{
			"endpoint": config.S3.Endpoint,
			"bucket":   config.S3.Bucket,
		}).Debug("Archiving recordings to S3")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		store, err := archive.NewS3Store(ctx, config.S3)
		if err != nil {
			return nil, err
		}

		if err := store.EnsureBucket(ctx); err != nil {
			return nil, errors.Wrap(err, "Unable to prepare archive bucket")
		}

		return store, nil
	}

	return nil, errors.Errorf("unknown archive driver %q", config.Driver)
}

func ArchiveService(
	logger *logrus.Logger,
	store archive.ObjectStore,
	streamer archive.RecordingStreamer,
) (*archive.Service, domain.ArchiveStorage) {
	service := archive.NewService(logger, store, streamer)

	return service, service
}
