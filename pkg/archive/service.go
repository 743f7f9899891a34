// Package archive copies recordings out of their JVMs into an object store.
package archive

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const (
	MetadataJvmId      = "jvm-id"
	MetadataConnectUrl = "connect-url"
	MetadataMaxSize    = "max-size"

	// upper bound of archives of one recording within the same second
	maxSeq = 100
)

var ErrKeyExhausted = errors.New("no free archive name left")

// RecordingStreamer reads recording data off a target.
type RecordingStreamer interface {
	OpenRecordingStream(ctx context.Context, target domain.Target, recording domain.Recording, since time.Time) (io.ReadCloser, error)
	Labels(target domain.Target, recordingId int64) map[string]string
}

type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Service stores archives under <jvmId>/<filename>.
type Service struct {
	logger   logrus.FieldLogger
	store    ObjectStore
	streamer RecordingStreamer
	now      func() time.Time
}

func NewService(logger logrus.FieldLogger, store ObjectStore, streamer RecordingStreamer) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		streamer: streamer,
		now:      time.Now,
	}
}

func objectKey(jvmId, filename string) string {
	return jvmId + "/" + filename
}

// ArchiveRecording copies the current data of the recording, limited to the
// last maxAge when positive, and returns the filename of the archive.
func (s *Service) ArchiveRecording(ctx context.Context, target domain.Target, recording domain.Recording, maxAge time.Duration, maxSize int64) (string, error) {
	logger := appcontext.LoggerFromContext(s.logger, appcontext.WithRecordingId(ctx, recording.Id))

	now := s.now().UTC().Truncate(time.Second)

	filename, err := s.freeFilename(ctx, target, recording, now)
	if err != nil {
		return "", err
	}

	var since time.Time
	if maxAge > 0 {
		since = now.Add(-maxAge)
	}

	stream, err := s.streamer.OpenRecordingStream(ctx, target, recording, since)
	if err != nil {
		return "", errors.Wrap(err, "Unable to open recording stream")
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.WithError(err).Warn("Unable to close recording stream")
		}
	}()

	metadata := s.streamer.Labels(target, recording.Id)
	metadata[MetadataJvmId] = target.JvmId
	metadata[MetadataConnectUrl] = target.ConnectUrl
	if maxSize > 0 {
		metadata[MetadataMaxSize] = strconv.FormatInt(maxSize, 10)
	}

	if err := s.store.Put(ctx, objectKey(target.JvmId, filename), stream, metadata); err != nil {
		return "", errors.Wrapf(err, "Unable to store %s", filename)
	}

	logger.WithField("filename", filename).Debug("Recording archived")

	return filename, nil
}

func (s *Service) freeFilename(ctx context.Context, target domain.Target, recording domain.Recording, now time.Time) (string, error) {
	name := domain.ArchiveFilename{
		TargetTag:     domain.TargetTag(target),
		RecordingName: recording.Name,
		Timestamp:     now,
	}

	for seq := 0; seq < maxSeq; seq++ {
		name.Seq = seq

		exists, err := s.store.Exists(ctx, objectKey(target.JvmId, name.String()))
		if err != nil {
			return "", errors.Wrap(err, "Unable to check archive name")
		}
		if !exists {
			return name.String(), nil
		}
	}

	return "", errors.Wrapf(ErrKeyExhausted, "%s at %s", recording.Name, now.Format(domain.ArchiveTimestampLayout))
}

func (s *Service) DeleteArchivedRecording(ctx context.Context, jvmId string, filename string) error {
	return s.store.Delete(ctx, objectKey(jvmId, filename))
}

func (s *Service) ListArchivedRecordings(ctx context.Context) ([]domain.ArchivedRecording, error) {
	objects, err := s.store.List(ctx, "")
	if err != nil {
		return nil, errors.Wrap(err, "Unable to list archives")
	}

	result := make([]domain.ArchivedRecording, 0, len(objects))
	for _, o := range objects {
		parts := strings.SplitN(o.Key, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}

		result = append(result, domain.ArchivedRecording{
			Key:          o.Key,
			JvmId:        parts[0],
			Filename:     parts[1],
			LastModified: o.LastModified,
			Size:         o.Size,
		})
	}

	return result, nil
}
