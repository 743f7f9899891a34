package jolokia

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

// in bytes, per readStream call
const streamBlockSize = 256 * 1024

// OpenRecordingStream returns the data of a recording as of now, starting at
// since unless it is zero. The recording is cloned first so that the
// original keeps running untouched; closing the stream releases the clone.
func (c *Client) OpenRecordingStream(ctx context.Context, target domain.Target, recording domain.Recording, since time.Time) (io.ReadCloser, error) {
	var cloneId int64
	if err := c.exec(ctx, target.ConnectUrl, "cloneRecording", &cloneId, recording.Id, true); err != nil {
		return nil, err
	}

	var streamId int64
	options := map[string]string{"blockSize": strconv.Itoa(streamBlockSize)}
	if !since.IsZero() {
		options["startTime"] = strconv.FormatInt(since.UnixNano()/int64(time.Millisecond), 10)
	}
	if err := c.exec(ctx, target.ConnectUrl, "openStream", &streamId, cloneId, options); err != nil {
		if closeErr := c.exec(ctx, target.ConnectUrl, "closeRecording", nil, cloneId); closeErr != nil {
			appcontext.LoggerFromContext(c.logger, ctx).WithError(closeErr).Warn("Unable to close recording clone")
		}
		return nil, err
	}

	return &recordingStream{
		ctx:      ctx,
		client:   c,
		target:   target,
		cloneId:  cloneId,
		streamId: streamId,
	}, nil
}

type recordingStream struct {
	ctx    context.Context
	client *Client
	target domain.Target

	cloneId  int64
	streamId int64

	buf    []byte
	eof    bool
	closed bool
}

func (s *recordingStream) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		if err := s.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]

	return n, nil
}

// fill reads the next block. Jolokia serializes byte[] as an array of signed
// bytes and a drained stream as null.
func (s *recordingStream) fill() error {
	var block []int8

	err := s.client.exec(s.ctx, s.target.ConnectUrl, "readStream", &block, s.streamId)
	if err != nil {
		return errors.Wrap(err, "Unable to read recording stream")
	}

	if block == nil {
		s.eof = true
		return nil
	}

	s.buf = make([]byte, len(block))
	for i, b := range block {
		s.buf[i] = byte(b)
	}

	return nil
}

func (s *recordingStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	// the stream may be closed after the caller's context is done
	ctx := context.Background()

	return multierr.Append(
		s.client.exec(ctx, s.target.ConnectUrl, "closeStream", nil, s.streamId),
		s.client.exec(ctx, s.target.ConnectUrl, "closeRecording", nil, s.cloneId),
	)
}
