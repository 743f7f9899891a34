package jolokia

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

var ErrRecordingExists = errors.New("recording with this name already exists")

// recordingInfo mirrors jdk.management.jfr.RecordingInfo. maxAge is in
// seconds, maxSize in bytes.
type recordingInfo struct {
	Id      int64  `json:"id"`
	Name    string `json:"name"`
	State   string `json:"state"`
	MaxAge  int64  `json:"maxAge"`
	MaxSize int64  `json:"maxSize"`
	ToDisk  bool   `json:"toDisk"`
}

func (c *Client) toRecording(target domain.Target, info recordingInfo) domain.Recording {
	return domain.Recording{
		Id:      info.Id,
		Name:    info.Name,
		State:   domain.ParseRecordingState(info.State),
		MaxAge:  time.Duration(info.MaxAge) * time.Second,
		MaxSize: info.MaxSize,
		Labels:  c.Labels(target, info.Id),
	}
}

// Recordings lists every recording known to the flight recorder of the target.
func (c *Client) Recordings(ctx context.Context, target domain.Target) ([]domain.Recording, error) {
	var infos []recordingInfo

	err := c.read(ctx, target.ConnectUrl, flightRecorderMBean, "Recordings", &infos)
	if err != nil {
		return nil, err
	}

	result := make([]domain.Recording, 0, len(infos))
	for _, info := range infos {
		result = append(result, c.toRecording(target, info))
	}

	return result, nil
}

func (c *Client) GetActiveRecording(ctx context.Context, target domain.Target, predicate func(domain.Recording) bool) (domain.Recording, error) {
	recordings, err := c.Recordings(ctx, target)
	if err != nil {
		return domain.Recording{}, err
	}

	for _, r := range recordings {
		if r.IsActive() && predicate(r) {
			return r, nil
		}
	}

	return domain.Recording{}, domain.ErrRecordingNotFound
}

// StartRecording creates, configures and starts a recording. An existing
// recording of the same name is closed first if the policy allows it.
func (c *Client) StartRecording(
	ctx context.Context,
	target domain.Target,
	policy domain.ReplacePolicy,
	template domain.Template,
	options domain.RecordingOptions,
	labels map[string]string,
) (domain.Recording, error) {
	logger := appcontext.LoggerFromContext(c.logger, ctx)

	if err := c.replaceExisting(ctx, target, policy, options.Name); err != nil {
		return domain.Recording{}, err
	}

	var id int64
	if err := c.exec(ctx, target.ConnectUrl, "newRecording", &id); err != nil {
		return domain.Recording{}, err
	}

	err := c.configure(ctx, target, id, template, options)
	if err == nil {
		err = c.exec(ctx, target.ConnectUrl, "startRecording", nil, id)
	}
	if err != nil {
		if closeErr := c.exec(ctx, target.ConnectUrl, "closeRecording", nil, id); closeErr != nil {
			logger.WithError(closeErr).WithField("recording_id", id).Warn("Unable to close half-created recording")
		}
		return domain.Recording{}, err
	}

	c.setLabels(target.ConnectUrl, id, labels)

	logger.WithFields(logrus.Fields{
		"recording_id": id,
		"name":         options.Name,
		"template":     template.Name,
	}).Debug("Recording started")

	return domain.Recording{
		Id:      id,
		Name:    options.Name,
		State:   domain.RecordingStateRunning,
		MaxAge:  options.MaxAge,
		MaxSize: options.MaxSize,
		Labels:  c.Labels(target, id),
	}, nil
}

func (c *Client) configure(ctx context.Context, target domain.Target, id int64, template domain.Template, options domain.RecordingOptions) error {
	var err error

	switch template.Type {
	case domain.TemplateTypeCustom:
		err = c.exec(ctx, target.ConnectUrl, "setConfiguration", nil, id, template.Contents)
	default:
		err = c.exec(ctx, target.ConnectUrl, "setPredefinedConfiguration", nil, id, template.Name)
	}
	if err != nil {
		return err
	}

	return c.exec(ctx, target.ConnectUrl, "setRecordingOptions", nil, id, recordingOptions(options))
}

func recordingOptions(options domain.RecordingOptions) map[string]string {
	maxAge := "0"
	if options.MaxAge > 0 {
		maxAge = strconv.FormatInt(int64(options.MaxAge/time.Second), 10) + " s"
	}

	maxSize := "0"
	if options.MaxSize > 0 {
		maxSize = strconv.FormatInt(options.MaxSize, 10)
	}

	return map[string]string{
		"name":    options.Name,
		"maxAge":  maxAge,
		"maxSize": maxSize,
		"toDisk":  strconv.FormatBool(options.ToDisk),
	}
}

func (c *Client) replaceExisting(ctx context.Context, target domain.Target, policy domain.ReplacePolicy, name string) error {
	recordings, err := c.Recordings(ctx, target)
	if err != nil {
		return err
	}

	for _, r := range recordings {
		if r.Name != name || r.State == domain.RecordingStateClosed {
			continue
		}

		switch {
		case policy == domain.ReplaceNever:
			return errors.Wrapf(ErrRecordingExists, "recording %q (id %d)", name, r.Id)
		case policy == domain.ReplaceStopped && r.IsActive():
			return errors.Wrapf(ErrRecordingExists, "recording %q (id %d) is still running", name, r.Id)
		}

		if err := c.exec(ctx, target.ConnectUrl, "closeRecording", nil, r.Id); err != nil {
			return err
		}
		c.dropLabels(target.ConnectUrl, r.Id)
	}

	return nil
}

func (c *Client) StopRecording(ctx context.Context, target domain.Target, recording domain.Recording) error {
	var stopped bool
	return c.exec(ctx, target.ConnectUrl, "stopRecording", &stopped, recording.Id)
}

// CloseRecording releases the recording and its data on the target.
func (c *Client) CloseRecording(ctx context.Context, target domain.Target, recording domain.Recording) error {
	if err := c.exec(ctx, target.ConnectUrl, "closeRecording", nil, recording.Id); err != nil {
		return err
	}
	c.dropLabels(target.ConnectUrl, recording.Id)
	return nil
}
