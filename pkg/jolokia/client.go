// Package jolokia talks to the JDK Flight Recorder of remote JVMs through the
// Jolokia JSON-over-HTTP bridge.
package jolokia

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/jfrkeeper/pkg/appcontext"
	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const (
	flightRecorderMBean = "jdk.management.jfr:type=FlightRecorder"
	runtimeMBean        = "java.lang:type=Runtime"

	defaultTimeout = 10 * time.Second
)

type Config struct {
	Username string
	Password string

	// bounds every request to a target
	Timeout time.Duration

	// directory with .jfc files served as CUSTOM templates
	TemplatesDirectory string
}

type request struct {
	Type      string        `json:"type"`
	MBean     string        `json:"mbean"`
	Operation string        `json:"operation,omitempty"`
	Attribute interface{}   `json:"attribute,omitempty"`
	Arguments []interface{} `json:"arguments,omitempty"`
}

type response struct {
	Status    int             `json:"status"`
	Value     json.RawMessage `json:"value"`
	Error     string          `json:"error"`
	ErrorType string          `json:"error_type"`
}

type labelKey struct {
	connectUrl  string
	recordingId int64
}

// Client implements recording lifecycle and template resolution on top of
// the FlightRecorder MXBean. JFR has no notion of labels, so labels given to
// StartRecording are kept here for the lifetime of the process.
type Client struct {
	logger logrus.FieldLogger
	http   *http.Client
	config Config

	mu     sync.Mutex
	labels map[labelKey]map[string]string
}

func New(logger logrus.FieldLogger, httpClient *http.Client, config Config) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		logger: logger,
		http:   httpClient,
		config: config,
		labels: make(map[labelKey]map[string]string),
	}
}

func (c *Client) exec(ctx context.Context, connectUrl, operation string, out interface{}, args ...interface{}) error {
	if args == nil {
		args = []interface{}{}
	}

	return c.do(ctx, connectUrl, operation, request{
		Type:      "exec",
		MBean:     flightRecorderMBean,
		Operation: operation,
		Arguments: args,
	}, out)
}

func (c *Client) read(ctx context.Context, connectUrl, mbean string, attribute interface{}, out interface{}) error {
	return c.do(ctx, connectUrl, "read", request{
		Type:      "read",
		MBean:     mbean,
		Attribute: attribute,
	}, out)
}

func (c *Client) do(ctx context.Context, connectUrl, op string, req request, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "Unable to encode request")
	}

	httpReq, err := http.NewRequest(http.MethodPost, connectUrl, bytes.NewReader(body))
	if err != nil {
		return &domain.ConnectionError{ConnectUrl: connectUrl, Op: op, Err: err}
	}
	httpReq = httpReq.WithContext(ctx)
	httpReq.Header.Set("Content-Type", "application/json")

	if c.config.Username != "" {
		httpReq.SetBasicAuth(c.config.Username, c.config.Password)
	}

	appcontext.LoggerFromContext(c.logger, ctx).WithField("op", op).Debug("Sending Jolokia request")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return &domain.ConnectionError{ConnectUrl: connectUrl, Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return &domain.ConnectionError{
			ConnectUrl: connectUrl,
			Op:         op,
			Err:        errors.Errorf("unexpected HTTP status %d", httpResp.StatusCode),
		}
	}

	var resp response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return &domain.ConnectionError{ConnectUrl: connectUrl, Op: op, Err: errors.Wrap(err, "malformed response")}
	}

	if resp.Status != http.StatusOK {
		return &domain.ConnectionError{
			ConnectUrl: connectUrl,
			Op:         op,
			Err:        errors.Errorf("jolokia status %d: %s", resp.Status, resp.Error),
		}
	}

	if out == nil || len(resp.Value) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Value, out); err != nil {
		return errors.Wrapf(err, "Unable to decode %s result", op)
	}

	return nil
}

func (c *Client) setLabels(connectUrl string, id int64, labels map[string]string) {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}

	c.mu.Lock()
	c.labels[labelKey{connectUrl, id}] = copied
	c.mu.Unlock()
}

func (c *Client) dropLabels(connectUrl string, id int64) {
	c.mu.Lock()
	delete(c.labels, labelKey{connectUrl, id})
	c.mu.Unlock()
}

// Labels returns the labels the recording was started with.
func (c *Client) Labels(target domain.Target, recordingId int64) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]string)
	for k, v := range c.labels[labelKey{target.ConnectUrl, recordingId}] {
		result[k] = v
	}
	return result
}
