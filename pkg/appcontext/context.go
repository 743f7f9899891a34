package appcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextId int

const (
	ruleNameKeyId contextId = iota
	jvmIdKeyId
	connectUrlKeyId
	recordingIdKeyId
	requestIdKeyId
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKeyId, requestId)
}

func WithRecordingId(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, recordingIdKeyId, id)
}

func WithRuleName(ctx context.Context, rule string) context.Context {
	return context.WithValue(ctx, ruleNameKeyId, rule)
}

// WithTarget stores both identity and address of the target since log
// readers usually know only one of them.
func WithTarget(ctx context.Context, jvmId, connectUrl string) context.Context {
	ctx = context.WithValue(ctx, jvmIdKeyId, jvmId)
	return context.WithValue(ctx, connectUrlKeyId, connectUrl)
}

func RequestIdFromContext(ctx context.Context) string {
	requestId, _ := ctx.Value(requestIdKeyId).(string)
	return requestId
}

func LoggerFromContext(logger logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	result := logger

	if ctxRuleName, ok := ctx.Value(ruleNameKeyId).(string); ok && ctxRuleName != "" {
		result = result.WithField("rule", ctxRuleName)
	}

	if ctxJvmId, ok := ctx.Value(jvmIdKeyId).(string); ok && ctxJvmId != "" {
		result = result.WithField("jvm_id", ctxJvmId)
	}

	if ctxConnectUrl, ok := ctx.Value(connectUrlKeyId).(string); ok && ctxConnectUrl != "" {
		result = result.WithField("connect_url", ctxConnectUrl)
	}

	if ctxRecordingId, ok := ctx.Value(recordingIdKeyId).(int64); ok && ctxRecordingId != 0 {
		result = result.WithField("recording_id", ctxRecordingId)
	}

	if ctxRequestId, ok := ctx.Value(requestIdKeyId).(string); ok && ctxRequestId != "" {
		result = result.WithField("request_id", ctxRequestId)
	}

	return result
}
