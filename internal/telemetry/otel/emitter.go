package otel

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"accessplane/internal/audit/domain"
	"accessplane/internal/audit/stream"
)

// NewEntryEmitter returns a stream.Producer that mirrors audit entries as OTel
// log records via the given LoggerProvider. If provider is nil, returns a
// no-op producer.
func NewEntryEmitter(provider *sdklog.LoggerProvider) stream.Producer {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("accessplane.audit")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Entry) error { return nil }
func (noopEmitter) Close() error                              { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the audit entry to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, entry *domain.Entry) error {
	if entry == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetTimestamp(entry.Timestamp)
	rec.SetBody(otellog.StringValue(string(entry.Action) + " " + entry.Resource))
	rec.AddAttributes(
		otellog.String("entry_id", entry.ID),
		otellog.String("actor_id", entry.ActorID),
		otellog.String("action", string(entry.Action)),
		otellog.String("resource", entry.Resource),
	)
	if entry.ResourceID != "" {
		rec.AddAttributes(otellog.String("resource_id", entry.ResourceID))
	}
	if entry.IPAddress != "" {
		rec.AddAttributes(otellog.String("ip_address", entry.IPAddress))
	}
	e.logger.Emit(ctx, rec)
	return nil
}

// Close is a no-op; the LoggerProvider owns the exporter lifecycle.
func (e *otelEmitter) Close() error { return nil }
