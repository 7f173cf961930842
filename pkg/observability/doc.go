// Package observability provides OpenTelemetry tracing and metrics through
// a single Provider.
//
// Create the provider at application startup (a nil Config uses
// DefaultConfig; Enabled: false yields a provider whose tracer and meter
// are no-ops):
//
//	p, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "bridge",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1,
//		Enabled:      true,
//	})
//	defer p.Shutdown(ctx)
//
// Create spans manually:
//
//	ctx, span := p.StartSpan(ctx, "operation_name")
//	defer span.End()
//
// Record RED metrics (requests, errors, duration) around an operation:
//
//	ctx, done := p.TrackOperation(ctx, "operation_name")
//	defer func() { done(err) }()
package observability
