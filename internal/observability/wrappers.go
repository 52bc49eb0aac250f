package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/sanduku/internal/engine"
)

// InstrumentedExecutor wraps an engine.Executor with metrics and tracing.
type InstrumentedExecutor struct {
	inner   engine.Executor
	metrics *MetricsCollector
	tracer  trace.Tracer
}

// NewInstrumentedExecutor wraps an executor with observability.
func NewInstrumentedExecutor(inner engine.Executor, metrics *MetricsCollector, ts *TracerSetup) *InstrumentedExecutor {
	var tracer trace.Tracer
	if ts != nil {
		tracer = ts.Tracer()
	}
	return &InstrumentedExecutor{
		inner:   inner,
		metrics: metrics,
		tracer:  tracer,
	}
}

func (e *InstrumentedExecutor) Execute(ctx context.Context, req engine.Request) engine.Result {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.execute",
			trace.WithAttributes(
				attribute.String("execution.mode", "batch"),
			))
		defer span.End()
	}

	if e.metrics != nil {
		e.metrics.ActiveExecutions.Inc()
		defer e.metrics.ActiveExecutions.Dec()
	}

	start := time.Now()
	res := e.inner.Execute(ctx, req)
	duration := time.Since(start).Seconds()

	if e.tracer != nil {
		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.Int("execution.exit_code", res.ExitCode))
		if res.State != engine.StateCompleted {
			span.SetStatus(codes.Error, string(res.State))
		}
	}

	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues("batch", string(res.State)).Inc()
		e.metrics.ExecutionDuration.WithLabelValues("batch").Observe(duration)
		e.metrics.OutputBytesTotal.WithLabelValues("stdout").Add(float64(len(res.Stdout)))
		e.metrics.OutputBytesTotal.WithLabelValues("stderr").Add(float64(len(res.Stderr)))
	}

	return res
}

// Stream forwards the inner event channel unchanged, recording the execution
// once the channel closes. The terminal state is inferred from the last
// events observed; a channel closed without a done event means the caller
// disconnected.
func (e *InstrumentedExecutor) Stream(ctx context.Context, req engine.Request) <-chan engine.Event {
	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "engine.stream",
			trace.WithAttributes(
				attribute.String("execution.mode", "stream"),
			))
	}

	if e.metrics != nil {
		e.metrics.ActiveExecutions.Inc()
	}

	start := time.Now()
	inner := e.inner.Stream(ctx, req)
	out := make(chan engine.Event)

	go func() {
		defer close(out)

		state := engine.StateCancelled
		sawError := false
		for ev := range inner {
			switch ev.Type {
			case engine.EventStdout:
				if e.metrics != nil {
					e.metrics.OutputBytesTotal.WithLabelValues("stdout").Add(float64(len(ev.Data)))
				}
			case engine.EventStderr:
				if e.metrics != nil {
					e.metrics.OutputBytesTotal.WithLabelValues("stderr").Add(float64(len(ev.Data)))
				}
			case engine.EventError:
				sawError = true
			case engine.EventDone:
				switch {
				case ev.ExitCode == engine.TimeoutExitCode && sawError:
					state = engine.StateTimedOut
				case sawError:
					state = engine.StateLaunchFailed
				default:
					state = engine.StateCompleted
				}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		duration := time.Since(start).Seconds()
		if e.metrics != nil {
			e.metrics.ActiveExecutions.Dec()
			e.metrics.ExecutionsTotal.WithLabelValues("stream", string(state)).Inc()
			e.metrics.ExecutionDuration.WithLabelValues("stream").Observe(duration)
		}
		if span != nil {
			if state != engine.StateCompleted {
				span.SetStatus(codes.Error, string(state))
			}
			span.End()
		}
	}()

	return out
}

// Compile-time interface check.
var _ engine.Executor = (*InstrumentedExecutor)(nil)

// statusCode returns the HTTP status code as a string for metric labels.
func statusCode(code int) string {
	return strconv.Itoa(code)
}
