package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/askflow/workflow"

// StageInstruments 阶段执行的 span 与指标
type StageInstruments struct {
	tracer     trace.Tracer
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewStageInstruments 基于全局 Provider 创建阶段埋点。未调用 Init 时为 noop。
func NewStageInstruments() (*StageInstruments, error) {
	meter := otel.Meter(instrumentationName)

	executions, err := meter.Int64Counter("askflow.stage.executions",
		metric.WithDescription("Number of pipeline stage executions"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("askflow.stage.duration",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.05, 0.25, 1, 5, 30))
	if err != nil {
		return nil, err
	}

	return &StageInstruments{
		tracer:     otel.Tracer(instrumentationName),
		executions: executions,
		duration:   duration,
	}, nil
}

// StageSpan is an in-flight stage measurement.
type StageSpan struct {
	inst  *StageInstruments
	span  trace.Span
	stage string
	start time.Time
}

// Start opens a span named askflow.stage.<stage>.
func (s *StageInstruments) Start(ctx context.Context, taskID, stage string, round int) (context.Context, *StageSpan) {
	ctx, span := s.tracer.Start(ctx, "askflow.stage."+stage,
		trace.WithAttributes(
			attribute.String("askflow.task_id", taskID),
			attribute.String("askflow.stage", stage),
			attribute.Int("askflow.round", round),
		),
	)
	return ctx, &StageSpan{inst: s, span: span, stage: stage, start: time.Now()}
}

// End records the outcome and closes the span.
func (s *StageSpan) End(ctx context.Context, status, next string, err error) {
	attrs := metric.WithAttributes(
		attribute.String("stage", s.stage),
		attribute.String("status", status),
	)
	s.inst.executions.Add(ctx, 1, attrs)
	s.inst.duration.Record(ctx, time.Since(s.start).Seconds(), metric.WithAttributes(attribute.String("stage", s.stage)))

	if next != "" {
		s.span.SetAttributes(attribute.String("askflow.next_step", next))
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
