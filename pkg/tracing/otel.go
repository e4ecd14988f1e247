// Copyright 2026 fanjia1024
// OpenTelemetry integration for trajectory, completion and tool spans

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "search-agent"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartTrajectorySpan 开始单题轨迹 span
func StartTrajectorySpan(ctx context.Context, questionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "trajectory.run",
		trace.WithAttributes(attribute.String("question.id", questionID)),
	)
}

// StartCompletionSpan 开始一次补全调用 span
func StartCompletionSpan(ctx context.Context, questionID string, finishOnly bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "completion.advance",
		trace.WithAttributes(
			attribute.String("question.id", questionID),
			attribute.Bool("completion.finish_only", finishOnly),
		),
	)
}

// StartToolSpan 开始 tool invocation span
func StartToolSpan(ctx context.Context, toolName string, seq int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.String("tool.name", toolName),
			attribute.Int("tool.seq", seq),
		),
	)
}

// EndSpan 记录错误（若有）并结束 span
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
