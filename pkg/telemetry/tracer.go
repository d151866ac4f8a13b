// Package telemetry 初始化 OpenTelemetry 链路追踪。
package telemetry

import (
	"context"
	"fmt"

	"campus-rag-go/internal/config"
	"campus-rag-go/pkg/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc 刷新并关闭 TracerProvider。
type ShutdownFunc func(ctx context.Context) error

// InitTracer 根据配置初始化全局 TracerProvider。未启用时返回空操作的 ShutdownFunc，
// 此时各组件拿到的是 otel 默认的 no-op tracer。
func InitTracer(ctx context.Context, cfg config.TelemetryConfig) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName(cfg))))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	log.Infof("[Telemetry] 链路追踪已启用, service: %s, endpoint: %s", serviceName(cfg), cfg.OTLPEndpoint)
	return tp.Shutdown, nil
}

// Sampler 按比例采样根 span，子 span 跟随父 span 的决定。比例不在 (0, 1) 内时全部采样。
func Sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func serviceName(cfg config.TelemetryConfig) string {
	if cfg.ServiceName == "" {
		return "campus-rag-go"
	}
	return cfg.ServiceName
}
