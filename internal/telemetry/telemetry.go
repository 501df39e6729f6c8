// Package telemetry はOpenTelemetryトレーシングの初期化を提供する。
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// TracerName は各パッケージが otel.Tracer に渡す計装スコープ名。
const TracerName = "github.com/hitoshi/authgate"

// Config はトレーシングの設定。
type Config struct {
	// Endpoint はOTLP gRPCエクスポーターの送信先（host:port）。空の場合はトレーシングを無効化する。
	Endpoint    string
	ServiceName string
	Version     string
}

// ShutdownFunc はエクスポーターのフラッシュと停止を行う。
type ShutdownFunc func(context.Context) error

// Init はOTLP gRPCエクスポーターでトレーシングを初期化し、グローバルに登録する。
// Endpointが空の場合は何もせず、何もしないShutdownFuncを返す。
// グローバルTracerProviderが未設定のままでも otel.Tracer はno-opとして動作する。
func Init(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.Endpoint == "" {
		slog.Info("OpenTelemetryトレーシングは無効です")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("OpenTelemetryトレーシングを初期化しました",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("service", cfg.ServiceName),
	)

	return tp.Shutdown, nil
}
