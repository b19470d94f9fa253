// Package tracing installs an OpenTelemetry tracer provider and offers span helpers.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/JaimeStill/recognition/pkg/lifecycle"
)

// TraceHeader carries the active trace id on HTTP responses.
const TraceHeader = "X-Trace-Id"

// System owns the tracer provider lifecycle.
type System interface {
	Start(lc *lifecycle.Coordinator) error
}

type system struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a tracing system. Nothing is installed until Start is called.
func New(cfg *Config, logger *slog.Logger) System {
	return &system{
		cfg:    *cfg,
		logger: logger.With("system", "tracing"),
	}
}

func (s *system) Start(lc *lifecycle.Coordinator) error {
	if !s.cfg.Enabled {
		s.logger.Info("tracing disabled")
		return nil
	}

	exporter, err := s.exporter(lc.Context())
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", s.cfg.ServiceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	s.logger.Info("tracing initialized", "exporter", s.cfg.Exporter, "service", s.cfg.ServiceName)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			s.logger.Error("tracer provider shutdown failed", "error", err)
			return
		}
		s.logger.Info("tracer provider flushed")
	})

	return nil
}

func (s *system) exporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if s.cfg.Exporter == ExporterOTLP {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.cfg.Endpoint)}
		if s.cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/JaimeStill/recognition/" + name)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Middleware starts a server span per request, continuing any propagated trace,
// and echoes the trace id in the response header.
func Middleware(next http.Handler) http.Handler {
	tracer := Tracer("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			w.Header().Set(TraceHeader, sc.TraceID().String())
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
