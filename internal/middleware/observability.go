package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/klappy/obt-helper-gpt/internal/httputil"
	"github.com/klappy/obt-helper-gpt/internal/metrics"
	"github.com/klappy/obt-helper-gpt/internal/tracing"
)

// responseWrapper captures status code and response size for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.responseSize += int64(n)
	return n, err
}

// Observability adds request logging, metrics, and tracing to every HTTP
// request.
func Observability(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.WithOtelTracing(r.Context(), "http_request")
			defer span.End()

			requestID := tracing.GenerateRequestID()
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)

			tracing.AddSpanAttributes(ctx,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
				attribute.String("client.address", httputil.GetClientIP(r)),
			)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"trace_id":   tracing.GetTraceID(ctx),
				"method":     r.Method,
				"url":        r.URL.Path,
				"remote_ip":  httputil.GetClientIP(r),
			}).Info("HTTP request started")

			metrics.IncrementCounter("http_requests_total", map[string]string{
				"method":   r.Method,
				"endpoint": r.URL.Path,
			}, "Total HTTP requests")

			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.request.duration_ms", duration.Milliseconds()),
			)

			metrics.RecordTimer("http_request_duration", duration, map[string]string{
				"method":      r.Method,
				"endpoint":    r.URL.Path,
				"status_code": strconv.Itoa(wrapper.statusCode),
			}, "HTTP request duration")

			logLevel := logrus.InfoLevel
			if wrapper.statusCode >= 500 {
				logLevel = logrus.ErrorLevel
			} else if wrapper.statusCode >= 400 {
				logLevel = logrus.WarnLevel
			}

			logger.WithFields(logrus.Fields{
				"request_id":  requestID,
				"trace_id":    tracing.GetTraceID(ctx),
				"method":      r.Method,
				"url":         r.URL.Path,
				"status_code": wrapper.statusCode,
				"duration_ms": duration.Milliseconds(),
				"size":        wrapper.responseSize,
			}).Log(logLevel, "HTTP request completed")
		})
	}
}

// CORS applies the permissive cross-origin headers the web client expects.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Password")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
