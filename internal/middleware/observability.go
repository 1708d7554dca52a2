package middleware

import (
	"net/http"
	"strconv"
	"time"

	"whatsbot/internal/constants"
	"whatsbot/internal/metrics"
	"whatsbot/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Observability assigns a request ID, opens a server span, records request
// metrics into registry and logs each request on completion. An incoming
// X-Request-ID header is reused and echoed back.
func Observability(logger *logrus.Logger, registry *metrics.Registry) mux.MiddlewareFunc {
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)

			ctx, span := tracing.StartServerSpan(r.Context(), r.Method, route)
			if id := r.Header.Get(constants.RequestIDHeader); id != "" {
				ctx = tracing.WithRequestID(ctx, id)
			}
			ctx, requestID := tracing.EnsureRequestID(ctx)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)

			w.Header().Set(constants.RequestIDHeader, requestID)

			clientIP := GetClientIP(r)
			tracing.AddSpanAttributes(ctx,
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
				attribute.String("client.address", clientIP),
				attribute.String("request.id", requestID),
			)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(wrapper.statusCode)

			var spanErr error
			if wrapper.statusCode >= 500 {
				spanErr = httpStatusError(wrapper.statusCode)
			}
			tracing.EndSpan(span, wrapper.statusCode, spanErr)

			registry.IncrementCounter(metrics.HTTPRequests, map[string]string{
				"method":      r.Method,
				"route":       route,
				"status_code": status,
			}, "Dashboard HTTP requests")
			registry.RecordTimer(metrics.HTTPLatency, duration, map[string]string{
				"method": r.Method,
				"route":  route,
			}, "Dashboard HTTP request duration")

			logLevel := logrus.InfoLevel
			if wrapper.statusCode >= 400 && wrapper.statusCode < 500 {
				logLevel = logrus.WarnLevel
			} else if wrapper.statusCode >= 500 {
				logLevel = logrus.ErrorLevel
			}

			logger.WithFields(logrus.Fields{
				LogFieldRequestID:  requestID,
				LogFieldTraceID:    tracing.GetTraceID(ctx),
				LogFieldMethod:     r.Method,
				LogFieldURL:        r.URL.Path,
				LogFieldRoute:      route,
				LogFieldStatusCode: wrapper.statusCode,
				LogFieldDuration:   duration.Milliseconds(),
				LogFieldRemoteIP:   clientIP,
				LogFieldSize:       wrapper.responseSize,
			}).Log(logLevel, "HTTP request completed")
		})
	}
}

// routeTemplate returns the matched mux route template, or the raw path when
// no route matched.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return "HTTP " + strconv.Itoa(int(e)) + " " + http.StatusText(int(e))
}

// responseWrapper captures response metrics
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades.
func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
