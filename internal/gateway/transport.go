package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"finboard/internal/log"
	"finboard/internal/metrics"
)

// HeaderRequestID carries the per-request trace id to the backend.
const HeaderRequestID = "X-Request-ID"

type routeKey struct{}

// withRoute labels the request with its route template so that metrics
// don't fan out per goal id or verification token.
func withRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFrom(req *http.Request) string {
	if route, ok := req.Context().Value(routeKey{}).(string); ok {
		return route
	}
	return req.URL.Path
}

// tracingTransport stamps every outgoing request with a request id, logs
// it and records its outcome.
type tracingTransport struct {
	next    http.RoundTripper
	logger  *log.Logger
	metrics *metrics.Metrics
}

func newTracingTransport(next http.RoundTripper, logger *log.Logger, m *metrics.Metrics) *tracingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &tracingTransport{next: next, logger: logger, metrics: m}
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	requestID := req.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		req = req.Clone(req.Context())
		req.Header.Set(HeaderRequestID, requestID)
	}
	route := routeFrom(req)

	t.logger.DebugContext(req.Context(), "Backend request started",
		log.NewFields().
			WithRequestID(requestID).
			WithRequest(req.Method, route).
			WithOperation(log.OpRequest).
			ToSlice()...)

	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.metrics.ObserveRequest(req.Method, route, 0, duration)
		t.logger.WarnContext(req.Context(), "Backend request failed",
			log.NewFields().
				WithRequestID(requestID).
				WithRequest(req.Method, route).
				WithError(err).
				WithErrorType(log.ErrorTypeNetwork).
				ToSlice()...)
		return nil, err
	}

	t.metrics.ObserveRequest(req.Method, route, resp.StatusCode, duration)

	level := slog.LevelDebug
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		level = slog.LevelWarn
	} else if resp.StatusCode >= 500 {
		level = slog.LevelError
	}
	t.logger.Log(req.Context(), level, "Backend request completed",
		log.NewFields().
			WithRequestID(requestID).
			WithRequest(req.Method, route).
			WithResponse(resp.StatusCode, duration.Milliseconds()).
			ToSlice()...)

	return resp, nil
}
