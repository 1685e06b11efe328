package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// HTTPServerInstrumentation counts requests by route pattern, method and status.
// Websocket routes must not be wrapped since the writer does not support hijacking.
type HTTPServerInstrumentation struct {
	requestsTotal *prometheus.CounterVec
}

func NewHTTPServerInstrumentation(namespace string, registerer prometheus.Registerer) (*HTTPServerInstrumentation, error) {
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "devserver",
			Name:      "incoming_http_requests_total",
			Help:      "Number of incoming HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	if err := registerer.Register(requestsTotal); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		requestsTotal = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &HTTPServerInstrumentation{requestsTotal: requestsTotal}, nil
}

func (i *HTTPServerInstrumentation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusResponseWriter{w, http.StatusOK}
		next.ServeHTTP(rw, r)
		path := r.Pattern
		if path == "" {
			path = r.URL.Path
		}
		i.requestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rw.status)).Inc()
	})
}
