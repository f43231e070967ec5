package httpserv

import (
	"net/http"
	"strings"
	"time"

	"github.com/dhcw/wpas-referral-proxy/lib/logging"
	"github.com/rs/zerolog/log"
)

const (
	RequestIDHeader     = "X-Request-Id"
	CorrelationIDHeader = "X-Correlation-Id"
)

type Route struct {
	Method     string
	Path       string
	Handler    http.HandlerFunc
	Middleware func(http.HandlerFunc) http.HandlerFunc
}

func RegisterRoutes(mux *http.ServeMux, routes ...Route) {
	for _, route := range routes {
		if route.Handler == nil {
			panic("route handler cannot be nil")
		}
		handler := route.Handler
		if route.Middleware != nil {
			handler = route.Middleware(handler)
		}
		mux.HandleFunc(strings.Join([]string{route.Method, route.Path}, " "), handler)
	}
}

func Chain(middlewares ...func(http.HandlerFunc) http.HandlerFunc) func(http.HandlerFunc) http.HandlerFunc {
	return func(final http.HandlerFunc) http.HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// RequestLogging attaches a request-scoped logger (carrying the request and correlation ID headers) to the request context
// and logs the outcome of each request.
func RequestLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		start := time.Now()
		ctx := logging.WithRequestFields(request.Context(), request.Header.Get(RequestIDHeader), request.Header.Get(CorrelationIDHeader))
		recorder := &statusRecorder{ResponseWriter: writer, statusCode: http.StatusOK}
		next(recorder, request.WithContext(ctx))
		log.Ctx(ctx).Debug().
			Str(logging.FieldPath, request.URL.Path).
			Int(logging.FieldStatusCode, recorder.statusCode).
			Dur(logging.FieldDuration, time.Since(start)).
			Msgf("Handled %s request", request.Method)
	}
}

// LimitBody limits the size of request bodies to maxBytes. Reading beyond the limit fails.
func LimitBody(maxBytes int64) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(writer http.ResponseWriter, request *http.Request) {
			if maxBytes > 0 && request.Body != nil {
				request.Body = http.MaxBytesReader(writer, request.Body, maxBytes)
			}
			next(writer, request)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
