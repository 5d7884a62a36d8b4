package api

import (
	"context"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/munnerz/goautoneg"

	service "github.com/okian/footprint/internal/app"
	"github.com/okian/footprint/pkg/logger"
	"github.com/okian/footprint/pkg/metrics"
)

// HTTP status code constants.
const (
	statusBadRequest      = 400
	statusNotFound        = 404
	statusTooManyRequests = 429
	statusInternalError   = 500
)

const (
	mediaHTML = "text/html"
	mediaJSON = "application/json"
	indexPage = "/index.html"
)

// pageMedia is the preference order for pageview negotiation.
var pageMedia = []string{mediaHTML, mediaJSON}

// Metrics records Prometheus metrics per matched route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		status := wrapped.Status()
		if status == 0 {
			status = http.StatusOK
		}
		statusCodeStr := strconv.Itoa(status)
		endpoint := routePattern(r)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)

		if status >= statusBadRequest {
			errorType := getErrorType(status)
			severity := getErrorSeverity(status)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, severity)
			metrics.RecordErrorLatency("http", errorType, durationMs)
		}
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// AccessLog writes one line per request to the operational log.
func AccessLog(l logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			l.Info(r.Context(), "request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", wrapped.Status()),
				logger.Int("bytes", wrapped.BytesWritten()),
				logger.Int64("duration_ms", time.Since(start).Milliseconds()),
				logger.String("request_id", chimiddleware.GetReqID(r.Context())),
				logger.String("user_agent", r.UserAgent()),
			)
		})
	}
}

// SecurityHeaders sets the hardening headers sent on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Del("X-Powered-By")
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// PageviewCapturer records page requests.
type PageviewCapturer interface {
	CapturePageview(ctx context.Context, in service.PageviewInput)
}

// CapturePageviews records a pageview for every request that asks for an
// HTML page, then serves it.
func CapturePageviews(deps PageviewCapturer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPageview(r) {
				deps.CapturePageview(r.Context(), service.PageviewInput{
					RemoteIP:  clientIP(r),
					Method:    r.Method,
					Path:      r.URL.Path,
					Host:      r.Host,
					UserAgent: r.UserAgent(),
					Header:    r.Header,
				})
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsPageview reports whether r is a GET whose Accept header prefers HTML
// over JSON. A missing Accept header counts as HTML. Paths with a file
// extension other than .html or .htm are assets, not pages. Any .../index.html
// is redirected to its directory by the file server, so only the redirect
// target counts.
func IsPageview(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if strings.HasSuffix(r.URL.Path, indexPage) {
		return false
	}
	switch strings.ToLower(path.Ext(r.URL.Path)) {
	case "", ".html", ".htm":
	default:
		return false
	}
	accept := strings.TrimSpace(r.Header.Get("Accept"))
	if accept == "" {
		return true
	}
	return goautoneg.Negotiate(accept, pageMedia) == mediaHTML
}

// clientIP returns the apparent client address. RealIP has already
// replaced RemoteAddr with a forwarded address when one was present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "server_error"
	case statusCode == statusTooManyRequests:
		return "rate_limit"
	case statusCode == statusNotFound:
		return "not_found"
	case statusCode >= statusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// getErrorSeverity returns error severity based on HTTP status code.
func getErrorSeverity(statusCode int) string {
	switch {
	case statusCode >= statusInternalError:
		return "high"
	case statusCode >= statusBadRequest:
		return "medium"
	default:
		return "low"
	}
}
