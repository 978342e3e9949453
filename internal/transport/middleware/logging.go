package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/content-payments/pkg/logger"
)

const (
	maxLoggedBody = 4 << 10
	filtered      = "[FILTERED]"
)

// sensitiveFields are matched as substrings of lower-cased header and JSON
// key names. Webhook signatures and intent client secrets are bearer
// credentials.
var sensitiveFields = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"key",
	"session",
	"credential",
	"auth",
	"signature",
	"card",
	"cvc",
}

// LoggingMiddleware writes one access line per request with the fields inner
// handlers recorded in the request scope (user_id, payment_id). Headers and
// bodies are logged at debug level with credentials filtered; processor
// webhook bodies are logged by size only.
func LoggingMiddleware(base *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logger.WithScope(r.Context())
			r = r.WithContext(ctx)

			webhook := isWebhook(r)
			var reqBody []byte
			if r.Body != nil {
				reqBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(reqBody))
			}

			var respBody cappedBuffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&respBody)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			lg := base.With(logger.ScopeFields(r.Context())...)
			lg.Log(r.Context(), levelFor(status), "request completed",
				"request_id", middleware.GetReqID(r.Context()),
				"trace_id", w.Header().Get(TraceIDHeader),
				"method", r.Method,
				"route", route,
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", ww.BytesWritten())

			if !lg.Enabled(r.Context(), slog.LevelDebug) {
				return
			}
			requestBody := redactBody(reqBody)
			if webhook {
				requestBody = ""
			}
			lg.Debug("request detail",
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", redactHeaders(r.Header),
				"body", requestBody,
				"body_size", len(reqBody),
				"response_body", redactBody(respBody.Bytes()))
		})
	}
}

func isWebhook(r *http.Request) bool {
	return r.Header.Get("Stripe-Signature") != ""
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// cappedBuffer keeps the first maxLoggedBody bytes written to it.
type cappedBuffer struct {
	bytes.Buffer
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := maxLoggedBody - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

func isSensitive(name string) bool {
	name = strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(name, field) {
			return true
		}
	}
	return false
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// redactBody filters sensitive keys out of a JSON body. Bodies that are not
// JSON are dropped entirely when they mention a sensitive name.
func redactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > maxLoggedBody {
		body = body[:maxLoggedBody]
	}

	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		if isSensitive(string(body)) {
			return filtered
		}
		return string(body)
	}

	out, err := json.Marshal(redactJSON(data))
	if err != nil {
		return filtered
	}
	return string(out)
}

func redactJSON(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				out[key] = filtered
				continue
			}
			out[key] = redactJSON(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = redactJSON(item)
		}
		return out
	default:
		return v
	}
}
