// Package logging builds the zap logger and the HTTP request logging
// middleware.
package logging

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RedactedText replaces credentials in logged strings.
const RedactedText = "[REDACTED]"

// New builds a JSON production logger, or a console logger in development.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

var (
	// user:pass@host
	userInfoPattern = regexp.MustCompile(`://[^:/@\s]*:[^@\s]+@`)
	// password=xxx, api_key=xxx
	secretParamPattern = regexp.MustCompile(`(?i)(password|pwd|api_key|apikey)=[^;&\s]+`)
)

// SanitizeURI removes credentials from connection URIs and query strings.
func SanitizeURI(s string) string {
	if s == "" {
		return ""
	}
	s = userInfoPattern.ReplaceAllString(s, "://"+RedactedText+"@")
	return secretParamPattern.ReplaceAllString(s, "${1}="+RedactedText)
}

// SanitizeError is SanitizeURI applied to an error message.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeURI(err.Error())
}

// RequestLogger logs every request at DEBUG level and server errors at WARN.
// A nil logger disables it.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", SanitizeURI(r.URL.RawQuery)),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			if wrapped.statusCode >= http.StatusInternalServerError {
				logger.Warn("HTTP request failed", fields...)
				return
			}
			logger.Debug("HTTP request", fields...)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
