// Package middleware は監査ログとHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// WriteAuditLog は鍵1本ごとの操作の監査ログを出力する。
// primaryは対象の鍵を持つ主鍵。attrsには操作ごとの詳細（残り日数や新しい期限）を渡す。
func WriteAuditLog(ctx context.Context, operation, fingerprint, primary, result string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("operation", operation),
		slog.String("fingerprint", fingerprint),
		slog.String("primary", primary),
		slog.String("result", result),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "key operation completed", append(base, attrs...)...)
}

// RequestLogger はリクエストごとにslogでアクセスログを出力する。
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
