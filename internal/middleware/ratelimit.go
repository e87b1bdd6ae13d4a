package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/chatcore/internal/logger"
	"github.com/chatcore/internal/storage"
)

// RateLimit ограничивает запросы по IP через limiter (memory или Redis). 429 при превышении.
// Ставится после chimw.RealIP, поэтому RemoteAddr уже содержит адрес клиента.
// Ошибка хранилища не блокирует запрос.
func RateLimit(limiter storage.EventLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			ok, err := limiter.Allow(ctx, "ip:"+clientIP(r))
			cancel()
			if err != nil {
				logger.Errorf("rate limit: %v", err)
			} else if !ok {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
