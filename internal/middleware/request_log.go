package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/chatcore/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path, статус и время выполнения.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			// upgrade или handler без ответа
			status = http.StatusOK
		}
		if status >= http.StatusInternalServerError {
			logger.Errorf("http %s %s status=%d", r.Method, r.URL.Path, status)
		}
		logger.LogDuration("http "+r.Method+" "+r.URL.Path+" status="+strconv.Itoa(status), start)
	})
}
