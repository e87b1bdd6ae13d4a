package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	flag "github.com/spf13/pflag"

	"github.com/chatcore/internal/attachments"
	"github.com/chatcore/internal/config"
	"github.com/chatcore/internal/handler"
	"github.com/chatcore/internal/logger"
	"github.com/chatcore/internal/middleware"
	"github.com/chatcore/internal/startup"
	"github.com/chatcore/internal/ws"
)

func main() {
	logger.SetPrefix("chat")
	configPath := flag.String("config", "", "path to YAML config (default: $CONFIG_PATH or config/chat.yaml)")
	addr := flag.String("addr", "", "listen address, overrides server_addr")
	flag.Parse()

	logger.Info("starting chat service")
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("load config: %v", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	logger.SetLevel(cfg.LogLevel)

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	eventLimiter, err := startup.EventLimiter(startCtx, cfg.RedisURL, cfg.EventLimit(), 30*time.Second)
	if err != nil {
		startCancel()
		logger.Errorf("event limiter: %v", err)
		os.Exit(1)
	}
	defer eventLimiter.Close()
	apiLimiter, err := startup.EventLimiter(startCtx, cfg.RedisURL, cfg.APILimit(), 30*time.Second)
	startCancel()
	if err != nil {
		logger.Errorf("api limiter: %v", err)
		os.Exit(1)
	}
	defer apiLimiter.Close()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(ws.Options{
		MaxConns:       cfg.MaxWSConnections,
		SendBuffer:     cfg.WSSendBufferSize,
		WriteWait:      cfg.WSWriteTimeout,
		PongWait:       cfg.WSPongTimeout,
		MaxMessageSize: cfg.WSMaxMessageSize,
		Attachments:    attachments.NewDiskStore(cfg.UploadDir),
		Limiter:        eventLimiter,
	})
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	wsH := handler.NewWSHandler(hub, cfg.CORSOrigins())
	configH := handler.NewConfigHandler(cfg)
	statsH := handler.NewStatsHandler(hub)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket, иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins(),
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handler.Health)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(apiLimiter))
		r.Get("/config/call", configH.GetCallConfig)
		r.Get("/stats", statsH.GetStats)
	})
	r.Get("/ws", wsH.ServeWS)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
			hubCancel()
			hubWg.Wait()
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")

	// Hijacked WebSocket-соединения Shutdown не закрывает: это делает хаб.
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")

	srvWg.Wait()
	logger.Info("server goroutine exited")
}
