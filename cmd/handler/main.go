package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rocjay1/rm-recurring/internal/clock"
	"github.com/rocjay1/rm-recurring/internal/config"
	"github.com/rocjay1/rm-recurring/internal/handler"
	"github.com/rocjay1/rm-recurring/internal/recurring"
	"github.com/rocjay1/rm-recurring/internal/services"
	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// backend is what either storage implementation provides.
type backend interface {
	recurring.ScheduleStore
	recurring.LedgerWriter
	handler.ScheduleStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	slog.SetDefault(slog.New(logHandler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Services
	blobService, err := services.NewBlobService(cfg.BlobServiceURL)
	if err != nil {
		slog.Error("Failed to init BlobService", "error", err)
		os.Exit(1)
	}

	queueService, err := services.NewQueueService(cfg.QueueServiceURL)
	if err != nil {
		slog.Error("Failed to init QueueService", "error", err)
		os.Exit(1)
	}

	var store backend
	var locker recurring.Locker
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pgStore, err := services.NewPostgresStore(ctx, cfg.DatabaseURI)
		if err != nil {
			slog.Error("Failed to init PostgresStore", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		store, locker = pgStore, pgStore
	default:
		dbService, err := services.NewDatabaseService(ctx, cfg.TableServiceURL, cfg.SchedulesTable, cfg.LedgerTable)
		if err != nil {
			slog.Error("Failed to init DatabaseService", "error", err)
			os.Exit(1)
		}
		store, locker = dbService, blobService.NewLock(cfg.LockContainer, cfg.LockBlob)
	}
	slog.Info("storage backend selected", "backend", cfg.StoreBackend)

	engine := recurring.NewEngine(store, store, recurring.Options{
		LedgerTimeout: cfg.LedgerTimeout,
		MaxCatchUp:    cfg.MaxCatchUp,
		Location:      cfg.Location,
		Locker:        locker,
	})

	deps := &handler.Dependencies{
		Engine: engine,
		Store:  store,
		Blob:   blobService,
		Queue:  queueService,
		Clock:  clock.NewReal(),
		Settings: handler.Settings{
			UserEmail:       cfg.UserEmail,
			ImportContainer: cfg.ImportContainer,
			ImportQueue:     cfg.ImportQueue,
			AlertQueue:      cfg.AlertQueue,
			ReportContainer: cfg.ReportContainer,
		},
	}

	if cfg.CommunicationEndpoint != "" {
		emailService, err := services.NewEmailService(cfg.CommunicationEndpoint, cfg.SenderEmail, nil)
		if err != nil {
			slog.Warn("Failed to init EmailService (continuing anyway)", "error", err)
		} else {
			deps.Email = emailService
		}
	} else {
		slog.Warn("COMMUNICATION_SERVICES_ENDPOINT is not set; email notifications disabled")
	}

	if cfg.ProcessCron != "" {
		scheduler, err := startScheduler(ctx, cfg.ProcessCron, cfg.Location, deps, logHandler)
		if err != nil {
			slog.Error("Failed to start scheduler", "cron", cfg.ProcessCron, "error", err)
			os.Exit(1)
		}
		defer func() { <-scheduler.Stop().Done() }()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           loggingMiddleware(newRouter(deps)),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func newRouter(deps *handler.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()

	// API Routes
	mux.HandleFunc("GET /api/recurring", deps.HandleSchedules)
	mux.HandleFunc("POST /api/recurring", deps.HandleSchedules)
	mux.HandleFunc("DELETE /api/recurring", deps.HandleSchedules)

	mux.HandleFunc("POST /api/recurring/process", deps.HandleProcessDue)
	mux.HandleFunc("POST /api/recurring/import", deps.HandleImport)

	mux.HandleFunc("GET /api/ledger", deps.HandleLedger)

	// Adapter for HTTP Trigger (since enableForwardingHttpRequest is false)
	mux.HandleFunc("/HttpTrigger", deps.HandleHttpTrigger(mux))

	mux.HandleFunc("/ProcessQueue", deps.ProcessQueue)
	mux.HandleFunc("/NightlyTrigger", deps.HandleNightlyTrigger)

	// Catch-all handler for unmatched requests to debug what the Host is sending
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		headers := make(map[string]string)
		for k, v := range r.Header {
			headers[k] = strings.Join(v, ", ")
		}
		slog.Warn("UNMATCHED REQUEST",
			"method", r.Method,
			"path", r.URL.Path,
			"headers", headers,
			"content_length", r.ContentLength,
		)
		http.NotFound(w, r)
	})

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	return mux
}
