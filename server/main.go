package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/cors"
	"github.com/spf13/pflag"

	"taskboard/internal/memstore"
	"taskboard/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("taskboard", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", getenv("TASKBOARD_CONFIG", ""), "path to a YAML config file")
	addr := flags.String("addr", "", "listen address (overrides config)")
	storeKind := flags.String("store", "", "store backend: postgres or memory (overrides config)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *storeKind != "" {
		cfg.Store = *storeKind
		if err := cfg.validate(); err != nil {
			return err
		}
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.New(store, service.Config{Location: cfg.Location(), Logger: log})
	api := newAPI(store, svc, cfg, log)

	mux := http.NewServeMux()
	api.routes(mux)
	if st, err := os.Stat(cfg.WebDir); err == nil && st.IsDir() {
		mux.Handle("GET /web/", http.StripPrefix("/web/", http.FileServer(http.Dir(cfg.WebDir))))
	}

	var handler http.Handler = mux
	if len(cfg.CORS.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
			AllowCredentials: true,
		}).Handler(handler)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: withLogging(log, handler),
		ReadTimeout: 15 * time.Second, ReadHeaderTimeout: 10 * time.Second,
		// SSE streams outlive any write deadline
		WriteTimeout: 0, IdleTimeout: 120 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr, "store", cfg.Store, "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("shutting down")
	ctxSh, cancelSh := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSh()
	if err := srv.Shutdown(ctxSh); err != nil {
		log.Error("shutdown", "err", err)
	}
	api.effects.Wait()
	return nil
}

// openStore connects the configured backend. The returned func releases it.
func openStore(cfg Config, log *slog.Logger) (appStore, func(), error) {
	if cfg.Store == "memory" {
		log.Warn("using in-memory store; data is lost on exit")
		return memstore.New(), func() {}, nil
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	store := NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return store, func() { db.Close() }, nil
}
