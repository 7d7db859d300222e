// Command graphkernel-service runs the kernel's REST surface: reading
// configuration from the environment (caarlos0/env, the way
// louisbranch-fracturing.space's internal/platform/config/env.go
// does), connecting to the Postgres-backed GraphStore, and serving
// through net/http with the timeouts cmd/gait's own UI server sets
// (ui.go's http.Server).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/davidahmann/graphkernel/core/incident"
	"github.com/davidahmann/graphkernel/core/metrics"
	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/service"
	"github.com/davidahmann/graphkernel/core/store/postgres"
	"github.com/davidahmann/graphkernel/core/token"
	"github.com/davidahmann/graphkernel/internal/obslog"
)

type settings struct {
	Host                  string `env:"GRAPHKERNEL_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"GRAPHKERNEL_PORT" envDefault:"8080"`
	DatabaseURL           string `env:"GRAPHKERNEL_DATABASE_URL,required"`
	HMACSecret            string `env:"GRAPHKERNEL_HMAC_SECRET,required"`
	VerifierCacheCapacity int    `env:"GRAPHKERNEL_VERIFIER_CACHE_CAPACITY" envDefault:"4096"`
	AuditLogPath          string `env:"GRAPHKERNEL_AUDIT_LOG_PATH"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-service: config:", err)
		return 1
	}

	if cfg.AuditLogPath != "" {
		obslog.SetAuditPath(cfg.AuditLogPath)
	}
	obslog.Info("SERVICE_STARTING", map[string]any{"host": cfg.Host, "port": cfg.Port})
	incident.SetAlertFunc(func(level, invariant string, severity incident.Severity, context map[string]any) {
		fields := map[string]any{"invariant": invariant, "severity": string(severity)}
		for k, v := range context {
			fields[k] = v
		}
		obslog.Emit(level, "INCIDENT_"+invariant, fields)
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-service: store:", err)
		return 1
	}
	defer store.Close()

	registry := policy.NewRegistry()
	for name, p := range map[string]policy.SlicePolicy{
		policy.Version: policy.Default(),
	} {
		if _, err := registry.Register(name, p); err != nil {
			fmt.Fprintln(os.Stderr, "graphkernel-service: register default policy:", err)
			return 1
		}
	}

	verifier, err := token.NewCachedVerifier([]byte(cfg.HMACSecret), cfg.VerifierCacheCapacity)
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-service: verifier:", err)
		return 1
	}

	server := &service.Server{
		Store:    store,
		Registry: registry,
		Signer:   token.NewHMACSigner([]byte(cfg.HMACSecret)),
		Verifier: verifier,
		Metrics:  metrics.NewPrometheus(nil),
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, cfg.Port))
	if err != nil {
		fmt.Fprintln(os.Stderr, "graphkernel-service: listen:", err)
		return 1
	}

	httpServer := &http.Server{
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		obslog.Info("SERVICE_SHUTTING_DOWN", nil)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			obslog.Error("SERVICE_SHUTDOWN_FAILED", map[string]any{"error": err.Error()})
		}
	}()

	obslog.Info("SERVICE_LISTENING", map[string]any{"address": listener.Addr().String()})
	if err := httpServer.Serve(listener); err != nil && !strings.Contains(err.Error(), "closed network connection") && err != http.ErrServerClosed {
		fmt.Fprintln(os.Stderr, "graphkernel-service: serve:", err)
		return 1
	}
	return 0
}
