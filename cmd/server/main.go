// Command server runs the Voxlane back-office API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/voxlane/backoffice/pkg/api"
	"github.com/voxlane/backoffice/pkg/audit"
	"github.com/voxlane/backoffice/pkg/auth"
	"github.com/voxlane/backoffice/pkg/billing"
	"github.com/voxlane/backoffice/pkg/cache"
	"github.com/voxlane/backoffice/pkg/cleanup"
	"github.com/voxlane/backoffice/pkg/config"
	"github.com/voxlane/backoffice/pkg/connexcs"
	"github.com/voxlane/backoffice/pkg/lcr"
	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/metrics"
	"github.com/voxlane/backoffice/pkg/platformsync"
	"github.com/voxlane/backoffice/pkg/ratelimit"
	"github.com/voxlane/backoffice/pkg/shutdown"
	"github.com/voxlane/backoffice/pkg/store"
	tlsutil "github.com/voxlane/backoffice/pkg/tls"
	"github.com/voxlane/backoffice/pkg/tracing"
	"github.com/voxlane/backoffice/pkg/trash"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgFile      string
	generateCert bool
	certHosts    string
)

var rootCmd = &cobra.Command{
	Use:           "voxlane-server",
	Short:         "Voxlane customer portal and admin back-office API",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default ./portal.yaml or /etc/voxlane/portal.yaml)")
	rootCmd.Flags().BoolVar(&generateCert, "generate-cert", false, "write a self-signed certificate to server.cert_file/key_file and exit")
	rootCmd.Flags().StringVar(&certHosts, "cert-hosts", "", "comma-separated IPs and hostnames for the generated certificate")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if generateCert {
		if cfg.Server.CertFile == "" || cfg.Server.KeyFile == "" {
			return errors.New("server.cert_file and server.key_file must be set to generate a certificate")
		}
		if err := tlsutil.GenerateSelfSignedCert(cfg.Server.CertFile, cfg.Server.KeyFile, "voxlane-backoffice", splitList(certHosts)...); err != nil {
			return err
		}
		fmt.Printf("Certificate written to %s (key %s)\n", cfg.Server.CertFile, cfg.Server.KeyFile)
		return nil
	}

	logger, err := logging.NewFileLogger(cfg.Logging.Dir, "server", logging.ParseLevel(cfg.Logging.Level), cfg.Logging.JSON)
	if err != nil {
		return err
	}
	defer logger.Sync()

	redacted := cfg.Redacted()
	logger.Info("Starting Voxlane back-office", map[string]interface{}{
		"version":  version,
		"addr":     cfg.Server.Addr,
		"database": redacted.Database.Type,
		"redis":    redacted.Redis.URL,
		"tls":      cfg.Server.TLS,
	})

	sd := shutdown.New(cfg.Server.ShutdownTimeout, logger)

	st, err := store.NewStore(store.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	sd.Register("store", shutdown.CloseResource(st))
	if cfg.Database.Type == "memory" {
		logger.Warn("Using in-memory store; data will not survive a restart")
	}

	var aggCache cache.Cache = cache.NopCache{}
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL, "voxlane:")
		if err != nil {
			return fmt.Errorf("failed to configure redis: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			logger.Warn("Redis unreachable; aggregates are computed on every request until it recovers", map[string]interface{}{"error": err})
		}
		cancel()
		aggCache = rc
		sd.Register("redis", shutdown.CloseResource(rc))
	}
	aggregates := cache.NewAggregates(aggCache, cfg.Redis.TTL, logger)

	tracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	sd.Register("tracer", tracer.Shutdown)

	if cfg.Metrics.Enabled {
		prometheus.MustRegister(metrics.NewCollector(st, logger))
	}

	client := connexcs.NewClient(connexcs.Config{
		BaseURL:  cfg.ConnexCS.BaseURL,
		Username: cfg.ConnexCS.Username,
		Password: cfg.ConnexCS.Password,
		Timeout:  cfg.ConnexCS.Timeout,
		MockMode: cfg.ConnexCS.MockConnexCS(),
	}, logger, connexcs.WithTracer(tracer))

	authSvc := auth.NewService(st, auth.Config{
		SessionTTL:   cfg.Auth.SessionTTL,
		AdminAPIKey:  cfg.Auth.AdminAPIKey,
		CookieSecure: cfg.Auth.CookieSecure,
	}, logger)
	if cfg.Auth.BootstrapEmail != "" {
		created, err := authSvc.EnsureSuperAdmin(context.Background(), cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword)
		if err != nil {
			return fmt.Errorf("failed to bootstrap super admin: %w", err)
		}
		if !created {
			logger.Debug("Bootstrap super admin already exists", map[string]interface{}{"email": cfg.Auth.BootstrapEmail})
		}
	}

	auditSvc := audit.NewService(st, logger)
	trashSvc := trash.NewService(st, cfg.Retention.Trash, logger)
	syncSvc := platformsync.NewService(st, client, auditSvc, logger)
	sd.Register("platform-sync", syncSvc.Wait)

	cleanupCfg := cleanup.DefaultConfig()
	cleanupCfg.AuditRetention = cfg.Retention.Audit
	cleanupCfg.TrashSweepInterval = cfg.Retention.TrashSweepInterval
	cleanupCfg.AuditPruneInterval = cfg.Retention.AuditPruneInterval
	cleanupCfg.SessionPurgeInterval = cfg.Retention.SessionPurgeInterval
	cleanupCfg.VacuumInterval = cfg.Retention.VacuumInterval
	cleaner := cleanup.NewManager(cleanupCfg, trashSvc, auditSvc, authSvc, st, logger)
	cleaner.Start()
	sd.Register("cleanup", cleaner.Shutdown)

	loginLimiter := ratelimit.PerMinute(cfg.RateLimit.LoginPerMinute)
	var apiLimiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		apiLimiter = ratelimit.NewLimiter(cfg.RateLimit.RequestsPerSec, cfg.RateLimit.Burst)
	}
	go pruneLimiters(sd.Done(), logger, loginLimiter, apiLimiter)

	handler := api.NewHandler(api.Deps{
		Store:        st,
		Auth:         authSvc,
		Audit:        auditSvc,
		Trash:        trashSvc,
		Billing:      billing.NewService(st, logger),
		LCR:          lcr.NewEngine(st),
		Sync:         syncSvc,
		Platform:     client,
		Aggregates:   aggregates,
		Cleanup:      cleaner,
		Tracer:       tracer,
		Logger:       logger,
		LoginLimiter: loginLimiter,
		APILimiter:   apiLimiter,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Metrics:      cfg.Metrics.Enabled,
		Version:      version,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	if cfg.Server.TLS {
		if cfg.Server.GenerateCert {
			generated, err := tlsutil.EnsureCert(cfg.Server.CertFile, cfg.Server.KeyFile, "voxlane-backoffice", splitList(certHosts)...)
			if err != nil {
				return fmt.Errorf("failed to generate certificate: %w", err)
			}
			if generated {
				logger.Warn("Generated a self-signed certificate", map[string]interface{}{"cert": cfg.Server.CertFile})
			}
		}
		tlsConfig, err := tlsutil.LoadServerConfig(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsConfig
	} else {
		logger.Warn("TLS disabled; terminate TLS in front of this server in production")
	}
	// Registered last so it stops first
	sd.Register("http-server", shutdown.StopHTTPServer(srv))

	go func() {
		logger.Info("API listening", map[string]interface{}{"addr": srv.Addr, "tls": cfg.Server.TLS})
		var err error
		if cfg.Server.TLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", map[string]interface{}{"error": err})
			sd.Trigger()
		}
	}()

	if err := sd.WaitWithContext(context.Background()); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// pruneLimiters drops per-key limiters idle for an hour until done is closed
func pruneLimiters(done <-chan struct{}, logger *logging.Logger, limiters ...*ratelimit.Limiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for _, l := range limiters {
				if l == nil {
					continue
				}
				if n := l.CleanupOldLimiters(time.Hour); n > 0 {
					logger.Debug("Pruned idle rate limiters", map[string]interface{}{"removed": n})
				}
			}
		}
	}
}
