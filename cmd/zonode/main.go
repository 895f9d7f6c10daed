// Command zonode runs the zero-trust admission core: it wires the
// Identity Registry, Policy Engine, Sandbox Manager, Rate Limiter,
// Audit Log, and Continuous Verifier behind the Admission Controller,
// then exposes the operational controls (status, test-admission) over
// HTTP until told to shut down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/byteness/zerotrust-mesh/internal/admission"
	"github.com/byteness/zerotrust-mesh/internal/auditlog"
	"github.com/byteness/zerotrust-mesh/internal/config"
	"github.com/byteness/zerotrust-mesh/internal/control"
	"github.com/byteness/zerotrust-mesh/internal/policy"
	"github.com/byteness/zerotrust-mesh/internal/ratelimit"
	"github.com/byteness/zerotrust-mesh/internal/sandbox"
	"github.com/byteness/zerotrust-mesh/internal/sandbox/backend"
	"github.com/byteness/zerotrust-mesh/internal/trust"
	"github.com/byteness/zerotrust-mesh/internal/verifyloop"
	"github.com/byteness/zerotrust-mesh/internal/ztlog"
)

func main() {
	configPath := flag.String("config", "", "path to the node's YAML config file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	listenAddr := flag.String("listen", ":8443", "address the operational controls HTTP server listens on")
	flag.Parse()

	log, err := ztlog.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init failed:", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Audit Log ─────────────────────────────────────────────────────
	ks, err := auditlog.OpenKeyStore(cfg.AuditDir + "/audit.key")
	if err != nil {
		log.Fatal("audit keystore init failed", zap.Error(err))
	}
	audit, err := auditlog.Open(cfg.AuditDir, ks)
	if err != nil {
		log.Fatal("audit log open failed", zap.Error(err))
	}
	defer audit.Close() //nolint:errcheck

	// ── Identity Registry ────────────────────────────────────────────
	registry := trust.NewRegistry(trust.WithEventSink(auditRegistrySink{audit: audit}))

	// ── Policy Engine ─────────────────────────────────────────────────
	policies := policy.DefaultPolicies()
	if cfg.PolicyFile != "" {
		set, err := policy.NewFileLoader().Load(cfg.PolicyFile)
		if err != nil {
			log.Fatal("policy file load failed", zap.Error(err), zap.String("path", cfg.PolicyFile))
		}
		policies = set.Policies
	}

	// ── Sandbox Manager ───────────────────────────────────────────────
	multi := sandbox.NewMultiBackend(
		backend.NewContainer(os.Getenv("ZONODE_CONTAINER_URL"), os.Getenv("ZONODE_CONTAINER_ADMIN_KEY")),
		backend.NewMicroVM(os.Getenv("ZONODE_MICROVM_LAUNCHER")),
		backend.NewFullVM(os.Getenv("ZONODE_FULLVM_ATTESTATION_SOCK")),
		backend.None{},
	)
	selected := multi.Detect(ctx)
	log.Info("sandbox back-end selected", zap.String("backend", selected))
	sandboxMgr := sandbox.NewManager(cfg.SandboxCapacity, multi.Active(), sandbox.WithEventSink(auditSandboxSink{audit: audit}))

	// ── Rate Limiter ──────────────────────────────────────────────────
	limiters, err := buildRateLimiterGroup(ctx, cfg, log)
	if err != nil {
		log.Fatal("rate limiter init failed", zap.Error(err))
	}
	defer limiters.Close() //nolint:errcheck

	// ── Admission Controller ──────────────────────────────────────────
	controller := admission.NewController(
		registry, policies, sandboxMgr, limiters, audit,
		admission.WithMaxPeers(cfg.MaxPeers),
		admission.WithEstablishTimeout(cfg.EstablishTimeout),
		admission.WithSandboxTimeout(cfg.SandboxTimeout),
	)

	// ── Continuous Verifier ───────────────────────────────────────────
	verifier := controller.NewVerifyLoop(verifyloop.WithInterval(cfg.VerifyInterval))
	verifier.Start()
	defer verifier.Stop()

	// ── Operational controls HTTP server ──────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	ops := control.NewHandler(controller, registry, audit, log)
	ops.Register(r.Group("/v1"))

	srv := &http.Server{Addr: *listenAddr, Handler: r}
	go func() {
		log.Info("operational controls server starting", zap.String("addr", *listenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("operational controls server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("operational controls server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// buildRateLimiterGroup uses Redis-backed limiters when RedisAddr is
// configured (so a multi-node deployment shares buckets across
// instances); otherwise falls back to the in-memory group, appropriate
// for a single-node deployment or local testing.
func buildRateLimiterGroup(ctx context.Context, cfg config.Config, log *zap.Logger) (*ratelimit.Group, error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemoryGroup()
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("using redis-backed rate limiters", zap.String("addr", cfg.RedisAddr))

	connCfg := ratelimit.DefaultConnectionConfig()
	connCfg.RequestsPerWindow = cfg.ConnectionsPerMinute
	connLimiter, err := ratelimit.NewRedisLimiter(rdb, "ratelimit:conn:", connCfg)
	if err != nil {
		return nil, fmt.Errorf("build connection limiter: %w", err)
	}

	msgCfg := ratelimit.DefaultMessageConfig()
	msgCfg.RequestsPerWindow = cfg.MessagesPerSecond
	msgLimiter, err := ratelimit.NewRedisLimiter(rdb, "ratelimit:msg:", msgCfg)
	if err != nil {
		return nil, fmt.Errorf("build message limiter: %w", err)
	}

	return ratelimit.NewGroup(connLimiter, msgLimiter), nil
}

// auditRegistrySink bridges trust.Registry's identity_registered event to
// the audit log.
type auditRegistrySink struct {
	audit *auditlog.Log
}

func (s auditRegistrySink) IdentityRegistered(userID string) {
	_ = s.audit.Append(context.Background(), auditlog.Record{
		EventKind: auditlog.EventIdentityRegistered,
		Details:   map[string]string{"user_id": userID},
	})
}

// auditSandboxSink bridges sandbox.Manager's created/destroyed events to
// the audit log.
type auditSandboxSink struct {
	audit *auditlog.Log
}

func (s auditSandboxSink) SandboxCreated(id string, caps sandbox.Caps) {
	_ = s.audit.Append(context.Background(), auditlog.Record{
		EventKind: auditlog.EventSandboxCreated,
		Details:   map[string]string{"sandbox_id": id, "cpu_shares": fmt.Sprint(caps.CPUShares), "memory_mib": fmt.Sprint(caps.MemoryMiB)},
	})
}

func (s auditSandboxSink) SandboxDestroyed(id string) {
	_ = s.audit.Append(context.Background(), auditlog.Record{
		EventKind: auditlog.EventSandboxDestroyed,
		Details:   map[string]string{"sandbox_id": id},
	})
}
