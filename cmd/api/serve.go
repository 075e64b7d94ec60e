package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"orgadmin/internal/config"
	"orgadmin/internal/handler"
	"orgadmin/internal/jobs"
	"orgadmin/internal/middleware"
	"orgadmin/internal/repository"
	"orgadmin/internal/service"
	"orgadmin/internal/telemetry"
	"orgadmin/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate, seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the audit feed and the maintenance jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, migrate, seed)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "migrate the schema before serving")
	cmd.Flags().BoolVar(&seed, "seed", true, "seed the catalog and bootstrap administrator before serving")
	return cmd
}

func (a *app) serve(ctx context.Context, migrate, seed bool) error {
	cfg := a.cfg

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.Telemetry.OTelEnabled,
		Endpoint:    cfg.Telemetry.OTelEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	}, a.log)
	if err != nil {
		a.log.WithError(err).Warn("Tracing disabled")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			a.log.WithError(err).Warn("Tracer shutdown failed")
		}
	}()

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.NewMetrics()
	}

	// Set up the audit feed; every committed unit of work is published to it
	hub := websocket.NewHub(a.log, metrics)
	tm := repository.NewTransactionManager(a.db,
		repository.WithNotifier(hub),
		repository.WithObserver(metrics),
		repository.WithLogger(a.log),
	)

	if migrate {
		if err := a.migrate(); err != nil {
			return err
		}
	}
	if seed {
		if err := a.seed(ctx, tm); err != nil {
			return err
		}
	}
	if err := handler.RegisterValidators(); err != nil {
		return err
	}

	// Set up dependencies (Repository -> Service -> Handler)
	orgService := service.NewOrganizationService(a.orgs, tm)
	authService := service.NewAuthService(a.users, a.tokens, tm, service.AuthSettings{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	services := handler.Services{
		Auth:          authService,
		Authorizer:    service.NewAuthorizer(a.perms, orgService, metrics),
		Users:         service.NewUserService(a.users, a.roles, a.perms, a.orgs, a.tokens, tm),
		Roles:         service.NewRoleService(a.roles, a.perms, tm),
		Permissions:   service.NewPermissionService(a.perms, tm),
		Organizations: orgService,
		Audit:         service.NewAuditService(a.audit),
	}

	limiter := middleware.NewIPRateLimiter(cfg.Auth.LoginRatePerMin, cfg.Auth.LoginBurst)
	router := handler.NewRouter(handler.RouterConfig{
		DB:       a.db,
		Log:      a.log,
		Services: services,
		Cookies: middleware.CookieSettings{
			Secure:        cfg.GinMode == config.ReleaseMode,
			AccessMaxAge:  int(cfg.Auth.AccessTTL.Seconds()),
			RefreshMaxAge: int(cfg.Auth.RefreshTTL.Seconds()),
		},
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		LoginLimiter:   limiter,
		Metrics:        metrics,
		MetricsPath:    cfg.Telemetry.MetricsPath,
		Hub:            hub,
		Swagger:        true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           otelhttp.NewHandler(router, cfg.Telemetry.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	keeper := jobs.NewTokenKeeper(authService, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error { return keeper.Run(gctx, cfg.Jobs.TokenPurgeSpec) })
	g.Go(func() error {
		a.log.WithField("addr", srv.Addr).Info("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.log.Info("Shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
