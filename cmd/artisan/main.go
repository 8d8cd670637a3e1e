// Artisan: back office API for French tradespeople (clients, devis, factures).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	artisanapi "github.com/d9705996/artisan/internal/api"
	"github.com/d9705996/artisan/internal/api/handler"
	"github.com/d9705996/artisan/internal/config"
	"github.com/d9705996/artisan/internal/db"
	"github.com/d9705996/artisan/internal/documents"
	"github.com/d9705996/artisan/internal/health"
	"github.com/d9705996/artisan/internal/integration/archive"
	"github.com/d9705996/artisan/internal/integration/calendar"
	"github.com/d9705996/artisan/internal/integration/mail"
	"github.com/d9705996/artisan/internal/integration/pdf"
	"github.com/d9705996/artisan/internal/integration/whatsapp"
	"github.com/d9705996/artisan/internal/notify"
	"github.com/d9705996/artisan/internal/observability"
	"github.com/d9705996/artisan/internal/seal"
	"github.com/d9705996/artisan/internal/seed"
	"github.com/d9705996/artisan/internal/store"
	"github.com/d9705996/artisan/internal/version"
	"github.com/d9705996/artisan/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "artisan",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting artisan", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver)

	// --- Database ------------------------------------------------------------
	// db.New opens the connection, runs migrations (AutoMigrate for SQLite,
	// golang-migrate for Postgres), and returns the GORM handle plus an
	// optional pgxpool (non-nil only for postgres, used by River).
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	// --- Seed demo tenant ----------------------------------------------------
	if _, err := seed.EnsureDemoTenant(ctx, gormDB, seed.DemoOptions{
		TenantID: cfg.App.SeedDemoTenant,
		VATPct:   cfg.App.DefaultVATPct,
	}, log); err != nil {
		return fmt.Errorf("seed demo tenant: %w", err)
	}

	// --- Stores --------------------------------------------------------------
	box := seal.New(cfg.App.TokenEncryptionKey)
	if box == nil {
		log.Warn("TOKEN_ENCRYPTION_KEY not set; OAuth tokens are stored unencrypted")
	}
	clients := store.NewClientStore(gormDB)
	devis := store.NewDevisStore(gormDB)
	factures := store.NewFactureStore(gormDB)
	notifications := store.NewNotificationStore(gormDB)
	conns := store.NewOAuthStore(gormDB, box)
	entreprises := store.NewEntrepriseStore(gormDB, store.EntrepriseDefaults{
		VATPct:       cfg.App.DefaultVATPct,
		ValidityDays: cfg.App.QuoteValidityDays,
		PaymentDays:  cfg.App.PaymentTermsDays,
	})

	// --- Notifications -------------------------------------------------------
	checks := []health.Check{{Name: "database", Pinger: db.NewPinger(gormDB)}}
	var dedup notify.Deduplicator
	if cfg.Redis.Addr != "" {
		rd, err := notify.NewRedisDeduplicator(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Notify.DedupWindow)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		checks = append(checks, health.Check{Name: "redis", Pinger: rd})
		dedup = rd
		log.Info("notification dedup shared through redis", "addr", cfg.Redis.Addr)
	} else {
		dedup = notify.NewMemoryDeduplicator(cfg.Notify.DedupWindow, cfg.Notify.DedupRetention)
	}
	defer func() { _ = dedup.Close() }()
	notifier, err := notify.NewService(notifications, dedup, log)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	// --- Documents -----------------------------------------------------------
	var docOpts []documents.Option
	var archiver pdf.Archiver = archive.Nop{}
	if cfg.Storage.Configured() {
		s3, err := archive.NewS3(ctx, archive.Config{
			Endpoint:     cfg.Storage.Endpoint,
			Region:       cfg.Storage.Region,
			Bucket:       cfg.Storage.Bucket,
			AccessKey:    cfg.Storage.AccessKey,
			SecretKey:    cfg.Storage.SecretKey,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("create archive: %w", err)
		}
		archiver = s3
		docOpts = append(docOpts, documents.WithLinks(s3))
		log.Info("document archive enabled", "bucket", cfg.Storage.Bucket)
	}
	renderer := pdf.NewChromeRenderer(pdf.ChromeConfig{
		RemoteURL: cfg.PDF.ChromeURL,
		Timeout:   cfg.PDF.Timeout,
		NoSandbox: cfg.PDF.NoSandbox,
	}, log)
	defer func() { _ = renderer.Close() }()
	gen, err := pdf.NewGenerator(renderer, archiver, log)
	if err != nil {
		return fmt.Errorf("create pdf generator: %w", err)
	}
	if cfg.Mail.Configured() {
		mailer, err := mail.New(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.APIKey,
			From:     cfg.Mail.From,
			Timeout:  cfg.Mail.Timeout,
		})
		if err != nil {
			return fmt.Errorf("create mailer: %w", err)
		}
		docOpts = append(docOpts, documents.WithMail(mailer))
	} else {
		log.Warn("RESEND_API_KEY or MAIL_FROM not set; sending documents is disabled")
	}
	docs := documents.New(documents.Stores{
		Devis:       devis,
		Factures:    factures,
		Clients:     clients,
		Entreprises: entreprises,
	}, gen, notifier, log, docOpts...)

	// --- Integrations --------------------------------------------------------
	// Unconfigured adapters stay nil interfaces; their endpoints answer
	// config_missing.
	var messenger handler.Messenger
	if cfg.WhatsApp.Configured() {
		wa, err := whatsapp.New(whatsapp.Config{
			AccessToken:   cfg.WhatsApp.AccessToken,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			APIBase:       cfg.WhatsApp.APIBase,
		}, nil)
		if err != nil {
			return fmt.Errorf("create whatsapp client: %w", err)
		}
		messenger = wa
	}
	var (
		flow handler.OAuthFlow
		cal  handler.Calendar
	)
	if cfg.Google.Configured() {
		svc, err := calendar.New(calendar.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			AuthURL:      cfg.Google.AuthURL,
			TokenURL:     cfg.Google.TokenURL,
			RedirectURL:  strings.TrimRight(cfg.HTTP.PublicURL, "/") + "/api/v1/oauth/google/callback",
			APIBase:      cfg.Google.CalendarAPI,
			StateSecret:  cfg.JWT.Secret,
		}, conns, nil)
		if err != nil {
			return fmt.Errorf("create calendar service: %w", err)
		}
		flow, cal = svc, svc
	}
	metrics, err := handler.NewMetrics()
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// --- Worker queue --------------------------------------------------------
	// River migrations only run when Postgres is available.
	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	wq, err := worker.New(ctx, pool, cfg.DB.Driver, worker.Options{
		Concurrency: cfg.Worker.Concurrency,
		Interval:    cfg.Worker.SweepInterval,
	}, docs, log)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- HTTP routes ---------------------------------------------------------
	mux := http.NewServeMux()
	artisanapi.RegisterRoutes(mux, artisanapi.Handlers{
		Health:        health.New(checks...),
		Entreprise:    handler.NewEntrepriseHandler(entreprises, log),
		Clients:       handler.NewClientHandler(clients, log),
		Devis:         handler.NewDevisHandler(devis, factures, entreprises, docs, metrics, log),
		Factures:      handler.NewFactureHandler(factures, entreprises, docs, metrics, log),
		Notifications: handler.NewNotificationHandler(notifications, notifier, log),
		OAuth:         handler.NewOAuthHandler(conns, flow, cfg.App.URL, log),
		Calendar:      handler.NewCalendarHandler(cal, log),
		WhatsApp: handler.NewWhatsAppHandler(messenger, clients, notifier, handler.WebhookConfig{
			VerifyToken: cfg.WhatsApp.VerifyToken,
			AppSecret:   cfg.WhatsApp.AppSecret,
		}, metrics, log),
	}, artisanapi.AuthConfig{Secret: cfg.JWT.Secret, Audience: cfg.JWT.Audience})
	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      artisanapi.Wrap(mux, log, cfg.App.URL),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}
