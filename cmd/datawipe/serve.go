package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/datawipe/internal/adapter/driven/browser"
	"github.com/ericfisherdev/datawipe/internal/adapter/driven/gemini"
	"github.com/ericfisherdev/datawipe/internal/adapter/driven/smtp"
	sqliteadapter "github.com/ericfisherdev/datawipe/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/datawipe/internal/adapter/driving/http"
	"github.com/ericfisherdev/datawipe/internal/application"
	"github.com/ericfisherdev/datawipe/internal/catalog"
	"github.com/ericfisherdev/datawipe/internal/config"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
	"github.com/ericfisherdev/datawipe/internal/retry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the deletion workers",
		Long: `Run the HTTP API and the deletion workers.

All settings come from DATAWIPE_* environment variables. DATAWIPE_SECRET_KEY
is required: imported passwords are stored encrypted with it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.SecretKey == nil {
				return errors.New("DATAWIPE_SECRET_KEY is required to store imported accounts")
			}
			if flag := cmd.Flag("catalog-dir"); flag != nil && flag.Changed {
				cfg.CatalogDir = flag.Value.String()
			}

			slog.SetDefault(newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()
	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"auto_confirm", cfg.AutoConfirm,
		"auto_retry", cfg.AutoRetry,
		"browser", cfg.BrowserEnabled,
		"smtp", cfg.HasSMTPCredentials(),
	)

	// 1. Catalog (embedded, optionally overlaid from disk).
	cat, err := catalog.Open(cfg.CatalogDir)
	if err != nil {
		return err
	}

	// 2. Open database (dual reader/writer with WAL mode) and migrate.
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	logger.Info("database ready", "path", cfg.DBPath, "schema_version", version)

	// 3. Stores.
	accountStore, err := sqliteadapter.NewAccountRepo(db, cfg.SecretKey)
	if err != nil {
		return err
	}
	credentialStore, err := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	if err != nil {
		return err
	}
	taskStore := sqliteadapter.NewTaskRepo(db)
	auditRepo := sqliteadapter.NewAuditRepo(db)
	siteMetadata := sqliteadapter.NewSiteMetadataRepo(db)

	// 4. Enrichment oracle. A stored key takes priority over the env var and
	// can be replaced at runtime through the credentials endpoint.
	provider := application.NewEnricherProvider(nil)
	credentialSvc := application.NewCredentialService(credentialStore, provider,
		func(ctx context.Context, key model.Secret) (driven.Enricher, error) {
			e, err := gemini.NewEnricher(ctx, key.Reveal(), cfg.GenAIModel, logger)
			if err != nil {
				return nil, err
			}
			return e, nil
		},
		auditRepo, logger)
	if err := credentialSvc.Bootstrap(ctx, model.Secret(cfg.GenAIAPIKey)); err != nil {
		return err
	}
	enricher := application.NewCachingEnricher(provider, siteMetadata, cfg.EnrichmentTTL, logger)

	// 5. Optional outbound adapters.
	var navigator driven.Navigator
	var opener *browser.RodOpener
	if cfg.BrowserEnabled {
		scripts, err := browser.DefaultScripts()
		if err != nil {
			return err
		}
		opener = browser.NewRodOpener(browser.RodConfig{Bin: cfg.BrowserBin, Headless: cfg.BrowserHeadless}, logger)
		defer func() {
			if err := opener.Close(); err != nil {
				logger.Error("error closing browser", "error", err)
			}
		}()
		navigator = browser.NewNavigator(scripts, opener, browser.Config{
			Timeout:       cfg.BrowserTimeout,
			MaxDifficulty: cfg.MaxDifficulty,
		}, logger)
		logger.Info("browser automation enabled", "sites", len(scripts.Domains()))
	}

	var mailer driven.Mailer
	if cfg.HasSMTPCredentials() {
		m, err := smtp.NewMailer(smtp.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			FromName: cfg.RequesterName,
			ReplyTo:  cfg.RequesterEmail,
		}, logger)
		if err != nil {
			return err
		}
		mailer = m
	} else {
		logger.Warn("no smtp credentials configured, erasure emails disabled")
	}

	// 6. Application services.
	deletionSvc := application.NewDeletionService(application.DeletionDeps{
		Accounts:  accountStore,
		Tasks:     taskStore,
		Audit:     auditRepo,
		Navigator: navigator,
		Mailer:    mailer,
		Enricher:  enricher,
		Pacer:     application.NewPacer(cfg.PacingMin, cfg.PacingMax, nil, nil),
		Logger:    logger,
	}, application.DeletionConfig{
		MaxDifficulty:  cfg.MaxDifficulty,
		AutoConfirm:    cfg.AutoConfirm,
		Requester:      application.Requester{Name: cfg.RequesterName, Email: cfg.RequesterEmail},
		PrivacyAliases: cat.PrivacyAliases(),
	})
	defer deletionSvc.Close()

	retrySvc := application.NewRetryService(application.RetryDeps{
		Accounts: accountStore,
		Tasks:    taskStore,
		Audit:    auditRepo,
		Executor: deletionSvc,
		Policy:   retry.NewPolicy(),
		Logger:   logger,
	})
	defer retrySvc.Close()
	if cfg.AutoRetry {
		deletionSvc.SetFailureObserver(retrySvc.TaskFailed)
	}

	if _, err := retrySvc.Resume(ctx); err != nil {
		return err
	}

	analyzer := application.NewAnalyzer(cat)
	importSvc := application.NewImportService(analyzer, accountStore, auditRepo, logger)
	accountSvc := application.NewAccountService(accountStore, auditRepo, cat, logger)
	auditSvc := application.NewAuditService(auditRepo, nil)

	// 7. HTTP server.
	handler := httphandler.NewServeMux(httphandler.NewHandler(httphandler.Deps{
		Catalog:     cat,
		Imports:     importSvc,
		Accounts:    accountSvc,
		Deletions:   deletionSvc,
		Retries:     retrySvc,
		Credentials: credentialSvc,
		Audit:       auditSvc,
		Logger:      logger,
	}), logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete", "pending_retries", retrySvc.Pending())
	return err
}
