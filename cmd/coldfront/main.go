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

	"github.com/joho/godotenv"

	"github.com/coldfront-labs/coldfront/internal/archive"
	"github.com/coldfront-labs/coldfront/internal/auth"
	"github.com/coldfront-labs/coldfront/internal/campaign"
	"github.com/coldfront-labs/coldfront/internal/config"
	"github.com/coldfront-labs/coldfront/internal/database"
	"github.com/coldfront-labs/coldfront/internal/ratelimit"
	"github.com/coldfront-labs/coldfront/internal/store/postgres"
	"github.com/coldfront-labs/coldfront/internal/verify"
	"github.com/coldfront-labs/coldfront/internal/web"
	"github.com/coldfront-labs/coldfront/internal/web/handlers"
	"github.com/coldfront-labs/coldfront/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Database
	db, err := postgres.NewDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Migrations
	if err := database.RunMigrations(migrations.FS, cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Stores
	userStore := postgres.NewUserStore(db)
	keyStore := postgres.NewAPIKeyStore(db)
	senderStore := postgres.NewSenderAccountStore(db)
	importStore := postgres.NewContactImportStore(db)
	campaignStore := postgres.NewCampaignStore(db)
	launchStore := postgres.NewLaunchStore(db)
	sendStore := postgres.NewPlannedSendStore(db)

	// Upload archive
	uploads, err := archive.NewFromConfig(context.Background(), archive.Config{
		Backend:           cfg.ArchiveBackend,
		FSRoot:            cfg.ArchiveFSRoot,
		S3Bucket:          cfg.S3Bucket,
		S3Region:          cfg.S3Region,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3ForcePathStyle:  cfg.S3ForcePathStyle,
	})
	if err != nil {
		slog.Error("failed to initialize upload archive", "error", err)
		os.Exit(1)
	}

	// Services
	authService := auth.NewService(keyStore, userStore)
	wizard := campaign.NewWizard(time.Duration(cfg.DraftTTLHours) * time.Hour)
	campaignService := campaign.NewService(wizard, senderStore, campaignStore, campaignStore, launchStore, sendStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Draft TTL sweeper
	go wizard.Run(ctx)

	if err := bootstrapUser(ctx, authService, userStore); err != nil {
		slog.Error("failed to bootstrap user", "error", err)
		os.Exit(1)
	}

	// Rate limiter
	limiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Deliverability oracle
	var oracle verify.Oracle = verify.NoopOracle{}
	if cfg.VerifyBaseURL != "" {
		oracle = verify.NewHTTPOracle(cfg.VerifyBaseURL, cfg.VerifyAPIKey)
	}

	// Router
	router := web.NewRouter(web.RouterDeps{
		DraftHandler:    handlers.NewDraftHandler(campaignService, senderStore, importStore, uploads, oracle),
		CampaignHandler: handlers.NewCampaignHandler(campaignService, campaignStore, sendStore),
		SenderHandler:   handlers.NewSenderHandler(senderStore),
		KeyHandler:      handlers.NewKeyHandler(authService, keyStore),
		EventsHandler:   handlers.NewEventsHandler(sendStore, cfg.EventsToken),
		TrackingHandler: handlers.NewTrackingHandler(sendStore),
		AuthService:     authService,
		Limiter:         limiter,
	})

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("coldfront API starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// bootstrapUser creates the user named by BOOTSTRAP_USER_EMAIL on first run
// and logs a fresh API token for it. API keys are the only credential, so
// without this there is no way to make the first authenticated request.
func bootstrapUser(ctx context.Context, authService *auth.Service, users *postgres.UserStore) error {
	email := os.Getenv("BOOTSTRAP_USER_EMAIL")
	if email == "" {
		return nil
	}

	if _, err := users.GetUserByEmail(ctx, email); err == nil {
		return nil
	}

	user, err := users.CreateUser(ctx, email)
	if err != nil {
		return fmt.Errorf("create bootstrap user: %w", err)
	}
	issued, err := authService.CreateKey(ctx, user.ID, "bootstrap")
	if err != nil {
		return fmt.Errorf("issue bootstrap key: %w", err)
	}

	// Shown once; the token is not recoverable later.
	slog.Info("bootstrap user created", "email", email, "api_token", issued.Token)
	return nil
}
