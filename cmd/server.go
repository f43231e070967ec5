package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhcw/wpas-referral-proxy/healthcheck"
	"github.com/dhcw/wpas-referral-proxy/lib/audit"
	"github.com/dhcw/wpas-referral-proxy/lib/logging"
	"github.com/dhcw/wpas-referral-proxy/lib/otel"
	"github.com/dhcw/wpas-referral-proxy/messaging"
	"github.com/dhcw/wpas-referral-proxy/profile"
	"github.com/dhcw/wpas-referral-proxy/referral"
	"github.com/dhcw/wpas-referral-proxy/wpas"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// Start runs the proxy until ctx is canceled or the process is interrupted.
// The profile validator is initialized in the background; until it's ready, referrals are rejected with 503.
func Start(ctx context.Context, config Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	zerolog.SetGlobalLevel(config.LogLevel)
	logger := log.Logger.Hook(logging.TracingHook{})
	zerolog.DefaultContextLogger = &logger
	ctx = logger.WithContext(ctx)

	tracerProvider, err := otel.Initialize(ctx, config.OpenTelemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Failed to shut down OpenTelemetry")
		}
	}()

	// Set up dependencies
	broker, err := messaging.New(config.Messaging, []messaging.Entity{config.Audit.Entity()})
	if err != nil {
		return fmt.Errorf("failed to create message broker: %w", err)
	}
	auditor := audit.NewRecorder(config.Audit, broker)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := auditor.Close(shutdownCtx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Not all audit events were published")
		}
		if broker != nil {
			if err := broker.Close(shutdownCtx); err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("Failed to close message broker")
			}
		}
	}()

	client, err := wpas.NewClient(ctx, config.Backend, nil)
	if err != nil {
		return fmt.Errorf("failed to create WPAS client: %w", err)
	}
	var schemas fs.FS = wpas.BuiltinSchemas()
	if config.Backend.SchemaDir != "" {
		schemas = os.DirFS(config.Backend.SchemaDir)
	}
	profileValidator := profile.New(config.Profile, nil)
	go func() {
		if err := profileValidator.Initialize(ctx); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to initialize profile validator")
		}
	}()

	// Register services
	referralService := referral.New(referral.Config{
		Headers:          config.Headers,
		Mapping:          config.Mapping,
		ReferralIDSystem: config.Backend.ReferralIDSystem,
		MaxBodySize:      config.Public.MaxBodySize,
	}, profileValidator, wpas.NewSchemaValidator(schemas), client, auditor)
	services := []Service{
		referralService,
		healthcheck.New(profileValidator),
	}
	httpHandler := http.NewServeMux()
	for _, service := range services {
		service.RegisterHandlers(httpHandler)
	}

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              config.Public.Address,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Ctx(ctx).Info().Msgf("Public interface listens on %s", config.Public.Address)
		serverErr <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

type Service interface {
	RegisterHandlers(mux *http.ServeMux)
}
