package bootstrap

import (
	"fmt"
	"time"

	"voicebridge/internal/config"
	"voicebridge/internal/platform"
	"voicebridge/internal/utils"

	"github.com/rs/zerolog/log"
)

type BootstrapApp struct {
	config  config.Config
	context struct {
		users []config.User
	}
	platform platform.Client
	services Services
}

func NewBootstrapApp(config config.Config) *BootstrapApp {
	return &BootstrapApp{
		config: config,
	}
}

func (app *BootstrapApp) Setup() error {
	users, err := utils.GetUsers(app.config.Users, app.config.UsersFile)

	if err != nil {
		return fmt.Errorf("failed to parse users: %w", err)
	}

	if len(users) == 0 {
		return fmt.Errorf("no users configured, nobody would be able to link an account")
	}

	app.context.users = users

	log.Trace().Interface("config", app.config).Msg("Config dump")
	log.Debug().Int("users", len(users)).Msg("Parsed users")

	app.platform = platform.NewHTTPClient(platform.HTTPClientConfig{
		BaseURL:  app.config.PlatformURL,
		Username: app.config.PlatformUsername,
		Password: app.config.PlatformPassword,
	})

	services, err := app.initServices()

	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	app.services = services

	router, err := app.setupRouter()

	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	log.Debug().Msg("Starting token expiry sweep routine")
	go app.expirySweep()

	address := fmt.Sprintf("%s:%d", app.config.Address, app.config.Port)
	log.Info().Msgf("Starting server on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	return nil
}

// expirySweep periodically deletes expired authorization codes and access
// tokens. The sweep is idempotent and independent of request handling.
func (app *BootstrapApp) expirySweep() {
	interval := time.Duration(app.config.SweepInterval) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ; true; <-ticker.C {
		removed, err := app.services.oauthService.CleanupExpired()
		if err != nil {
			log.Error().Err(err).Msg("Failed to clean up expired grants")
			continue
		}
		if removed > 0 {
			log.Debug().Int64("removed", removed).Msg("Cleaned up expired grants")
		}
	}
}
