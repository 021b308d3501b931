package bootstrap

import (
	"time"

	"voicebridge/internal/service"
)

type Services struct {
	databaseService   *service.DatabaseService
	oauthService      *service.OAuthService
	translatorService *service.TranslatorService
	stateService      *service.StateService
	deviceService     *service.DeviceService
}

func (app *BootstrapApp) initServices() (Services, error) {
	services := Services{}

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: app.config.DatabasePath,
	})

	err := databaseService.Init()

	if err != nil {
		return Services{}, err
	}

	services.databaseService = databaseService

	oauthService := service.NewOAuthService(service.OAuthServiceConfig{
		ClientID:     app.config.ClientID,
		ClientSecret: app.config.ClientSecret,
	}, databaseService.GetDatabase())

	err = oauthService.Init()

	if err != nil {
		return Services{}, err
	}

	services.oauthService = oauthService

	translatorService := service.NewTranslatorService()

	err = translatorService.Init()

	if err != nil {
		return Services{}, err
	}

	services.translatorService = translatorService

	stateService := service.NewStateService(service.StateServiceConfig{
		QueryTimeout: time.Duration(app.config.RPCTimeout) * time.Second,
	}, app.platform)

	err = stateService.Init()

	if err != nil {
		return Services{}, err
	}

	services.stateService = stateService

	deviceService := service.NewDeviceService(service.DeviceServiceConfig{
		RPCTimeout: time.Duration(app.config.RPCTimeout) * time.Second,
	}, app.platform, app.platform, translatorService)

	err = deviceService.Init()

	if err != nil {
		return Services{}, err
	}

	services.deviceService = deviceService

	return services, nil
}
