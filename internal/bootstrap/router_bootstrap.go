package bootstrap

import (
	"fmt"
	"strings"

	"voicebridge/internal/controller"
	"voicebridge/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (app *BootstrapApp) setupRouter() (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(gin.Recovery())

	if len(app.config.TrustedProxies) > 0 {
		err := engine.SetTrustedProxies(strings.Split(app.config.TrustedProxies, ","))

		if err != nil {
			return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
		}
	}

	zerologMiddleware := middleware.NewZerologMiddleware()

	if err := zerologMiddleware.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize zerolog middleware: %w", err)
	}

	engine.Use(zerologMiddleware.Middleware())

	bearerMiddleware := middleware.NewBearerMiddleware(app.services.oauthService)

	if err := bearerMiddleware.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize bearer middleware: %w", err)
	}

	// Public surface: account linking, token grants and health
	publicRouter := &engine.RouterGroup

	oauthController := controller.NewOAuthController(controller.OAuthControllerConfig{
		ClientID: app.config.ClientID,
	}, publicRouter, app.services.oauthService, app.context.users)

	oauthController.SetupRoutes()

	apiRouter := engine.Group("/api")

	healthController := controller.NewHealthController(apiRouter)

	healthController.SetupRoutes()

	// Bearer-authenticated surface: fulfillment and REST
	bearerRouter := engine.Group("/", bearerMiddleware.Middleware())

	fulfillmentController := controller.NewFulfillmentController(bearerRouter, app.services.deviceService, app.services.stateService, app.services.oauthService)

	fulfillmentController.SetupRoutes()

	bearerAPIRouter := bearerRouter.Group("/api")

	skillController := controller.NewSkillController(bearerAPIRouter, app.services.deviceService, app.services.stateService, app.platform)

	skillController.SetupRoutes()

	devicesController := controller.NewDevicesController(bearerAPIRouter, app.services.deviceService, app.context.users)

	devicesController.SetupRoutes()

	return engine, nil
}
