package controller_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voicebridge/internal/config"
	"voicebridge/internal/controller"
	"voicebridge/internal/middleware"
	"voicebridge/internal/service"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
)

type devicesFixture struct {
	router *gin.Engine
	fake   *fakePlatform
	oauth  *service.OAuthService
}

func setupDevicesController(t *testing.T) *devicesFixture {
	gin.SetMode(gin.TestMode)

	fake := newFakePlatform()

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: ":memory:",
	})
	assert.NilError(t, databaseService.Init())

	oauth := service.NewOAuthService(service.OAuthServiceConfig{
		ClientID:     "assistant",
		ClientSecret: "supersecret",
	}, databaseService.GetDatabase())
	assert.NilError(t, oauth.Init())

	devices := service.NewDeviceService(service.DeviceServiceConfig{}, fake, fake, service.NewTranslatorService())

	users := []config.User{
		{Username: "alice", Password: testPasswordHash},
	}

	router := gin.New()
	bearer := middleware.NewBearerMiddleware(oauth)
	group := router.Group("/api", bearer.Middleware())

	ctrl := controller.NewDevicesController(group, devices, users)
	ctrl.SetupRoutes()

	return &devicesFixture{
		router: router,
		fake:   fake,
		oauth:  oauth,
	}
}

func (f *devicesFixture) tokenFor(t *testing.T, username string) string {
	t.Helper()

	code, err := f.oauth.IssueAuthorizationCode("tenant", username, "ext-"+username)
	assert.NilError(t, err)
	issued, err := f.oauth.ExchangeCode(code, "assistant", "supersecret")
	assert.NilError(t, err)
	return issued.AccessToken
}

func (f *devicesFixture) request(t *testing.T, token string, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	assert.NilError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestManagementListsAllDevices(t *testing.T) {
	fixture := setupDevicesController(t)
	fixture.fake.addDevice("lamp", "light", enabled("OnOff"))
	fixture.fake.addDevice("fresh", "fan", nil)

	token := fixture.tokenFor(t, "alice")

	recorder := fixture.request(t, token, "GET", "/api/devices", "")
	assert.Equal(t, recorder.Code, 200)

	var res []controller.ManagedDeviceResponse
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &res))
	assert.Equal(t, len(res), 2)
}

func TestManagementDeniedForUnknownUser(t *testing.T) {
	fixture := setupDevicesController(t)

	// The token is valid but its user is not in the configured user list
	token := fixture.tokenFor(t, "stranger")

	recorder := fixture.request(t, token, "GET", "/api/devices", "")
	assert.Equal(t, recorder.Code, 403)
}

func TestManagementEnableDevice(t *testing.T) {
	fixture := setupDevicesController(t)
	fixture.fake.addDevice("thermo", "thermostat", nil)

	token := fixture.tokenFor(t, "alice")

	recorder := fixture.request(t, token, "POST", "/api/devices/thermo/enabled", `{"enabled": true}`)
	assert.Equal(t, recorder.Code, 200)

	var res controller.ManagedDeviceResponse
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &res))
	assert.Assert(t, res.Capabilities.Enabled)
	assert.Equal(t, res.Capabilities.DeviceType, "action.devices.types.THERMOSTAT")
}

func TestManagementConfigureCapabilities(t *testing.T) {
	fixture := setupDevicesController(t)
	fixture.fake.addDevice("gate", "curtain", nil)

	token := fixture.tokenFor(t, "alice")

	body := `{"enabled": true, "deviceType": "action.devices.types.GARAGE", "traits": ["OpenClose"], "roomHint": "garage"}`
	recorder := fixture.request(t, token, "POST", "/api/devices/gate/capabilities", body)
	assert.Equal(t, recorder.Code, 200)

	recorder = fixture.request(t, token, "GET", "/api/devices/gate", "")
	assert.Equal(t, recorder.Code, 200)

	var res controller.ManagedDeviceResponse
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &res))
	assert.Equal(t, res.Capabilities.RoomHint, "garage")
	assert.Equal(t, res.Capabilities.DeviceType, "action.devices.types.GARAGE")
}

func TestManagementUnknownDevice(t *testing.T) {
	fixture := setupDevicesController(t)

	token := fixture.tokenFor(t, "alice")

	recorder := fixture.request(t, token, "GET", "/api/devices/ghost", "")
	assert.Equal(t, recorder.Code, 404)
}
