package controller_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voicebridge/internal/controller"
	"voicebridge/internal/jsonval"
	"voicebridge/internal/middleware"
	"voicebridge/internal/model"
	"voicebridge/internal/service"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
)

type skillFixture struct {
	router      *gin.Engine
	fake        *fakePlatform
	accessToken string
}

func setupSkill(t *testing.T) *skillFixture {
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

	translator := service.NewTranslatorService()
	devices := service.NewDeviceService(service.DeviceServiceConfig{}, fake, fake, translator)
	states := service.NewStateService(service.StateServiceConfig{}, fake)

	router := gin.New()
	bearer := middleware.NewBearerMiddleware(oauth)
	group := router.Group("/api", bearer.Middleware())

	ctrl := controller.NewSkillController(group, devices, states, fake)
	ctrl.SetupRoutes()

	code, err := oauth.IssueAuthorizationCode("tenant", "alice", "ext-1")
	assert.NilError(t, err)
	issued, err := oauth.ExchangeCode(code, "assistant", "supersecret")
	assert.NilError(t, err)

	return &skillFixture{
		router:      router,
		fake:        fake,
		accessToken: issued.AccessToken,
	}
}

func (f *skillFixture) request(t *testing.T, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req, err := http.NewRequest(method, path, reader)
	assert.NilError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.accessToken)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestSkillListDevices(t *testing.T) {
	fixture := setupSkill(t)
	fixture.fake.addDevice("lamp", "light", enabled("OnOff", "Brightness"))
	fixture.fake.addDevice("hidden", "outlet", &model.DeviceCapabilities{Enabled: false})

	recorder := fixture.request(t, "GET", "/api/skill/devices", "")
	assert.Equal(t, recorder.Code, 200)

	var res []controller.SkillDeviceResponse
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &res))
	assert.Equal(t, len(res), 1)
	assert.Equal(t, res[0].ID, "lamp")
}

func TestSkillGetDevice(t *testing.T) {
	fixture := setupSkill(t)
	fixture.fake.addDevice("lamp", "light", enabled("OnOff"))

	recorder := fixture.request(t, "GET", "/api/skill/devices/lamp", "")
	assert.Equal(t, recorder.Code, 200)

	recorder = fixture.request(t, "GET", "/api/skill/devices/ghost", "")
	assert.Equal(t, recorder.Code, 500)
}

func TestSkillDeviceState(t *testing.T) {
	fixture := setupSkill(t)
	fixture.fake.addDevice("lamp", "light", enabled("OnOff", "Brightness"))
	fixture.fake.timeseries["lamp"] = map[string]jsonval.Value{
		"on":         jsonval.Bool(true),
		"brightness": jsonval.Int(55),
	}

	recorder := fixture.request(t, "GET", "/api/skill/devices/lamp/state", "")
	assert.Equal(t, recorder.Code, 200)

	var res map[string]any
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &res))
	assert.Equal(t, res["online"], true)

	states := res["states"].(map[string]any)
	assert.Equal(t, states["on"], true)
	assert.Equal(t, states["brightness"], float64(55))
}

func TestSkillCommand(t *testing.T) {
	fixture := setupSkill(t)
	fixture.fake.addDevice("lamp", "light", enabled("OnOff"))

	recorder := fixture.request(t, "POST", "/api/skill/devices/lamp/command", `{"command": "OnOff", "params": {"on": true}}`)
	assert.Equal(t, recorder.Code, 200)
	assert.Equal(t, len(fixture.fake.rpcCalls), 1)
	assert.Equal(t, fixture.fake.rpcCalls[0], "lamp:setPower")
}

func TestSkillCommandUnknownDevice(t *testing.T) {
	fixture := setupSkill(t)

	recorder := fixture.request(t, "POST", "/api/skill/devices/ghost/command", `{"command": "OnOff", "params": {"on": true}}`)
	assert.Equal(t, recorder.Code, 502)
}

func TestSkillTelemetry(t *testing.T) {
	fixture := setupSkill(t)
	fixture.fake.addDevice("lamp", "light", enabled("OnOff"))
	fixture.fake.timeseries["lamp"] = map[string]jsonval.Value{
		"on": jsonval.Bool(true),
	}

	recorder := fixture.request(t, "GET", "/api/skill/devices/lamp/telemetry?keys=on", "")
	assert.Equal(t, recorder.Code, 200)

	var res []controller.SkillTelemetryPoint
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &res))
	assert.Equal(t, len(res), 1)
	assert.Equal(t, res[0].Key, "on")
}

func TestSkillTelemetryMissingKeys(t *testing.T) {
	fixture := setupSkill(t)
	fixture.fake.addDevice("lamp", "light", enabled("OnOff"))

	recorder := fixture.request(t, "GET", "/api/skill/devices/lamp/telemetry", "")
	assert.Equal(t, recorder.Code, 400)
}
