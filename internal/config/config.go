package config

// Version information, set at build time

var Version = "development"
var CommitHash = "development"
var BuildTimestamp = "0000-00-00T00:00:00Z"

// Assistant wire-protocol namespaces

var CommandPrefix = "action.devices.commands."
var TraitPrefix = "action.devices.traits."
var DeviceTypePrefix = "action.devices.types."

// Fulfillment intents

var IntentSync = "action.devices.SYNC"
var IntentQuery = "action.devices.QUERY"
var IntentExecute = "action.devices.EXECUTE"
var IntentDisconnect = "action.devices.DISCONNECT"

// Key under which the capability document lives in a device's
// additional-info JSON on the platform.

var CapabilitiesKey = "assistantCapabilities"

// Main app config

type Config struct {
	Port             int    `mapstructure:"port" validate:"required"`
	Address          string `validate:"required,ip4_addr" mapstructure:"address"`
	DatabasePath     string `mapstructure:"database-path" validate:"required"`
	ClientID         string `mapstructure:"client-id"`
	ClientSecret     string `mapstructure:"client-secret"`
	Users            string `mapstructure:"users"`
	UsersFile        string `mapstructure:"users-file"`
	PlatformURL      string `mapstructure:"platform-url" validate:"required,url"`
	PlatformUsername string `mapstructure:"platform-username"`
	PlatformPassword string `mapstructure:"platform-password"`
	RPCTimeout       int    `mapstructure:"rpc-timeout"`
	SweepInterval    int    `mapstructure:"sweep-interval"`
	LogLevel         string `mapstructure:"log-level" validate:"oneof=trace debug info warn error fatal panic"`
	TrustedProxies   string `mapstructure:"trusted-proxies"`
}

// User is a platform account allowed to link an assistant, in
// username:bcrypt-hash form on the command line.

type User struct {
	Username string
	Password string
}

// TokenResponse is the OAuth2 token endpoint response body.

type TokenResponse struct {
	AccessToken      string `json:"access_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}
