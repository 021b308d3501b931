package controller

import (
	"errors"
	"fmt"
	"html/template"
	"strings"

	"voicebridge/internal/config"
	"voicebridge/internal/service"
	"voicebridge/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Link your account</title></head>
<body>
<h1>Link your account</h1>
{{if .Error}}<p>{{.Error}}</p>{{end}}
<form method="post" action="login">
<input type="hidden" name="client_id" value="{{.ClientID}}">
<input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
<input type="hidden" name="state" value="{{.State}}">
<label>Username <input type="text" name="username"></label>
<label>Password <input type="password" name="password"></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>
`))

type AuthorizeRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
}

type redirectQuery struct {
	Code  string `url:"code"`
	State string `url:"state,omitempty"`
}

type OAuthControllerConfig struct {
	ClientID string
	TenantID string
}

type OAuthController struct {
	config OAuthControllerConfig
	router *gin.RouterGroup
	oauth  *service.OAuthService
	users  []config.User
}

func NewOAuthController(config OAuthControllerConfig, router *gin.RouterGroup, oauth *service.OAuthService, users []config.User) *OAuthController {
	if config.TenantID == "" {
		config.TenantID = "default"
	}
	return &OAuthController{
		config: config,
		router: router,
		oauth:  oauth,
		users:  users,
	}
}

func (controller *OAuthController) SetupRoutes() {
	oauthGroup := controller.router.Group("/oauth")
	oauthGroup.GET("/authorize", controller.authorizePageHandler)
	oauthGroup.POST("/authorize", controller.authorizeHandler)
	oauthGroup.POST("/login", controller.loginHandler)
	oauthGroup.POST("/token", controller.tokenHandler)
	oauthGroup.POST("/revoke", controller.revokeHandler)
}

func (controller *OAuthController) authorizePageHandler(c *gin.Context) {
	clientID := c.Query("client_id")
	redirectURI := c.Query("redirect_uri")
	responseType := c.Query("response_type")

	if responseType != "code" {
		c.JSON(400, gin.H{"error": "unsupported_response_type"})
		return
	}

	if !controller.clientKnown(clientID) || redirectURI == "" {
		c.JSON(400, gin.H{"error": "invalid_request"})
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(200)

	err := loginPage.Execute(c.Writer, gin.H{
		"ClientID":    clientID,
		"RedirectURI": redirectURI,
		"State":       c.Query("state"),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to render login page")
	}
}

func (controller *OAuthController) loginHandler(c *gin.Context) {
	clientID := c.PostForm("client_id")
	redirectURI := c.PostForm("redirect_uri")
	state := c.PostForm("state")
	username := c.PostForm("username")
	password := c.PostForm("password")

	if !controller.clientKnown(clientID) || redirectURI == "" {
		c.JSON(400, gin.H{"error": "invalid_request"})
		return
	}

	user, found := utils.GetUser(controller.users, username)

	if !found || !utils.CheckPassword(user, password) {
		log.Warn().Str("username", username).Msg("Account linking login failed")
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(401)
		loginPage.Execute(c.Writer, gin.H{
			"ClientID":    clientID,
			"RedirectURI": redirectURI,
			"State":       state,
			"Error":       "Invalid username or password",
		})
		return
	}

	location, err := controller.issueRedirect(user.Username, redirectURI, state)

	if err != nil {
		log.Error().Err(err).Msg("Failed to issue authorization code")
		c.JSON(500, gin.H{"error": "server_error"})
		return
	}

	c.Redirect(302, location)
}

func (controller *OAuthController) authorizeHandler(c *gin.Context) {
	var req AuthorizeRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "invalid_request"})
		return
	}

	if !controller.clientKnown(req.ClientID) || req.RedirectURI == "" {
		c.JSON(400, gin.H{"error": "invalid_request"})
		return
	}

	user, found := utils.GetUser(controller.users, req.Username)

	if !found || !utils.CheckPassword(user, req.Password) {
		log.Warn().Str("username", req.Username).Msg("Account linking login failed")
		c.JSON(401, gin.H{"error": "access_denied"})
		return
	}

	location, err := controller.issueRedirect(user.Username, req.RedirectURI, req.State)

	if err != nil {
		log.Error().Err(err).Msg("Failed to issue authorization code")
		c.JSON(500, gin.H{"error": "server_error"})
		return
	}

	c.JSON(200, gin.H{"redirect_uri": location})
}

func (controller *OAuthController) tokenHandler(c *gin.Context) {
	clientID := c.PostForm("client_id")
	clientSecret := c.PostForm("client_secret")

	if basicID, basicSecret, ok := c.Request.BasicAuth(); ok {
		clientID = basicID
		clientSecret = basicSecret
	}

	var res *config.TokenResponse
	var err error

	switch grantType := c.PostForm("grant_type"); grantType {
	case "authorization_code":
		res, err = controller.oauth.ExchangeCode(c.PostForm("code"), clientID, clientSecret)
	case "refresh_token":
		res, err = controller.oauth.RefreshToken(c.PostForm("refresh_token"), clientID, clientSecret)
	default:
		log.Debug().Str("grantType", grantType).Msg("Unsupported grant type")
		c.JSON(400, gin.H{"error": "unsupported_grant_type"})
		return
	}

	if err != nil {
		var oauthErr *service.OAuthError
		if errors.As(err, &oauthErr) {
			c.JSON(400, gin.H{"error": oauthErr.Code, "error_description": oauthErr.Description})
			return
		}
		log.Error().Err(err).Msg("Token grant failed")
		c.JSON(500, gin.H{"error": "server_error"})
		return
	}

	c.JSON(200, res)
}

func (controller *OAuthController) revokeHandler(c *gin.Context) {
	token := c.PostForm("token")

	if token == "" {
		c.JSON(400, gin.H{"error": "invalid_request"})
		return
	}

	if err := controller.oauth.RevokeToken(token); err != nil {
		log.Error().Err(err).Msg("Failed to revoke token")
		c.JSON(500, gin.H{"error": "server_error"})
		return
	}

	c.Status(200)
}

// issueRedirect creates an authorization code for the user and builds the
// callback location with the code and state appended.
func (controller *OAuthController) issueRedirect(username string, redirectURI string, state string) (string, error) {
	externalUserID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(username)).String()

	code, err := controller.oauth.IssueAuthorizationCode(controller.config.TenantID, username, externalUserID)
	if err != nil {
		return "", err
	}

	values, err := query.Values(redirectQuery{Code: code, State: state})
	if err != nil {
		return "", err
	}

	separator := "?"
	if strings.Contains(redirectURI, "?") {
		separator = "&"
	}

	return fmt.Sprintf("%s%s%s", redirectURI, separator, values.Encode()), nil
}

// clientKnown checks the client id only; the secret is verified at the
// token endpoint. In development mode any client id is accepted.
func (controller *OAuthController) clientKnown(clientID string) bool {
	if !controller.oauth.CredentialsConfigured() {
		return clientID != ""
	}
	return clientID == controller.config.ClientID
}
