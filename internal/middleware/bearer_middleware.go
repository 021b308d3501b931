package middleware

import (
	"voicebridge/internal/service"
	"voicebridge/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// BearerMiddleware authenticates requests with an access token issued by
// the OAuth service and stores the resolved token in the request context.
type BearerMiddleware struct {
	OAuth *service.OAuthService
}

func NewBearerMiddleware(oauth *service.OAuthService) *BearerMiddleware {
	return &BearerMiddleware{
		OAuth: oauth,
	}
}

func (m *BearerMiddleware) Init() error {
	return nil
}

func (m *BearerMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := utils.GetBearerToken(c.GetHeader("Authorization"))

		if accessToken == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid_token", "error_description": "Missing bearer token"})
			return
		}

		token, err := m.OAuth.ValidateToken(accessToken)

		if err != nil {
			log.Debug().Err(err).Msg("Rejected bearer token")
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid_token", "error_description": "Invalid or expired access token"})
			return
		}

		c.Set("token", token)
		c.Next()
	}
}
