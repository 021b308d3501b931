package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"voicebridge/internal/config"
	"voicebridge/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	authCodeBytes    = 32
	tokenBytes       = 64
	authCodeLifetime = 10 * time.Minute
	tokenLifetime    = time.Hour
)

// OAuthError is a structured OAuth2 failure rendered with the standard
// error-code vocabulary. It never carries token or code material.
type OAuthError struct {
	Code        string
	Description string
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

var (
	ErrInvalidClient = &OAuthError{Code: "invalid_client", Description: "Invalid client credentials"}
	ErrInvalidGrant  = &OAuthError{Code: "invalid_grant", Description: "Authorization grant is invalid or expired"}
	ErrInvalidToken  = &OAuthError{Code: "invalid_token", Description: "Access token is invalid or expired"}
)

type OAuthServiceConfig struct {
	ClientID     string
	ClientSecret string
}

// OAuthService is the account-linking authority: it issues authorization
// codes, exchanges them for token pairs and validates bearer tokens.
type OAuthService struct {
	Config   OAuthServiceConfig
	Database *gorm.DB
}

func NewOAuthService(config OAuthServiceConfig, database *gorm.DB) *OAuthService {
	return &OAuthService{
		Config:   config,
		Database: database,
	}
}

func (oauth *OAuthService) Init() error {
	if !oauth.CredentialsConfigured() {
		log.Warn().Msg("No OAuth client credentials configured, accepting any client (development mode)")
	}
	return nil
}

func (oauth *OAuthService) CredentialsConfigured() bool {
	return oauth.Config.ClientID != "" || oauth.Config.ClientSecret != ""
}

// IssueAuthorizationCode creates a single-use code binding the assistant
// identity to a platform tenant/user.
func (oauth *OAuthService) IssueAuthorizationCode(tenantID string, userID string, externalUserID string) (string, error) {
	code, err := generateSecureToken(authCodeBytes)

	if err != nil {
		return "", err
	}

	now := time.Now()

	authCode := model.AuthorizationCode{
		Code:           code,
		TenantID:       tenantID,
		UserID:         userID,
		ExternalUserID: externalUserID,
		Used:           false,
		ExpiresAt:      now.Add(authCodeLifetime).Unix(),
		CreatedAt:      now.Unix(),
	}

	if err := oauth.Database.Create(&authCode).Error; err != nil {
		return "", fmt.Errorf("failed to store authorization code: %w", err)
	}

	log.Debug().Str("tenantId", tenantID).Str("userId", userID).Msg("Authorization code issued")
	return code, nil
}

// ExchangeCode trades an unused, unexpired authorization code for a fresh
// token pair. Exactly one of two concurrent exchanges of the same code can
// succeed: the used flag is flipped by a conditional update and only the
// caller that flipped it proceeds.
func (oauth *OAuthService) ExchangeCode(code string, clientID string, clientSecret string) (*config.TokenResponse, error) {
	if !oauth.validateClient(clientID, clientSecret) {
		return nil, ErrInvalidClient
	}

	var authCode model.AuthorizationCode
	err := oauth.Database.Where("code = ? AND used = ?", code, false).First(&authCode).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Msg("Authorization code not found or already used")
		return nil, ErrInvalidGrant
	}

	if err != nil {
		return nil, fmt.Errorf("failed to look up authorization code: %w", err)
	}

	if authCode.ExpiresAt < time.Now().Unix() {
		log.Warn().Msg("Authorization code expired")
		oauth.Database.Delete(&model.AuthorizationCode{}, "code = ?", code)
		return nil, ErrInvalidGrant
	}

	// Single atomic claim of the code; RowsAffected 0 means a concurrent
	// exchange got there first
	res := oauth.Database.Model(&model.AuthorizationCode{}).
		Where("code = ? AND used = ?", code, false).
		Update("used", true)

	if res.Error != nil {
		return nil, fmt.Errorf("failed to mark authorization code used: %w", res.Error)
	}

	if res.RowsAffected != 1 {
		log.Warn().Msg("Authorization code claimed concurrently")
		return nil, ErrInvalidGrant
	}

	accessToken, err := generateSecureToken(tokenBytes)
	if err != nil {
		return nil, err
	}

	refreshToken, err := generateSecureToken(tokenBytes)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(tokenLifetime)

	// One live token per assistant identity
	if err := oauth.Database.Where("external_user_id = ?", authCode.ExternalUserID).Delete(&model.Token{}).Error; err != nil {
		return nil, fmt.Errorf("failed to invalidate previous tokens: %w", err)
	}

	token := model.Token{
		ID:             uuid.NewString(),
		TenantID:       authCode.TenantID,
		UserID:         authCode.UserID,
		ExternalUserID: authCode.ExternalUserID,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpiresAt:      expiresAt.Unix(),
		CreatedAt:      now.Unix(),
		UpdatedAt:      now.Unix(),
	}

	if err := oauth.Database.Create(&token).Error; err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	log.Debug().Str("tenantId", token.TenantID).Str("externalUserId", token.ExternalUserID).Msg("Token pair issued")

	return &config.TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(tokenLifetime.Seconds()),
		RefreshToken: refreshToken,
	}, nil
}

// RefreshToken rotates the access token and its expiry; the refresh token
// and the identity binding are unchanged.
func (oauth *OAuthService) RefreshToken(refreshToken string, clientID string, clientSecret string) (*config.TokenResponse, error) {
	if !oauth.validateClient(clientID, clientSecret) {
		return nil, ErrInvalidClient
	}

	var token model.Token
	err := oauth.Database.Where("refresh_token = ?", refreshToken).First(&token).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn().Msg("Refresh token not found")
		return nil, ErrInvalidGrant
	}

	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	accessToken, err := generateSecureToken(tokenBytes)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(tokenLifetime)

	updates := map[string]any{
		"access_token": accessToken,
		"expires_at":   expiresAt.Unix(),
		"updated_at":   now.Unix(),
	}

	if err := oauth.Database.Model(&model.Token{}).Where("id = ?", token.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to rotate access token: %w", err)
	}

	log.Debug().Str("externalUserId", token.ExternalUserID).Msg("Access token refreshed")

	return &config.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tokenLifetime.Seconds()),
	}, nil
}

// RevokeToken deletes the token record for the access token; revoking an
// unknown token is not an error.
func (oauth *OAuthService) RevokeToken(accessToken string) error {
	return oauth.Database.Where("access_token = ?", accessToken).Delete(&model.Token{}).Error
}

// RevokeAllForExternalUser deletes every token bound to the assistant
// identity.
func (oauth *OAuthService) RevokeAllForExternalUser(externalUserID string) error {
	return oauth.Database.Where("external_user_id = ?", externalUserID).Delete(&model.Token{}).Error
}

// ValidateToken authenticates a bearer token. Expired tokens are rejected
// but left for the sweep to remove.
func (oauth *OAuthService) ValidateToken(accessToken string) (*model.Token, error) {
	var token model.Token
	err := oauth.Database.Where("access_token = ?", accessToken).First(&token).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}

	if err != nil {
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}

	if token.ExpiresAt < time.Now().Unix() {
		return nil, ErrInvalidToken
	}

	return &token, nil
}

// CleanupExpired removes expired tokens and authorization codes, returning
// how many rows went away.
func (oauth *OAuthService) CleanupExpired() (int64, error) {
	now := time.Now().Unix()

	tokens := oauth.Database.Where("expires_at < ?", now).Delete(&model.Token{})
	if tokens.Error != nil {
		return 0, fmt.Errorf("failed to sweep tokens: %w", tokens.Error)
	}

	codes := oauth.Database.Where("expires_at < ?", now).Delete(&model.AuthorizationCode{})
	if codes.Error != nil {
		return tokens.RowsAffected, fmt.Errorf("failed to sweep authorization codes: %w", codes.Error)
	}

	total := tokens.RowsAffected + codes.RowsAffected
	if total > 0 {
		log.Info().Int64("tokens", tokens.RowsAffected).Int64("codes", codes.RowsAffected).Msg("Swept expired OAuth records")
	}

	return total, nil
}

func (oauth *OAuthService) validateClient(clientID string, clientSecret string) bool {
	// Development mode: no credentials configured, accept any client. The
	// warning fires per exchange so the state stays visible in logs.
	if !oauth.CredentialsConfigured() {
		log.Warn().Msg("Accepting OAuth client without credential check (development mode)")
		return true
	}

	idMatch := subtle.ConstantTimeCompare([]byte(clientID), []byte(oauth.Config.ClientID))
	secretMatch := subtle.ConstantTimeCompare([]byte(clientSecret), []byte(oauth.Config.ClientSecret))

	return idMatch == 1 && secretMatch == 1
}

func generateSecureToken(length int) (string, error) {
	randomBytes := make([]byte, length)

	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}
