package model

type Token struct {
	ID             string `gorm:"column:id;primaryKey"`
	TenantID       string `gorm:"column:tenant_id;not null"`
	UserID         string `gorm:"column:user_id;not null"`
	ExternalUserID string `gorm:"column:external_user_id;not null"`
	AccessToken    string `gorm:"column:access_token;uniqueIndex;not null"`
	RefreshToken   string `gorm:"column:refresh_token;uniqueIndex;not null"`
	ExpiresAt      int64  `gorm:"column:expires_at;not null"`
	CreatedAt      int64  `gorm:"column:created_at;not null"`
	UpdatedAt      int64  `gorm:"column:updated_at;not null"`
}

func (Token) TableName() string {
	return "oauth_tokens"
}
