package model

type AuthorizationCode struct {
	Code           string `gorm:"column:code;primaryKey"`
	TenantID       string `gorm:"column:tenant_id;not null"`
	UserID         string `gorm:"column:user_id;not null"`
	ExternalUserID string `gorm:"column:external_user_id;not null"`
	Used           bool   `gorm:"column:used;default:false"`
	ExpiresAt      int64  `gorm:"column:expires_at;not null"`
	CreatedAt      int64  `gorm:"column:created_at;not null"`
}

func (AuthorizationCode) TableName() string {
	return "oauth_authorization_codes"
}
