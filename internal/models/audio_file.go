package models

// AudioFile is the audit record persisted for every completed generation.
// Fields are denormalised so the row stands on its own for reporting.
type AudioFile struct {
	BaseModel

	UserID       string  `gorm:"type:uuid;not null;index" json:"user_id"`
	VoiceID      string  `gorm:"type:uuid;not null;index" json:"voice_id"`
	Filename     string  `gorm:"type:varchar(256);not null;index" json:"filename"`
	Text         string  `gorm:"type:text;not null" json:"text"`
	URL          string  `gorm:"type:text;not null" json:"url"`
	ModelUsed    string  `gorm:"type:varchar(128);not null" json:"model_used"`
	PredictionID *string `gorm:"type:varchar(128)" json:"prediction_id,omitempty"`
	CreditsUsed  int64   `gorm:"not null;default:0" json:"credits_used"`
	IsPublic     bool    `gorm:"not null;default:false;index" json:"is_public"`
	APIKeyID     *string `gorm:"type:uuid;index" json:"api_key_id,omitempty"`

	Voice *Voice `gorm:"foreignKey:VoiceID" json:"voice,omitempty"`
}
