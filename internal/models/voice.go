package models

import "strings"

// Engine identifies which synthesis backend serves a voice. It is resolved
// once from the catalog record rather than re-derived from voice names.
type Engine string

const (
	// EngineGemini routes synthesis through the hosted generative model.
	EngineGemini Engine = "gemini"
	// EngineReplicate routes synthesis through the prediction-run service.
	EngineReplicate Engine = "replicate"
)

// Valid reports whether the engine tag names a known backend.
func (e Engine) Valid() bool {
	return e == EngineGemini || e == EngineReplicate
}

// Voice is a catalog entry mapping a public voice name onto a synthesis
// backend and its provider-specific model identifier.
type Voice struct {
	BaseModel

	Name           string `gorm:"type:varchar(64);not null;uniqueIndex" json:"name"`
	Language       string `gorm:"type:varchar(16);not null" json:"language"`
	Engine         Engine `gorm:"type:varchar(16);not null;index" json:"engine"`
	ModelID        string `gorm:"type:varchar(128);not null" json:"model_id"`
	CostMultiplier int    `gorm:"not null;default:4" json:"cost_multiplier"`
	MaxChars       int    `gorm:"not null;default:500" json:"max_chars"`
	IsPublic       bool   `gorm:"not null;default:true;index" json:"is_public"`
}

// Normalise canonicalises the voice name for lookups.
func (v *Voice) Normalise() {
	v.Name = strings.ToLower(strings.TrimSpace(v.Name))
}
