package database

import (
	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Voice{},
		&models.CreditAccount{},
		&models.AudioFile{},
		&models.CacheEntry{},
		&models.APIKey{},
		&models.OutboxEntry{},
	)
}

// SeedData populates the default voice catalog. Existing rows are left
// untouched so operators can adjust pricing or model ids in place.
func SeedData(db *gorm.DB) error {
	voices := []models.Voice{
		{Name: "kore", Language: "de-DE", Engine: models.EngineGemini, ModelID: "gemini-2.5-pro-preview-tts", CostMultiplier: 4, MaxChars: 1000},
		{Name: "zephyr", Language: "en-US", Engine: models.EngineGemini, ModelID: "gemini-2.5-pro-preview-tts", CostMultiplier: 4, MaxChars: 1000},
		{Name: "sulafat", Language: "en-US", Engine: models.EngineGemini, ModelID: "gemini-2.5-pro-preview-tts", CostMultiplier: 4, MaxChars: 1000},
		{Name: "pietro", Language: "it-IT", Engine: models.EngineReplicate, ModelID: "lucataco/orpheus-3b-0.1-ft", CostMultiplier: 8, MaxChars: 500},
		{Name: "giulia", Language: "it-IT", Engine: models.EngineReplicate, ModelID: "lucataco/orpheus-3b-0.1-ft", CostMultiplier: 8, MaxChars: 500},
		{Name: "carlo", Language: "it-IT", Engine: models.EngineReplicate, ModelID: "lucataco/orpheus-3b-0.1-ft", CostMultiplier: 8, MaxChars: 500},
		{Name: "javi", Language: "es-ES", Engine: models.EngineReplicate, ModelID: "lucataco/orpheus-3b-0.1-ft", CostMultiplier: 8, MaxChars: 500},
		{Name: "sergio", Language: "es-ES", Engine: models.EngineReplicate, ModelID: "lucataco/orpheus-3b-0.1-ft", CostMultiplier: 8, MaxChars: 500},
		{Name: "maria", Language: "es-ES", Engine: models.EngineReplicate, ModelID: "lucataco/orpheus-3b-0.1-ft", CostMultiplier: 8, MaxChars: 500},
		{Name: "clone", Language: "en-US", Engine: models.EngineReplicate, ModelID: "resemble-ai/chatterbox", CostMultiplier: 11, MaxChars: 500},
	}

	for _, voice := range voices {
		voice.IsPublic = true
		if err := db.Where(models.Voice{Name: voice.Name}).
			Attrs(voice).
			FirstOrCreate(&models.Voice{}).Error; err != nil {
			return err
		}
	}

	return nil
}
