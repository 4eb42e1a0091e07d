package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/parakeet-ai/parakeet/internal/database/testutil"
	"github.com/parakeet-ai/parakeet/internal/models"
	"github.com/parakeet-ai/parakeet/internal/storage"
)

func openAudioFileFixture(t *testing.T) (*gorm.DB, *AudioFileService, *storage.FilesystemBlobStore) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	blobs, err := storage.NewFilesystemBlobStore(t.TempDir(), "http://files.test/files")
	require.NoError(t, err)
	svc, err := NewAudioFileService(db, blobs)
	require.NoError(t, err)
	return db, svc, blobs
}

func seedVoiceID(t *testing.T, db *gorm.DB, name string) string {
	t.Helper()

	var voice models.Voice
	require.NoError(t, db.First(&voice, "name = ?", name).Error)
	return voice.ID
}

func TestAudioFileCreateAndList(t *testing.T) {
	db, svc, _ := openAudioFileFixture(t)
	ctx := context.Background()
	voiceID := seedVoiceID(t, db, "kore")

	record, err := svc.Create(ctx, CreateAudioFileInput{
		UserID:       "user-1",
		VoiceID:      voiceID,
		Filename:     "audio/kore-abcd1234.wav",
		Text:         "hello",
		URL:          "http://files.test/files/audio/kore-abcd1234.wav",
		ModelUsed:    "gemini-2.5-pro-preview-tts",
		PredictionID: "pred-1",
		CreditsUsed:  36,
		APIKeyID:     "",
	})
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	require.NotNil(t, record.PredictionID)
	require.Nil(t, record.APIKeyID)

	records, err := svc.ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Voice)
	require.Equal(t, "kore", records[0].Voice.Name)

	records, err = svc.ListByUser(ctx, "other-user", 10)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestAudioFileListPublic(t *testing.T) {
	db, svc, _ := openAudioFileFixture(t)
	ctx := context.Background()
	voiceID := seedVoiceID(t, db, "kore")

	_, err := svc.Create(ctx, CreateAudioFileInput{
		UserID: "user-1", VoiceID: voiceID,
		Filename: "audio/kore-11111111.wav", Text: "private", URL: "u1",
		ModelUsed: "m",
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateAudioFileInput{
		UserID: "user-2", VoiceID: voiceID,
		Filename: "audio/kore-22222222.wav", Text: "shared", URL: "u2",
		ModelUsed: "m", IsPublic: true,
	})
	require.NoError(t, err)

	records, err := svc.ListPublic(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "shared", records[0].Text)
}

func TestAudioFileCountByUserAndEngine(t *testing.T) {
	db, svc, _ := openAudioFileFixture(t)
	ctx := context.Background()
	geminiVoice := seedVoiceID(t, db, "kore")
	replicateVoice := seedVoiceID(t, db, "pietro")

	for i, voiceID := range []string{geminiVoice, geminiVoice, replicateVoice} {
		_, err := svc.Create(ctx, CreateAudioFileInput{
			UserID:   "user-1",
			VoiceID:  voiceID,
			Filename: "audio/file-" + strings.Repeat("a", i+1) + ".wav",
			Text:     "text", URL: "u", ModelUsed: "m",
		})
		require.NoError(t, err)
	}

	count, err := svc.CountByUserAndEngine(ctx, "user-1", models.EngineGemini)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	count, err = svc.CountByUserAndEngine(ctx, "user-1", models.EngineReplicate)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	count, err = svc.CountByUserAndEngine(ctx, "other-user", models.EngineGemini)
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestAudioFileDeleteKeepsSharedBlob(t *testing.T) {
	db, svc, blobs := openAudioFileFixture(t)
	ctx := context.Background()
	voiceID := seedVoiceID(t, db, "kore")

	const filename = "audio/kore-deadbeef.wav"
	_, err := blobs.Put(ctx, filename, strings.NewReader("RIFF-audio"), "audio/wav")
	require.NoError(t, err)

	first, err := svc.Create(ctx, CreateAudioFileInput{
		UserID: "user-1", VoiceID: voiceID, Filename: filename,
		Text: "same text", URL: "u", ModelUsed: "m",
	})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateAudioFileInput{
		UserID: "user-2", VoiceID: voiceID, Filename: filename,
		Text: "same text", URL: "u", ModelUsed: "m",
	})
	require.NoError(t, err)

	// The blob survives while another record still references it.
	require.NoError(t, svc.Delete(ctx, "user-1", first.ID))
	reader, err := blobs.Open(ctx, filename)
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	require.NoError(t, svc.Delete(ctx, "user-2", second.ID))
	_, err = blobs.Open(ctx, filename)
	require.Error(t, err)
}

func TestAudioFileDeleteUnknownOrForeign(t *testing.T) {
	db, svc, _ := openAudioFileFixture(t)
	ctx := context.Background()
	voiceID := seedVoiceID(t, db, "kore")

	record, err := svc.Create(ctx, CreateAudioFileInput{
		UserID: "user-1", VoiceID: voiceID, Filename: "audio/f.wav",
		Text: "t", URL: "u", ModelUsed: "m",
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, "user-1", "no-such-id"), ErrAudioFileNotFound)
	require.ErrorIs(t, svc.Delete(ctx, "user-2", record.ID), ErrAudioFileNotFound)
}
