package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	t.Setenv("AUDIO_FRAME_SIZE", "")

	cfg := Load()

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, 16000, cfg.Audio.InputSampleRate)
	assert.Equal(t, 24000, cfg.Audio.OutputSampleRate)
	assert.Equal(t, 4096, cfg.Audio.FrameSize)
	assert.Equal(t, 1, cfg.Worker.MaxAttempts)
	assert.Equal(t, "local", cfg.Storage.Driver)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("LIVE_TRANSCRIPTION", "true")
	t.Setenv("STORAGE_DRIVER", "S3")
	t.Setenv("WORKER_POLL_INTERVAL", "3s")
	t.Setenv("AUDIO_FRAME_SIZE", "not-a-number")

	cfg := Load()

	assert.Equal(t, "legacy-key", cfg.Gemini.APIKey)
	assert.True(t, cfg.Audio.Transcription)
	assert.Equal(t, "s3", cfg.Storage.Driver)
	assert.Equal(t, 3*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 4096, cfg.Audio.FrameSize)
}

func TestGetEnvAsDurationFallsBack(t *testing.T) {
	t.Setenv("SOME_DURATION", "soon")
	assert.Equal(t, 5*time.Second, getEnvAsDuration("SOME_DURATION", "5s"))
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n"}}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.GetDatabaseDSN())
}
