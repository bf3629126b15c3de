package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvDataDir, EnvListingURL, EnvWhisperVersion, EnvDevice, EnvLlamaVersion, EnvIndexDir,
		EnvBoxClientID, EnvBoxClientSecret, EnvBoxAccessToken, EnvBoxRefreshToken, EnvBoxFolderID,
		EnvTranscribeBackend, EnvMockTranscribe, EnvMockLLM, EnvChunkSize, EnvNoSpeechThresh,
		EnvIndexBackend, EnvPostgresDSN, EnvDownloadDelay, EnvQdrantPort,
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.LLM.ChunkSize)
	assert.Equal(t, 0.2, cfg.LLM.NoSpeechThreshold)
	assert.Equal(t, "cpu", cfg.Transcribe.Device)
	assert.Equal(t, "whisper-cli", cfg.Transcribe.Backend)
	assert.Equal(t, 2*time.Second, cfg.Transcribe.DownloadWait)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, "chroma_db", cfg.Index.Dir)
	assert.Equal(t, "city_council", cfg.Index.Collection)
	assert.Equal(t, 6334, cfg.Index.QdrantPort)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvChunkSize, "50")
	t.Setenv(EnvNoSpeechThresh, "0.5")
	t.Setenv(EnvDevice, "cuda:1")
	t.Setenv(EnvMockTranscribe, "true")
	t.Setenv(EnvDownloadDelay, "0s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.LLM.ChunkSize)
	assert.Equal(t, 0.5, cfg.LLM.NoSpeechThreshold)
	assert.Equal(t, "cuda:1", cfg.Transcribe.Device)
	assert.Equal(t, "mock", cfg.Transcribe.Backend)
	assert.Zero(t, cfg.Transcribe.DownloadWait)
}

func TestFromEnv_BadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvChunkSize, "lots")
	t.Setenv(EnvDownloadDelay, "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvChunkSize)
	assert.Contains(t, err.Error(), EnvDownloadDelay)
}

func TestFromEnv_NonPositiveChunkSize(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvChunkSize, "0")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)

	err = cfg.ValidateScrape()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissing))
	assert.Contains(t, err.Error(), EnvDataDir)
	assert.Contains(t, err.Error(), EnvListingURL)

	cfg.DataDir = "/data"
	cfg.ListingURL = "https://council.example.gov/videos"
	assert.NoError(t, cfg.ValidateScrape())

	assert.ErrorContains(t, cfg.ValidateTranscribe(), EnvWhisperVersion)
	cfg.Transcribe.Model = "medium"
	assert.NoError(t, cfg.ValidateTranscribe())
	cfg.Transcribe.Backend = "openai"
	assert.ErrorContains(t, cfg.ValidateTranscribe(), EnvTranscribeURL)
	cfg.Transcribe.BaseURL = "http://localhost:8000/v1"
	assert.NoError(t, cfg.ValidateTranscribe())
	cfg.Transcribe.Backend = "mock"
	cfg.Transcribe.Model = ""
	assert.NoError(t, cfg.ValidateTranscribe())
	cfg.Transcribe.Backend = "carrier-pigeon"
	assert.ErrorContains(t, cfg.ValidateTranscribe(), "unknown backend")

	assert.ErrorContains(t, cfg.ValidateSummarize(), EnvLlamaVersion)
	cfg.LLM.Mock = true
	assert.NoError(t, cfg.ValidateSummarize())

	assert.NoError(t, cfg.ValidateIndex())
	cfg.Index.Backend = "pgvector"
	assert.ErrorContains(t, cfg.ValidateIndex(), EnvPostgresDSN)

	assert.ErrorContains(t, cfg.ValidatePublish(), EnvBoxFolderID)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvDataDir)
	os.Unsetenv(EnvLlamaVersion)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BOX_PATH=/srv/council\nLLAMA_VERSION=llama3.1:8b\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv(EnvDataDir)
		os.Unsetenv(EnvLlamaVersion)
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "/srv/council", cfg.DataDir)
	assert.Equal(t, "llama3.1:8b", cfg.LLM.Model)
	assert.Equal(t, envFile, cfg.Box.EnvFile)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.NoError(t, err)
}
