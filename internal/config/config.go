// Package config builds the single Config value every stage receives. All
// settings come from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvDataDir        = "BOX_PATH"
	EnvListingURL     = "COUNCIL_VIDEO_URL"
	EnvWhisperVersion = "WHISPER_VERSION"
	EnvDevice         = "GPU_DEVICE"
	EnvLlamaVersion   = "LLAMA_VERSION"
	EnvIndexDir       = "CHROMA_DB_DIR"

	EnvBoxClientID     = "BOX_CLIENT_ID"
	EnvBoxClientSecret = "BOX_CLIENT_SECRET"
	EnvBoxAccessToken  = "BOX_ACCESS_TOKEN"
	EnvBoxRefreshToken = "BOX_REFRESH_TOKEN"
	EnvBoxFolderID     = "BOX_FOLDER_ID"
	EnvBoxRedirectURL  = "BOX_REDIRECT_URL"

	EnvTranscribeBackend = "TRANSCRIBE_BACKEND"
	EnvTranscribeURL     = "TRANSCRIBE_URL"
	EnvTranscribeAPIKey  = "TRANSCRIBE_API_KEY"
	EnvWhisperBinary     = "WHISPER_BINARY"
	EnvMockTranscribe    = "USE_MOCK_TRANSCRIBE"
	EnvDownloadDelay     = "DOWNLOAD_DELAY"

	EnvLLMBaseURL     = "LLM_BASE_URL"
	EnvLLMAPIKey      = "LLM_API_KEY"
	EnvMockLLM        = "USE_MOCK_LLM"
	EnvChunkSize      = "CHUNK_SIZE"
	EnvNoSpeechThresh = "NO_SPEECH_THRESHOLD"

	EnvEmbeddingURL    = "EMBEDDING_BASE_URL"
	EnvEmbeddingModel  = "EMBEDDING_MODEL"
	EnvEmbeddingAPIKey = "EMBEDDING_API_KEY"
	EnvIndexBackend    = "INDEX_BACKEND"
	EnvCollection      = "INDEX_COLLECTION"
	EnvQdrantHost      = "QDRANT_HOST"
	EnvQdrantPort      = "QDRANT_PORT"
	EnvQdrantAPIKey    = "QDRANT_API_KEY"
	EnvPostgresDSN     = "PGVECTOR_DSN"

	EnvHTTPTimeout = "HTTP_TIMEOUT"
	EnvMaxRetry    = "MAX_RETRY_ELAPSED"
)

var ErrMissing = errors.New("missing required setting")

type Box struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	FolderID     string
	RedirectURL  string
	// EnvFile receives rotated tokens.
	EnvFile string
}

type Transcribe struct {
	Backend      string // openai | whisper-cli | mock
	BaseURL      string
	APIKey       string
	Model        string
	Device       string
	Binary       string
	DownloadWait time.Duration
}

type LLM struct {
	BaseURL           string
	APIKey            string
	Model             string
	Mock              bool
	ChunkSize         int
	NoSpeechThreshold float64
	Temperature       float32
	MaxTokens         int
}

type Index struct {
	Backend         string // sqlite | qdrant | pgvector
	Dir             string
	Collection      string
	EmbeddingURL    string
	EmbeddingModel  string
	EmbeddingAPIKey string
	QdrantHost      string
	QdrantPort      int
	QdrantAPIKey    string
	PostgresDSN     string
}

type HTTP struct {
	Timeout         time.Duration
	MaxRetryElapsed time.Duration
}

type Config struct {
	DataDir    string
	ListingURL string
	Box        Box
	Transcribe Transcribe
	LLM        LLM
	Index      Index
	HTTP       HTTP
}

// Load reads envFile (if present) into the process environment and builds
// the Config. Values already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Box.EnvFile = envFile
	return cfg, nil
}

// FromEnv builds a Config from the current environment with defaults.
func FromEnv() (*Config, error) {
	var errs []error
	num := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	thresh, err := envFloat(EnvNoSpeechThresh, 0.2)
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		DataDir:    os.Getenv(EnvDataDir),
		ListingURL: os.Getenv(EnvListingURL),
		Box: Box{
			ClientID:     os.Getenv(EnvBoxClientID),
			ClientSecret: os.Getenv(EnvBoxClientSecret),
			AccessToken:  os.Getenv(EnvBoxAccessToken),
			RefreshToken: os.Getenv(EnvBoxRefreshToken),
			FolderID:     os.Getenv(EnvBoxFolderID),
			RedirectURL:  envOr(EnvBoxRedirectURL, "http://127.0.0.1:5001/callback"),
		},
		Transcribe: Transcribe{
			Backend:      envOr(EnvTranscribeBackend, "whisper-cli"),
			BaseURL:      os.Getenv(EnvTranscribeURL),
			APIKey:       os.Getenv(EnvTranscribeAPIKey),
			Model:        os.Getenv(EnvWhisperVersion),
			Device:       envOr(EnvDevice, "cpu"),
			Binary:       envOr(EnvWhisperBinary, "whisper"),
			DownloadWait: dur(EnvDownloadDelay, 2*time.Second),
		},
		LLM: LLM{
			BaseURL:           envOr(EnvLLMBaseURL, "http://localhost:11434/v1"),
			APIKey:            os.Getenv(EnvLLMAPIKey),
			Model:             os.Getenv(EnvLlamaVersion),
			Mock:              envBool(EnvMockLLM),
			ChunkSize:         num(EnvChunkSize, 100),
			NoSpeechThreshold: thresh,
			Temperature:       0.001,
			MaxTokens:         10000,
		},
		Index: Index{
			Backend:         envOr(EnvIndexBackend, "sqlite"),
			Dir:             envOr(EnvIndexDir, "chroma_db"),
			Collection:      envOr(EnvCollection, "city_council"),
			EmbeddingURL:    envOr(EnvEmbeddingURL, "http://localhost:11434/v1"),
			EmbeddingModel:  envOr(EnvEmbeddingModel, "all-minilm"),
			EmbeddingAPIKey: os.Getenv(EnvEmbeddingAPIKey),
			QdrantHost:      envOr(EnvQdrantHost, "localhost"),
			QdrantPort:      num(EnvQdrantPort, 6334),
			QdrantAPIKey:    os.Getenv(EnvQdrantAPIKey),
			PostgresDSN:     os.Getenv(EnvPostgresDSN),
		},
		HTTP: HTTP{
			Timeout:         dur(EnvHTTPTimeout, 60*time.Second),
			MaxRetryElapsed: dur(EnvMaxRetry, 2*time.Minute),
		},
	}
	if envBool(EnvMockTranscribe) {
		cfg.Transcribe.Backend = "mock"
	}
	if cfg.LLM.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvChunkSize))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// ValidateScrape checks the settings the scraper needs.
func (c *Config) ValidateScrape() error {
	return requireSet(map[string]string{
		EnvDataDir:    c.DataDir,
		EnvListingURL: c.ListingURL,
	})
}

// ValidateTranscribe checks the settings the fetch/transcribe stage needs.
func (c *Config) ValidateTranscribe() error {
	req := map[string]string{EnvDataDir: c.DataDir}
	switch c.Transcribe.Backend {
	case "mock":
	case "whisper-cli":
		req[EnvWhisperVersion] = c.Transcribe.Model
	case "openai":
		// no default endpoint: the model names are local whisper sizes
		req[EnvWhisperVersion] = c.Transcribe.Model
		req[EnvTranscribeURL] = c.Transcribe.BaseURL
	default:
		return fmt.Errorf("%s: unknown backend %q", EnvTranscribeBackend, c.Transcribe.Backend)
	}
	return requireSet(req)
}

// ValidatePublish checks the Box settings.
func (c *Config) ValidatePublish() error {
	return requireSet(map[string]string{
		EnvDataDir:         c.DataDir,
		EnvBoxClientID:     c.Box.ClientID,
		EnvBoxClientSecret: c.Box.ClientSecret,
		EnvBoxAccessToken:  c.Box.AccessToken,
		EnvBoxRefreshToken: c.Box.RefreshToken,
		EnvBoxFolderID:     c.Box.FolderID,
	})
}

// ValidateAuth checks what the one-off OAuth flow needs.
func (c *Config) ValidateAuth() error {
	return requireSet(map[string]string{
		EnvBoxClientID:     c.Box.ClientID,
		EnvBoxClientSecret: c.Box.ClientSecret,
	})
}

// ValidateSummarize checks the language model settings.
func (c *Config) ValidateSummarize() error {
	req := map[string]string{EnvDataDir: c.DataDir}
	if !c.LLM.Mock {
		req[EnvLlamaVersion] = c.LLM.Model
	}
	return requireSet(req)
}

// ValidateIndex checks the vector index settings.
func (c *Config) ValidateIndex() error {
	req := map[string]string{EnvDataDir: c.DataDir}
	switch c.Index.Backend {
	case "sqlite":
		req[EnvIndexDir] = c.Index.Dir
	case "qdrant":
		req[EnvQdrantHost] = c.Index.QdrantHost
	case "pgvector":
		req[EnvPostgresDSN] = c.Index.PostgresDSN
	default:
		return fmt.Errorf("%s: unknown backend %q", EnvIndexBackend, c.Index.Backend)
	}
	return requireSet(req)
}

func requireSet(values map[string]string) error {
	var missing []string
	for k, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string) bool {
	v, _ := strconv.ParseBool(os.Getenv(k))
	return v
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func envFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}
