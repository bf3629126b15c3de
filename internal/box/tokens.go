package box

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"council-pipeline-go/internal/config"
)

const (
	AuthURL  = "https://account.box.com/api/oauth2/authorize"
	TokenURL = "https://api.box.com/oauth2/token"
)

// OAuthConfig describes the Box app registered for this pipeline.
func OAuthConfig(cfg config.Box) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   AuthURL,
			TokenURL:  TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// StoreTokens writes the access and refresh token into envFile, keeping
// every other variable in it.
func StoreTokens(envFile string, tok *oauth2.Token) error {
	env, err := godotenv.Read(envFile)
	if errors.Is(err, os.ErrNotExist) {
		env = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("read %s: %w", envFile, err)
	}
	env[config.EnvBoxAccessToken] = tok.AccessToken
	if tok.RefreshToken != "" {
		env[config.EnvBoxRefreshToken] = tok.RefreshToken
	}
	if err := godotenv.Write(env, envFile); err != nil {
		return fmt.Errorf("write %s: %w", envFile, err)
	}
	return nil
}

// persistingSource calls store whenever the wrapped source hands out a
// token it has not seen. Box refresh tokens are single use, so a rotated
// pair must reach disk before the process exits.
type persistingSource struct {
	mu    sync.Mutex
	base  oauth2.TokenSource
	last  string
	store func(*oauth2.Token) error
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		if err := p.store(tok); err != nil {
			return nil, err
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}

// TokenSource refreshes from the stored token pair and persists every
// rotation to cfg.EnvFile. The stored access token carries no expiry, so
// it is refreshed on first use.
func TokenSource(ctx context.Context, cfg config.Box) oauth2.TokenSource {
	initial := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	store := func(tok *oauth2.Token) error {
		if cfg.EnvFile == "" {
			return nil
		}
		return StoreTokens(cfg.EnvFile, tok)
	}
	return &persistingSource{
		base:  OAuthConfig(cfg).TokenSource(ctx, initial),
		last:  cfg.AccessToken,
		store: store,
	}
}
