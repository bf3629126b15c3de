package box

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
)

// DefaultAuthAddr matches the redirect URL registered with the Box app.
const DefaultAuthAddr = "127.0.0.1:5001"

// AuthServer runs the one-off authorization-code flow: "/" sends the
// operator to Box's consent page and "/callback" exchanges the code and
// saves the tokens to the env file.
type AuthServer struct {
	conf    *oauth2.Config
	envFile string
	state   string
	log     *logger.Logger
	done    chan error
}

func NewAuthServer(cfg config.Box, log *logger.Logger) *AuthServer {
	b := make([]byte, 16)
	rand.Read(b)
	return &AuthServer{
		conf:    OAuthConfig(cfg),
		envFile: cfg.EnvFile,
		state:   hex.EncodeToString(b),
		log:     log.Component("box-auth"),
		done:    make(chan error, 1),
	}
}

func (a *AuthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", a.index)
	mux.HandleFunc("/callback", a.callback)
	return mux
}

func (a *AuthServer) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	a.log.WithRequest(r).Info("redirecting to box consent page")
	http.Redirect(w, r, a.conf.AuthCodeURL(a.state), http.StatusFound)
}

func (a *AuthServer) callback(w http.ResponseWriter, r *http.Request) {
	entry := a.log.WithRequest(r)
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		entry.WithField("error", e).Warn("authorization denied")
		http.Error(w, "authorization denied: "+e, http.StatusBadRequest)
		return
	}
	if q.Get("state") != a.state {
		entry.Warn("state mismatch")
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	tok, err := a.conf.Exchange(r.Context(), code)
	if err != nil {
		entry.WithField("error", err.Error()).Error("token exchange failed")
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}
	if err := StoreTokens(a.envFile, tok); err != nil {
		entry.WithField("error", err.Error()).Error("saving tokens failed")
		http.Error(w, "saving tokens failed", http.StatusInternalServerError)
		return
	}

	entry.WithField("env_file", a.envFile).Info("tokens saved")
	fmt.Fprintf(w, "Tokens saved to %s. You can now stop this server.\n", a.envFile)
	select {
	case a.done <- nil:
	default:
	}
}

// Run serves on addr until the tokens are saved or ctx ends.
func (a *AuthServer) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case a.done <- err:
			default:
			}
		}
	}()
	a.log.WithField("url", "http://"+addr+"/").Info("open this URL in a browser to authorize")

	var result error
	select {
	case result = <-a.done:
	case <-ctx.Done():
		result = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	return result
}
