package box

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
)

// fakeBox serves the handful of Box endpoints the client calls.
func fakeBox(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2.0/folders/42/items", func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		w.Header().Set("Content-Type", "application/json")
		if offset == "0" {
			w.Write([]byte(`{"total_count": 3, "entries": [
				{"type": "file", "id": "1", "name": "council_2025-01-08.mp4"},
				{"type": "folder", "id": "2", "name": "archive"}]}`))
			return
		}
		assert.Equal(t, "2", offset)
		w.Write([]byte(`{"total_count": 3, "entries": [{"type": "file", "id": "3", "name": "notes.txt"}]}`))
	})
	mux.HandleFunc("/2.0/files/1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "open", body["shared_link"]["access"])
		w.Write([]byte(`{"id": "1", "shared_link": {"url": "https://app.box.com/s/abc123"}}`))
	})
	mux.HandleFunc("/2.0/files/9", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"type": "error", "status": 404, "code": "not_found"}`))
	})
	mux.HandleFunc("/upload/2.0/files/content", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		var attrs struct {
			Name   string `json:"name"`
			Parent struct {
				ID string `json:"id"`
			} `json:"parent"`
		}
		assert.NoError(t, json.Unmarshal([]byte(r.FormValue("attributes")), &attrs))
		assert.Equal(t, "42", attrs.Parent.ID)
		f, _, err := r.FormFile("file")
		if assert.NoError(t, err) {
			b, _ := io.ReadAll(f)
			assert.Equal(t, "video bytes", string(b))
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"total_count": 1, "entries": [{"type": "file", "id": "77", "name": "` + attrs.Name + `"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testClient(srv *httptest.Server) *Client {
	return NewWithHTTPClient(srv.Client(), srv.URL+"/2.0", srv.URL+"/upload/2.0", time.Second, logger.Discard())
}

func TestListFolder_Paginates(t *testing.T) {
	c := testClient(fakeBox(t))
	items, err := c.ListFolder(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, Item{ID: "1", Type: "file", Name: "council_2025-01-08.mp4"}, items[0])
	assert.Equal(t, "notes.txt", items[2].Name)
}

func TestSharedLink(t *testing.T) {
	c := testClient(fakeBox(t))
	link, err := c.SharedLink(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "https://app.box.com/s/abc123", link)

	_, err = c.SharedLink(context.Background(), "9")
	assert.ErrorContains(t, err, "404")
}

func TestUpload(t *testing.T) {
	c := testClient(fakeBox(t))
	path := filepath.Join(t.TempDir(), "council_2025-01-09.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video bytes"), 0o644))

	item, err := c.Upload(context.Background(), "42", path)
	require.NoError(t, err)
	assert.Equal(t, "77", item.ID)
	assert.Equal(t, "council_2025-01-09.mp4", item.Name)
}

func TestStoreTokens_KeepsOtherSettings(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BOX_PATH=/srv/council\nBOX_ACCESS_TOKEN=old\n"), 0o600))

	require.NoError(t, StoreTokens(envFile, &oauth2.Token{AccessToken: "new-access", RefreshToken: "new-refresh"}))

	env, err := godotenv.Read(envFile)
	require.NoError(t, err)
	assert.Equal(t, "/srv/council", env["BOX_PATH"])
	assert.Equal(t, "new-access", env[config.EnvBoxAccessToken])
	assert.Equal(t, "new-refresh", env[config.EnvBoxRefreshToken])
}

func TestStoreTokens_CreatesFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, StoreTokens(envFile, &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	env, err := godotenv.Read(envFile)
	require.NoError(t, err)
	assert.Equal(t, "a", env[config.EnvBoxAccessToken])
}

type staticSource struct{ tok *oauth2.Token }

func (s *staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestPersistingSource_StoresOnlyOnRotation(t *testing.T) {
	base := &staticSource{tok: &oauth2.Token{AccessToken: "a1"}}
	var stored []string
	ps := &persistingSource{base: base, last: "a1", store: func(tok *oauth2.Token) error {
		stored = append(stored, tok.AccessToken)
		return nil
	}}

	_, err := ps.Token()
	require.NoError(t, err)
	assert.Empty(t, stored)

	base.tok = &oauth2.Token{AccessToken: "a2", RefreshToken: "r2"}
	_, err = ps.Token()
	require.NoError(t, err)
	_, err = ps.Token()
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, stored)

	base.tok = &oauth2.Token{AccessToken: "a3"}
	ps.store = func(*oauth2.Token) error { return errors.New("disk full") }
	_, err = ps.Token()
	assert.Error(t, err)
}

func TestTokenSource_RefreshesAndPersists(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "fresh", "refresh_token": "rotated", "token_type": "bearer", "expires_in": 3600}`))
	}))
	defer tokenSrv.Close()

	envFile := filepath.Join(t.TempDir(), ".env")
	cfg := config.Box{ClientID: "id", ClientSecret: "secret", AccessToken: "stale", RefreshToken: "old-refresh", EnvFile: envFile}
	ts := TokenSource(context.Background(), cfg)
	ps := ts.(*persistingSource)
	conf := OAuthConfig(cfg)
	conf.Endpoint.TokenURL = tokenSrv.URL
	ps.base = conf.TokenSource(context.Background(), &oauth2.Token{AccessToken: "stale", RefreshToken: "old-refresh", Expiry: time.Now().Add(-time.Minute)})

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	env, err := godotenv.Read(envFile)
	require.NoError(t, err)
	assert.Equal(t, "fresh", env[config.EnvBoxAccessToken])
	assert.Equal(t, "rotated", env[config.EnvBoxRefreshToken])
}

func TestAuthServer(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "acc", "refresh_token": "ref", "token_type": "bearer", "expires_in": 3600}`))
	}))
	defer tokenSrv.Close()

	envFile := filepath.Join(t.TempDir(), ".env")
	a := NewAuthServer(config.Box{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://127.0.0.1:5001/callback", EnvFile: envFile}, logger.Discard())
	a.conf.Endpoint.TokenURL = tokenSrv.URL
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	noFollow := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := noFollow.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), AuthURL))
	assert.Equal(t, "id", loc.Query().Get("client_id"))
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	resp, err = http.Get(srv.URL + "/callback?code=the-code&state=wrong")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/callback?code=the-code&state=" + state)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env, err := godotenv.Read(envFile)
	require.NoError(t, err)
	assert.Equal(t, "acc", env[config.EnvBoxAccessToken])
	assert.Equal(t, "ref", env[config.EnvBoxRefreshToken])

	select {
	case err := <-a.done:
		assert.NoError(t, err)
	default:
		t.Fatal("callback did not signal completion")
	}
}
