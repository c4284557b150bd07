package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	googleoauth2 "golang.org/x/oauth2/google"
)

// Read-only calendar access is all the reminder loop needs.
var oauthScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
}

// googleoauth2Endpoint is the Google OAuth2 endpoint; overridden in tests.
var googleoauth2Endpoint = googleoauth2.Endpoint

// loginTimeout bounds how long a sign-in waits for the browser redirect.
const loginTimeout = 5 * time.Minute

// OAuthConfig builds the oauth2.Config used for sign-in and refresh.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     googleoauth2Endpoint,
		Scopes:       oauthScopes,
		RedirectURL:  "http://localhost", // port appended per session
	}
}

// StartLogin begins a loopback authorization-code flow. It returns the
// consent URL to open in a browser and a channel that yields the outcome
// once the redirect arrives and the token is saved. Starting a new login
// abandons any previous one.
func (t *TokenStore) StartLogin() (string, <-chan error, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen on localhost: %w", err)
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		listener.Close()
		return "", nil, fmt.Errorf("generate state: %w", err)
	}
	return t.startLogin(listener, hex.EncodeToString(stateBytes))
}

func (t *TokenStore) startLogin(listener net.Listener, state string) (string, <-chan error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), loginTimeout)

	t.loginMu.Lock()
	if t.cancelLogin != nil {
		t.cancelLogin()
	}
	t.cancelLogin = cancel
	t.loginMu.Unlock()

	cfg := *t.oauth
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	done := make(chan error, 1)
	go func() {
		defer cancel()
		err := t.awaitCallback(ctx, &cfg, listener, state)
		if err != nil {
			t.logger.Warn().Err(err).Msg("sign-in failed")
		} else {
			t.logger.Info().Msg("signed in")
		}
		done <- err
	}()

	return authURL, done, nil
}

// awaitCallback serves the redirect, exchanges the code and saves the token.
func (t *TokenStore) awaitCallback(ctx context.Context, cfg *oauth2.Config, listener net.Listener, state string) error {
	defer listener.Close()

	type result struct {
		code string
		err  error
	}
	ch := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			return
		}
		q := r.URL.Query()

		if errParam := q.Get("error"); errParam != "" {
			http.Error(w, "Authorization denied: "+errParam, http.StatusForbidden)
			ch <- result{err: fmt.Errorf("authorization denied: %s", errParam)}
			return
		}
		if q.Get("state") != state {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			ch <- result{err: errors.New("state mismatch")}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No authorization code", http.StatusBadRequest)
			ch <- result{err: errors.New("no authorization code in callback")}
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h2>calremind is signed in.</h2><p>You can close this tab.</p></body></html>")
		ch <- result{code: code}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go srv.Serve(listener)

	var res result
	select {
	case <-ctx.Done():
		srv.Close()
		return ctx.Err()
	case res = <-ch:
	}

	// Shutdown rather than Close so the browser gets the response.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)

	if res.err != nil {
		return res.err
	}
	token, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return fmt.Errorf("exchange code for token: %w", err)
	}
	return t.SaveToken(ctx, token)
}

// OpenBrowser tries to open url with the platform's default handler.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	default:
		return fmt.Errorf("no browser opener for %s", runtime.GOOS)
	}
	return cmd.Start()
}
