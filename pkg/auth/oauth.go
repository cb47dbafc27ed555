package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/tasks/v1"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/config"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/syncerr"
)

const (
	// ClientSecretsFile is the Google API credentials.json downloaded from
	// the Cloud Console, kept in ConfigDir.
	ClientSecretsFile = "credentials.json"

	// TokenFile holds the access and refresh token, kept in ConfigDir.
	TokenFile = "token.json"

	// LocalhostAuthPort receives the OAuth redirect.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// TasksScopes are the scopes the sync engine needs.
func TasksScopes() []string {
	return []string{tasks.TasksScope}
}

// ConfigDir is where the credentials and token files live.
func ConfigDir() (string, error) {
	return config.Dir()
}

// Flow runs the installed-app authorization flow against files in Dir.
type Flow struct {
	Dir    string
	Logger *slog.Logger
	Out    io.Writer // where the authorization URL is printed
}

// NewFlow returns a Flow over ConfigDir.
func NewFlow(logger *slog.Logger) (*Flow, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{Dir: dir, Logger: logger, Out: os.Stdout}, nil
}

func (f *Flow) tokenPath() string { return filepath.Join(f.Dir, TokenFile) }

// Config creates an oauth2.Config from the client secrets file. Localhost
// and out-of-band redirect URLs are pinned to LocalhostAuthPort.
func (f *Flow) Config(scopes []string) (*oauth2.Config, error) {
	secretsPath := filepath.Join(f.Dir, ClientSecretsFile)
	b, err := os.ReadFile(secretsPath)
	if err != nil {
		return nil, syncerr.AuthError{Err: fmt.Errorf("unable to read client secret file %s: %w", secretsPath, err)}
	}

	cfg, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, syncerr.AuthError{Err: fmt.Errorf("unable to parse client secret file: %w", err)}
	}

	if cfg.RedirectURL == "urn:ietf:wg:oauth:2.0:oob" || cfg.RedirectURL == "" {
		cfg.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
		return cfg, nil
	}
	u, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		f.Logger.Warn("auth: unparsable redirect url, using it as is", "url", cfg.RedirectURL, "err", err)
		return cfg, nil
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1":
		if u.Port() != LocalhostAuthPort {
			u.Host = net.JoinHostPort(u.Hostname(), LocalhostAuthPort)
			cfg.RedirectURL = u.String()
		}
	default:
		f.Logger.Warn("auth: redirect url is not a localhost callback", "url", cfg.RedirectURL)
	}
	return cfg, nil
}

// Client returns an authenticated HTTP client. A stored token is reused and
// refreshed as needed; without one the browser flow runs. Refreshed tokens
// are written back to the token file.
func (f *Flow) Client(ctx context.Context, scopes []string) (*http.Client, error) {
	cfg, err := f.Config(scopes)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(f.tokenPath())
	if err != nil {
		f.Logger.Info("auth: no stored token, starting browser authorization", "path", f.tokenPath())
		tok, err = f.tokenFromWeb(ctx, cfg)
		if err != nil {
			return nil, syncerr.AuthError{Err: err}
		}
		if err := saveToken(f.tokenPath(), tok); err != nil {
			return nil, err
		}
	}

	src := &savingSource{
		base:   cfg.TokenSource(ctx, tok),
		path:   f.tokenPath(),
		last:   tok,
		logger: f.Logger,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Reset removes the stored token so the next Client call re-authorizes.
func (f *Flow) Reset() error {
	if err := os.Remove(f.tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// GetClient is Flow.Client over ConfigDir.
func GetClient(ctx context.Context, scopes []string) (*http.Client, error) {
	f, err := NewFlow(nil)
	if err != nil {
		return nil, err
	}
	return f.Client(ctx, scopes)
}

// tokenFromWeb runs the authorization code flow with a local redirect
// listener.
func (f *Flow) tokenFromWeb(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", LocalhostAuthPort))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- errors.New("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintln(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- fmt.Errorf("HTTP server error: %w", err):
			default:
			}
		}
	}()
	defer server.Close()

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(f.Out, "Open the following URL in your browser to authorize %s:\n%s\n", config.AppName, authURL)

	select {
	case code := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := cfg.Exchange(exCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(authTimeout):
		return nil, errors.New("authorization timed out, please try again")
	}
}

// savingSource persists a token whenever the underlying source hands out a
// different one.
type savingSource struct {
	base   oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, syncerr.AuthError{Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.logger.Warn("auth: could not save refreshed token", "err", err)
		} else {
			s.logger.Debug("auth: saved refreshed token", "path", s.path)
		}
		s.last = tok
	}
	return tok, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}
