package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/vgen/internal/shared"
)

// Loopback runs a short-lived callback server for one authorization code flow.
type Loopback struct {
	config *oauth2.Config
	logger *log.Logger
	// Open is called with the authorization URL once the server is listening.
	Open func(authURL string) error
}

// NewLoopback creates a [Loopback] for config; its RedirectURL must point at this machine.
func NewLoopback(config *oauth2.Config, logger *log.Logger) *Loopback {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Loopback{config: config, logger: logger, Open: shared.OpenURL}
}

// Addr returns the host:port the callback server listens on.
func (l *Loopback) Addr() (string, error) {
	u, err := url.Parse(l.config.RedirectURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: redirect uri %q", shared.ErrInvalidConfig, l.config.RedirectURL)
	}
	if u.Port() == "" {
		return net.JoinHostPort(u.Hostname(), "80"), nil
	}
	return u.Host, nil
}

// Run serves the callback until a token arrives, the flow fails, or ctx is done.
//
// The listener is bound before Open is called so a fast redirect cannot miss it.
func (l *Loopback) Run(ctx context.Context) (*oauth2.Token, error) {
	addr, err := l.Addr()
	if err != nil {
		return nil, err
	}
	state, err := NewState()
	if err != nil {
		return nil, err
	}

	handler := NewOAuthHandler(l.config, state)
	router := NewBasicRouter()
	router.Use(RequestLogger(l.logger))
	router.Handler(handler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		l.logger.Info("starting OAuth callback server", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			l.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := l.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if l.Open != nil {
		if err := l.Open(authURL); err != nil {
			l.logger.Warn("failed to open browser automatically", "error", err)
		}
	}

	select {
	case result := <-handler.Result():
		if result.Error() != nil {
			return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, result.Error())
		}
		if result.Token == nil {
			return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
		}
		return result.Token, nil
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, ctx.Err())
	}
}
