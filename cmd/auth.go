package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/server"
	"github.com/desertthunder/vgen/internal/shared"
)

// AuthLogin runs the browser sign-in flow and saves the token.
//
// Starts a loopback HTTP server, opens the browser for authorization, and exchanges the code for tokens.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.oauthErr != nil {
		return r.oauthErr
	}

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	loopback := server.NewLoopback(r.tokens.OAuthConfig(), r.logger)
	loopback.Open = func(authURL string) error {
		r.writePlain("→ Opening browser to sign in...\n")
		if err := r.open(authURL); err != nil {
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
			return err
		}
		return nil
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", cmd.Duration("timeout"))
	token, err := loopback.Run(ctx)
	if err != nil {
		return err
	}
	if err := r.tokens.Save(token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	r.logger.Info("token saved", "path", shared.ExpandPath(r.config.Auth.TokenPath))

	user, err := r.tokens.CurrentUser(ctx)
	if err != nil {
		r.logger.Warn("signed in but the token carries no identity", "error", err)
		return r.writePlain("✓ Signed in\n")
	}
	return r.writePlain("✓ Signed in as %s\n", userLabel(user.DisplayName, user.Username, user.Email, user.ID))
}

// AuthLogout removes the saved token and the task session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.tokens.Clear(); err != nil {
		return err
	}
	if err := r.sessionFile.Remove(); err != nil {
		return err
	}
	r.logger.Info("signed out")
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus reports the signed-in user.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	user, err := r.auth.CurrentUser(ctx)
	if errors.Is(err, shared.ErrAuthRequired) {
		if cmd.Bool("json") {
			return r.writeJSON(map[string]any{"signed_in": false}, false)
		}
		return r.writePlain("✗ Not signed in. Run 'vgen auth login'.\n")
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"signed_in":    true,
			"id":           user.ID,
			"email":        user.Email,
			"username":     user.Username,
			"display_name": user.DisplayName,
		}, false)
	}

	r.writePlain("✓ Signed in as %s\n", userLabel(user.DisplayName, user.Username, user.Email, user.ID))
	r.writePlain("User ID: %s\n", user.ID)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	return nil
}

func userLabel(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "unknown user"
}
