package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/desertthunder/libsync/internal/server"
	"github.com/desertthunder/libsync/internal/services"
	"github.com/desertthunder/libsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 2 * time.Minute

// AuthSpotify runs the authorization code flow against a local callback listener and saves the refresh token.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: credentials.spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	addr, _, err := server.CallbackAddr(creds.RedirectURI)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for the callback on %s: %w", addr, err)
	}

	config := services.SpotifyOAuthConfig(creds)
	state := shared.GenerateID()
	handler := server.NewOAuthHandler(config, state)

	r.logger.Info("waiting for Spotify callback", "addr", addr)
	r.writePlain("→ Open this URL in your browser to authorize libsync:\n\n%s\n\n", config.AuthCodeURL(state, oauth2.AccessTypeOffline))
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", cmd.Duration("timeout"))

	waitCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	token, err := server.AwaitCallback(waitCtx, ln, handler, r.logger)
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlain("✓ Authorization successful\n")
	if r.configPath != "" {
		r.writePlain("✓ Refresh token saved to %s\n", r.configPath)
	}
	return nil
}

// saveTokens stores the token in the loaded config and writes it back to the config file.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrInvalidConfig)
	}
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: token cannot be empty", shared.ErrAuthFailed)
	}

	r.config.Credentials.Spotify.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		r.config.Credentials.Spotify.RefreshToken = token.RefreshToken
	}
	r.source = nil

	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
