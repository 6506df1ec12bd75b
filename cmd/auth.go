package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/server"
	"github.com/mkbell/discme/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin performs the OAuth2 authorization flow for Spotify.
//
// Starts a local HTTP server, opens the browser for user authorization, and
// records the authenticated identity in the config file.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		configPath = "config.toml"
	}

	if err := r.requireCatalog(); err != nil {
		return err
	}
	if err := r.openDatabase(); err != nil {
		return err
	}

	user, err := r.doLogin(ctx)
	if err != nil {
		return err
	}

	r.config.Auth.UserID = user.ID()
	if err := shared.SaveConfig(configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Logged in as %s (%s)\n\n", user.DisplayName(), user.SpotifyID())
	r.writePlain("You can now use: discme albums list\n")

	return nil
}

// AuthStatus shows the current authenticated user and token state.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.openDatabase(); err != nil {
		return err
	}

	if r.config.Auth.UserID == "" {
		r.writePlain("Not logged in. Run: discme auth login\n")
		return nil
	}

	user, err := r.users.Get(r.config.Auth.UserID)
	if err != nil {
		r.writePlain("Stored identity not found. Run: discme auth login\n")
		return nil
	}

	r.writePlainHeader("Authentication Status")
	r.writePlain("User: %s\n", user.DisplayName())
	r.writePlain("Spotify ID: %s\n", user.SpotifyID())
	if user.Email() != "" {
		r.writePlain("Email: %s\n", user.Email())
	}

	if user.TokenValid(time.Now()) {
		r.writePlain("Token: valid until %s\n", user.TokenExpiresAt().Format(time.RFC3339))
	} else if user.RefreshToken() != "" {
		r.writePlain("Token: expired, will refresh on next use\n")
	} else {
		r.writePlain("Token: expired, run `discme auth login` again\n")
	}

	return nil
}

// doLogin executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doLogin(ctx context.Context) (*models.User, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := r.manager.AuthorizationURL(state)
	relay := server.NewLoginRelay(r.manager, state)
	router := server.NewBasicRouter()
	router.Handler(relay)

	serverAddr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	httpServer := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server at %v", serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.LoginResult

	select {
	case result = <-relay.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.User == nil {
		return nil, fmt.Errorf("no user received")
	}

	return result.User, nil
}
