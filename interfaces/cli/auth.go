package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/fsassist/domain/config"
	infraconfig "github.com/felixgeelhaar/fsassist/infrastructure/config"
	"github.com/felixgeelhaar/fsassist/infrastructure/logging"
	"github.com/felixgeelhaar/fsassist/pack/gdrive"
)

// Errors returned by the authorization flow.
var (
	// ErrAuthDenied indicates the user declined consent or the callback was
	// malformed.
	ErrAuthDenied = errors.New("authorization denied")

	// ErrStateMismatch indicates a callback for a different authorization
	// request.
	ErrStateMismatch = errors.New("authorization state mismatch")
)

// newAuthCmd creates the auth command group.
func (a *App) newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to cloud backends",
	}
	cmd.AddCommand(a.newAuthGDriveCmd())
	return cmd
}

// newAuthGDriveCmd runs the installed-app OAuth flow and stores the token
// where the gdrive backend reads it.
func (a *App) newAuthGDriveCmd() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "gdrive",
		Short: "Authorize Google Drive access",
		Long: `Open the Google consent page, receive the authorization code on a
loopback address, and store the resulting token in the backend's token_file.

Examples:
  fsassist auth gdrive
  fsassist auth gdrive --tag work-drive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadConfig(logging.DefaultConfig())
			if err != nil {
				return err
			}
			b, err := gdriveBackend(cfg, tag)
			if err != nil {
				return err
			}

			oauthCfg, err := gdrive.OAuthConfig(infraconfig.ExpandHome(b.CredentialsFile))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			tok, err := authorizeLoopback(ctx, oauthCfg, a.stdout)
			if err != nil {
				return err
			}

			path := infraconfig.ExpandHome(b.TokenFile)
			if err := gdrive.SaveToken(path, tok); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "Token saved to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Backend tag (default: the first gdrive backend)")
	return cmd
}

// gdriveBackend picks the gdrive backend to authorize.
func gdriveBackend(cfg *config.Config, tag string) (config.BackendConfig, error) {
	for _, b := range cfg.Backends {
		if b.Kind != config.KindGDrive {
			continue
		}
		if tag == "" || b.Tag == tag {
			return b, nil
		}
	}
	if tag != "" {
		return config.BackendConfig{}, fmt.Errorf("no gdrive backend tagged %q in configuration", tag)
	}
	return config.BackendConfig{}, errors.New("no gdrive backend in configuration")
}

type authResult struct {
	code string
	err  error
}

// authorizeLoopback prints the consent URL, waits for the redirect on a
// 127.0.0.1 listener and exchanges the code for a token.
func authorizeLoopback(ctx context.Context, oauthCfg *oauth2.Config, out io.Writer) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for callback: %w", err)
	}

	cfg := *oauthCfg
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr())
	state := uuid.NewString()
	results := make(chan authResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res authResult
		switch {
		case q.Get("state") != state:
			res.err = ErrStateMismatch
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: %s", ErrAuthDenied, q.Get("error"))
		case q.Get("code") == "":
			res.err = fmt.Errorf("%w: no code in callback", ErrAuthDenied)
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	_, _ = fmt.Fprintf(out, "Open this URL in your browser to authorize Google Drive access:\n\n  %s\n\n", url)

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for authorization: %w", ctx.Err())
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		tok, err := cfg.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("exchange authorization code: %w", err)
		}
		return tok, nil
	}
}
