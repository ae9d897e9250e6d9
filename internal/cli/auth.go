package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardtable/cardtable-go/internal/api"
	"github.com/cardtable/cardtable-go/internal/model"
	"github.com/cardtable/cardtable-go/internal/session"
	"github.com/cardtable/cardtable-go/internal/token"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Account and session commands",
	}

	cmd.AddCommand(newAuthRegisterCmd())
	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthWhoamiCmd())

	return cmd
}

func newAuthRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <email> <password>",
		Short: "Create a new account and log in",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Register(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return establishSession(cmd, resp)
		},
	}
}

func newAuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Log in with an existing account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Login(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return establishSession(cmd, resp)
		},
	}
}

// establishSession persists the token pair and identity, then opens and
// closes a channel connection to prove the credential works end to end
func establishSession(cmd *cobra.Command, resp *api.AuthResponse) error {
	user, err := identityFrom(resp)
	if err != nil {
		return err
	}

	store, manager := newSessionStore(nil)
	defer manager.Disconnect()

	creds := session.Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         user,
	}
	out := NewOutput(cfg.Output)
	if err := store.Login(cmd.Context(), creds); err != nil {
		if !errors.Is(err, session.ErrConnectFailed) {
			return err
		}
		// Credential is persisted; only the live channel failed
		out.PrintMessage(fmt.Sprintf("Logged in as %s, but the live channel is unreachable: %s", user.Name, err))
		return nil
	}

	out.PrintMessage(fmt.Sprintf("Logged in as %s", user.Name))
	return nil
}

// identityFrom takes the user object from the auth response, falling back to
// the claims inside the access token when the server omits it
func identityFrom(resp *api.AuthResponse) (model.User, error) {
	if resp.User != nil {
		return *resp.User, nil
	}
	claims, err := token.Decode(resp.AccessToken)
	if err != nil {
		return model.User{}, fmt.Errorf("server returned no identity and the token is unreadable: %w", err)
	}
	return claims.User()
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, manager := newSessionStore(nil)
			defer manager.Disconnect()

			if err := store.Logout(cmd.Context()); err != nil {
				return err
			}
			NewOutput(cfg.Output).PrintMessage("Logged out")
			return nil
		},
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity of the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := storedIdentity()
			if err != nil {
				return err
			}
			out := NewOutput(cfg.Output)
			out.Print(user)
			if token.Expired(storedToken(), time.Now()) {
				out.PrintMessage("Session expired, please log in again")
			}
			return nil
		},
	}
}

// storedIdentity reads the persisted user, falling back to token claims when
// the stored user record is missing or corrupt
func storedIdentity() (model.User, error) {
	raw := storedToken()
	if raw == "" {
		return model.User{}, model.ErrNotLoggedIn
	}

	if stored, err := storage.Get(session.KeyUser); err == nil {
		var user model.User
		if json.Unmarshal([]byte(stored), &user) == nil && user.ID != "" {
			return user, nil
		}
	}

	claims, err := token.Decode(raw)
	if err != nil {
		return model.User{}, fmt.Errorf("stored token is unreadable: %w", err)
	}
	return claims.User()
}
