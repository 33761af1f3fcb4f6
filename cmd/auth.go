package cmd

import (
	"bufio"
	"fmt"

	"github.com/eocert/console/internal/api"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string

	registerUsername string
	registerEmail    string
	registerPassword string
	registerConfirm  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and keep the session for later commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		in := bufio.NewReader(cmd.InOrStdin())
		email := readValue(in, cmd.ErrOrStderr(), "Email", loginEmail)
		password := readValue(in, cmd.ErrOrStderr(), "Password", loginPassword)
		if err := app.Router.Login(cmd.Context(), email, password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), app.Router.Greeting())
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Request an account; an administrator must approve it",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.ErrOrStderr()
		return app.Router.Register(cmd.Context(), api.RegisterRequest{
			Username:        readValue(in, out, "Username", registerUsername),
			Email:           readValue(in, out, "Email", registerEmail),
			Password:        readValue(in, out, "Password", registerPassword),
			ConfirmPassword: readValue(in, out, "Confirm password", registerConfirm),
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Store.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		app.Router.Restore(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), app.Router.Greeting())
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted when empty)")

	registerCmd.Flags().StringVar(&registerUsername, "username", "", "display name")
	registerCmd.Flags().StringVar(&registerEmail, "email", "", "account email")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "password (prompted when empty)")
	registerCmd.Flags().StringVar(&registerConfirm, "confirm-password", "", "password again (prompted when empty)")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
}
