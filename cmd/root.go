/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/eocert/console/config"
	"github.com/eocert/console/internal/admin"
	"github.com/eocert/console/internal/audit"
	"github.com/eocert/console/internal/console"
	"github.com/eocert/console/internal/mq"
	"github.com/eocert/console/internal/notify"
	"github.com/eocert/console/internal/session"
	"github.com/eocert/console/internal/storage"
	"github.com/eocert/console/internal/view"
	"github.com/spf13/cobra"
)

var (
	apiURL      string
	sessionFile string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eocert",
	Short: "EO certificate lookup and administration console",
	Long: `eocert looks up Executive Order certificates and administers the
certificate backend, from a terminal or through the web console.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "certificate backend base URL (overrides EOCERT_API_URL)")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", "", "where the CLI keeps its sign-in (overrides EOCERT_SESSION_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log requests and state changes")
}

func loadConfig() config.Config {
	cfg := config.LoadConfig()
	if apiURL != "" {
		cfg.API.BaseURL = config.ResolveAPIBase(apiURL, cfg.Console.Host)
	}
	if sessionFile != "" {
		cfg.Session.File = sessionFile
	}
	return cfg
}

// cliApp is a console.App bound to the session file, plus whatever
// backends it opened.
type cliApp struct {
	*console.App
	cfg config.Config
}

func (c *cliApp) Close() {
	c.App.Close()
	if err := c.Audit.Close(); err != nil {
		slog.Error("audit_close_failed", "error", err)
	}
}

type appOptions struct {
	backends bool
	eager    bool
	confirm  admin.ConfirmFunc
}

// newApp builds the console for one command. Export storage and the audit
// broker are connected only when backends is set.
func newApp(cmd *cobra.Command, opts appOptions) (*cliApp, error) {
	cfg := loadConfig()
	ctx := cmd.Context()

	var (
		exports   storage.ObjectStorage
		publisher *audit.Publisher
	)
	if opts.backends {
		var err error
		exports, err = storage.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open export storage: %w", err)
		}
		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return nil, fmt.Errorf("open audit broker: %w", err)
		}
		publisher = audit.NewPublisher(broker)
	}

	app := console.New(console.Options{
		BaseURL:       cfg.API.BaseURL,
		Store:         session.NewFileStore(cfg.Session.File),
		Notes:         notify.New(cmd.ErrOrStderr()),
		Confirm:       opts.confirm,
		UserPageSize:  cfg.Console.UserPageSize,
		AdminPageSize: cfg.Console.AdminPageSize,
		Debounce:      cfg.Console.FilterDebounce,
		Audit:         publisher,
		Exports:       exports,
		SkipEntryLoad: !opts.eager,
	})
	return &cliApp{App: app, cfg: cfg}, nil
}

// signedIn restores the saved session and fails when there is none.
func signedIn(ctx context.Context, app *cliApp) error {
	if app.Router.Restore(ctx) == view.Unauthenticated {
		return fmt.Errorf("not signed in; run `eocert login`")
	}
	return nil
}

func signedInAdmin(ctx context.Context, app *cliApp) error {
	if err := signedIn(ctx, app); err != nil {
		return err
	}
	if app.Router.State() != view.AdminDashboard {
		return fmt.Errorf("%s is not an administrator", app.Router.User().Username)
	}
	return nil
}

// promptConfirm asks on out and reads y/N from in. assumeYes skips the
// question.
func promptConfirm(in io.Reader, out io.Writer, assumeYes bool) admin.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(prompt string) bool {
		if assumeYes {
			return true
		}
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// readValue prompts for label on out and reads one line from in when value
// is empty.
func readValue(in *bufio.Reader, out io.Writer, label, value string) string {
	if value != "" {
		return value
	}
	fmt.Fprintf(out, "%s: ", label)
	line, _ := in.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}
