package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eocert/console/internal/filter"
	"github.com/eocert/console/internal/form"
	"github.com/eocert/console/internal/listing"
	"github.com/eocert/console/internal/view"
	"github.com/eocert/console/types"
	"github.com/spf13/cobra"
)

const shellHelp = `Commands:
  show                      print the current view
  select <field> <value>    pick a dashboard filter (year, make, model, eo_number)
  clear                     reset the dashboard filters
  filter <field> <value>    type into an admin filter box; applies after a pause
  enter                     apply the admin filters now
  next | prev               change page
  view <id>                 show a certificate
  approve | deny <user-id>  change a pending account
  delete-user <user-id>     delete an account
  delete <id>               delete a certificate
  export                    export the filtered admin list
  logout                    sign out
  quit                      leave the shell`

var errQuit = errors.New("quit")

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive console for the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		app, err := newApp(cmd, appOptions{
			backends: true,
			eager:    true,
			confirm:  promptConfirm(in, cmd.ErrOrStderr(), false),
		})
		if err != nil {
			return err
		}
		defer app.Close()
		ctx := cmd.Context()

		if err := signedIn(ctx, app); err != nil {
			return err
		}
		sh := &shell{app: app, out: out}
		sh.show()

		for {
			fmt.Fprint(out, "eocert> ")
			line, err := in.ReadString('\n')
			if fields := strings.Fields(line); len(fields) > 0 {
				if runErr := sh.run(ctx, fields[0], fields[1:]); errors.Is(runErr, errQuit) {
					return nil
				} else if runErr != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), runErr)
				}
				if app.Router.State() == view.Unauthenticated {
					fmt.Fprintln(out, app.Router.Greeting())
					return nil
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	},
}

type shell struct {
	app *cliApp
	out io.Writer
}

func (s *shell) admin() bool {
	return s.app.Router.State() == view.AdminDashboard
}

func (s *shell) list() *listing.Controller {
	if s.admin() {
		return s.app.AdminList
	}
	return s.app.UserList
}

func (s *shell) run(ctx context.Context, name string, args []string) error {
	app := s.app
	arg := func(i int) (string, error) {
		if i >= len(args) {
			return "", fmt.Errorf("%s: missing argument", name)
		}
		return args[i], nil
	}

	var err error
	switch name {
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
		return nil
	case "quit", "exit":
		return errQuit
	case "show":
		if s.admin() && app.AdminFilterPending() {
			fmt.Fprintln(s.out, "filter pending...")
		}
		if err := app.LastDebouncedError(); err != nil {
			app.Unauthorized(ctx, err)
		}
		s.show()
		return nil
	case "logout":
		return app.Router.Logout(ctx)
	case "select":
		field, ferr := arg(0)
		if ferr != nil {
			return ferr
		}
		f, ok := filter.ParseField(field)
		if !ok {
			return fmt.Errorf("unknown filter %q", field)
		}
		err = app.Filter.Select(ctx, f, strings.Join(args[1:], " "))
	case "clear":
		err = app.Filter.Clear(ctx)
	case "filter":
		field, ferr := arg(0)
		if ferr != nil {
			return ferr
		}
		return app.AdminFilterInput(field, strings.Join(args[1:], " "))
	case "enter":
		err = app.AdminFilterSubmit(ctx)
	case "next":
		err = s.list().Next(ctx)
	case "prev":
		err = s.list().Prev(ctx)
	case "view":
		id, aerr := arg(0)
		if aerr != nil {
			return aerr
		}
		if err = app.Editor.View(ctx, id); err == nil {
			modal := app.Editor.Modal().View()
			if body, ok := modal.Body.(*form.DetailBody); ok {
				printFields(s.out, modal.Title, body.Fields)
			}
			app.Editor.Modal().Close()
			return nil
		}
	case "approve", "deny":
		id, aerr := arg(0)
		if aerr != nil {
			return aerr
		}
		status := types.StatusApproved
		if name == "deny" {
			status = types.StatusDenied
		}
		err = app.Users.SetStatus(ctx, types.ID(id), status)
	case "delete-user":
		id, aerr := arg(0)
		if aerr != nil {
			return aerr
		}
		err = app.Users.Delete(ctx, types.ID(id))
	case "delete":
		id, aerr := arg(0)
		if aerr != nil {
			return aerr
		}
		err = app.Certs.Delete(ctx, id)
	case "export":
		_, err = app.Export(ctx)
	default:
		return fmt.Errorf("unknown command %q, try help", name)
	}

	if err = finish(ctx, app, err); err != nil {
		return err
	}
	s.show()
	return nil
}

func (s *shell) show() {
	app := s.app
	fmt.Fprintln(s.out, heading.Sprint(app.Router.Greeting()))
	switch app.Router.State() {
	case view.UserDashboard:
		for i, choice := range app.Filter.Fields() {
			f := filter.Field(i)
			value := choice.Value
			if value == "" {
				value = f.Placeholder()
			}
			if !choice.Enabled && choice.Value == "" {
				value += " (disabled)"
			}
			fmt.Fprintf(s.out, "  %-10s %s\n", f, value)
		}
		printCertificates(s.out, app.UserList)
	case view.AdminDashboard:
		printUsers(s.out, app.Users)
		af := app.AdminFilter()
		fmt.Fprintf(s.out, "filter: eo_number=%s year=%s make=%s model=%s\n",
			dash(af.EONumber), dash(af.Year), dash(af.Make), dash(af.Model))
		printCertificates(s.out, app.AdminList)
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
