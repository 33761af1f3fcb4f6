package cmd

import (
	"fmt"
	"strings"

	"github.com/eocert/console/internal/filter"
	"github.com/eocert/console/internal/form"
	"github.com/eocert/console/types"
	"github.com/spf13/cobra"
)

type filterFlags struct {
	year, make, model, eo string
	page                  int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.year, "year", "", "model year")
	cmd.Flags().StringVar(&f.make, "make", "", "vehicle make")
	cmd.Flags().StringVar(&f.model, "model", "", "vehicle model")
	cmd.Flags().StringVar(&f.eo, "eo", "", "EO number")
}

func (f *filterFlags) registerPage(cmd *cobra.Command) {
	f.register(cmd)
	cmd.Flags().IntVar(&f.page, "page", 1, "page to show")
}

func (f *filterFlags) filter() types.Filter {
	return types.Filter{Year: f.year, Make: f.make, Model: f.model, EONumber: f.eo}
}

var certsListFlags filterFlags

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Look up EO certificates",
}

var certsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificates matching the filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer app.Close()
		ctx := cmd.Context()
		if err := signedIn(ctx, app); err != nil {
			return err
		}

		err = app.UserList.Load(ctx, certsListFlags.filter(), certsListFlags.page)
		app.Unauthorized(ctx, err)
		printCertificates(cmd.OutOrStdout(), app.UserList)
		return err
	},
}

var certsViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show every field of one certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer app.Close()
		ctx := cmd.Context()
		if err := signedIn(ctx, app); err != nil {
			return err
		}

		if err := app.Editor.View(ctx, args[0]); err != nil {
			app.Unauthorized(ctx, err)
			return err
		}
		modal := app.Editor.Modal().View()
		if body, ok := modal.Body.(*form.DetailBody); ok {
			printFields(cmd.OutOrStdout(), modal.Title, body.Fields)
		}
		return nil
	},
}

var certsOptionsFlags filterFlags

var certsOptionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List the choices for the next filter field",
	Long: `Walks the year, make, model and EO number selectors in order and prints
the options of the first field left blank.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer app.Close()
		ctx := cmd.Context()
		if err := signedIn(ctx, app); err != nil {
			return err
		}

		if err := app.Filter.Apply(ctx, certsOptionsFlags.filter()); err != nil {
			app.Unauthorized(ctx, err)
			return err
		}
		for i, choice := range app.Filter.Fields() {
			if choice.Value != "" {
				continue
			}
			field := filter.Field(i)
			if !choice.Enabled {
				return fmt.Errorf("no options for %s", field)
			}
			fmt.Fprintln(cmd.OutOrStdout(), heading.Sprint(field.Placeholder()))
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(choice.Options, "\n"))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Every field is selected")
		return nil
	},
}

func init() {
	certsListFlags.registerPage(certsListCmd)
	certsOptionsFlags.register(certsOptionsCmd)

	certsCmd.AddCommand(certsListCmd, certsViewCmd, certsOptionsCmd)
	rootCmd.AddCommand(certsCmd)
}
