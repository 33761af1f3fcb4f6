package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/eocert/console/internal/admin"
	"github.com/eocert/console/internal/form"
	"github.com/eocert/console/types"
	"github.com/spf13/cobra"
)

var (
	assumeYes       bool
	adminCertsFlags filterFlags
	exportFlags     filterFlags
	exportOutput    string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer users and certificates",
}

// adminApp opens an app for an administrator with export storage and the
// audit broker connected.
func adminApp(cmd *cobra.Command) (*cliApp, error) {
	app, err := newApp(cmd, appOptions{
		backends: true,
		confirm:  promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), assumeYes),
	})
	if err != nil {
		return nil, err
	}
	if err := signedInAdmin(cmd.Context(), app); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// finish signs out on a rejected token and treats a declined prompt as
// success.
func finish(ctx context.Context, app *cliApp, err error) error {
	if errors.Is(err, admin.ErrCancelled) {
		app.Notes.Info("Action cancelled")
		return nil
	}
	app.Unauthorized(ctx, err)
	return err
}

var adminUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List accounts, pending approvals first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		err = app.Users.Load(cmd.Context())
		app.Unauthorized(cmd.Context(), err)
		printUsers(cmd.OutOrStdout(), app.Users)
		return err
	},
}

func userStatusCmd(use, short, status string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := adminApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			err = app.Users.SetStatus(cmd.Context(), types.ID(args[0]), status)
			return finish(cmd.Context(), app, err)
		},
	}
}

var adminUserDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		err = app.Users.Delete(cmd.Context(), types.ID(args[0]))
		return finish(cmd.Context(), app, err)
	},
}

var adminCertsCmd = &cobra.Command{
	Use:   "certs",
	Short: "List certificates with partial-match filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		err = app.AdminList.Load(cmd.Context(), adminCertsFlags.filter(), adminCertsFlags.page)
		app.Unauthorized(cmd.Context(), err)
		printCertificates(cmd.OutOrStdout(), app.AdminList)
		return err
	},
}

var adminCertCreateCmd = &cobra.Command{
	Use:   "create key=value...",
	Short: "Add a certificate",
	Long: `Add a certificate. Keys: eo_number, year, make, model, manufacturer,
engine_size, evaporative_family, test_group, exhaust_ecs, vehicle_class.
eo_number and year are required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := form.FromArgs(args)
		if err != nil {
			return err
		}
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		app.Editor.OpenCreate()
		err = app.Editor.Save(cmd.Context(), f, "")
		app.Unauthorized(cmd.Context(), err)
		return err
	},
}

var adminCertEditCmd = &cobra.Command{
	Use:   "edit <id> key=value...",
	Short: "Change fields of a certificate",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		changes, err := form.FromArgs(args[1:])
		if err != nil {
			return err
		}
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		ctx := cmd.Context()

		if err := app.Editor.OpenEdit(ctx, args[0]); err != nil {
			app.Unauthorized(ctx, err)
			return err
		}
		body, ok := app.Editor.Modal().View().Body.(*form.EditBody)
		if !ok {
			return fmt.Errorf("certificate %s did not open for editing", args[0])
		}
		err = app.Editor.Save(ctx, body.Form.Merge(changes), args[0])
		app.Unauthorized(ctx, err)
		return err
	},
}

var adminCertDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		err = app.Certs.Delete(cmd.Context(), args[0])
		return finish(cmd.Context(), app, err)
	},
}

var adminExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the filtered certificate list as CSV to the export bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		app.SetAdminFilter(exportFlags.filter())
		res, err := app.Export(cmd.Context())
		if err != nil {
			app.Unauthorized(cmd.Context(), err)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Key)
		return nil
	},
}

var adminExportListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List exports in the bucket, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		objects, err := app.Exporter.List(cmd.Context())
		if err != nil {
			return err
		}
		printExports(cmd.OutOrStdout(), objects)
		return nil
	},
}

var adminExportGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Download an export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		rc, err := app.Exporter.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer rc.Close()

		var out io.Writer = cmd.OutOrStdout()
		if exportOutput != "" {
			file, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer file.Close()
			out = file
		}
		_, err = io.Copy(out, rc)
		return err
	},
}

var adminExportRemoveCmd = &cobra.Command{
	Use:   "rm <key>",
	Short: "Delete an export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := adminApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if !promptConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), assumeYes)("Delete export?") {
			return nil
		}
		if err := app.Exporter.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		app.Notes.Success("Deleted %s", args[0])
		return nil
	},
}

func init() {
	adminCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	adminUsersCmd.AddCommand(
		userStatusCmd("approve", "Approve a pending account", types.StatusApproved),
		userStatusCmd("deny", "Deny a pending account", types.StatusDenied),
		adminUserDeleteCmd,
	)

	adminCertsFlags.registerPage(adminCertsCmd)
	adminCertsCmd.AddCommand(adminCertCreateCmd, adminCertEditCmd, adminCertDeleteCmd)

	exportFlags.register(adminExportCmd)
	adminExportGetCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to a file instead of stdout")
	adminExportCmd.AddCommand(adminExportListCmd, adminExportGetCmd, adminExportRemoveCmd)

	adminCmd.AddCommand(adminUsersCmd, adminCertsCmd, adminExportCmd)
	rootCmd.AddCommand(adminCmd)
}
