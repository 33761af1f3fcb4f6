package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/eocert/console/internal/admin"
	"github.com/eocert/console/internal/listing"
	"github.com/eocert/console/internal/storage"
	"github.com/eocert/console/types"
	"github.com/fatih/color"
)

var heading = color.New(color.Bold)

func printCertificates(w io.Writer, c *listing.Controller) {
	if msg := c.Message(); msg != "" {
		fmt.Fprintln(w, msg)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	heading.Fprintln(tw, "ID\tEO NUMBER\tYEAR\tMAKE\tMODEL\tMANUFACTURER")
	for _, cert := range c.Snapshot().Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			cert.ID, cert.EONumber, dash(cert.Year.String()), dash(cert.VehicleMake), dash(cert.VehicleModel), dash(cert.Manufacturer))
	}
	_ = tw.Flush()

	if controls := c.Controls(); controls.Visible {
		fmt.Fprintln(w, color.CyanString(controls.PageInfo))
	}
}

func printFields(w io.Writer, title string, fields []types.Field) {
	heading.Fprintln(w, title)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\n", f.Label, dash(f.Value))
	}
	_ = tw.Flush()
}

func printUsers(w io.Writer, users *admin.Users) {
	if msg := users.Message(); msg != "" {
		fmt.Fprintln(w, msg)
		return
	}
	section := func(title string, rows []admin.Row) {
		heading.Fprintln(w, title)
		if len(rows) == 0 {
			fmt.Fprintln(w, "  none")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, row := range rows {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", row.User.ID, row.User.Username, row.User.Email, row.User.Role, statusText(row.User.Status))
		}
		_ = tw.Flush()
	}
	section("Pending users", users.Pending())
	section("All users", users.Others())
}

func printExports(w io.Writer, objects []storage.Object) {
	if len(objects) == 0 {
		fmt.Fprintln(w, "No exports")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	heading.Fprintln(tw, "KEY\tSIZE\tWRITTEN")
	for _, obj := range objects {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", obj.Key, obj.Size, obj.Modified.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}

func statusText(status string) string {
	switch status {
	case types.StatusApproved:
		return color.GreenString(status)
	case types.StatusDenied:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
