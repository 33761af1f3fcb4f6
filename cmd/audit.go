package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eocert/console/internal/audit"
	"github.com/eocert/console/internal/mq"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect admin audit events",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print audit events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open audit broker: %w", err)
		}
		pub := audit.NewPublisher(broker)
		defer pub.Close()

		out := cmd.OutOrStdout()
		kind := color.New(color.FgCyan).SprintFunc()
		err = pub.Tail(ctx, func(ev audit.Event) error {
			fmt.Fprintf(out, "%s  %-22s %s %s %s\n",
				ev.At.Local().Format(time.DateTime), kind(ev.Kind), dash(ev.TargetID), dash(ev.Status), dash(ev.Actor))
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	auditCmd.AddCommand(auditTailCmd)
	rootCmd.AddCommand(auditCmd)
}
