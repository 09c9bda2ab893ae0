package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"beamline/internal/ipc"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect and control the daemon process",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon runtime status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				active := status.ActiveExecution
				if active == "" {
					active = "-"
				}
				rows := [][]string{
					{"Running", yesNo(status.Running)},
					{"PID", fmt.Sprintf("%d", status.PID)},
					{"Socket", status.Socket},
					{"API", status.APIBind},
					{"Database", status.DBPath},
					{"Lock", status.LockPath},
					{"Active execution", active},
					{"Devices", fmt.Sprintf("%d", status.DeviceCount)},
					{"Subscriptions", fmt.Sprintf("%d", status.Subscriptions)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
				return nil
			})
		},
	}

	shutdownCmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Ask the daemon process to exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Shutdown(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Shutdown requested")
				return nil
			})
		},
	}

	daemonCmd.AddCommand(statusCmd, shutdownCmd)
	return daemonCmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
