package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"beamline/internal/ipc"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "upload <script-file>",
		Short: "Upload a script to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}
			scriptName := strings.TrimSpace(name)
			if scriptName == "" {
				scriptName = filepath.Base(args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.UploadScript(scriptName, string(content))
				if err != nil {
					return err
				}
				if !resp.Success {
					return fmt.Errorf("upload rejected: %s", resp.ErrorMessage)
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.ScriptID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Script name (defaults to the file name)")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "run <script-id>",
		Short: "Start an execution of an uploaded script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StartScript(args[0])
				if err != nil {
					return err
				}
				if !resp.Started {
					return fmt.Errorf("start rejected: %s", resp.Message)
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintln(stdout, resp.ExecutionID)
				if !follow {
					return nil
				}
				return followExecution(cmd, client, resp.ExecutionID)
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll status until the execution finishes")
	return cmd
}

func followExecution(cmd *cobra.Command, client *ipc.Client, executionID string) error {
	stdout := cmd.OutOrStdout()
	lastState := ""
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(250 * time.Millisecond):
		}
		resp, err := client.GetScriptStatus(executionID)
		if err != nil {
			return err
		}
		exec := resp.Execution
		if exec.State != lastState {
			fmt.Fprintln(stdout, exec.State)
			lastState = exec.State
		}
		switch exec.State {
		case "COMPLETED":
			return nil
		case "ERROR":
			return fmt.Errorf("execution failed: %s", exec.ErrorMessage)
		}
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Show the lifecycle state of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.GetScriptStatus(args[0])
				if err != nil {
					return err
				}
				exec := resp.Execution
				rows := [][]string{
					{"Execution", exec.ExecutionID},
					{"Script", exec.ScriptID},
					{"State", exec.State},
					{"Started", formatNS(exec.StartTimeNS)},
					{"Ended", formatNS(exec.EndTimeNS)},
				}
				if exec.ErrorMessage != "" {
					rows = append(rows, []string{"Error", exec.ErrorMessage})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows))
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <execution-id>",
		Short: "Abort a running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.StopScript(args[0])
				if err != nil {
					return err
				}
				if !resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Execution was not running")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Execution stopped")
				return nil
			})
		},
	}
}

func newScriptsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scripts",
		Short: "List uploaded scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListScripts()
				if err != nil {
					return err
				}
				if len(resp.Scripts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No scripts uploaded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Scripts))
				for _, script := range resp.Scripts {
					rows = append(rows, []string{
						script.ScriptID,
						script.Name,
						fmt.Sprintf("%d", script.SizeBytes),
						script.CreatedAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Bytes", "Created"}, rows))
				return nil
			})
		},
	}
}

func formatNS(ns int64) string {
	if ns == 0 {
		return "-"
	}
	return time.Unix(0, ns).Format("2006-01-02 15:04:05.000")
}
