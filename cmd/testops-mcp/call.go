package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctagard/testops-mcp/pkg/client"
)

func newCallCmd() *cobra.Command {
	var retries int

	cmd := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Call a tool on a running server and print its result",
		Example: `  testops-mcp call generate_test_case '{"scenario":"User logs in"}'
  testops-mcp call monitor_test_execution '{"testFile":"login.spec.ts","action":"status"}'
  testops-mcp call --list`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			list, _ := cmd.Flags().GetBool("list")
			if !list && len(args) == 0 {
				return fmt.Errorf("a tool name is required")
			}

			var arguments json.RawMessage = []byte("{}")
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("arguments must be a JSON object, got %q", args[1])
				}
				arguments = []byte(args[1])
			}

			ctx := cmd.Context()
			c, err := client.Dial(ctx, cfg.ServerURL,
				client.WithLogger(logger),
				client.WithTimeout(cfg.CallTimeout),
				client.WithDialRetries(cfg.DialRetries),
				client.WithCallRetries(retries),
				client.WithRetryInterval(200*time.Millisecond),
			)
			if err != nil {
				return err
			}
			defer c.Close()

			if list {
				names, err := c.ListTools(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			result, err := c.CallTool(ctx, args[0], arguments)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Text())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("server", "ws://localhost:3001", "Websocket URL of the server")
	flags.Duration("timeout", 30*time.Second, "How long to wait for the reply")
	flags.Bool("list", false, "List the server's tools instead of calling one")
	flags.IntVar(&retries, "retries", 0, "Retry a timed out call this many times")
	mustBind(v, "serverUrl", flags.Lookup("server"))
	mustBind(v, "callTimeout", flags.Lookup("timeout"))

	return cmd
}
