package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jeanpaul/recall/internal/tools"
	"github.com/jeanpaul/recall/internal/tui"
)

func newCallCmd(c *cli) *cobra.Command {
	var (
		session string
		retries int
	)
	cmd := &cobra.Command{
		Use:   "call <tool> [arguments-json|-]",
		Short: "Invoke one memory tool and print its JSON result",
		Long: `Invoke one memory tool exactly as a chat client would. Arguments are a
JSON object given inline, or read from stdin when omitted or "-".

The call is logged to the tool log like any other. Lock timeouts are
retried with exponential backoff when --retries is set; nothing else is.`,
		Example: `  recall call add_note '{"user_id":"alice","text":"prefers window seats"}'
  echo '{"user_id":"alice"}' | recall call get_memory`,
		Args: cobra.RangeArgs(1, 2),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			var names []string
			for _, d := range tools.Definitions() {
				names = append(names, d.Name+"\t"+d.Description)
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readArguments(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			if session == "" {
				session = "cli-" + uuid.NewString()
			}

			var inv tools.Invoker = a.facade
			if retries > 0 {
				inv = tools.WithRetry(a.facade, retries)
			}
			resp := inv.Invoke(cmd.Context(), tools.Request{Tool: args[0], Arguments: raw, SessionID: session})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("%s failed: %s", args[0], resp.Error.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "analytics session id (default: a fresh id per invocation)")
	cmd.Flags().IntVar(&retries, "retries", 0, "retry lock timeouts this many times with backoff")
	return cmd
}

func readArguments(args []string, stdin io.Reader) (json.RawMessage, error) {
	if len(args) == 2 && args[1] != "-" {
		return json.RawMessage(args[1]), nil
	}
	if f, ok := stdin.(*os.File); ok {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			return json.RawMessage("{}"), nil
		}
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read arguments: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return json.RawMessage("{}"), nil
	}
	return data, nil
}

func newToolsCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:         "tools",
		Short:       "List the tool catalog",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs := tools.Definitions()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(defs)
			}
			for _, d := range defs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", tui.LabelStyle.Render(fmt.Sprintf("%-18s", d.Name)), d.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print definitions with their JSON schemas")
	return cmd
}
