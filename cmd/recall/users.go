package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeanpaul/recall/internal/health"
	"github.com/jeanpaul/recall/internal/tui"
)

func newUsersCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List stored users by opaque reference with record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			users, err := a.store.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(users)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderUsers(users))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newDoctorCmd(c *cli) *cobra.Command {
	var clearMarker bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the memory document is reachable and parses",
		Long: `Check that the memory document is reachable and parses.

Once a document fails to parse, every process refuses writes until an
operator repairs the file. After repairing it, run "recall doctor --clear"
to re-enable writes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			if clearMarker {
				if err := a.store.ClearCorruption(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), tui.OKStyle.Render("writes re-enabled"))
			}
			st := health.Check(cmd.Context(), a.store, c.cfg.Store.LockTimeout)
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderHealth(st))
			if !st.Healthy() {
				return fmt.Errorf("memory document is unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearMarker, "clear", false, "re-enable writes after the document was repaired")
	return cmd
}
