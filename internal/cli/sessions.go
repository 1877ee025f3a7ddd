package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTabsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List the browser tabs sessiond can see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tabs, err := opts.client().ListTabs(cmd.Context())
			if err != nil {
				return err
			}
			renderTabs(cmd.OutOrStdout(), tabs)
			return nil
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		Long:  `List saved sessions grouped by site. The active session of each site is marked with *.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			sessions, err := c.ListSessions(cmd.Context(), domain)
			if err != nil {
				return err
			}
			active := map[string]string{}
			for _, s := range sessions {
				if _, seen := active[s.Domain]; seen {
					continue
				}
				id, err := c.ActiveSession(cmd.Context(), s.Domain)
				if err != nil {
					return err
				}
				active[s.Domain] = id
			}
			renderSessions(cmd.OutOrStdout(), sessions, active, opts.now())
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "Only sessions of this site")
	return cmd
}

func newSaveCmd(opts *options) *cobra.Command {
	var (
		tabID string
		name  string
		order int
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save the live session of a tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var orderp *int
			if cmd.Flags().Changed("order") {
				orderp = &order
			}
			s, err := opts.client().SaveSession(cmd.Context(), tabID, name, orderp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %q for %s as %s (position %d)\n", s.Name, s.Domain, idStyle.Render(s.ID), s.Order)
			return nil
		},
	}
	cmd.Flags().StringVar(&tabID, "tab", "", "Tab to capture")
	cmd.Flags().StringVar(&name, "name", "", "Session name")
	cmd.Flags().IntVar(&order, "order", 0, "1-based position within the site")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

func newSwitchCmd(opts *options) *cobra.Command {
	var tabID string
	cmd := &cobra.Command{
		Use:   "switch <session-id>",
		Short: "Switch a tab to a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.client().SwitchSession(cmd.Context(), args[0], tabID)
			if err != nil {
				return err
			}
			renderSwitch(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&tabID, "tab", "", "Tab to switch")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

func newReplaceCmd(opts *options) *cobra.Command {
	var tabID string
	cmd := &cobra.Command{
		Use:   "replace <session-id>",
		Short: "Overwrite a saved session with the live state of a tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.client().ReplaceSession(cmd.Context(), args[0], tabID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %q (%s)\n", s.Name, idStyle.Render(s.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&tabID, "tab", "", "Tab to capture")
	_ = cmd.MarkFlagRequired("tab")
	return cmd
}

func newRenameCmd(opts *options) *cobra.Command {
	var (
		name  string
		order int
	)
	cmd := &cobra.Command{
		Use:   "rename <session-id>",
		Short: "Rename or move a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				namep  *string
				orderp *int
			)
			if cmd.Flags().Changed("name") {
				namep = &name
			}
			if cmd.Flags().Changed("order") {
				orderp = &order
			}
			if namep == nil && orderp == nil {
				return fmt.Errorf("nothing to change: pass --name or --order")
			}
			s, err := opts.client().UpdateSession(cmd.Context(), args[0], namep, orderp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %q at position %d\n", idStyle.Render(s.ID), s.Name, s.Order)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().IntVar(&order, "order", 0, "New 1-based position")
	return cmd
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newClearCmd(opts *options) *cobra.Command {
	var scope, domain, tabID string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove saved sessions of one site or all of them",
		Long: `Remove saved sessions.

--scope current removes the sessions of --domain (or of the site open in
--tab). --scope all archives the whole catalog under the journal directory
and then empties it. With --tab the live state of that tab is cleared too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sum, err := opts.client().ClearSessions(cmd.Context(), scope, tabID, domain)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			target := "all sites"
			if sum.Domain != "" {
				target = sum.Domain
			}
			fmt.Fprintf(out, "Removed %d session(s) of %s\n", sum.Removed, target)
			if sum.Archive != "" {
				fmt.Fprintf(out, "Archived to %s\n", sum.Archive)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "current", "current or all")
	cmd.Flags().StringVar(&domain, "domain", "", "Site whose sessions are removed")
	cmd.Flags().StringVar(&tabID, "tab", "", "Also clear the live state of this tab")
	return cmd
}
