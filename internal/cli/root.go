// Package cli implements sessionctl, the command line front end of sessiond.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://127.0.0.1:8190"

var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	server  string
	timeout time.Duration
	now     func() time.Time
}

func (o *options) client() *Client {
	return NewClient(o.server, o.timeout)
}

// NewRootCmd builds the sessionctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{now: time.Now}

	server := os.Getenv("SESSIONCTL_SERVER")
	if server == "" {
		server = defaultServer
	}

	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "Save and switch browser sessions through sessiond",
		Long: `sessionctl drives a running sessiond.

A session is a saved copy of one site's cookies, localStorage,
sessionStorage and IndexedDB. Switching a tab to a session clears the
site's live state, restores the saved copy and reloads the tab.

Quick Start:
  sessionctl tabs                               # find a tab id
  sessionctl save --tab <tab-id> --name Work    # save the tab's session
  sessionctl list                               # saved sessions per site
  sessionctl switch <session-id> --tab <tab-id> # switch the tab`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "sessiond base URL (env SESSIONCTL_SERVER)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 60*time.Second, "Request timeout")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newTabsCmd(opts),
		newListCmd(opts),
		newSaveCmd(opts),
		newSwitchCmd(opts),
		newReplaceCmd(opts),
		newRenameCmd(opts),
		newDeleteCmd(opts),
		newClearCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newCommandCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// Execute runs sessionctl and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
