package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *options) *cobra.Command {
	var scope, domain, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved sessions as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := opts.client().Export(cmd.Context(), scope, domain)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(doc)
				return err
			}
			if err := os.WriteFile(output, doc, 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "all", "current or all")
	cmd.Flags().StringVar(&domain, "domain", "", "Site to export with --scope current")
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write; stdout when empty")
	return cmd
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import an export document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				doc []byte
				err error
			)
			if args[0] == "-" {
				doc, err = io.ReadAll(cmd.InOrStdin())
			} else {
				doc, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}
			sum, err := opts.client().Import(cmd.Context(), doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d session(s)\n", sum.Imported)
			return nil
		},
	}
}

func newCommandCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "command <json>",
		Short: "Send one raw protocol message",
		Long: `Send one message of the command protocol, for example

  sessionctl command '{"action":"getSessions","domain":"example.com"}'

The reply is printed as indented JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Command(cmd.Context(), []byte(args[0]))
			if err != nil {
				return err
			}
			raw, err := json.Marshal(resp)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				return err
			}
			pretty.WriteByte('\n')
			_, err = pretty.WriteTo(cmd.OutOrStdout())
			if err == nil && !resp.Success {
				return fmt.Errorf("command failed: %s", resp.Error)
			}
			return err
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	var feeds string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow save, switch and clear activity as it happens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			// The stream is long lived; only ctx bounds it.
			c := NewClient(opts.server, 0)
			return c.Watch(cmd.Context(), feeds, func(feed, data string) {
				fmt.Fprintf(out, "%s %s\n", domainStyle.Render(feed), data)
			})
		},
	}
	cmd.Flags().StringVar(&feeds, "feeds", "", "Comma separated actions to follow; all when empty")
	return cmd
}
