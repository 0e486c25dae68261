package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/memzapp/memz/internal/app"
	"github.com/memzapp/memz/internal/plugins/logs"
	"github.com/memzapp/memz/internal/realtime"
)

// withLogs opens the stores and runs fn with a log service over them.
// Change notifications go to an in-process hub nobody listens on; a running
// server picks imported data up on its next reload.
func (c *cli) withLogs(fn func(svc logs.LogService) error) error {
	stores, err := app.OpenStores(c.cfg, true, false)
	if err != nil {
		return err
	}
	defer stores.Close()
	return fn(logs.NewLogService(stores.Logs, realtime.NewHub(), nil))
}

func (c *cli) newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every log as a JSON document",
		Long:  "Write every log with its events as the memz-logs JSON array, to stdout or --out.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withLogs(func(svc logs.LogService) error {
				all, err := svc.Export(cmd.Context())
				if err != nil {
					return err
				}

				var w io.Writer = cmd.OutOrStdout()
				if out != "" {
					f, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("creating %s: %w", out, err)
					}
					defer f.Close()
					w = f
				}
				if err := logs.EncodeDocument(w, all); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %d logs\n", okColor.Sprint("exported"), len(all))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write instead of stdout")
	return cmd
}

func (c *cli) newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Load logs from a JSON document",
		Long: `Load logs from a memz-logs JSON document (a bare array or an object with a
"memz-logs" key). Logs whose id already exists are skipped. Use - for stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			doc, err := logs.DecodeDocument(r)
			if err != nil {
				return err
			}

			return c.withLogs(func(svc logs.LogService) error {
				n, err := svc.Import(cmd.Context(), doc)
				if err != nil {
					return err
				}
				msg := okColor.Sprint("imported")
				if n < len(doc) {
					msg = warnColor.Sprint("imported")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d logs\n", msg, n, len(doc))
				return nil
			})
		},
	}
}
