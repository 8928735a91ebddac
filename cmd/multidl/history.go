package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"multidl/internal/config"
	"multidl/internal/history"
	"multidl/internal/pathutil"
)

// newHistoryCmd lists past batches from the configured history database.
func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded download batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return fmt.Errorf("no history database configured (set MULTIDL_HISTORY_PATH)")
			}

			store, err := history.Open(pathutil.Expand(cfg.History.Path))
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}

			batches, err := store.ListBatches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Println("no batches recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tFILES\tFAILED\tSIZE\tDURATION\tID")
			for _, b := range batches {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
					b.StartedAt.Local().Format("2006-01-02 15:04:05"),
					b.Completed+b.Failed,
					b.Failed,
					humanize.Bytes(uint64(b.TotalBytes)),
					b.Elapsed,
					b.ID)
				for _, o := range b.Outcomes {
					if o.Error != "" {
						fmt.Fprintf(w, "\t\t\t\t\t  %s: %s\n", o.URL, o.Error)
					}
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of batches to show")
	return cmd
}
