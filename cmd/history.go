package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"oidbs/internal/storage"
)

var historyFlags struct {
	path string
	json string
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List saved runs, or show one run's full report",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.Open(historyFlags.path)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			item, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Print(item.Report.Render())
			if historyFlags.json != "" {
				if err := item.Report.WriteJSON(historyFlags.json); err != nil {
					return err
				}
				fmt.Printf("💾 Report saved to %s\n", historyFlags.json)
			}
			return nil
		}

		items := store.List()
		if len(items) == 0 {
			fmt.Println("No saved runs.")
			return nil
		}
		fmt.Printf("%-10s %-20s %-12s %-8s %10s %12s %s\n",
			"RUN", "WHEN", "MODEL", "WORK", "OPS", "OPS/SEC", "STATUS")
		for _, it := range items {
			r := it.Report
			status := "ok"
			if r.Aborted {
				status = "aborted"
			} else if r.TotalFailures() > 0 {
				status = fmt.Sprintf("%d errs", r.TotalFailures())
			}
			fmt.Printf("%-10s %-20s %-12s %-8s %10d %12.1f %s\n",
				r.RunID,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Model,
				r.Workload,
				r.TotalOps,
				r.OpsPerSec,
				status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyFlags.path, "history", "", "history database path (default $HOME/.oidbs/history.db)")
	historyCmd.Flags().StringVar(&historyFlags.json, "json", "", "also export the selected run's report to this path")
}
