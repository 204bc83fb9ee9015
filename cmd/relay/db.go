package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the execution ledger",
	}
	cmd.AddCommand(dbStatsCmd(), dbLeadsCmd(), dbHistoryCmd())
	return cmd
}

func dbStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ledger totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.ledger.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Executions: %d (%d succeeded, %d failed)\n",
				stats.TotalExecutions, stats.Successful, stats.Failed)
			fmt.Printf("Leads:      %d\n", stats.TotalLeads)
			fmt.Printf("Emails:     %d\n", stats.TotalEmailsSent)
			if !stats.FirstExecutionAt.IsZero() {
				fmt.Printf("First run:  %s\n", stats.FirstExecutionAt.Format(time.RFC3339))
				fmt.Printf("Last run:   %s\n", stats.LastExecutionAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func dbLeadsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "List stored leads, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			leads, err := a.ledger.Leads(limit)
			if err != nil {
				return err
			}
			if len(leads) == 0 {
				fmt.Println("No leads stored.")
				return nil
			}
			for _, l := range leads {
				fmt.Printf("%-30s %-30s %s\n", l.Email, l.Name, l.Company)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	return cmd
}

func dbHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past executions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			recs, err := a.ledger.RecentExecutions(limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No executions recorded.")
				return nil
			}
			for _, r := range recs {
				fmt.Printf("%s  %-25s %-8s %.1fs  %s\n",
					r.CreatedAt.Format("2006-01-02 15:04"),
					r.AutomationName, r.Status, r.ExecutionTime.Seconds(), r.UserInput)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	return cmd
}
