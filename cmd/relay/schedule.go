package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring requests",
	}
	cmd.AddCommand(scheduleAddCmd(), scheduleListCmd(), scheduleRemoveCmd(), scheduleServeCmd())
	return cmd
}

func scheduleAddCmd() *cobra.Command {
	var when string
	cmd := &cobra.Command{
		Use:   "add <name> <request>",
		Short: "Schedule a request, e.g. --when 'daily at 8am'",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.scheduler.Load(); err != nil {
				return err
			}
			job, err := a.scheduler.Add(args[0], when, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Scheduled %q (%s -> cron %q)\n", job.Name, job.Schedule, job.Spec)
			return nil
		},
	}
	cmd.Flags().StringVar(&when, "when", "daily", "plain-language schedule")
	return cmd
}

func scheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.scheduler.Load(); err != nil {
				return err
			}
			jobs := a.scheduler.List()
			if len(jobs) == 0 {
				fmt.Println("No scheduled jobs.")
				return nil
			}
			for _, j := range jobs {
				fmt.Printf("%-20s %-20s %s\n", j.Name, j.Schedule, j.Request)
			}
			return nil
		},
	}
}

func scheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a scheduled request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.scheduler.Load(); err != nil {
				return err
			}
			if err := a.scheduler.Remove(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %q\n", args[0])
			return nil
		},
	}
}

func scheduleServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled requests in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.scheduler.Start(); err != nil {
				return err
			}
			defer a.scheduler.Stop()

			jobs := a.scheduler.List()
			fmt.Printf("Scheduler running with %d job(s). Ctrl-C to stop.\n", len(jobs))

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			fmt.Println("Stopping scheduler.")
			return nil
		},
	}
}
