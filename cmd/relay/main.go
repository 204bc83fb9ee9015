// Command relay routes free-text requests to registered automations,
// single-shot or as conditional multi-step chains.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relayhq/relay/internal/version"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Route requests to automations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/relay.yaml", "path to config file")

	root.AddCommand(runCmd(), chatCmd(), listCmd(), dbCmd(), scheduleCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <request...>",
		Short: "Route one request and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			res := a.engine.Handle(cmd.Context(), strings.Join(args, " "))
			fmt.Println(res.Text)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered automations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.registry.Len() == 0 {
				fmt.Println("No automations registered.")
				return nil
			}
			for _, auto := range a.registry.List() {
				fmt.Printf("%-20s %-10s %s\n", auto.Name, auto.Platform.Kind, auto.Description)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Get())
		},
	}
}
