package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relayhq/relay/internal/state"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive session with meta-commands history, list, clear, exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Println("relay ready. Type a request, or: history, list, clear, exit")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				switch strings.ToLower(line) {
				case "exit", "quit":
					printInsights(a)
					return nil
				case "history":
					printHistory(a)
					continue
				case "clear":
					a.history.Clear()
					a.metrics.Reset()
					fmt.Println("Session history cleared.")
					continue
				case "list":
					for _, auto := range a.registry.List() {
						fmt.Printf("  %-20s %s\n", auto.Name, auto.Description)
					}
					continue
				}

				// No fault may kill the loop; Handle reports every
				// failure as a structured response.
				res := a.engine.Handle(cmd.Context(), line)
				fmt.Println(res.Text)
			}
			printInsights(a)
			return nil
		},
	}
}

func printHistory(a *app) {
	entries := a.history.Entries()
	if len(entries) == 0 {
		fmt.Println("No requests this session.")
		return
	}
	for i, e := range entries {
		target := e.Automation
		if e.Kind == state.KindMultiStep {
			target = strings.Join(e.Steps, " -> ")
		}
		fmt.Printf("%2d. [%s] %s  (%s, %s)\n", i+1, e.Timestamp.Format("15:04:05"), e.Input, target, e.Status)
	}
}

func printInsights(a *app) {
	for _, line := range a.metrics.Insights() {
		fmt.Println(line)
	}
}
