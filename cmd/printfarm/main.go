package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spoolworks/printfarm/cmd/printfarm/commands"
	"github.com/spoolworks/printfarm/logger"
)

var rootCmd = &cobra.Command{
	Use:   "printfarm",
	Short: "printfarm - 3D printer fleet scheduler",
	Long: `printfarm - scheduling core for a shared 3D printer fleet.

Jobs flow through an approval gate into a priority queue, the scheduler
assigns them to compatible printers without double-booking, quota keeps
individual users from draining the fleet, and dispatch hands finished
plans to the machines.

Available commands:
  config   - Show and edit configuration
  db       - Database operations
  printer  - Manage the printer inventory
  job      - Submit and manage print jobs
  queue    - Inspect and reorder the pending queue
  schedule - Run or watch the scheduler
  preset   - Manage reusable job templates
  quota    - Inspect and set per-user limits

Examples:
  printfarm job submit --name benchy --color pla:red
  printfarm schedule run          # Place the backlog onto printers
  printfarm schedule watch        # Keep placing jobs periodically
  printfarm queue ls              # Show the pending queue in order`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.InitializeWithLevel(false, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.PrinterCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.QueueCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.PresetCmd)
	rootCmd.AddCommand(commands.QuotaCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
