package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spoolworks/printfarm/config"
	"github.com/spoolworks/printfarm/farm"
)

// ScheduleCmd represents the schedule command
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run or watch the scheduler",
	Long: `Run or watch the scheduler.

A run places pending jobs onto compatible printers at the earliest slots
that avoid double-booking and the nightly blackout window. Plan shows
what a run would do without committing anything.

Examples:
  printfarm schedule plan    # Dry run
  printfarm schedule run     # Plan and commit
  printfarm schedule watch   # Re-run on the configured interval`,
}

var schedulePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a scheduling run would do",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		plan, err := svc.PlanScheduling(cmd.Context())
		if err != nil {
			return err
		}
		if len(plan.Assignments) == 0 && len(plan.Skips) == 0 {
			fmt.Println("Nothing to schedule")
			return nil
		}
		for _, a := range plan.Assignments {
			fmt.Printf("PLACE %-20s -> %s  %s to %s\n",
				a.JobName, a.PrinterID,
				a.Slot.Start.Format("01-02 15:04"), a.Slot.End.Format("01-02 15:04"))
		}
		for _, s := range plan.Skips {
			fmt.Printf("SKIP  %-20s (%s)\n", s.JobName, s.Reason)
		}
		return nil
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan and commit printer assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		result, err := svc.RunScheduling(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Run %s: %d scheduled, %d skipped\n",
			result.RunID, len(result.Scheduled), len(result.Skipped))
		for _, s := range result.Skipped {
			fmt.Printf("  skip %s (%s)\n", s.JobID, s.Reason)
		}
		return nil
	},
}

var scheduleWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run scheduling on the configured interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		cfg, err := loadedConfig()
		if err != nil {
			return err
		}
		interval := time.Duration(cfg.Scheduler.TickerIntervalSeconds) * time.Second

		ticker := farm.NewTicker(svc, interval)
		ticker.Start(cmd.Context())
		defer ticker.Stop()
		fmt.Printf("Scheduling every %s, Ctrl-C to stop\n", interval)

		watcher, werr := config.NewConfigWatcher(config.UserConfigPath())
		if werr != nil {
			fmt.Printf("Config hot reload disabled: %v\n", werr)
		} else {
			watcher.OnReload(func(c *config.Config) error {
				return svc.ReloadConfig(c)
			})
			watcher.Start()
			defer watcher.Stop()
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		fmt.Println("\nStopping")
		return nil
	},
}

func init() {
	ScheduleCmd.AddCommand(schedulePlanCmd)
	ScheduleCmd.AddCommand(scheduleRunCmd)
	ScheduleCmd.AddCommand(scheduleWatchCmd)
}
