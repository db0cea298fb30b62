package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DbCmd represents the db command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the printfarm database",
	Long: `Manage database operations.

Examples:
  printfarm db migrate   # Apply pending schema migrations
  printfarm db stats     # Show job and printer counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, cfg, err := openDatabase()
		if err != nil {
			return err
		}
		defer conn.Close()
		fmt.Printf("Database up to date: %s\n", cfg.Database.Path)
		return nil
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		stats, err := svc.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Printers: %d (%d active)\n", stats.Printers, stats.ActiveIdle)
		fmt.Println("Jobs:")
		for _, status := range []string{"submitted", "pending", "scheduled", "printing", "completed", "failed", "rejected"} {
			count := 0
			for s, n := range stats.JobsByStatus {
				if string(s) == status {
					count = n
				}
			}
			fmt.Printf("  %-10s %d\n", status, count)
		}
		return nil
	},
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}
