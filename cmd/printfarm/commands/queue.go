package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// QueueCmd represents the queue command
var QueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and reorder the pending queue",
	Long: `Inspect and reorder the pending queue.

The queue orders by manual position first, then priority, due date, and
age. Reordering pins an explicit order: pass every pending job id in the
desired sequence.

Examples:
  printfarm queue ls
  printfarm queue reorder <id3> <id1> <id2>`,
}

var queueLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "Show the pending queue in scheduling order",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		backlog, err := svc.Jobs().ListBacklog()
		if err != nil {
			return err
		}
		if len(backlog) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}
		for i, j := range backlog {
			due := ""
			if j.DueAt != nil {
				due = "  due " + j.DueAt.Format("2006-01-02")
			}
			pinned := ""
			if j.ManualPosition != nil {
				pinned = "  (pinned)"
			}
			fmt.Printf("%2d. %-36s  %-20s  p%d%s%s\n", i+1, j.ID, j.Name, j.Priority, due, pinned)
		}
		return nil
	},
}

var queueReorderCmd = &cobra.Command{
	Use:   "reorder <id>...",
	Short: "Pin an explicit queue order (must list every pending job)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		if err := svc.ReorderQueue(cmd.Context(), args); err != nil {
			return err
		}
		fmt.Printf("Queue reordered: %d jobs\n", len(args))
		return nil
	},
}

func init() {
	QueueCmd.AddCommand(queueLsCmd)
	QueueCmd.AddCommand(queueReorderCmd)
}
