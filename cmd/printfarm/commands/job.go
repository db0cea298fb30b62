package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spoolworks/printfarm/farm"
	"github.com/spoolworks/printfarm/job"
)

// JobCmd represents the job command
var JobCmd = &cobra.Command{
	Use:   "job",
	Short: "Submit and manage print jobs",
	Long: `Submit and manage print jobs.

Jobs move through submitted -> pending -> scheduled -> printing ->
completed, with rejected and failed as the exits. Identity flags (--as,
--roles) decide whether a submission needs approval.

Examples:
  printfarm job submit --name benchy --color pla:red --minutes 90
  printfarm job submit --name thesis-part --as alice --roles student
  printfarm job approve <id>
  printfarm job reject <id> --reason "unsupported material"
  printfarm job start <id>
  printfarm job complete <id>`,
}

var (
	jobNameFlag     string
	jobModelFlag    string
	jobQuantityFlag int
	jobPriorityFlag int
	jobMinutesFlag  int
	jobGramsFlag    float64
	jobColorsFlag   string
	jobTagsFlag     string
	jobDueFlag      string
	jobPrinterFlag  string
	jobNotesFlag    string
	jobNowFlag      bool
	jobReasonFlag   string
	jobFailNotes    string
	jobStatusFlag   string
)

var jobSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new print job",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		opts := farm.SubmitOptions{
			Name:            jobNameFlag,
			ModelRef:        jobModelFlag,
			Quantity:        jobQuantityFlag,
			Notes:           jobNotesFlag,
			Priority:        jobPriorityFlag,
			Colors:          splitList(jobColorsFlag),
			RequiredTags:    splitList(jobTagsFlag),
			PrinterOverride: jobPrinterFlag,
			ScheduleNow:     jobNowFlag,
		}
		if jobMinutesFlag > 0 {
			minutes := jobMinutesFlag
			opts.DurationMinutes = &minutes
		}
		if jobGramsFlag > 0 {
			grams := jobGramsFlag
			opts.GramsEstimate = &grams
		}
		if jobDueFlag != "" {
			due, err := time.Parse("2006-01-02", jobDueFlag)
			if err != nil {
				return fmt.Errorf("invalid --due date (want YYYY-MM-DD): %w", err)
			}
			opts.DueAt = &due
		}

		j, err := svc.SubmitJob(cmd.Context(), actingPrincipal(), opts)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s submitted: %s (%s)\n", j.ID, j.Name, j.Status)
		return nil
	},
}

var jobLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		jobs, err := svc.Jobs().ListByStatus(job.Status(jobStatusFlag))
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Printf("No %s jobs\n", jobStatusFlag)
			return nil
		}
		for _, j := range jobs {
			printJobLine(j)
		}
		return nil
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a job in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		j, err := svc.Jobs().Get(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Job:        %s\n", j.ID)
		fmt.Printf("Name:       %s (x%d)\n", j.Name, j.Quantity)
		fmt.Printf("Status:     %s\n", j.Status)
		fmt.Printf("Priority:   %d\n", j.Priority)
		fmt.Printf("Submitter:  %s\n", j.SubmittedBy)
		if j.DurationMinutes != nil {
			fmt.Printf("Duration:   %d min\n", *j.DurationMinutes)
		}
		if j.GramsEstimate != nil {
			fmt.Printf("Filament:   %.1f g\n", *j.GramsEstimate)
		}
		if j.DueAt != nil {
			fmt.Printf("Due:        %s\n", j.DueAt.Format("2006-01-02"))
		}
		if j.PrinterID != "" {
			fmt.Printf("Printer:    %s\n", j.PrinterID)
		}
		if j.ScheduledStart != nil && j.ScheduledEnd != nil {
			fmt.Printf("Slot:       %s to %s\n",
				j.ScheduledStart.Format(time.RFC3339), j.ScheduledEnd.Format(time.RFC3339))
		}
		if j.RejectionReason != "" {
			fmt.Printf("Rejected:   %s\n", j.RejectionReason)
		}
		if j.FailureReason != "" {
			fmt.Printf("Failure:    %s\n", j.FailureReason)
			if j.FailureNotes != "" {
				fmt.Printf("Notes:      %s\n", j.FailureNotes)
			}
		}
		return nil
	},
}

func printJobLine(j *job.Job) {
	slot := ""
	if j.ScheduledStart != nil {
		slot = " @ " + j.ScheduledStart.Format("01-02 15:04")
	}
	fmt.Printf("%-36s  %-20s  p%d  %s%s\n", j.ID, j.Name, j.Priority, j.Status, slot)
}

var jobApproveCmd = &cobra.Command{
	Use:   "approve <id>...",
	Short: "Approve submitted jobs into the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		results := svc.BulkUpdate(cmd.Context(), actingPrincipal(), farm.BulkApprove, args, farm.BulkOptions{})
		return printBulkResults("approved", results)
	},
}

var jobRejectCmd = &cobra.Command{
	Use:   "reject <id>...",
	Short: "Reject submitted jobs (requires --reason)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		results := svc.BulkUpdate(cmd.Context(), actingPrincipal(), farm.BulkReject, args,
			farm.BulkOptions{Reason: jobReasonFlag})
		return printBulkResults("rejected", results)
	},
}

var jobResubmitCmd = &cobra.Command{
	Use:   "resubmit <id>",
	Short: "Return a rejected job to the approval gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		j, err := svc.ResubmitJob(cmd.Context(), actingPrincipal(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Job %s resubmitted\n", j.ID)
		return nil
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <id>...",
	Short: "Cancel jobs that have not completed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		results := svc.BulkUpdate(cmd.Context(), actingPrincipal(), farm.BulkCancel, args,
			farm.BulkOptions{Reason: jobReasonFlag})
		return printBulkResults("cancelled", results)
	},
}

var jobPriorityFlagBulk int

var jobReprioritizeCmd = &cobra.Command{
	Use:   "reprioritize <id>...",
	Short: "Change job priority (requires --priority)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		results := svc.BulkUpdate(cmd.Context(), actingPrincipal(), farm.BulkReprioritize, args,
			farm.BulkOptions{Priority: jobPriorityFlagBulk})
		return printBulkResults("reprioritized", results)
	},
}

var jobRescheduleCmd = &cobra.Command{
	Use:   "reschedule <id>...",
	Short: "Release assignments so the next run places the jobs afresh",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		results := svc.BulkUpdate(cmd.Context(), actingPrincipal(), farm.BulkReschedule, args,
			farm.BulkOptions{})
		return printBulkResults("rescheduled", results)
	},
}

var jobRmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Delete jobs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		results := svc.BulkUpdate(cmd.Context(), actingPrincipal(), farm.BulkDelete, args,
			farm.BulkOptions{})
		return printBulkResults("deleted", results)
	},
}

var jobFailCmd = &cobra.Command{
	Use:   "fail <id>",
	Short: "Record a failure reason on a failed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		j, err := svc.SetFailureReason(cmd.Context(), args[0], jobReasonFlag, jobFailNotes)
		if err != nil {
			return err
		}
		fmt.Printf("Job %s failure reason: %s\n", j.ID, j.FailureReason)
		return nil
	},
}

var jobRepeatCmd = &cobra.Command{
	Use:   "repeat <id>",
	Short: "Clone a job into a fresh submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		clone, err := svc.RepeatJob(cmd.Context(), actingPrincipal(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Job %s repeated as %s (%s)\n", args[0], clone.ID, clone.Status)
		return nil
	},
}

var jobStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Dispatch a scheduled job to its printer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		j, err := svc.StartJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Job %s printing on %s\n", j.ID, j.PrinterID)
		return nil
	},
}

var jobCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a printing job as finished",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		j, err := svc.CompleteJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Job %s completed\n", j.ID)
		return nil
	},
}

func printBulkResults(verb string, results []farm.BulkResult) error {
	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Printf("%-36s  FAILED: %v\n", r.JobID, r.Err)
		} else {
			fmt.Printf("%-36s  %s\n", r.JobID, verb)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d jobs failed", failures, len(results))
	}
	return nil
}

func init() {
	registerPrincipalFlags(JobCmd)

	jobSubmitCmd.Flags().StringVar(&jobNameFlag, "name", "", "Job name (required)")
	jobSubmitCmd.Flags().StringVar(&jobModelFlag, "model", "", "Model file reference")
	jobSubmitCmd.Flags().IntVar(&jobQuantityFlag, "quantity", 1, "Number of copies")
	jobSubmitCmd.Flags().IntVar(&jobPriorityFlag, "priority", 3, "Priority 1 (highest) to 5")
	jobSubmitCmd.Flags().IntVar(&jobMinutesFlag, "minutes", 0, "Estimated print minutes")
	jobSubmitCmd.Flags().Float64Var(&jobGramsFlag, "grams", 0, "Estimated filament grams")
	jobSubmitCmd.Flags().StringVar(&jobColorsFlag, "color", "", "Comma-separated material/color tokens")
	jobSubmitCmd.Flags().StringVar(&jobTagsFlag, "require", "", "Comma-separated required printer tags")
	jobSubmitCmd.Flags().StringVar(&jobDueFlag, "due", "", "Due date (YYYY-MM-DD)")
	jobSubmitCmd.Flags().StringVar(&jobPrinterFlag, "printer", "", "Force a specific printer id")
	jobSubmitCmd.Flags().StringVar(&jobNotesFlag, "notes", "", "Free-form notes")
	jobSubmitCmd.Flags().BoolVar(&jobNowFlag, "now", false, "Run scheduling immediately after submit")
	_ = jobSubmitCmd.MarkFlagRequired("name")

	jobLsCmd.Flags().StringVar(&jobStatusFlag, "status", "pending", "Status to list")
	jobRejectCmd.Flags().StringVar(&jobReasonFlag, "reason", "", "Rejection reason (required)")
	_ = jobRejectCmd.MarkFlagRequired("reason")
	jobCancelCmd.Flags().StringVar(&jobReasonFlag, "reason", "", "Cancellation reason")
	jobReprioritizeCmd.Flags().IntVar(&jobPriorityFlagBulk, "priority", 3, "New priority 1 (highest) to 5")
	_ = jobReprioritizeCmd.MarkFlagRequired("priority")
	jobFailCmd.Flags().StringVar(&jobReasonFlag, "reason", "", "Failure reason (required)")
	jobFailCmd.Flags().StringVar(&jobFailNotes, "notes", "", "Failure notes")
	_ = jobFailCmd.MarkFlagRequired("reason")

	JobCmd.AddCommand(jobSubmitCmd)
	JobCmd.AddCommand(jobLsCmd)
	JobCmd.AddCommand(jobShowCmd)
	JobCmd.AddCommand(jobApproveCmd)
	JobCmd.AddCommand(jobRejectCmd)
	JobCmd.AddCommand(jobResubmitCmd)
	JobCmd.AddCommand(jobCancelCmd)
	JobCmd.AddCommand(jobReprioritizeCmd)
	JobCmd.AddCommand(jobRescheduleCmd)
	JobCmd.AddCommand(jobRmCmd)
	JobCmd.AddCommand(jobFailCmd)
	JobCmd.AddCommand(jobRepeatCmd)
	JobCmd.AddCommand(jobStartCmd)
	JobCmd.AddCommand(jobCompleteCmd)
}
