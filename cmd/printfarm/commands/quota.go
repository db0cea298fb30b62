package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spoolworks/printfarm/quota"
)

// QuotaCmd represents the quota command
var QuotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and set per-user limits",
	Long: `Inspect and set per-user consumption limits.

Limits constrain jobs, filament grams, and printer hours over a calendar
period (daily, weekly, monthly, or semester). Users without their own
limits fall back to the configured defaults; zero means unlimited.

Examples:
  printfarm quota show alice
  printfarm quota set alice --period weekly --max-jobs 10 --max-hours 40
  printfarm quota clear alice`,
}

var (
	quotaPeriodFlag string
	quotaJobsFlag   int
	quotaGramsFlag  float64
	quotaHoursFlag  float64
)

var quotaShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Show a user's usage against their limits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		usage, limits, err := svc.Quota().UsageFor(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("User:    %s (%s period)\n", args[0], limits.Period)
		fmt.Printf("Jobs:    %d%s\n", usage.Jobs, limitSuffixInt(limits.MaxJobs))
		fmt.Printf("Grams:   %.1f%s\n", usage.Grams, limitSuffixFloat(limits.MaxGrams))
		fmt.Printf("Hours:   %.1f%s\n", usage.Hours, limitSuffixFloat(limits.MaxHours))
		return nil
	},
}

func limitSuffixInt(limit *int) string {
	if limit == nil {
		return " (unlimited)"
	}
	return fmt.Sprintf(" of %d", *limit)
}

func limitSuffixFloat(limit *float64) string {
	if limit == nil {
		return " (unlimited)"
	}
	return fmt.Sprintf(" of %.1f", *limit)
}

var quotaSetCmd = &cobra.Command{
	Use:   "set <user>",
	Short: "Set a user's limits (0 = unlimited)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !quota.IsValidPeriod(quotaPeriodFlag) {
			return fmt.Errorf("invalid period %q (want daily, weekly, monthly, or semester)", quotaPeriodFlag)
		}

		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		limits := &quota.Limits{
			Principal: args[0],
			Period:    quota.Period(quotaPeriodFlag),
		}
		if quotaJobsFlag > 0 {
			limits.MaxJobs = &quotaJobsFlag
		}
		if quotaGramsFlag > 0 {
			limits.MaxGrams = &quotaGramsFlag
		}
		if quotaHoursFlag > 0 {
			limits.MaxHours = &quotaHoursFlag
		}

		if err := svc.Quota().SetLimits(limits); err != nil {
			return err
		}
		fmt.Printf("Limits set for %s\n", args[0])
		return nil
	},
}

var quotaClearCmd = &cobra.Command{
	Use:   "clear <user>",
	Short: "Remove a user's limits so defaults apply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, conn, err := openService()
		if err != nil {
			return err
		}
		defer conn.Close()
		defer svc.Close()

		if err := svc.Quota().ClearLimits(args[0]); err != nil {
			return err
		}
		fmt.Printf("Limits cleared for %s\n", args[0])
		return nil
	},
}

func init() {
	quotaSetCmd.Flags().StringVar(&quotaPeriodFlag, "period", "daily", "Limit period: daily, weekly, monthly, semester")
	quotaSetCmd.Flags().IntVar(&quotaJobsFlag, "max-jobs", 0, "Maximum jobs per period")
	quotaSetCmd.Flags().Float64Var(&quotaGramsFlag, "max-grams", 0, "Maximum filament grams per period")
	quotaSetCmd.Flags().Float64Var(&quotaHoursFlag, "max-hours", 0, "Maximum printer hours per period")

	QuotaCmd.AddCommand(quotaShowCmd)
	QuotaCmd.AddCommand(quotaSetCmd)
	QuotaCmd.AddCommand(quotaClearCmd)
}
